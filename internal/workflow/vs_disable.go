// Package workflow runs the virtual service disable test case against a
// controller API.
package workflow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rflorenc/avi-test-automation/internal/config"
	"github.com/rflorenc/avi-test-automation/internal/models"
)

// Name identifies this workflow in run reports.
const Name = "vs-disable"

// Stage names, in execution order.
const (
	StagePreFetch       = "pre_fetch"
	StagePreValidation  = "pre_validation"
	StageAction         = "action"
	StagePostValidation = "post_validation"
)

var (
	// ErrNotFound is returned when no virtual service carries the target name.
	ErrNotFound = errors.New("virtual service not found")
	// ErrPrecondition is returned when the target is in the wrong enabled state.
	ErrPrecondition = errors.New("validation failed")
	// ErrMissingUUID is returned when the located target has no uuid.
	ErrMissingUUID = errors.New("virtual service uuid not found")
)

// Requester is the subset of platform.Client the workflow needs.
type Requester interface {
	List(path string) ([]models.Resource, error)
	Put(path string, payload interface{}) (models.Resource, error)
}

// VSDisable disables the target virtual service and verifies the change.
type VSDisable struct {
	client    Requester
	testCase  config.TestCase
	endpoints config.Endpoints
	log       zerolog.Logger
}

// New creates the workflow for one test case.
func New(client Requester, tc config.TestCase, endpoints config.Endpoints, logger zerolog.Logger) *VSDisable {
	return &VSDisable{
		client:    client,
		testCase:  tc,
		endpoints: endpoints,
		log:       logger.With().Str("workflow", Name).Str("target", tc.Target.VSName).Logger(),
	}
}

// Run executes pre-fetch, pre-validation, action and post-validation in
// order. The first failing stage ends the run; nothing is rolled back.
func (w *VSDisable) Run() (*models.Run, error) {
	run := models.NewRun(Name, w.testCase.Target.VSName)
	w.log.Info().Str("run", run.ID).Msg("executing workflow")

	if err := w.run(run); err != nil {
		run.Fail(err.Error())
		w.log.Error().Err(err).Str("run", run.ID).Msg("workflow failed")
		return run, err
	}

	run.Complete()
	w.log.Info().Str("run", run.ID).Msg("workflow execution completed successfully")
	return run, nil
}

func (w *VSDisable) run(run *models.Run) error {
	wf := w.testCase.Workflow

	if wf.PreFetch.Enabled {
		if err := w.step(run, StagePreFetch, w.preFetch); err != nil {
			return err
		}
	} else {
		run.Skip(StagePreFetch, "disabled in test case")
	}

	// Pre-validation locates the target for the action, so it always runs.
	if !wf.PreValidation.Enabled {
		w.log.Warn().Msg("pre_validation.enabled is false; stage runs regardless")
	}
	var vs models.Resource
	err := w.step(run, StagePreValidation, func() (string, error) {
		var err error
		vs, err = w.preValidation()
		if err != nil {
			return "", err
		}
		return "virtual service is enabled", nil
	})
	if err != nil {
		return err
	}

	if !wf.Action.Enabled {
		w.log.Warn().Msg("action.enabled is false; stage runs regardless")
	}
	if err := w.step(run, StageAction, func() (string, error) { return w.disable(vs) }); err != nil {
		return err
	}

	if wf.PostValidation.Enabled {
		return w.step(run, StagePostValidation, w.postValidation)
	}
	run.Skip(StagePostValidation, "disabled in test case")
	return nil
}

// step runs fn as the named stage, logging and recording its outcome.
func (w *VSDisable) step(run *models.Run, name string, fn func() (string, error)) error {
	started := time.Now()
	w.log.Info().Str("stage", name).Msg("starting stage")

	msg, err := fn()
	if err != nil {
		run.Record(name, models.StageFailed, err.Error(), started)
		w.log.Error().Err(err).Str("stage", name).Msg("stage failed")
		return fmt.Errorf("%s: %w", name, err)
	}

	run.Record(name, models.StagePassed, msg, started)
	w.log.Info().Str("stage", name).Msg(msg)
	return nil
}

func (w *VSDisable) preFetch() (string, error) {
	requested := make(map[string]bool, len(w.testCase.Workflow.PreFetch.Resources))
	for _, r := range w.testCase.Workflow.PreFetch.Resources {
		requested[r] = true
	}

	var counts []string
	for _, name := range config.PreFetchResources {
		if !requested[name] {
			continue
		}
		path, err := w.endpoint(name)
		if err != nil {
			return "", err
		}
		items, err := w.client.List(path)
		if err != nil {
			return "", err
		}
		w.log.Info().Str("resource", name).Int("count", len(items)).Msg("resources fetched")
		counts = append(counts, fmt.Sprintf("%s=%d", name, len(items)))
	}

	for _, name := range w.testCase.Workflow.PreFetch.Resources {
		if !config.IsPreFetchResource(name) {
			w.log.Debug().Str("resource", name).Msg("ignoring unknown pre-fetch resource")
		}
	}
	return "fetched " + strings.Join(counts, " "), nil
}

func (w *VSDisable) preValidation() (models.Resource, error) {
	vs, err := w.findVirtualService()
	if err != nil {
		return nil, err
	}
	if !vs.Enabled(false) {
		return nil, fmt.Errorf("%w: virtual service %q is already disabled", ErrPrecondition, w.testCase.Target.VSName)
	}
	return vs, nil
}

func (w *VSDisable) disable(vs models.Resource) (string, error) {
	id := vs.UUID()
	if id == "" {
		return "", fmt.Errorf("%w: %q", ErrMissingUUID, w.testCase.Target.VSName)
	}
	collection, err := w.endpoint(config.EndpointVirtualServices)
	if err != nil {
		return "", err
	}
	path := strings.TrimRight(collection, "/") + "/" + id

	if _, err := w.client.Put(path, w.testCase.Workflow.Action.Payload); err != nil {
		return "", err
	}
	return fmt.Sprintf("virtual service %q updated (uuid %s)", w.testCase.Target.VSName, id), nil
}

func (w *VSDisable) postValidation() (string, error) {
	vs, err := w.findVirtualService()
	if err != nil {
		return "", err
	}
	if vs.Enabled(true) {
		return "", fmt.Errorf("%w: virtual service %q is still enabled", ErrPrecondition, w.testCase.Target.VSName)
	}
	return "virtual service is disabled", nil
}

// findVirtualService fetches the collection fresh and returns the first
// entry whose name matches the target.
func (w *VSDisable) findVirtualService() (models.Resource, error) {
	path, err := w.endpoint(config.EndpointVirtualServices)
	if err != nil {
		return nil, err
	}
	items, err := w.client.List(path)
	if err != nil {
		return nil, err
	}
	vs, ok := models.FindByName(items, w.testCase.Target.VSName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, w.testCase.Target.VSName)
	}
	return vs, nil
}

func (w *VSDisable) endpoint(name string) (string, error) {
	path, ok := w.endpoints.Path(name)
	if !ok {
		return "", fmt.Errorf("endpoint %q is not configured", name)
	}
	return path, nil
}
