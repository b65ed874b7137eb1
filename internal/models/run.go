package models

import (
	"time"

	"github.com/google/uuid"
)

// Run status values.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Stage status values.
const (
	StagePassed  = "passed"
	StageFailed  = "failed"
	StageSkipped = "skipped"
)

// Stage records the outcome of one workflow stage.
type Stage struct {
	Name      string        `json:"name"`
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Run is the report of a single workflow execution.
type Run struct {
	ID         string     `json:"id"`
	Workflow   string     `json:"workflow"`
	Target     string     `json:"target"`
	Status     string     `json:"status"` // "running", "completed", "failed"
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	Stages     []Stage    `json:"stages"`
}

// NewRun starts a run report, assigning it a UUID.
func NewRun(workflow, target string) *Run {
	return &Run{
		ID:        uuid.New().String(),
		Workflow:  workflow,
		Target:    target,
		Status:    RunRunning,
		StartedAt: time.Now(),
		Stages:    []Stage{},
	}
}

// Record appends a stage outcome.
func (r *Run) Record(name, status, message string, started time.Time) {
	r.Stages = append(r.Stages, Stage{
		Name:      name,
		Status:    status,
		Message:   message,
		StartedAt: started,
		Duration:  time.Since(started),
	})
}

// Skip records a stage that was not executed.
func (r *Run) Skip(name, reason string) {
	r.Stages = append(r.Stages, Stage{
		Name:      name,
		Status:    StageSkipped,
		Message:   reason,
		StartedAt: time.Now(),
	})
}

// Stage returns the recorded stage by name.
func (r *Run) Stage(name string) (Stage, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// Complete marks the run as completed.
func (r *Run) Complete() {
	r.Status = RunCompleted
	now := time.Now()
	r.FinishedAt = &now
}

// Fail marks the run as failed with an error message.
func (r *Run) Fail(err string) {
	r.Status = RunFailed
	r.Error = err
	now := time.Now()
	r.FinishedAt = &now
}
