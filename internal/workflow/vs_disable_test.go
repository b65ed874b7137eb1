package workflow

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rflorenc/avi-test-automation/internal/config"
	"github.com/rflorenc/avi-test-automation/internal/mockapi"
	"github.com/rflorenc/avi-test-automation/internal/models"
	"github.com/rflorenc/avi-test-automation/internal/platform"
)

var testEndpoints = config.Endpoints{
	config.EndpointRegister:        "/register",
	config.EndpointLogin:           "/login",
	config.EndpointTenants:         "/api/tenant",
	config.EndpointVirtualServices: "/api/virtualservice",
	config.EndpointServiceEngines:  "/api/serviceengine",
}

func testCase(preFetch, postValidation bool) config.TestCase {
	return config.TestCase{
		Name:   "disable-vs",
		Target: config.Target{VSName: "test-vs"},
		Workflow: config.Workflow{
			PreFetch: config.PreFetch{
				Enabled:   preFetch,
				Resources: []string{"service_engines", "tenants", "pools", "virtual_services"},
			},
			PreValidation:  config.Toggle{Enabled: true},
			Action:         config.Action{Enabled: true, Payload: map[string]interface{}{"enabled": false}},
			PostValidation: config.Toggle{Enabled: postValidation},
		},
	}
}

type putCall struct {
	path    string
	payload interface{}
}

// fakeController serves collections from memory and applies PUT payloads to
// the virtual service with the matching uuid, unless frozen.
type fakeController struct {
	collections map[string][]models.Resource
	lists       []string
	puts        []putCall
	frozen      bool
	listErr     error
}

func (f *fakeController) List(path string) ([]models.Resource, error) {
	f.lists = append(f.lists, path)
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Resource
	for _, r := range f.collections[path] {
		c := models.Resource{}
		for k, v := range r {
			c[k] = v
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeController) Put(path string, payload interface{}) (models.Resource, error) {
	f.puts = append(f.puts, putCall{path: path, payload: payload})
	if f.frozen {
		return models.Resource{}, nil
	}
	for _, vs := range f.collections["/api/virtualservice"] {
		if "/api/virtualservice/"+vs.UUID() == path {
			for k, v := range payload.(map[string]interface{}) {
				vs[k] = v
			}
		}
	}
	return models.Resource{}, nil
}

func newFake(vs ...models.Resource) *fakeController {
	return &fakeController{collections: map[string][]models.Resource{
		"/api/tenant":         {{"name": "admin"}},
		"/api/virtualservice": vs,
		"/api/serviceengine":  {{"name": "se-1"}, {"name": "se-2"}},
	}}
}

func TestRun_DisablesEnabledTarget(t *testing.T) {
	fake := newFake(
		models.Resource{"name": "other-vs", "uuid": "zzz", "enabled": true},
		models.Resource{"name": "test-vs", "uuid": "abc123", "enabled": true},
	)
	wf := New(fake, testCase(true, true), testEndpoints, zerolog.Nop())

	run, err := wf.Run()
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)

	require.Len(t, fake.puts, 1)
	assert.Equal(t, "/api/virtualservice/abc123", fake.puts[0].path)
	assert.Equal(t, map[string]interface{}{"enabled": false}, fake.puts[0].payload)

	// pre-fetch in fixed order, then one fresh fetch per validation stage
	assert.Equal(t, []string{
		"/api/tenant", "/api/virtualservice", "/api/serviceengine",
		"/api/virtualservice",
		"/api/virtualservice",
	}, fake.lists)

	require.Len(t, run.Stages, 4)
	for i, name := range []string{StagePreFetch, StagePreValidation, StageAction, StagePostValidation} {
		assert.Equal(t, name, run.Stages[i].Name)
		assert.Equal(t, models.StagePassed, run.Stages[i].Status, name)
	}
}

func TestRun_AlreadyDisabledIssuesNoPut(t *testing.T) {
	fake := newFake(models.Resource{"name": "test-vs", "uuid": "abc123", "enabled": false})
	wf := New(fake, testCase(false, true), testEndpoints, zerolog.Nop())

	run, err := wf.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.Empty(t, fake.puts)
	assert.Equal(t, models.RunFailed, run.Status)

	st, ok := run.Stage(StagePreValidation)
	require.True(t, ok)
	assert.Equal(t, models.StageFailed, st.Status)
	_, ok = run.Stage(StageAction)
	assert.False(t, ok, "action must not run after a failed pre-validation")
}

func TestRun_MissingEnabledFieldFailsPreValidation(t *testing.T) {
	fake := newFake(models.Resource{"name": "test-vs", "uuid": "abc123"})
	_, err := New(fake, testCase(false, true), testEndpoints, zerolog.Nop()).Run()
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.Empty(t, fake.puts)
}

func TestRun_TargetNotFound(t *testing.T) {
	fake := newFake(models.Resource{"name": "other-vs", "uuid": "zzz", "enabled": true})
	run, err := New(fake, testCase(false, true), testEndpoints, zerolog.Nop()).Run()

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, fake.puts)
	assert.Contains(t, run.Error, StagePreValidation)
}

func TestRun_TargetDisappearsBeforePostValidation(t *testing.T) {
	fake := newFake(models.Resource{"name": "test-vs", "uuid": "abc123", "enabled": true})
	fake.frozen = true
	wf := New(fake, testCase(false, true), testEndpoints, zerolog.Nop())

	// Rename the target once the action has been sent.
	wrapped := &renameAfterPut{fakeController: fake}
	wf.client = wrapped

	_, err := wf.Run()
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), StagePostValidation)
}

type renameAfterPut struct {
	*fakeController
}

func (r *renameAfterPut) Put(path string, payload interface{}) (models.Resource, error) {
	res, err := r.fakeController.Put(path, payload)
	r.collections["/api/virtualservice"][0]["name"] = "renamed"
	return res, err
}

func TestRun_MissingUUID(t *testing.T) {
	fake := newFake(models.Resource{"name": "test-vs", "enabled": true})
	run, err := New(fake, testCase(false, true), testEndpoints, zerolog.Nop()).Run()

	assert.ErrorIs(t, err, ErrMissingUUID)
	assert.Empty(t, fake.puts)
	st, ok := run.Stage(StageAction)
	require.True(t, ok)
	assert.Equal(t, models.StageFailed, st.Status)
}

func TestRun_PostValidationDetectsNoChange(t *testing.T) {
	fake := newFake(models.Resource{"name": "test-vs", "uuid": "abc123", "enabled": true})
	fake.frozen = true

	run, err := New(fake, testCase(false, true), testEndpoints, zerolog.Nop()).Run()
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.Len(t, fake.puts, 1, "the action is not rolled back")
	st, ok := run.Stage(StagePostValidation)
	require.True(t, ok)
	assert.Equal(t, models.StageFailed, st.Status)
}

func TestRun_PostValidationDisabled(t *testing.T) {
	fake := newFake(models.Resource{"name": "test-vs", "uuid": "abc123", "enabled": true})
	fake.frozen = true

	run, err := New(fake, testCase(false, false), testEndpoints, zerolog.Nop()).Run()
	require.NoError(t, err)
	assert.Len(t, fake.lists, 1)

	st, ok := run.Stage(StagePostValidation)
	require.True(t, ok)
	assert.Equal(t, models.StageSkipped, st.Status)
	st, ok = run.Stage(StagePreFetch)
	require.True(t, ok)
	assert.Equal(t, models.StageSkipped, st.Status)
}

func TestRun_PreValidationFlagIgnored(t *testing.T) {
	fake := newFake(models.Resource{"name": "test-vs", "uuid": "abc123", "enabled": false})
	tc := testCase(false, true)
	tc.Workflow.PreValidation.Enabled = false

	_, err := New(fake, tc, testEndpoints, zerolog.Nop()).Run()
	assert.ErrorIs(t, err, ErrPrecondition, "pre-validation runs even when its flag is off")
	assert.Empty(t, fake.puts)
}

func TestRun_UnknownPreFetchResourcesLoggedInOrder(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	tc := testCase(true, false)
	tc.Workflow.PreFetch.Resources = []string{"zones", "tenants", "pools", "clouds"}
	fake := newFake(models.Resource{"name": "test-vs", "uuid": "abc123", "enabled": true})

	for i := 0; i < 5; i++ {
		buf.Reset()
		_, err := New(fake, tc, testEndpoints, logger).Run()
		require.NoError(t, err)

		out := buf.String()
		var order []int
		for _, name := range []string{"zones", "pools", "clouds"} {
			idx := strings.Index(out, `"resource":"`+name+`"`)
			require.GreaterOrEqual(t, idx, 0, name)
			order = append(order, idx)
		}
		assert.Less(t, order[0], order[1])
		assert.Less(t, order[1], order[2])
	}
}

func TestRun_PreFetchError(t *testing.T) {
	fake := newFake()
	fake.listErr = errors.New("connection refused")

	run, err := New(fake, testCase(true, true), testEndpoints, zerolog.Nop()).Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), StagePreFetch)
	assert.Equal(t, models.RunFailed, run.Status)
	assert.Empty(t, fake.puts)
}

func TestRun_MissingEndpoint(t *testing.T) {
	fake := newFake(models.Resource{"name": "test-vs", "uuid": "abc123", "enabled": true})
	endpoints := config.Endpoints{config.EndpointVirtualServices: "/api/virtualservice"}

	_, err := New(fake, testCase(true, true), endpoints, zerolog.Nop()).Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `endpoint "tenants" is not configured`)
}

func TestRun_TrailingSlashEndpoint(t *testing.T) {
	fake := newFake()
	fake.collections["/api/virtualservice/"] = []models.Resource{{"name": "test-vs", "uuid": "abc123", "enabled": true}}
	endpoints := config.Endpoints{config.EndpointVirtualServices: "/api/virtualservice/"}
	fake.frozen = true

	_, _ = New(fake, testCase(false, false), endpoints, zerolog.Nop()).Run()
	require.Len(t, fake.puts, 1)
	assert.Equal(t, "/api/virtualservice/abc123", fake.puts[0].path)
}

// TestRun_AgainstMockController drives the full client stack: register, login,
// then the workflow over HTTP against the in-memory controller.
func TestRun_AgainstMockController(t *testing.T) {
	fixture := &mockapi.Fixture{
		Tenants:         []models.Resource{{"name": "admin"}},
		VirtualServices: []models.Resource{{"name": "test-vs", "uuid": "abc123", "enabled": true}},
		ServiceEngines:  []models.Resource{{"name": "se-1"}},
	}
	srv := mockapi.NewServer(mockapi.NewStore(fixture), zerolog.Nop())
	ts := httptest.NewServer(mockapi.NewRouter(srv))
	defer ts.Close()

	api := config.APIConfig{BaseURL: ts.URL, Endpoints: testEndpoints}
	creds := config.Credentials{Username: "user1", Password: "pass123"}

	auth, err := platform.NewAuthenticator(api, creds, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, auth.Register("/register"))
	require.NoError(t, auth.Register("/register"), "registering twice must not fail")

	_, err = auth.AuthHeader()
	require.ErrorIs(t, err, platform.ErrNotAuthenticated)

	_, err = auth.Login("/login")
	require.NoError(t, err)
	header, err := auth.AuthHeader()
	require.NoError(t, err)

	client, err := platform.NewClient(api, header, zerolog.Nop())
	require.NoError(t, err)

	run, err := New(client, testCase(true, true), testEndpoints, zerolog.Nop()).Run()
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)

	vs, ok := srv.Store.Get(mockapi.KindVirtualService, "abc123")
	require.True(t, ok)
	assert.False(t, vs.Enabled(true))
	assert.Equal(t, 1, srv.Store.Updates())

	// A second run finds the target already disabled and changes nothing.
	_, err = New(client, testCase(false, true), testEndpoints, zerolog.Nop()).Run()
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.Equal(t, 1, srv.Store.Updates())
}

func TestRun_AgainstMockController_Unauthenticated(t *testing.T) {
	srv := mockapi.NewServer(mockapi.NewStore(mockapi.DefaultFixture()), zerolog.Nop())
	ts := httptest.NewServer(mockapi.NewRouter(srv))
	defer ts.Close()

	client, err := platform.NewClient(config.APIConfig{BaseURL: ts.URL}, nil, zerolog.Nop())
	require.NoError(t, err)

	_, err = New(client, testCase(false, true), testEndpoints, zerolog.Nop()).Run()
	var reqErr *platform.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, 401, reqErr.StatusCode)
	assert.Equal(t, 0, srv.Store.Updates())
}
