package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/client"
	"github.com/cuemby/burrow/pkg/plugin"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a provider and automator that logs every call
type recorder struct {
	name   string
	mu     sync.Mutex
	calls  []string
	result types.TaskResult
	err    error
	block  chan struct{}
}

func (r *recorder) call(method string) (types.TaskResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, method)
	r.mu.Unlock()
	if r.block != nil {
		<-r.block
	}
	if r.err != nil {
		return nil, r.err
	}
	out := types.TaskResult{types.ResultStatus: 0, "handler": r.name + "." + method}
	for k, v := range r.result {
		out[k] = v
	}
	return out, nil
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) Create(context.Context, *types.Task) (types.TaskResult, error) {
	return r.call("create")
}
func (r *recorder) Confirm(context.Context, *types.Task) (types.TaskResult, error) {
	return r.call("confirm")
}
func (r *recorder) Delete(context.Context, *types.Task) (types.TaskResult, error) {
	return r.call("delete")
}
func (r *recorder) Bootstrap(context.Context, *types.Task) (types.TaskResult, error) {
	return r.call("bootstrap")
}
func (r *recorder) Install(context.Context, *types.Task) (types.TaskResult, error) {
	return r.call("install")
}
func (r *recorder) Configure(context.Context, *types.Task) (types.TaskResult, error) {
	return r.call("configure")
}
func (r *recorder) Initialize(context.Context, *types.Task) (types.TaskResult, error) {
	return r.call("initialize")
}
func (r *recorder) Start(context.Context, *types.Task) (types.TaskResult, error) {
	return r.call("start")
}
func (r *recorder) Stop(context.Context, *types.Task) (types.TaskResult, error) {
	return r.call("stop")
}
func (r *recorder) Remove(context.Context, *types.Task) (types.TaskResult, error) {
	return r.call("remove")
}

// fakeClient hands out queued tasks and records finished results
type fakeClient struct {
	mu       sync.Mutex
	tasks    []*types.Task
	takeErr  error
	takes    int
	finished []types.TaskResult
}

func (c *fakeClient) TakeTask(_ context.Context, _ types.TakeRequest) (*types.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.takes++
	if c.takeErr != nil {
		return nil, c.takeErr
	}
	if len(c.tasks) == 0 {
		return nil, nil
	}
	task := c.tasks[0]
	c.tasks = c.tasks[1:]
	return task, nil
}

func (c *fakeClient) FinishTask(_ context.Context, result types.TaskResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished = append(c.finished, result)
	return nil
}

func (c *fakeClient) Finished() []types.TaskResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.TaskResult(nil), c.finished...)
}

type fixture struct {
	registry *plugin.Registry
	provider *recorder
	shell    *recorder
	chef     *recorder
}

func newFixture() *fixture {
	f := &fixture{
		registry: plugin.NewRegistry(),
		provider: &recorder{name: "openstack"},
		shell:    &recorder{name: "shell"},
		chef:     &recorder{name: "chef"},
	}
	f.registry.AddProvider("openstack", f.provider)
	f.registry.AddAutomator("shell", f.shell)
	f.registry.AddAutomator("chef", f.chef)
	return f
}

func (f *fixture) worker(t *testing.T, c Client) *Worker {
	t.Helper()
	w, err := New(Config{
		ID:            "worker-t1-abc",
		TenantID:      "t1",
		ProvisionerID: "master-host-1",
		Client:        c,
		Plugins:       f.registry,
		PollInterval:  time.Millisecond,
		ErrorInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return w
}

func actionTask(id, name, actionType string) *types.Task {
	return &types.Task{
		TaskID:   id,
		TaskName: name,
		Config: types.TaskConfig{
			Service: &types.ServiceConfig{Action: types.ActionConfig{Type: actionType}},
		},
	}
}

func TestNewRequiresPlugins(t *testing.T) {
	_, err := New(Config{Plugins: plugin.NewRegistry()})
	assert.ErrorIs(t, err, ErrNoPlugins)

	onlyProvider := plugin.NewRegistry()
	onlyProvider.AddProvider("openstack", &recorder{})
	_, err = New(Config{Plugins: onlyProvider})
	assert.ErrorIs(t, err, ErrNoPlugins)

	_, err = New(Config{})
	assert.ErrorIs(t, err, ErrNoPlugins)
}

func TestDispatchRouting(t *testing.T) {
	f := newFixture()
	w := f.worker(t, &fakeClient{})
	ctx := context.Background()

	for _, name := range []string{TaskCreate, TaskConfirm, TaskDelete} {
		task := &types.Task{TaskID: "p", TaskName: name, Config: types.TaskConfig{
			Provider: &types.ProviderConfig{ProviderType: "openstack"},
		}}
		result, err := w.Dispatch(ctx, task)
		require.NoError(t, err)
		assert.Equal(t, "openstack."+name, result["handler"])
	}

	automatorTasks := []string{TaskInstall, TaskConfigure, TaskInitialize, TaskStart, TaskStop, TaskRemove}
	for _, name := range automatorTasks {
		result, err := w.Dispatch(ctx, actionTask("a", name, "shell"))
		require.NoError(t, err)
		assert.Equal(t, "shell."+name, result["handler"])
	}
	assert.Equal(t, automatorTasks, f.shell.Calls())
	assert.Empty(t, f.chef.Calls())
}

func TestDispatchErrors(t *testing.T) {
	f := newFixture()
	w := f.worker(t, &fakeClient{})
	ctx := context.Background()

	_, err := w.Dispatch(ctx, &types.Task{TaskID: "x", TaskName: "reboot"})
	assert.ErrorIs(t, err, ErrUnknownTask)

	_, err = w.Dispatch(ctx, actionTask("x", TaskInstall, "puppet"))
	assert.ErrorIs(t, err, plugin.ErrUnknownPlugin)

	_, err = w.Dispatch(ctx, &types.Task{TaskID: "x", TaskName: TaskCreate})
	assert.Error(t, err)

	_, err = w.Dispatch(ctx, &types.Task{TaskID: "x", TaskName: TaskStart})
	assert.Error(t, err)
}

func TestBootstrap(t *testing.T) {
	t.Run("explicit list in order, later keys win", func(t *testing.T) {
		f := newFixture()
		f.shell.result = types.TaskResult{"ipaddress": "10.0.0.1"}
		f.chef.result = types.TaskResult{"ipaddress": "10.0.0.2", "node": "n1"}
		w := f.worker(t, &fakeClient{})

		task := &types.Task{TaskID: "b", TaskName: TaskBootstrap, Config: types.TaskConfig{
			Automators: []string{"shell", "chef"},
		}}
		result, err := w.Dispatch(context.Background(), task)
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.2", result["ipaddress"])
		assert.Equal(t, "n1", result["node"])
		assert.Equal(t, "chef.bootstrap", result["handler"])
	})

	t.Run("runs every automator when none listed", func(t *testing.T) {
		f := newFixture()
		w := f.worker(t, &fakeClient{})

		_, err := w.Dispatch(context.Background(), &types.Task{TaskID: "b", TaskName: TaskBootstrap})
		require.NoError(t, err)
		assert.Equal(t, []string{"bootstrap"}, f.shell.Calls())
		assert.Equal(t, []string{"bootstrap"}, f.chef.Calls())
	})

	t.Run("unknown automator in list", func(t *testing.T) {
		f := newFixture()
		w := f.worker(t, &fakeClient{})

		task := &types.Task{TaskID: "b", TaskName: TaskBootstrap, Config: types.TaskConfig{
			Automators: []string{"shell", "ansible"},
		}}
		_, err := w.Dispatch(context.Background(), task)
		assert.ErrorIs(t, err, plugin.ErrUnknownPlugin)
	})
}

func TestProcessFailureResult(t *testing.T) {
	f := newFixture()
	f.shell.err = errors.New("script not found")
	c := &fakeClient{}
	w := f.worker(t, c)

	result := w.Process(context.Background(), actionTask("x9", TaskInstall, "shell"))

	assert.Equal(t, 1, result.Status())
	assert.Contains(t, result[types.ResultStderr], "script not found")
	assert.Equal(t, "x9", result[types.ResultTaskID])
	assert.Equal(t, "worker-t1-abc", result[types.ResultWorkerID])
	assert.Equal(t, "master-host-1", result[types.ResultProvisionerID])
	assert.Equal(t, "t1", result[types.ResultTenantID])
	require.Len(t, c.Finished(), 1)
}

type panicker struct{ recorder }

func (p *panicker) Install(context.Context, *types.Task) (types.TaskResult, error) {
	panic("nil map")
}

func TestProcessRecoversPanic(t *testing.T) {
	f := newFixture()
	f.registry.AddAutomator("broken", &panicker{})
	c := &fakeClient{}
	w := f.worker(t, c)

	result := w.Process(context.Background(), actionTask("x1", TaskInstall, "broken"))
	assert.Equal(t, 1, result.Status())
	assert.Contains(t, result[types.ResultStderr], "nil map")
	require.Len(t, c.Finished(), 1)
}

func TestRunOnce(t *testing.T) {
	t.Run("no task", func(t *testing.T) {
		f := newFixture()
		c := &fakeClient{}
		w := f.worker(t, c)
		w.cfg.Once = true

		require.NoError(t, w.Run(context.Background()))
		assert.Equal(t, 1, c.takes)
		assert.Empty(t, c.Finished())
	})

	t.Run("take error", func(t *testing.T) {
		f := newFixture()
		c := &fakeClient{takeErr: errors.New("connection refused")}
		w := f.worker(t, c)
		w.cfg.Once = true

		assert.Error(t, w.Run(context.Background()))
	})

	t.Run("one task", func(t *testing.T) {
		f := newFixture()
		c := &fakeClient{tasks: []*types.Task{
			actionTask("x1", TaskStart, "shell"),
			actionTask("x2", TaskStop, "shell"),
		}}
		w := f.worker(t, c)
		w.cfg.Once = true

		require.NoError(t, w.Run(context.Background()))
		require.Len(t, c.Finished(), 1)
		assert.Equal(t, "x1", c.Finished()[0][types.ResultTaskID])
	})
}

func TestRunRetriesAfterErrors(t *testing.T) {
	f := newFixture()
	c := &fakeClient{takeErr: errors.New("502 bad gateway")}
	w := f.worker(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.takes >= 3
	}, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestCancelDuringTaskStillReports(t *testing.T) {
	f := newFixture()
	f.shell.block = make(chan struct{})
	c := &fakeClient{tasks: []*types.Task{
		actionTask("x1", TaskInstall, "shell"),
		actionTask("x2", TaskInstall, "shell"),
	}}
	w := f.worker(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return len(f.shell.Calls()) == 1 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
		t.Fatal("worker exited with a task in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(f.shell.block)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	finished := c.Finished()
	require.Len(t, finished, 1)
	assert.Equal(t, "x1", finished[0][types.ResultTaskID])
	assert.Equal(t, 0, finished[0].Status())
	assert.Len(t, f.shell.Calls(), 1)
}

func TestCancelDuringTakeStillReports(t *testing.T) {
	var (
		mu     sync.Mutex
		takes  int
		finish []map[string]any
	)
	taken := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/tasks/take":
			mu.Lock()
			takes++
			first := takes == 1
			mu.Unlock()
			if !first {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			close(taken)
			<-release
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"taskId":"x1","taskName":"install","config":{"service":{"action":{"type":"shell"}}}}`))
		case "/v2/tasks/finish":
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			mu.Lock()
			finish = append(finish, body)
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := newFixture()
	w := f.worker(t, client.NewClient(client.Config{BaseURL: srv.URL, UserID: "u1"}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-taken:
	case <-time.After(2 * time.Second):
		t.Fatal("take request never reached the server")
	}
	cancel()
	// the server commits the task to this worker after the signal arrived
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, takes)
	require.Len(t, finish, 1)
	assert.Equal(t, "x1", finish[0]["taskId"])
	assert.Equal(t, float64(0), finish[0]["status"])
	assert.Equal(t, []string{"install"}, f.shell.Calls())
}

func TestTakeFinishOverHTTP(t *testing.T) {
	var (
		mu       sync.Mutex
		takeReq  types.TakeRequest
		finished map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.URL.Path {
		case "/v2/tasks/take":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&takeReq))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"taskId":"x1","taskName":"install","config":{"service":{"action":{"type":"shell"}}}}`))
		case "/v2/tasks/finish":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&finished))
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := newFixture()
	w := f.worker(t, client.NewClient(client.Config{BaseURL: srv.URL, UserID: "u1"}))
	w.cfg.Once = true

	require.NoError(t, w.Run(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, types.TakeRequest{ProvisionerID: "master-host-1", WorkerID: "worker-t1-abc", TenantID: "t1"}, takeReq)
	assert.Equal(t, []string{"install"}, f.shell.Calls())
	assert.Equal(t, "x1", finished["taskId"])
	assert.Equal(t, float64(0), finished["status"])
	assert.Equal(t, "t1", finished["tenantId"])
}
