package dispatch

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess stands in for a worker. It is not a real test.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) > 0 {
		args = args[1:]
	}
	// args: executable, "run", [--single-test name], ..., suite
	suite := args[len(args)-1]
	fmt.Printf("args=%s\n", strings.Join(args[1:], " "))
	fmt.Printf("correlation=%s key=%s\n", os.Getenv("correlationId"), os.Getenv("appInsightsInstrumentationKey"))

	time.Sleep(50 * time.Millisecond)
	if strings.HasPrefix(suite, "fail") {
		os.Exit(3)
	}
	os.Exit(0)
}

func newTestDispatcher(cfg Config) *Dispatcher {
	d := New(cfg)
	d.cmdBuilder = func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, arg...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(d.workerEnv(), "GO_WANT_HELPER_PROCESS=1")
		return cmd, func() {}
	}
	return d
}

func TestDispatcher_RunCollectsExitCodes(t *testing.T) {
	d := newTestDispatcher(Config{ExecutablePath: "flowrunner", MaxConcurrency: 2, CorrelationID: "run-7", InstrumentationKey: "ikey"})

	summary, err := d.Run(context.Background(), []Item{{SuiteFile: "ok.json"}, {SuiteFile: "fail.json"}})
	require.NoError(t, err)

	require.Len(t, summary.Results, 2)
	assert.Equal(t, 0, summary.Results[0].ExitCode)
	assert.Equal(t, 3, summary.Results[1].ExitCode)
	assert.NoError(t, summary.Results[1].Err)
	assert.Equal(t, 1, summary.Failed())
	assert.Equal(t, 1, summary.ExitCode())
	assert.Equal(t, "run-7", summary.CorrelationID)

	out := summary.Results[0].Output
	assert.Contains(t, out, "args=run ok.json")
	assert.Contains(t, out, "correlation=run-7 key=ikey")
}

func TestDispatcher_PerTestArgs(t *testing.T) {
	d := newTestDispatcher(Config{ExecutablePath: "flowrunner", WorkerArgs: []string{"--headless"}})

	summary, err := d.Run(context.Background(), []Item{{SuiteFile: "suite.json", Test: "signup"}})
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	assert.Contains(t, summary.Results[0].Output, "args=run --single-test signup --headless suite.json")
	assert.Equal(t, 0, summary.ExitCode())
}

func TestDispatcher_MaxConcurrency(t *testing.T) {
	var mu sync.Mutex
	active, peak := 0, 0

	d := newTestDispatcher(Config{
		ExecutablePath: "flowrunner",
		MaxConcurrency: 2,
		OnStart: func(WorkerAssignment) {
			mu.Lock()
			defer mu.Unlock()
			active++
			if active > peak {
				peak = active
			}
		},
		OnExit: func(Result) {
			mu.Lock()
			defer mu.Unlock()
			active--
		},
	})

	items := make([]Item, 5)
	for i := range items {
		items[i] = Item{SuiteFile: fmt.Sprintf("suite%d.json", i)}
	}
	summary, err := d.Run(context.Background(), items)
	require.NoError(t, err)

	assert.Len(t, summary.Results, 5)
	assert.LessOrEqual(t, peak, 2)
	assert.Equal(t, 0, active)
}

func TestDispatcher_IterationsRunInWaves(t *testing.T) {
	var mu sync.Mutex
	var order []int

	d := newTestDispatcher(Config{
		ExecutablePath: "flowrunner",
		MaxConcurrency: 4,
		Iterations:     3,
		OnStart: func(a WorkerAssignment) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, a.Iteration)
		},
	})

	summary, err := d.Run(context.Background(), []Item{{SuiteFile: "a.json"}, {SuiteFile: "b.json"}})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 1, 2, 2, 3, 3}, order)
	require.Len(t, summary.Results, 6)
	assert.Equal(t, 3, summary.Results[5].Assignment.Iteration)
}

func TestDispatcher_StartFailure(t *testing.T) {
	d := New(Config{ExecutablePath: "/nonexistent/flowrunner"})

	summary, err := d.Run(context.Background(), []Item{{SuiteFile: "a.json"}})
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, -1, summary.Results[0].ExitCode)
	assert.Error(t, summary.Results[0].Err)
	assert.Equal(t, 1, summary.ExitCode())
}

func TestDispatcher_Cancelled(t *testing.T) {
	d := newTestDispatcher(Config{ExecutablePath: "flowrunner"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := d.Run(ctx, []Item{{SuiteFile: "a.json"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, summary.Results)
}

func TestNew_Defaults(t *testing.T) {
	d := New(Config{})
	assert.Equal(t, 1, d.config.MaxConcurrency)
	assert.Equal(t, 1, d.config.Iterations)
	assert.Len(t, d.CorrelationID(), 36)

	assert.NotEqual(t, d.CorrelationID(), New(Config{}).CorrelationID())
}

func TestWorkerEnv(t *testing.T) {
	env := New(Config{CorrelationID: "abc", InstrumentationKey: "ikey"}).workerEnv()
	assert.Equal(t, []string{"appInsightsInstrumentationKey=ikey", "correlationId=abc"}, env[len(env)-2:])

	env = New(Config{CorrelationID: "abc"}).workerEnv()
	assert.Equal(t, "correlationId=abc", env[len(env)-1])
}

func TestItemHelpers(t *testing.T) {
	assert.Equal(t, []string{"a.json", "b.json"}, SplitSuites(" a.json, ,b.json,"))
	assert.Equal(t, []Item{{SuiteFile: "a.json"}, {SuiteFile: "b.json"}}, SuiteItems([]string{"a.json", "b.json"}))
	assert.Equal(t, "a.json:signup", Item{SuiteFile: "a.json", Test: "signup"}.String())
}

type mapReader map[string]string

func (m mapReader) Read(_ context.Context, ref string) ([]byte, error) {
	data, ok := m[ref]
	if !ok {
		return nil, fmt.Errorf("no %s", ref)
	}
	return []byte(data), nil
}

func TestTestItems(t *testing.T) {
	r := mapReader{
		"a.json":   `{"TestConfiguration":{"Environment":"chrome"},"Tests":["signup","signin"]}`,
		"b.json":   `{"TestConfiguration":{"Environment":"firefox"},"Tests":["reset"]}`,
		"bad.json": `{"Tests":["x"]}`,
	}

	items, err := TestItems(context.Background(), r, []string{"a.json", "b.json"})
	require.NoError(t, err)
	assert.Equal(t, []Item{
		{SuiteFile: "a.json", Test: "signup"},
		{SuiteFile: "a.json", Test: "signin"},
		{SuiteFile: "b.json", Test: "reset"},
	}, items)

	_, err = TestItems(context.Background(), r, []string{"missing.json"})
	assert.ErrorContains(t, err, "read suite missing.json")

	_, err = TestItems(context.Background(), r, []string{"bad.json"})
	assert.ErrorContains(t, err, "suite bad.json")
}
