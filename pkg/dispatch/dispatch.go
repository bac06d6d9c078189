// Package dispatch launches worker processes for suites in waves, with a
// cap on how many run at once.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/b2ctest/flowrunner/pkg/config"
	"github.com/b2ctest/flowrunner/pkg/logger"
)

// Item is one unit of work: a whole suite, or one test of it.
type Item struct {
	SuiteFile string
	Test      string // Empty runs the whole suite
}

func (i Item) String() string {
	if i.Test == "" {
		return i.SuiteFile
	}
	return i.SuiteFile + ":" + i.Test
}

// WorkerAssignment describes one spawned worker process.
type WorkerAssignment struct {
	ExecutablePath string
	SuiteFile      string
	Test           string
	MaxConcurrency int
	CorrelationID  string
	Iteration      int // 1-based
}

// Args returns the worker command line after the executable.
func (w WorkerAssignment) Args(extra ...string) []string {
	args := []string{"run"}
	if w.Test != "" {
		args = append(args, "--single-test", w.Test)
	}
	args = append(args, extra...)
	return append(args, w.SuiteFile)
}

// Result is the outcome of one worker process.
type Result struct {
	Assignment WorkerAssignment
	ExitCode   int
	Err        error // Set when the process could not be started
	Duration   time.Duration
	Output     string // Combined stdout and stderr
}

// Summary lists every worker of a dispatch.
type Summary struct {
	CorrelationID string
	Results       []Result
	Duration      time.Duration
}

// Failed returns the number of workers that did not exit 0.
func (s *Summary) Failed() int {
	n := 0
	for _, r := range s.Results {
		if r.ExitCode != 0 {
			n++
		}
	}
	return n
}

// ExitCode is 0 when every worker exited 0, 1 otherwise.
func (s *Summary) ExitCode() int {
	if s.Failed() > 0 {
		return 1
	}
	return 0
}

// CommandBuilder creates the command for a worker. The returned func is
// called after the process exits.
type CommandBuilder func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func())

// Config configures a Dispatcher.
type Config struct {
	ExecutablePath     string
	MaxConcurrency     int // Workers running at once, default 1
	Iterations         int // Waves over all items, default 1
	CorrelationID      string
	InstrumentationKey string
	WorkerArgs         []string // Extra flags passed to every worker

	// Progress callbacks, called from worker goroutines
	OnStart func(WorkerAssignment)
	OnExit  func(Result)
}

// Dispatcher runs items as worker processes.
type Dispatcher struct {
	config     Config
	cmdBuilder CommandBuilder
}

// New creates a Dispatcher. A missing correlation id is generated.
func New(cfg Config) *Dispatcher {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if cfg.Iterations < 1 {
		cfg.Iterations = 1
	}
	if cfg.CorrelationID == "" {
		cfg.CorrelationID = uuid.NewString()
	}
	d := &Dispatcher{config: cfg}
	d.cmdBuilder = d.commandContext
	return d
}

// CorrelationID returns the id shared by every worker of this dispatcher.
func (d *Dispatcher) CorrelationID() string {
	return d.config.CorrelationID
}

// Run spawns one worker per item per iteration. Each iteration is a wave
// that finishes before the next starts. Worker failures are collected, not
// returned; the error is non-nil only when ctx ends the dispatch early.
func (d *Dispatcher) Run(ctx context.Context, items []Item) (*Summary, error) {
	start := time.Now()
	summary := &Summary{CorrelationID: d.config.CorrelationID}
	sem := semaphore.NewWeighted(int64(d.config.MaxConcurrency))

	logger.Info("dispatch %s: %d item(s) x %d iteration(s), %d at a time",
		d.config.CorrelationID, len(items), d.config.Iterations, d.config.MaxConcurrency)

	for iter := 1; iter <= d.config.Iterations; iter++ {
		results := make([]Result, len(items))
		var wg sync.WaitGroup
		var waveErr error

		for i, item := range items {
			if err := ctx.Err(); err != nil {
				waveErr = err
				break
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				waveErr = err
				break
			}
			wg.Add(1)
			go func(i int, a WorkerAssignment) {
				defer wg.Done()
				defer sem.Release(1)
				results[i] = d.runWorker(ctx, a)
			}(i, d.assignment(item, iter))
		}
		wg.Wait()

		for _, r := range results {
			if r.Assignment.SuiteFile != "" {
				summary.Results = append(summary.Results, r)
			}
		}
		if waveErr != nil {
			summary.Duration = time.Since(start)
			return summary, fmt.Errorf("dispatch cancelled in iteration %d: %w", iter, waveErr)
		}
	}

	summary.Duration = time.Since(start)
	return summary, nil
}

func (d *Dispatcher) assignment(item Item, iter int) WorkerAssignment {
	return WorkerAssignment{
		ExecutablePath: d.config.ExecutablePath,
		SuiteFile:      item.SuiteFile,
		Test:           item.Test,
		MaxConcurrency: d.config.MaxConcurrency,
		CorrelationID:  d.config.CorrelationID,
		Iteration:      iter,
	}
}

func (d *Dispatcher) runWorker(ctx context.Context, a WorkerAssignment) Result {
	if d.config.OnStart != nil {
		d.config.OnStart(a)
	}

	start := time.Now()
	cmd, cleanup := d.cmdBuilder(ctx, a.ExecutablePath, a.Args(d.config.WorkerArgs...)...)
	defer cleanup()

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()

	res := Result{
		Assignment: a,
		Duration:   time.Since(start),
		Output:     out.String(),
	}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
		res.Err = err
	}

	if res.ExitCode != 0 {
		logger.Warn("worker %s (iteration %d) exited %d: %v", Item{a.SuiteFile, a.Test}, a.Iteration, res.ExitCode, err)
	} else {
		logger.Info("worker %s (iteration %d) passed in %s", Item{a.SuiteFile, a.Test}, a.Iteration, res.Duration)
	}
	if d.config.OnExit != nil {
		d.config.OnExit(res)
	}
	return res
}

// commandContext builds the default worker command: the dispatcher's
// environment plus the telemetry key and correlation id, run from the
// executable's directory.
func (d *Dispatcher) commandContext(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
	dir := ""
	if strings.ContainsRune(name, filepath.Separator) {
		if abs, err := filepath.Abs(name); err == nil {
			name = abs
		}
		dir = filepath.Dir(name)
	}
	cmd := exec.CommandContext(ctx, name, arg...)
	cmd.Dir = dir
	cmd.Env = d.workerEnv()
	return cmd, func() {}
}

func (d *Dispatcher) workerEnv() []string {
	env := os.Environ()
	if d.config.InstrumentationKey != "" {
		env = append(env, config.EnvInstrumentationKey+"="+d.config.InstrumentationKey)
	}
	return append(env, config.EnvCorrelationID+"="+d.config.CorrelationID)
}
