// Package telemetry records test events and pass/fail metrics. A worker
// writes to one Sink; concrete sinks cover a local console log, Application
// Insights, a Prometheus push gateway and an MQTT broker.
package telemetry

import (
	"errors"
	"sync"

	"github.com/b2ctest/flowrunner/pkg/logger"
)

// Metric names.
const (
	MetricPass = "Pass"
	MetricFail = "Fail"
)

// Event names.
const (
	EventStarted         = "flowrunner Started"
	EventCompleted       = "flowrunner Completed"
	EventTestStarted     = "Test Started"
	EventInformation     = "information"
	EventException       = "exception"
	EventExceptionThrown = "Exception Thrown"
	EventFileFailure     = "File Failure"
	EventURLFailure      = "URL Failure"
	EventTimeoutFailure  = "Timeout Failure"
	EventVisibleElement  = "Visible Element"
	EventInvalidTest     = "Invalid test"
	EventTestFailure     = "Test Failure"
	EventLogicFailure    = "Logic Failure"
)

// PropError is the property carrying a failure message.
const PropError = "Error"

// Sink receives telemetry from one worker process. Implementations must be
// safe for concurrent use; sinks shared between processes (the console log)
// must tolerate concurrent appends.
type Sink interface {
	TrackEvent(name string, props map[string]string)
	TrackMetric(name string, value float64)
	TrackException(err error, props map[string]string)
	TrackTrace(message string)
	Flush() error
	Close() error
}

// Event is a convenience for single-property events.
func Event(s Sink, name, prop, value string) {
	s.TrackEvent(name, map[string]string{prop: value})
}

// Nop discards everything.
type Nop struct{}

func (Nop) TrackEvent(string, map[string]string) {}
func (Nop) TrackMetric(string, float64) {}
func (Nop) TrackException(error, map[string]string) {}
func (Nop) TrackTrace(string) {}
func (Nop) Flush() error { return nil }
func (Nop) Close() error { return nil }

// Multi fans out to several sinks.
type Multi []Sink

func (m Multi) TrackEvent(name string, props map[string]string) {
	for _, s := range m {
		s.TrackEvent(name, props)
	}
}

func (m Multi) TrackMetric(name string, value float64) {
	for _, s := range m {
		s.TrackMetric(name, value)
	}
}

func (m Multi) TrackException(err error, props map[string]string) {
	for _, s := range m {
		s.TrackException(err, props)
	}
}

func (m Multi) TrackTrace(message string) {
	for _, s := range m {
		s.TrackTrace(message)
	}
}

func (m Multi) Flush() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Flush())
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Recorder keeps everything in memory.
type Recorder struct {
	mu         sync.Mutex
	Events     []RecordedEvent
	Metrics    map[string]float64
	Exceptions []error
	Traces     []string
	Flushes    int
}

// RecordedEvent is one TrackEvent call.
type RecordedEvent struct {
	Name  string
	Props map[string]string
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{Metrics: make(map[string]float64)}
}

func (r *Recorder) TrackEvent(name string, props map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make(map[string]string, len(props))
	for k, v := range props {
		cp[k] = v
	}
	r.Events = append(r.Events, RecordedEvent{Name: name, Props: cp})
}

func (r *Recorder) TrackMetric(name string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Metrics[name] += value
}

func (r *Recorder) TrackException(err error, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Exceptions = append(r.Exceptions, err)
}

func (r *Recorder) TrackTrace(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Traces = append(r.Traces, message)
}

func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Flushes++
	return nil
}

func (r *Recorder) Close() error { return nil }

// EventsNamed returns recorded events with the given name.
func (r *Recorder) EventsNamed(name string) []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []RecordedEvent
	for _, e := range r.Events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Metric returns the accumulated value of a metric.
func (r *Recorder) Metric(name string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Metrics[name]
}

// Options selects the sinks for a worker.
type Options struct {
	InstrumentationKey string // Application Insights; empty falls back to the console file
	ConsoleFile        string
	CorrelationID      string
	PushGateway        string // Prometheus push gateway URL, optional
	MQTTBroker         string // e.g. tcp://localhost:1883, optional
}

// New builds the sink described by opts. Optional network sinks that cannot
// be reached are logged and left out.
func New(opts Options) Sink {
	var sinks Multi
	if opts.InstrumentationKey != "" {
		sinks = append(sinks, NewAppInsightsSink(AppInsightsOptions{
			InstrumentationKey: opts.InstrumentationKey,
			CorrelationID:      opts.CorrelationID,
		}))
	} else {
		sinks = append(sinks, NewFileSink(opts.ConsoleFile))
	}

	if opts.PushGateway != "" {
		sinks = append(sinks, NewPushSink(opts.PushGateway, opts.CorrelationID, ""))
	}
	if opts.MQTTBroker != "" {
		m, err := DialMQTT(opts.MQTTBroker, opts.CorrelationID)
		if err != nil {
			logger.Warn("telemetry: %v", err)
		} else {
			sinks = append(sinks, m)
		}
	}

	if len(sinks) == 1 {
		return sinks[0]
	}
	return sinks
}
