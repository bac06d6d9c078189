package telemetry

import (
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const metricsNamespace = "flowrunner"

// PushSink exposes test results as Prometheus metrics and pushes them to a
// push gateway on Flush. Each worker pushes to its own grouping so parallel
// workers of one run do not overwrite each other.
type PushSink struct {
	pusher *push.Pusher

	results    *prometheus.CounterVec
	events     *prometheus.CounterVec
	exceptions prometheus.Counter
}

// NewPushSink creates a sink pushing to the gateway at url, grouped by the
// run's correlation id and worker.
func NewPushSink(url, correlationID, worker string) *PushSink {
	if worker == "" {
		host, _ := os.Hostname()
		worker = fmt.Sprintf("%s-%d", host, os.Getpid())
	}

	s := &PushSink{
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "test_results_total",
			Help:      "Count of test outcomes by metric name (Pass, Fail)",
		}, []string{"result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Count of telemetry events by name",
		}, []string{"event"}),
		exceptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "exceptions_total",
			Help:      "Count of driver exceptions",
		}),
	}

	p := push.New(url, metricsNamespace)
	if correlationID != "" {
		p = p.Grouping("correlation_id", correlationID)
	}
	s.pusher = p.Grouping("worker", worker).
		Collector(s.results).
		Collector(s.events).
		Collector(s.exceptions)
	return s
}

func (s *PushSink) TrackEvent(name string, _ map[string]string) {
	s.events.WithLabelValues(eventLabel(name)).Inc()
}

func (s *PushSink) TrackMetric(name string, value float64) {
	if value < 0 {
		return
	}
	s.results.WithLabelValues(name).Add(value)
}

func (s *PushSink) TrackException(error, map[string]string) {
	s.exceptions.Inc()
}

func (s *PushSink) TrackTrace(string) {}

// Flush pushes the current values, replacing this worker's group.
func (s *PushSink) Flush() error {
	if err := s.pusher.Push(); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

func (s *PushSink) Close() error { return nil }

func eventLabel(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}
