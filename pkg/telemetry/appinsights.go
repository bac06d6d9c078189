package telemetry

import (
	"strings"
	"sync"
	"time"

	"github.com/microsoft/ApplicationInsights-Go/appinsights"
	"github.com/microsoft/ApplicationInsights-Go/appinsights/contracts"

	"github.com/b2ctest/flowrunner/pkg/logger"
)

// AppInsightsOptions configures an Application Insights sink.
type AppInsightsOptions struct {
	InstrumentationKey string
	CorrelationID      string // Attached to every item as the correlationId property
	Endpoint           string // Overrides the ingestion endpoint
	CloseTimeout       time.Duration
}

// AppInsightsSink sends telemetry to Application Insights.
type AppInsightsSink struct {
	client       appinsights.TelemetryClient
	closeTimeout time.Duration
}

var diagnosticsOnce sync.Once

// NewAppInsightsSink creates a client for the given instrumentation key.
func NewAppInsightsSink(opts AppInsightsOptions) *AppInsightsSink {
	cfg := appinsights.NewTelemetryConfiguration(opts.InstrumentationKey)
	if opts.Endpoint != "" {
		cfg.EndpointUrl = opts.Endpoint
	}
	cfg.MaxBatchInterval = 2 * time.Second

	diagnosticsOnce.Do(func() {
		appinsights.NewDiagnosticsMessageListener(func(msg string) error {
			logger.Debug("appinsights: %s", msg)
			return nil
		})
	})

	client := appinsights.NewTelemetryClientFromConfig(cfg)
	if opts.CorrelationID != "" {
		client.Context().CommonProperties["correlationId"] = opts.CorrelationID
	}

	timeout := opts.CloseTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AppInsightsSink{client: client, closeTimeout: timeout}
}

// TrackEvent sends a custom event. Failure and exception events are flushed
// immediately.
func (a *AppInsightsSink) TrackEvent(name string, props map[string]string) {
	ev := appinsights.NewEventTelemetry(name)
	for k, v := range props {
		ev.Properties[k] = v
	}
	a.client.Track(ev)

	id := strings.ToLower(name)
	if strings.Contains(id, "exception") || strings.Contains(id, "fail") {
		a.client.Channel().Flush()
	}
}

func (a *AppInsightsSink) TrackMetric(name string, value float64) {
	a.client.TrackMetric(name, value)
}

func (a *AppInsightsSink) TrackException(err error, props map[string]string) {
	if err == nil {
		return
	}
	exc := appinsights.NewExceptionTelemetry(err)
	for k, v := range props {
		exc.Properties[k] = v
	}
	a.client.Track(exc)
}

func (a *AppInsightsSink) TrackTrace(message string) {
	a.client.TrackTrace(message, contracts.Information)
}

// Flush sends buffered items without waiting for delivery.
func (a *AppInsightsSink) Flush() error {
	a.client.Channel().Flush()
	return nil
}

// Close sends remaining items and waits up to the close timeout for them to
// be delivered.
func (a *AppInsightsSink) Close() error {
	select {
	case <-a.client.Channel().Close(a.closeTimeout):
	case <-time.After(a.closeTimeout + time.Second):
		logger.Warn("appinsights: timed out delivering telemetry")
	}
	return nil
}
