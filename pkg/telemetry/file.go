package telemetry

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/b2ctest/flowrunner/pkg/logger"
)

// DefaultConsoleFile is the file sink target when no instrumentation key is
// configured.
const DefaultConsoleFile = "console.log"

const appendAttempts = 10

// FileSink appends human-readable telemetry to a shared console log. Several
// worker processes may append to the same file; each write is a single
// O_APPEND call, retried with a short random backoff when the file is busy.
// Metrics are aggregated in memory and written on Flush.
type FileSink struct {
	Path string

	mu        sync.Mutex
	metrics   map[string]float64
	prevError string
	sleep     func(time.Duration)
}

// NewFileSink creates a sink appending to path (DefaultConsoleFile if empty).
func NewFileSink(path string) *FileSink {
	if path == "" {
		path = DefaultConsoleFile
	}
	return &FileSink{
		Path:    path,
		metrics: make(map[string]float64),
		sleep:   time.Sleep,
	}
}

// TrackEvent writes one event. Single-property events get a compact form.
func (f *FileSink) TrackEvent(name string, props map[string]string) {
	if len(props) != 1 {
		data, _ := json.Marshal(props)
		f.write(fmt.Sprintf("\n%s:%s", name, data))
		return
	}

	var prop, value string
	for k, v := range props {
		prop, value = k, v
	}

	switch {
	case prop == PropError:
		f.write(fmt.Sprintf("\n%s: %s %s", name, prop, value))
	case strings.Contains(name, "assert"):
		f.write("\nStatus: " + strings.Replace(name, "assert ", "", 1))
	case strings.Contains(name, EventInformation):
		if prop == "browser" {
			value = "Browser: " + value
		}
		f.write("\n" + value)
	case strings.Contains(name, EventException):
		f.write("\n" + value)
	default:
		f.write(fmt.Sprintf("\n%s: %s %s", name, prop, value))
	}
}

// TrackMetric accumulates value under name.
func (f *FileSink) TrackMetric(name string, value float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics[name] += value
}

// TrackException writes err unless it repeats the previous exception.
func (f *FileSink) TrackException(err error, props map[string]string) {
	if err == nil {
		return
	}
	f.mu.Lock()
	if f.prevError == err.Error() {
		f.mu.Unlock()
		return
	}
	f.prevError = err.Error()
	f.mu.Unlock()

	details := ""
	if len(props) > 0 {
		data, _ := json.Marshal(props)
		details = string(data)
	}
	f.write(fmt.Sprintf("\nException thrown\n%s\n%s", err, details))
}

// TrackTrace writes a free-form line.
func (f *FileSink) TrackTrace(message string) {
	f.write("\n" + message)
}

// Flush writes the aggregated metrics, e.g. "Test Results:	Pass 3	Fail 1".
func (f *FileSink) Flush() error {
	f.mu.Lock()
	keys := make([]string, 0, len(f.metrics))
	for k := range f.metrics {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	var b strings.Builder
	b.WriteString("\nTest Results:")
	for _, k := range keys {
		fmt.Fprintf(&b, "\t%s %s", k, strconv.FormatFloat(f.metrics[k], 'f', -1, 64))
	}
	f.mu.Unlock()

	if err := f.append(b.String()); err != nil {
		return err
	}
	return f.append("\n-----------------------")
}

// Close is a no-op; every write is already on disk.
func (f *FileSink) Close() error { return nil }

// Metrics returns a copy of the aggregated metrics.
func (f *FileSink) Metrics() map[string]float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]float64, len(f.metrics))
	for k, v := range f.metrics {
		out[k] = v
	}
	return out
}

func (f *FileSink) write(msg string) {
	if err := f.append(msg); err != nil {
		logger.Warn("console log append failed: %v", err)
	}
}

func (f *FileSink) append(msg string) error {
	var err error
	for i := 0; i < appendAttempts; i++ {
		if err = appendFile(f.Path, msg); err == nil {
			return nil
		}
		f.sleep(time.Duration(rand.Intn(23)) * time.Millisecond)
	}
	return fmt.Errorf("append to %s: %w", f.Path, err)
}

func appendFile(path, msg string) error {
	fh, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := fh.WriteString(msg); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}
