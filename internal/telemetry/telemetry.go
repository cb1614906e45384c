package telemetry

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mkaufman2023/enteliweb/internal/gateway"
	"github.com/mkaufman2023/enteliweb/internal/infrastructure/mqtt"
)

var topics mqtt.Topics

// Publisher sends MQTT messages. Implemented by *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// MetricsWriter records time-series points. Implemented by *influxdb.Client.
type MetricsWriter interface {
	WritePropertySample(site, device, objectID, property string, value float64, ts time.Time)
	WriteTaskRun(kind, status string, attempts int, duration time.Duration, ts time.Time)
}

// Logger is the logging interface used by telemetry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the sinks of a Telemetry. Either sink may be nil.
type Config struct {
	Publisher Publisher
	Metrics   MetricsWriter

	// QoS for every publish. Default: 1.
	QoS *byte

	// Now stamps messages. Default: time.Now.
	Now func() time.Time
}

// Stats counts publish outcomes since start.
type Stats struct {
	TasksPublished   uint64 `json:"tasks_published"`
	SamplesPublished uint64 `json:"samples_published"`
	PublishFailures  uint64 `json:"publish_failures"`
	TaskRunsWritten  uint64 `json:"task_runs_written"`
	SamplesWritten   uint64 `json:"samples_written"`
}

// Telemetry fans gateway activity out to MQTT and InfluxDB.
//
// Thread Safety: All methods are safe for concurrent use.
type Telemetry struct {
	publisher Publisher
	metrics   MetricsWriter
	qos       byte
	now       func() time.Time

	tasksPublished   atomic.Uint64
	samplesPublished atomic.Uint64
	publishFailures  atomic.Uint64
	taskRunsWritten  atomic.Uint64
	samplesWritten   atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a Telemetry from cfg.
func New(cfg Config) *Telemetry {
	qos := byte(1)
	if cfg.QoS != nil {
		qos = *cfg.QoS
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Telemetry{
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		qos:       qos,
		now:       now,
	}
}

// SetLogger sets the logger for publish failures.
func (t *Telemetry) SetLogger(logger Logger) {
	t.loggerMu.Lock()
	t.logger = logger
	t.loggerMu.Unlock()
}

// TaskChanged publishes one transition and, once the task is terminal,
// writes a task_run point.
func (t *Telemetry) TaskChanged(task gateway.AsyncTask) {
	now := t.now()

	if t.publisher != nil {
		topic := topics.Task(string(task.Kind), task.RunID)
		if t.publish(topic, NewTaskMessage(task, now), false) {
			t.tasksPublished.Add(1)
		}
	}

	if t.metrics != nil && task.Status.Terminal() {
		t.metrics.WriteTaskRun(string(task.Kind), string(task.Status), task.Attempts, task.Duration(), task.FinishedAt)
		t.taskRunsWritten.Add(1)
	}
}

// PublishSample publishes each value of one object retained and writes
// the numeric ones as bacnet_property points. Properties are handled in
// name order. It returns how many MQTT publishes failed.
func (t *Telemetry) PublishSample(ref gateway.ObjectReference, values map[string]string, ts time.Time) int {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	object := ref.ObjectType + ref.Instance
	failed := 0
	for _, name := range names {
		value := values[name]
		msg := PropertyMessage{
			Site:      ref.Site,
			Device:    ref.Device,
			Object:    object,
			Property:  name,
			Value:     value,
			Timestamp: ts.UTC().Format(time.RFC3339),
		}
		if f, ok := NumericValue(value); ok {
			msg.Numeric = &f
			if t.metrics != nil {
				t.metrics.WritePropertySample(ref.Site, ref.Device, object, name, f, ts)
				t.samplesWritten.Add(1)
			}
		}

		if t.publisher == nil {
			continue
		}
		if t.publish(topics.PropertyState(ref.Site, ref.Device, object, name), msg, true) {
			t.samplesPublished.Add(1)
		} else {
			failed++
		}
	}
	return failed
}

// Stats returns a snapshot of the counters.
func (t *Telemetry) Stats() Stats {
	return Stats{
		TasksPublished:   t.tasksPublished.Load(),
		SamplesPublished: t.samplesPublished.Load(),
		PublishFailures:  t.publishFailures.Load(),
		TaskRunsWritten:  t.taskRunsWritten.Load(),
		SamplesWritten:   t.samplesWritten.Load(),
	}
}

// publish marshals v and publishes it, counting and logging failures.
func (t *Telemetry) publish(topic string, v any, retained bool) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		t.fail(topic, fmt.Errorf("marshalling payload: %w", err))
		return false
	}
	if !t.publisher.IsConnected() {
		t.fail(topic, mqtt.ErrNotConnected)
		return false
	}
	if err := t.publisher.Publish(topic, payload, t.qos, retained); err != nil {
		t.fail(topic, err)
		return false
	}
	return true
}

func (t *Telemetry) fail(topic string, err error) {
	t.publishFailures.Add(1)

	t.loggerMu.RLock()
	logger := t.logger
	t.loggerMu.RUnlock()
	if logger != nil {
		logger.Warn("telemetry publish failed", "topic", topic, "error", err)
	}
}
