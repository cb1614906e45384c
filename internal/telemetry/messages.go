package telemetry

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mkaufman2023/enteliweb/internal/gateway"
)

// TaskMessage is the payload published for every AsyncTask transition.
type TaskMessage struct {
	RunID       string  `json:"run_id"`
	Kind        string  `json:"kind"`
	Target      string  `json:"target"`
	TaskID      string  `json:"task_id,omitempty"`
	Status      string  `json:"status"`
	Phase       string  `json:"phase,omitempty"`
	Attempts    int     `json:"attempts"`
	MaxAttempts int     `json:"max_attempts"`
	Message     string  `json:"message,omitempty"`
	StartedAt   string  `json:"started_at"`
	FinishedAt  string  `json:"finished_at,omitempty"`
	Duration    float64 `json:"duration_seconds,omitempty"`
	Timestamp   string  `json:"timestamp"`
}

// NewTaskMessage builds the message for one transition.
func NewTaskMessage(task gateway.AsyncTask, now time.Time) TaskMessage {
	msg := TaskMessage{
		RunID:       task.RunID,
		Kind:        string(task.Kind),
		Target:      task.Target,
		TaskID:      task.TaskID,
		Status:      string(task.Status),
		Phase:       task.Phase,
		Attempts:    task.Attempts,
		MaxAttempts: task.MaxAttempts,
		Message:     task.Message,
		StartedAt:   task.StartedAt.UTC().Format(time.RFC3339),
		Timestamp:   now.UTC().Format(time.RFC3339),
	}
	if !task.FinishedAt.IsZero() {
		msg.FinishedAt = task.FinishedAt.UTC().Format(time.RFC3339)
		msg.Duration = task.Duration().Seconds()
	}
	return msg
}

// PropertyMessage is the retained payload of one sampled property.
type PropertyMessage struct {
	Site      string   `json:"site"`
	Device    string   `json:"device"`
	Object    string   `json:"object"`
	Property  string   `json:"property"`
	Value     string   `json:"value"`
	Numeric   *float64 `json:"numeric,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// HealthStatus is the service health published by HealthReporter.
type HealthStatus string

// Health states.
const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is the retained payload on enteliweb/system/health.
type HealthMessage struct {
	Status        HealthStatus `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	Version       string       `json:"version,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Stats         Stats        `json:"stats"`
	Timestamp     string       `json:"timestamp"`
}

// NumericValue interprets a property value for time-series storage.
// Finite numbers parse as floats; binary states map to 1 and 0.
func NumericValue(v string) (float64, bool) {
	s := strings.TrimSpace(v)
	switch strings.ToLower(s) {
	case "active", "on", "true":
		return 1, true
	case "inactive", "off", "false":
		return 0, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
