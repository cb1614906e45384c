package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskKind identifies a multi-phase workflow.
type TaskKind string

// Workflow kinds.
const (
	TaskSaveDatabase TaskKind = "save_database"
	TaskLoadDatabase TaskKind = "load_database"
	TaskCopyObject   TaskKind = "copy_object"
	TaskLoadObject   TaskKind = "load_object"
	TaskSaveObjects  TaskKind = "save_objects"
	TaskLoadProgram  TaskKind = "load_program"
)

// TaskStatus is the lifecycle state of an AsyncTask.
type TaskStatus string

// Task states. Transitions only move forward:
//
//	pending → running → succeeded | failed | timed_out
//	pending → failed
const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskTimedOut  TaskStatus = "timed_out"
)

// Terminal reports whether no further transition is possible.
func (s TaskStatus) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed || s == TaskTimedOut
}

func (s TaskStatus) rank() int {
	switch s {
	case TaskPending:
		return 0
	case TaskRunning:
		return 1
	default:
		return 2
	}
}

// AsyncTask is the client-side record of one workflow run.
//
// It lives only for the duration of the workflow call; nothing resumes a
// task after the process exits. RunID is generated locally so observers can
// correlate transitions; TaskID is the server-side identifier, when the
// workflow has one.
type AsyncTask struct {
	RunID        string        `json:"run_id"`
	Kind         TaskKind      `json:"kind"`
	Target       string        `json:"target"`
	TaskID       string        `json:"task_id,omitempty"`
	Status       TaskStatus    `json:"status"`
	Phase        string        `json:"phase,omitempty"`
	Attempts     int           `json:"attempts"`
	MaxAttempts  int           `json:"max_attempts"`
	PollInterval time.Duration `json:"poll_interval"`
	Message      string        `json:"message,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at,omitzero"`
}

// Duration returns how long the task ran, or zero if it has not finished.
func (t *AsyncTask) Duration() time.Duration {
	if t.FinishedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}

// TaskResult is what a workflow reports back to its caller.
type TaskResult struct {
	Task AsyncTask

	// FilePath is the local file the workflow produced, if any.
	FilePath string

	// Message is the gateway's final status text.
	Message string

	// Target is the identity of the object a copy or restore produced.
	Target ObjectReference

	// Response is the raw body of the final phase, for callers that need
	// fields the client does not interpret.
	Response json.RawMessage
}

// OK reports whether the workflow completed successfully.
func (r TaskResult) OK() bool {
	return r.Task.Status == TaskSucceeded
}

// TaskObserver receives every AsyncTask transition. The task is passed by
// value; observers must not block for long because workflows call them
// synchronously.
type TaskObserver interface {
	TaskChanged(task AsyncTask)
}

// TaskObserverFunc adapts a function to TaskObserver.
type TaskObserverFunc func(task AsyncTask)

// TaskChanged calls f(task).
func (f TaskObserverFunc) TaskChanged(task AsyncTask) { f(task) }

// Observers fans one transition out to several observers in order.
type Observers []TaskObserver

// TaskChanged notifies each non-nil observer.
func (o Observers) TaskChanged(task AsyncTask) {
	for _, obs := range o {
		if obs != nil {
			obs.TaskChanged(task)
		}
	}
}

// tracker drives one AsyncTask through its phases and reports transitions.
type tracker struct {
	task      AsyncTask
	completed []string
	observer  TaskObserver
	now       func() time.Time
}

func (c *Client) newTracker(kind TaskKind, target string, policy PollPolicy) *tracker {
	t := &tracker{
		task: AsyncTask{
			RunID:        uuid.NewString(),
			Kind:         kind,
			Target:       target,
			Status:       TaskPending,
			MaxAttempts:  policy.MaxAttempts,
			PollInterval: policy.Interval,
			StartedAt:    c.now(),
		},
		observer: c.observer,
		now:      c.now,
	}
	t.notify()
	return t
}

// enter starts a phase, moving the task to running.
func (t *tracker) enter(phase string) {
	t.task.Phase = phase
	t.transition(TaskRunning)
}

// done marks the current phase complete.
func (t *tracker) done() {
	t.completed = append(t.completed, t.task.Phase)
}

// setTaskID records the server-side task identifier.
func (t *tracker) setTaskID(id string) {
	t.task.TaskID = id
	t.notify()
}

// attempt records one poll attempt.
func (t *tracker) attempt(n int) {
	t.task.Attempts = n
	t.notify()
}

// succeed finishes the task.
func (t *tracker) succeed(message string) TaskResult {
	t.task.Message = message
	t.transition(TaskSucceeded)
	return TaskResult{Task: t.task, Message: message}
}

// fail finishes the task as failed (or timed out when err matches
// ErrTimeout) and returns the matching WorkflowError.
func (t *tracker) fail(err error) (TaskResult, error) {
	status := TaskFailed
	if isTimeout(err) {
		status = TaskTimedOut
	}
	t.task.Message = err.Error()
	t.transition(status)

	completed := make([]string, len(t.completed))
	copy(completed, t.completed)
	return TaskResult{Task: t.task, Message: t.task.Message}, &WorkflowError{
		Kind:      t.task.Kind,
		Phase:     t.task.Phase,
		Completed: completed,
		TaskID:    t.task.TaskID,
		Err:       err,
	}
}

func (t *tracker) transition(to TaskStatus) {
	from := t.task.Status
	if from.Terminal() || to.rank() < from.rank() {
		panic(fmt.Sprintf("gateway: illegal task transition %s → %s", from, to))
	}
	t.task.Status = to
	if to.Terminal() {
		t.task.FinishedAt = t.now()
	}
	t.notify()
}

func (t *tracker) notify() {
	if t.observer != nil {
		t.observer.TaskChanged(t.task)
	}
}
