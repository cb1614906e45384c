package gateway

import (
	"errors"
	"fmt"
)

// Domain errors for gateway operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNetwork is returned when the HTTP round trip itself fails
	// (connection refused, DNS, timeout).
	ErrNetwork = errors.New("enteliweb: network error")

	// ErrAuth is returned when the gateway rejects a login.
	ErrAuth = errors.New("enteliweb: login rejected")

	// ErrNotAuthenticated is returned when an operation is attempted with a
	// nil or empty session.
	ErrNotAuthenticated = errors.New("enteliweb: not authenticated")

	// ErrHTTP is returned for a non-success HTTP status that carries no
	// vendor error envelope.
	ErrHTTP = errors.New("enteliweb: unexpected HTTP status")

	// ErrVendor is returned when HTTP succeeded but the body carries an
	// error field other than "-1".
	ErrVendor = errors.New("enteliweb: gateway reported error")

	// ErrTimeout is returned when a poll phase exhausts its attempts.
	ErrTimeout = errors.New("enteliweb: poll attempts exhausted")

	// ErrPartialWorkflow is returned when a workflow stops after at least
	// one phase changed remote state.
	ErrPartialWorkflow = errors.New("enteliweb: workflow aborted after partial completion")

	// ErrInvalidReference is returned when an object or device reference
	// cannot be used to build a gateway path.
	ErrInvalidReference = errors.New("enteliweb: invalid reference")

	// ErrUnexpectedResponse is returned when a response body cannot be
	// decoded into the shape the endpoint documents.
	ErrUnexpectedResponse = errors.New("enteliweb: unexpected response")
)

// StatusError carries a failed classification.
// It unwraps to ErrVendor when the gateway embedded an error code in a
// successful HTTP response, and to ErrHTTP otherwise.
type StatusError struct {
	HTTPStatus int
	Code       string
	Message    string
	Vendor     bool
}

func (e *StatusError) Error() string {
	if e.Vendor {
		return fmt.Sprintf("enteliweb: gateway error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("enteliweb: HTTP %d: %s", e.HTTPStatus, e.Message)
}

func (e *StatusError) Unwrap() error {
	if e.Vendor {
		return ErrVendor
	}
	return ErrHTTP
}

// WorkflowError describes where a multi-phase workflow stopped.
//
// Completed lists the phases that finished before Phase failed. When it is
// not empty the error also matches ErrPartialWorkflow, because the gateway
// may hold state (an export file, an orphaned paste task) that nothing
// cleans up.
type WorkflowError struct {
	Kind      TaskKind
	Phase     string
	Completed []string
	TaskID    string
	Err       error
}

func (e *WorkflowError) Error() string {
	msg := fmt.Sprintf("enteliweb: %s failed in phase %q", e.Kind, e.Phase)
	if e.TaskID != "" {
		msg += fmt.Sprintf(" (task %s)", e.TaskID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *WorkflowError) Unwrap() []error {
	errs := []error{e.Err}
	if len(e.Completed) > 0 {
		errs = append(errs, ErrPartialWorkflow)
	}
	return errs
}
