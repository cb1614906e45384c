package journal

import "errors"

// Sentinel errors for journal queries.
var (
	// ErrRunNotFound is returned when no run has the requested RunID.
	ErrRunNotFound = errors.New("journal: run not found")

	// ErrInvalidQuery is returned for out-of-range query parameters.
	ErrInvalidQuery = errors.New("journal: invalid query")
)
