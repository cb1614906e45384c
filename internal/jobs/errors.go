package jobs

import "errors"

var (
	// ErrInvalidTarget is returned by New when a configured device or
	// object cannot be turned into a gateway reference.
	ErrInvalidTarget = errors.New("jobs: invalid target")

	// ErrInvalidSchedule is returned by New when an enabled job has no
	// positive interval.
	ErrInvalidSchedule = errors.New("jobs: invalid schedule")

	// ErrUnknownJob is returned by Trigger for a name other than "backup"
	// or "sample".
	ErrUnknownJob = errors.New("jobs: unknown job")

	// ErrJobDisabled is returned by Trigger for a job that is not enabled.
	ErrJobDisabled = errors.New("jobs: job disabled")

	// ErrBusy is returned by Trigger when a run of the job is already queued.
	ErrBusy = errors.New("jobs: run already queued")

	// ErrNoSession is reported by CheckSession while no authenticated
	// gateway session exists.
	ErrNoSession = errors.New("jobs: no gateway session")
)
