// Package errs defines the error categories shared by the ETL pipeline, the scheduler and the alert runner.
//
// Every failure surfaced by this module wraps exactly one of these sentinels, so callers classify
// errors with errors.Is instead of inspecting messages:
//
//	if errors.Is(err, errs.ErrLock) { ... }
package errs

import "errors"

var (
	// ErrValidation marks a bad or unknown configuration value (interval code, entry field, cron spec).
	// The affected entry is skipped; the pass continues.
	ErrValidation = errors.New("validation error")

	// ErrNetwork marks a transient failure talking to the market venue.
	// It is retried a bounded number of times before failing the entry's pass.
	ErrNetwork = errors.New("network error")

	// ErrStorage marks an unreadable or corrupt artifact, or a failed write.
	// The previously persisted artifact is never modified when this is returned.
	ErrStorage = errors.New("storage error")

	// ErrLock marks a failure to acquire (or keep) the scheduler lock.
	// It aborts the whole invocation before any entry runs.
	ErrLock = errors.New("lock error")

	// ErrAlertDispatch marks a notification transport failure. It is logged and never fatal.
	ErrAlertDispatch = errors.New("alert dispatch error")
)
