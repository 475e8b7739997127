package engine

import (
	"errors"
	"fmt"

	"github.com/tallyforge/reconcile/internal/record"
)

// RunError represents a failure detected during a reconciliation run.
// Per-item write failures are NOT RunErrors; they are counted in the
// report and never abort the batch.
type RunError struct {
	// Code identifies the error category.
	Code RunErrorCode

	// Message is a human-readable description.
	Message string

	// Source identifies the affected feed, when the failure is scoped to
	// one.
	Source record.SourceTag

	// Err is the underlying cause.
	Err error
}

// RunErrorCode categorizes run errors.
type RunErrorCode string

const (
	// ErrCodeTargetFetch indicates the target (ledger) collection could
	// not be loaded. Everything depends on it, so the run aborts.
	ErrCodeTargetFetch RunErrorCode = "TARGET_FETCH_FAILED"

	// ErrCodeSourceFetch indicates one source collection could not be
	// loaded. Only the phases depending on that collection abort;
	// independent sources continue.
	ErrCodeSourceFetch RunErrorCode = "SOURCE_FETCH_FAILED"

	// ErrCodeHistory indicates the historical classification counts could
	// not be read for the fallback strategy.
	ErrCodeHistory RunErrorCode = "HISTORY_READ_FAILED"

	// ErrCodeRunLog indicates the run audit row could not be written.
	ErrCodeRunLog RunErrorCode = "RUN_LOG_FAILED"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s: %s (source=%s): %v", e.Code, e.Message, e.Source, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *RunError) Unwrap() error { return e.Err }

// IsFatal reports whether an error should fail the whole run. Source
// fetch failures are isolated; everything else is fatal.
func IsFatal(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code != ErrCodeSourceFetch
	}
	return err != nil
}
