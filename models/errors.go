package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared across the analysis and execution layers.
var (
	// ErrInsufficientData means an indicator window is shorter than the
	// indicator requires. Scoped to that indicator only.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrMissingFundamentals means required financial-statement fields
	// were absent; callers may proceed technical-only.
	ErrMissingFundamentals = errors.New("missing fundamentals")

	// ErrUnavailable means an external collaborator timed out or failed.
	// Always non-fatal: it triggers a fallback or a per-symbol skip.
	ErrUnavailable = errors.New("unavailable")
)

// RejectedError reports a portfolio execution decline. Recorded in the
// action history, never retried within the same cycle.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "rejected: " + e.Reason
}

// IsRejected reports whether err carries a portfolio rejection.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// FatalCycleError is an unexpected internal inconsistency. It aborts the
// current cycle only: the agent returns to Idle and partial cycle state
// is discarded.
type FatalCycleError struct {
	Phase string
	Err   error
}

func (e *FatalCycleError) Error() string {
	return fmt.Sprintf("fatal cycle error in %s: %v", e.Phase, e.Err)
}

func (e *FatalCycleError) Unwrap() error { return e.Err }

// ErrorKind is the operator-facing classification of an error. Raw
// collaborator error text stays in the logs.
type ErrorKind string

const (
	KindInsufficientData    ErrorKind = "insufficient_data"
	KindMissingFundamentals ErrorKind = "missing_fundamentals"
	KindUnavailable         ErrorKind = "unavailable"
	KindRejected            ErrorKind = "rejected"
	KindFatal               ErrorKind = "fatal"
	KindUnknown             ErrorKind = "unknown"
)

// Classify maps an error to its operator-facing kind.
func Classify(err error) ErrorKind {
	var fatal *FatalCycleError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fatal):
		return KindFatal
	case IsRejected(err):
		return KindRejected
	case errors.Is(err, ErrInsufficientData):
		return KindInsufficientData
	case errors.Is(err, ErrMissingFundamentals):
		return KindMissingFundamentals
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	default:
		return KindUnknown
	}
}

// CycleError is the retained last-error view exposed through the agent
// status. Only the kind and the affected symbol/action are surfaced.
type CycleError struct {
	Kind   ErrorKind  `json:"kind"`
	Symbol string     `json:"symbol,omitempty"`
	Action ActionKind `json:"action,omitempty"`
	At     time.Time  `json:"at"`
}
