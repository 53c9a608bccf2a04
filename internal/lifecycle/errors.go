package lifecycle

import (
	"errors"
	"fmt"
)

// ErrorKind classifies validation and state errors so callers can branch on them.
type ErrorKind string

const (
	KindInvalidQuantity              ErrorKind = "invalid_quantity"
	KindInvalidInput                 ErrorKind = "invalid_input"
	KindQuantityExceedsTarget        ErrorKind = "quantity_exceeds_target"
	KindPackagingOverEstimateHardCap ErrorKind = "packaging_over_estimate_hard_cap"
	KindInvalidStateForTransition    ErrorKind = "invalid_state_for_transition"
	KindDuplicateBatchInRoom         ErrorKind = "duplicate_batch_in_room"
	KindRejectedBatchImmutable       ErrorKind = "rejected_batch_immutable"
	KindNotFound                     ErrorKind = "not_found"
	KindBatchNumberInUse             ErrorKind = "batch_number_in_use"
)

// Error is a typed lifecycle failure. Allowed carries the remaining allowance for
// the two quantity caps.
type Error struct {
	Kind    ErrorKind
	Message string
	Allowed *int
}

func (e *Error) Error() string {
	if e.Allowed != nil {
		return fmt.Sprintf("%s: %s (allowed %d)", e.Kind, e.Message, *e.Allowed)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func withAllowed(kind ErrorKind, allowed int, format string, args ...interface{}) *Error {
	e := newError(kind, format, args...)
	e.Allowed = &allowed
	return e
}

// KindOf returns the kind of a lifecycle error, or "" for any other error.
func KindOf(err error) ErrorKind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// IsKind reports whether err is a lifecycle error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
