package backend

import (
	"errors"
	"fmt"
)

// Kind buckets everything that can go wrong talking to the monitoring
// backend. Raw transport errors never escape this package.
type Kind int

const (
	// KindNetwork covers requests that could not complete or came back non-2xx.
	KindNetwork Kind = iota
	// KindCancelled marks a superseded request. Not a real failure; callers
	// swallow it.
	KindCancelled
	// KindValidation is client-side input out of range.
	KindValidation
	// KindNotFound is a missing target. Deletes normalize it to success.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindCancelled:
		return "cancelled"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	default:
		return "network"
	}
}

type Error struct {
	Kind   Kind
	Op     string // e.g. "GET /logs"
	Status int    // HTTP status when the backend answered, else 0
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Kind, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func kindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsCancelled reports whether err is a superseded-request error.
func IsCancelled(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindCancelled
}

func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}

func IsValidation(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindValidation
}
