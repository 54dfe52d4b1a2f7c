package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Capability names used in CapabilityError.
const (
	CapabilityCompletion = "completion"
	CapabilitySearch     = "search"
	CapabilityRetrieval  = "retrieval"
)

// ErrEmptyCompletion is returned when a model answers with no choices.
var ErrEmptyCompletion = errors.New("model returned no choices")

// CapabilityError reports a failed call to an external capability.
type CapabilityError struct {
	Capability string
	// Transient is true when a later attempt may succeed.
	Transient bool
	Err       error
}

func (e *CapabilityError) Error() string {
	kind := "failed"
	if e.Transient {
		kind = "temporarily unavailable"
	}
	return fmt.Sprintf("%s capability %s: %v", e.Capability, kind, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// Temporary reports whether the failure is transient, so graph retry
// policies pick it up.
func (e *CapabilityError) Temporary() bool {
	return e.Transient
}

// Wrap converts err from capability into a *CapabilityError, classifying
// it with IsTransient. A nil err or an existing *CapabilityError is
// returned as is.
func Wrap(capability string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CapabilityError
	if errors.As(err, &ce) {
		return err
	}
	return &CapabilityError{Capability: capability, Transient: IsTransient(err), Err: err}
}

// IsTransient reports whether err is worth retrying: a transient
// CapabilityError, a deadline, a network timeout, or any error exposing
// Temporary() bool that returns true. Cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var ce *CapabilityError
	if errors.As(err, &ce) {
		return ce.Transient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return temp.Temporary()
	}
	return false
}
