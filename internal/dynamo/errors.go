package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for engine operations.
var (
	// ErrInvalidState indicates a body whose position or velocity went NaN or Inf.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrDegenerateGeometry indicates a beam too short or with non-finite endpoints.
	ErrDegenerateGeometry = errors.New("dynamo: degenerate geometry")

	// ErrUnknownBody indicates an id that is not (or no longer) in the world.
	ErrUnknownBody = errors.New("dynamo: unknown body")

	// ErrWrongKind indicates an operation applied to a body of the wrong kind.
	ErrWrongKind = errors.New("dynamo: operation not valid for body kind")

	// ErrParameterBounds indicates a parameter value is outside valid range.
	ErrParameterBounds = errors.New("dynamo: parameter out of valid bounds")

	// ErrNotReady indicates the audio backend has not finished initializing.
	ErrNotReady = errors.New("dynamo: audio backend not ready")

	// ErrDisposed indicates use of an engine after Dispose.
	ErrDisposed = errors.New("dynamo: engine disposed")
)

// BodyError wraps an error with the body it concerns.
type BodyError struct {
	ID      BodyID
	Kind    Kind
	Wrapped error
}

func (e *BodyError) Error() string {
	return fmt.Sprintf("%s %d: %v", e.Kind, e.ID, e.Wrapped)
}

func (e *BodyError) Unwrap() error {
	return e.Wrapped
}
