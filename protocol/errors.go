package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode means the bytes were not a message envelope at all.
	ErrDecode = errors.New("protocol: decode error")
	// ErrInvalidPayload means the envelope was fine but the payload broke its kind's contract.
	ErrInvalidPayload = errors.New("protocol: invalid payload")
	// ErrUnknownMessageKind is returned for kinds outside the closed set.
	ErrUnknownMessageKind = errors.New("protocol: unknown message kind")
)

type UnknownKindError struct {
	Kind Kind
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("protocol: unknown message kind %q", string(e.Kind))
}

func (e *UnknownKindError) Unwrap() error { return ErrUnknownMessageKind }

// PayloadError names the kind and field that failed validation.
type PayloadError struct {
	Kind   Kind
	Field  string
	Reason string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("protocol: invalid %s payload: %s %s", e.Kind, e.Field, e.Reason)
}

func (e *PayloadError) Unwrap() error { return ErrInvalidPayload }

func invalid(kind Kind, field, reason string) error {
	return &PayloadError{Kind: kind, Field: field, Reason: reason}
}
