// Package failure carries worker failures across the process boundary.
// A failure travels as a Descriptor and is rebuilt into an *Error on the
// parent side so callers can still tell failure kinds apart.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies where a failure came from.
type Kind string

const (
	KindError         Kind = "error"
	KindPanic         Kind = "panic"
	KindSerialization Kind = "serialization"
	KindUnknownTarget Kind = "unknown_target"
)

var (
	// ErrWorkerFailure matches every failure reported by a worker.
	ErrWorkerFailure = errors.New("worker failure")
	// ErrSerialization matches arguments or results that could not cross the process boundary.
	ErrSerialization = errors.New("serialization error")
	// ErrPanic matches targets that panicked.
	ErrPanic = errors.New("target panicked")
	// ErrUnknownTarget matches invocations naming an unregistered target.
	ErrUnknownTarget = errors.New("unknown target")
)

// Descriptor is the wire form of a failure.
type Descriptor struct {
	Kind    Kind   `json:"kind"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

// Error is a failure rebuilt from a Descriptor.
type Error struct {
	Descriptor
}

func (e *Error) Error() string {
	return e.Message
}

// Is reports kind-level matches against the package sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrWorkerFailure:
		return true
	case ErrSerialization:
		return e.Kind == KindSerialization
	case ErrPanic:
		return e.Kind == KindPanic
	case ErrUnknownTarget:
		return e.Kind == KindUnknownTarget
	}
	return false
}

// FromDescriptor rebuilds the parent-side error.
func FromDescriptor(d Descriptor) *Error {
	if d.Kind == "" {
		d.Kind = KindError
	}
	return &Error{Descriptor: d}
}

// Describe turns an error returned by a target into a Descriptor.
func Describe(err error) Descriptor {
	if err == nil {
		return Descriptor{}
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Descriptor
	}
	return Descriptor{Kind: KindError, Type: categoryOf(err), Message: err.Error()}
}

// DescribePanic turns a recovered panic value into a Descriptor.
func DescribePanic(v any) Descriptor {
	if err, ok := v.(error); ok {
		return Descriptor{Kind: KindPanic, Type: categoryOf(err), Message: err.Error()}
	}
	return Descriptor{Kind: KindPanic, Type: fmt.Sprintf("%T", v), Message: fmt.Sprint(v)}
}

// Serialization builds a serialization failure.
func Serialization(format string, args ...any) *Error {
	return &Error{Descriptor{Kind: KindSerialization, Message: fmt.Sprintf(format, args...)}}
}

// UnknownTarget builds the failure for an unregistered target name.
func UnknownTarget(name string) *Error {
	return &Error{Descriptor{Kind: KindUnknownTarget, Message: fmt.Sprintf("target %q not registered", name)}}
}

// Categorized lets target errors choose the Type recorded in the Descriptor.
type Categorized interface {
	Category() string
}

type categorizedError struct {
	category string
	msg      string
}

func (e *categorizedError) Error() string    { return e.msg }
func (e *categorizedError) Category() string { return e.category }

// New returns an error carrying an explicit category, e.g. New("value", "bad input").
func New(category, msg string) error {
	return &categorizedError{category: category, msg: msg}
}

// Newf is New with formatting.
func Newf(category, format string, args ...any) error {
	return New(category, fmt.Sprintf(format, args...))
}

func categoryOf(err error) string {
	var c Categorized
	if errors.As(err, &c) {
		return c.Category()
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
