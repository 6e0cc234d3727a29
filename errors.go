package bindings

import (
	"errors"
	"fmt"
	"reflect"
)

type (
	// BindingError reports a parameter that could not be bound.
	BindingError struct {
		Parameter string
		Reason    error
	}

	// PanicError captures a recovered panic.
	PanicError struct {
		Value any
	}

	// ErrorProvider stands in for a parameter that failed to bind.
	// Its value is nil and its invoke string carries the cause.
	ErrorProvider struct {
		Typ reflect.Type
		Err *BindingError
	}
)

var (
	ErrNoValue        = errors.New("no value supplied")
	ErrUnsupported    = errors.New("no binding provider supports the attribute")
	ErrNotWritable    = errors.New("value provider is not writable")
	ErrNoTriggerValue = errors.New("no trigger value supplied")
)

func (e *BindingError) Error() string {
	return fmt.Sprintf("error while binding parameter %q: %v", e.Parameter, e.Reason)
}

func (e *BindingError) Unwrap() error {
	return e.Reason
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// NewErrorProvider creates the sentinel for a failed parameter.
func NewErrorProvider(param string, typ reflect.Type, err error) *ErrorProvider {
	var be *BindingError
	if !errors.As(err, &be) || be.Parameter != param {
		be = &BindingError{param, err}
	}
	return &ErrorProvider{typ, be}
}

func (e *ErrorProvider) Type() reflect.Type       { return e.Typ }
func (e *ErrorProvider) Value() (any, error)      { return nil, nil }
func (e *ErrorProvider) InvokeString() string     { return e.Err.Error() }
func (e *ErrorProvider) Capabilities() Capability { return 0 }
func (e *ErrorProvider) Error() string            { return e.Err.Error() }
func (e *ErrorProvider) Unwrap() error            { return e.Err }
