// Package metadata describes functions and their parameters.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

type (
	// Parameter describes a single function parameter.
	Parameter struct {
		Name       string
		Type       reflect.Type
		Attributes []any
	}

	// Handler invokes a function with its bound arguments.
	Handler func(ctx context.Context, args []any) error

	// Function describes an indexed function.
	Function struct {
		Name        string
		Description string
		Parameters  []Parameter
		Handler     Handler
	}

	// HandlerError reports a handler that cannot serve a Function.
	HandlerError struct {
		Function string
		Reason   error
	}
)

var (
	ErrNotFunc           = errors.New("handler is not a func")
	ErrSignatureMismatch = errors.New("handler signature mismatch")
)

func (e *HandlerError) Error() string {
	return fmt.Sprintf("invalid handler for function %q: %v", e.Function, e.Reason)
}

func (e *HandlerError) Unwrap() error {
	return e.Reason
}

// Param declares a parameter whose type is taken from the handler.
func Param(name string, attributes ...any) Parameter {
	return Parameter{Name: name, Attributes: attributes}
}

// Func describes a function implemented by fn.  fn may take a leading
// context.Context and may return a single error.
func Func(name string, fn any, params ...Parameter) (Function, error) {
	return Function{Name: name, Parameters: params}.WithHandler(fn)
}

// MustFunc is like Func but panics on error.
func MustFunc(name string, fn any, params ...Parameter) Function {
	f, err := Func(name, fn, params...)
	if err != nil {
		panic(err)
	}
	return f
}

// Parameter returns the parameter with the given name.
func (f Function) Parameter(name string) (Parameter, bool) {
	for _, p := range f.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// WithHandler returns a copy of f invoked through fn.  Parameters
// without a type adopt the handler's; typed ones must be assignable.
func (f Function) WithHandler(fn any) (Function, error) {
	val := reflect.ValueOf(fn)
	if val.Kind() != reflect.Func {
		return f, &HandlerError{f.Name, fmt.Errorf("%w: %T", ErrNotFunc, fn)}
	}
	typ := val.Type()
	offset := 0
	if typ.NumIn() > 0 && typ.In(0) == contextType {
		offset = 1
	}
	if typ.IsVariadic() || typ.NumIn()-offset != len(f.Parameters) {
		return f, &HandlerError{f.Name, fmt.Errorf(
			"%w: %d parameters declared, handler accepts %d",
			ErrSignatureMismatch, len(f.Parameters), typ.NumIn()-offset)}
	}
	if typ.NumOut() > 1 || (typ.NumOut() == 1 && typ.Out(0) != errorType) {
		return f, &HandlerError{f.Name, fmt.Errorf(
			"%w: handler may only return an error", ErrSignatureMismatch)}
	}
	params := make([]Parameter, len(f.Parameters))
	copy(params, f.Parameters)
	for i := range params {
		in := typ.In(i + offset)
		if params[i].Type == nil {
			params[i].Type = in
		} else if !params[i].Type.AssignableTo(in) {
			return f, &HandlerError{f.Name, fmt.Errorf(
				"%w: parameter %q is %v, handler expects %v",
				ErrSignatureMismatch, params[i].Name, params[i].Type, in)}
		}
	}
	f.Parameters = params
	f.Handler = callHandler(f.Name, val, offset)
	return f, nil
}

func callHandler(name string, fun reflect.Value, offset int) Handler {
	typ := fun.Type()
	return func(ctx context.Context, args []any) (err error) {
		if len(args) != typ.NumIn()-offset {
			return fmt.Errorf("function %q expects %d arguments, got %d",
				name, typ.NumIn()-offset, len(args))
		}
		in := make([]reflect.Value, 0, typ.NumIn())
		if offset == 1 {
			if ctx == nil {
				ctx = context.Background()
			}
			in = append(in, reflect.ValueOf(ctx))
		}
		for i, arg := range args {
			argType := typ.In(i + offset)
			if arg == nil {
				in = append(in, reflect.Zero(argType))
				continue
			}
			v := reflect.ValueOf(arg)
			if !v.Type().AssignableTo(argType) {
				return fmt.Errorf("function %q argument %d: %v is not assignable to %v",
					name, i, v.Type(), argType)
			}
			in = append(in, v)
		}
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("function %q panicked: %v", name, r)
			}
		}()
		if out := fun.Call(in); len(out) == 1 && !out[0].IsNil() {
			err = out[0].Interface().(error)
		}
		return
	}
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)
