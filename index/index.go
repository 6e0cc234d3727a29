// Package index turns function metadata into indexed functions whose
// parameters all have a static binding.
package index

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"
	"github.com/jobhost/bindings/internal/slices"
	"github.com/jobhost/bindings/metadata"
	"github.com/jobhost/bindings/names"
	"github.com/jobhost/bindings/static"
)

type (
	// Function is a function whose parameters are bound statically.
	Function struct {
		metadata.Function
		// Bindings holds one binding per parameter, in order.
		Bindings []static.Binding
		// Trigger is nil for functions that are only called explicitly.
		Trigger static.Trigger
		// RouteParameters lists the binding data the trigger produces.
		RouteParameters []string
	}

	// Indexer builds indexed functions.
	Indexer struct {
		Names names.Resolver
		// BinderType is the parameter type bound to a runtime binder
		// when no attribute is present.
		BinderType reflect.Type
		// Strict fails functions whose bindings need route parameters
		// the trigger does not produce.
		Strict bool
		Log    logr.Logger
	}

	// Error reports a function that cannot be indexed.
	Error struct {
		Function string
		Reason   error
	}
)

var (
	ErrNoHandler             = errors.New("function has no handler")
	ErrMultipleBindings      = errors.New("parameter has more than one binding")
	ErrMultipleTriggers      = errors.New("function has more than one trigger")
	ErrTriggerNotFirst       = errors.New("trigger must be the first parameter")
	ErrMissingRouteParameter = errors.New("route parameter is not produced by the trigger")
)

func (e *Error) Error() string {
	return fmt.Sprintf("unable to index function %q: %v", e.Function, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Reason
}

// Index binds every parameter of f.
func (ix *Indexer) Index(f metadata.Function) (*Function, error) {
	if f.Handler == nil {
		return nil, &Error{f.Name, ErrNoHandler}
	}
	fn := &Function{Function: f, Bindings: make([]static.Binding, len(f.Parameters))}
	triggerAt := -1
	for i, param := range f.Parameters {
		b, err := ix.explicit(param)
		if err != nil {
			return nil, &Error{f.Name, err}
		}
		if b == nil && ix.BinderType != nil && param.Type == ix.BinderType {
			b = &static.Binder{Param: param.Name}
		}
		if trigger, ok := static.AsTrigger(b); ok {
			if fn.Trigger != nil {
				return nil, &Error{f.Name, fmt.Errorf("%w: %s and %s",
					ErrMultipleTriggers, fn.Trigger, trigger)}
			}
			fn.Trigger, triggerAt = trigger, i
		}
		fn.Bindings[i] = b
	}
	if fn.Trigger != nil {
		if triggerAt != 0 {
			return nil, &Error{f.Name, fmt.Errorf("%w: %s is parameter %d",
				ErrTriggerNotFirst, fn.Trigger, triggerAt)}
		}
		fn.RouteParameters = fn.Trigger.ProducedRouteParameters()
	}
	for i, param := range f.Parameters {
		if fn.Bindings[i] == nil {
			fn.Bindings[i] = &static.Name{
				Param: param.Name,
				Type:  param.Type,
				Route: containsFold(fn.RouteParameters, param.Name),
			}
		}
	}
	if err := ix.checkRoutes(fn); err != nil {
		return nil, &Error{f.Name, err}
	}
	ix.log().V(1).Info("indexed function", "function", f.Name,
		"bindings", slices.Map[static.Binding, string](fn.Bindings, static.Binding.String))
	return fn, nil
}

// IndexAll indexes every function.  Functions that fail are
// skipped and their errors aggregated.
func (ix *Indexer) IndexAll(functions []metadata.Function) ([]*Function, error) {
	var (
		indexed []*Function
		errs    *multierror.Error
	)
	for _, f := range functions {
		fn, err := ix.Index(f)
		if err != nil {
			ix.log().Error(err, "skipping function", "function", f.Name)
			errs = multierror.Append(errs, err)
			continue
		}
		indexed = append(indexed, fn)
	}
	return indexed, errs.ErrorOrNil()
}

func (ix *Indexer) explicit(param metadata.Parameter) (static.Binding, error) {
	var found static.Binding
	for _, attr := range param.Attributes {
		b, err := static.Bind(attr, param, ix.Names)
		if err != nil {
			return nil, err
		}
		if b == nil {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: %q has %s and %s",
				ErrMultipleBindings, param.Name, found, b)
		}
		found = b
	}
	return found, nil
}

func (ix *Indexer) checkRoutes(fn *Function) error {
	if fn.Trigger == nil {
		return nil
	}
	supplied := slices.Map[metadata.Parameter, string](fn.Parameters, func(p metadata.Parameter) string { return p.Name })
	for _, b := range fn.Bindings {
		for _, name := range b.RequiredRouteParameters() {
			if containsFold(fn.RouteParameters, name) || containsFold(supplied, name) {
				continue
			}
			err := fmt.Errorf("%w: %s needs {%s}", ErrMissingRouteParameter, b, name)
			if ix.Strict {
				return err
			}
			ix.log().Info("binding may not resolve", "function", fn.Name, "reason", err.Error())
		}
	}
	return nil
}

func (ix *Indexer) log() logr.Logger {
	if ix.Log.GetSink() == nil {
		return logr.Discard()
	}
	return ix.Log
}

func containsFold(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}
