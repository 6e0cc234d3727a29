package bindings

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jobhost/bindings/bindingdata"
	"github.com/jobhost/bindings/metadata"
	"github.com/jobhost/bindings/pattern"
	"github.com/jobhost/bindings/static"
)

type (
	// Core binds named parameters and runtime binders.
	// Runtime binders create their bindings through Provider,
	// which should include Core itself.
	Core struct {
		Provider Provider
	}

	nameBinding struct {
		static *static.Name
		typ    reflect.Type
	}

	binderBinding struct {
		static *static.Binder
		core   *Core
	}
)

// BinderType is the parameter type bound to a runtime Binder.
var BinderType = reflect.TypeFor[*Binder]()

func (c *Core) Create(param metadata.Parameter, binding static.Binding) (Binding, error) {
	switch sb := binding.(type) {
	case *static.Name:
		typ := param.Type
		if typ == nil {
			typ = anyType
		}
		return &nameBinding{sb, typ}, nil
	case *static.Binder:
		return &binderBinding{sb, c}, nil
	}
	return nil, nil
}

func (b *nameBinding) Static() static.Binding {
	return b.static
}

func (b *nameBinding) Bind(_ context.Context, _ *Invocation, value any) (ValueProvider, error) {
	return b.convert(value)
}

func (b *nameBinding) BindFromData(_ context.Context, inv *Invocation) (ValueProvider, error) {
	if !b.static.Route {
		return nil, fmt.Errorf("%w for %q", ErrNoValue, b.static.Param)
	}
	value, ok := inv.Data.Get(b.static.Param)
	if !ok {
		return nil, &pattern.MissingValueError{Name: b.static.Param}
	}
	return b.convert(value)
}

func (b *nameBinding) convert(value any) (ValueProvider, error) {
	if value == nil {
		return &Constant{b.typ, nil, "null"}, nil
	}
	if reflect.TypeOf(value).AssignableTo(b.typ) {
		return NewConstant(b.typ, value), nil
	}
	converted, err := bindingdata.ChangeType(value, b.typ)
	if err != nil {
		return nil, err
	}
	return NewConstant(b.typ, converted), nil
}

func (b *binderBinding) Static() static.Binding {
	return b.static
}

func (b *binderBinding) Bind(_ context.Context, _ *Invocation, value any) (ValueProvider, error) {
	binder, ok := value.(*Binder)
	if !ok || binder == nil {
		return nil, fmt.Errorf("expected %v, got %T", BinderType, value)
	}
	return &Constant{BinderType, binder, "Binder"}, nil
}

func (b *binderBinding) BindFromData(_ context.Context, inv *Invocation) (ValueProvider, error) {
	provider := b.core.Provider
	if provider == nil {
		provider = b.core
	}
	return &Constant{BinderType, NewBinder(inv, provider), "Binder"}, nil
}

var anyType = reflect.TypeFor[any]()
