package bindings

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jobhost/bindings/attrs"
	"github.com/jobhost/bindings/metadata"
	"github.com/jobhost/bindings/static"
)

// Binder binds attributes while a function runs.  Values bound this
// way live as long as the invocation and are watched under the
// attribute's description.
type Binder struct {
	inv      *Invocation
	provider Provider
}

// NewBinder creates a Binder for inv.
func NewBinder(inv *Invocation, provider Provider) *Binder {
	return &Binder{inv, provider}
}

// Invocation returns the invocation the binder serves.
func (b *Binder) Invocation() *Invocation {
	return b.inv
}

// Bind binds attr as a value of typ.  A writable value receives
// its final state only if the function succeeds.
func (b *Binder) Bind(ctx context.Context, attr attrs.Attribute, typ reflect.Type) (any, error) {
	name := attr.String()
	param := metadata.Parameter{Name: name, Type: typ, Attributes: []any{attr}}
	sb, err := static.Bind(attr, param, b.inv.Names)
	if err != nil {
		return nil, err
	}
	if sb == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
	if _, ok := static.AsTrigger(sb); ok {
		return nil, fmt.Errorf("%w: %s is a trigger", ErrUnsupported, name)
	}
	binding, err := b.provider.Create(param, sb)
	if err != nil {
		return nil, err
	}
	if binding == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
	provider, err := protect(func() (ValueProvider, error) {
		return binding.BindFromData(ctx, b.inv)
	})
	if err == nil {
		err = b.inv.Register(name, provider)
	}
	b.inv.Observer().Bound(kindOf(sb), err)
	if err != nil {
		return nil, &BindingError{name, err}
	}
	value, err := provider.Value()
	if err != nil {
		return nil, &BindingError{name, err}
	}
	if vb, ok := provider.(ValueBinder); ok && vb.Capabilities().Has(CanWrite) {
		b.inv.Defer(name, vb, value)
	}
	return value, nil
}

// BindAs binds attr as a value of type T.
func BindAs[T any](ctx context.Context, b *Binder, attr attrs.Attribute) (T, error) {
	var zero T
	value, err := b.Bind(ctx, attr, reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	if value == nil {
		return zero, nil
	}
	t, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("%s bound %T, not %v", attr, value, reflect.TypeFor[T]())
	}
	return t, nil
}
