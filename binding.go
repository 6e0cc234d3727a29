package bindings

import (
	"context"

	"github.com/jobhost/bindings/bindingdata"
	"github.com/jobhost/bindings/metadata"
	"github.com/jobhost/bindings/static"
)

type (
	// Binding produces the value provider of one parameter
	// for each invocation.
	Binding interface {
		Static() static.Binding
		// Bind binds a value supplied by the caller.
		Bind(ctx context.Context, inv *Invocation, value any) (ValueProvider, error)
		// BindFromData binds using the invocation's binding data.
		BindFromData(ctx context.Context, inv *Invocation) (ValueProvider, error)
	}

	// TriggerBinding is the Binding of the parameter that
	// started the function.
	TriggerBinding interface {
		Binding
		// BindTrigger binds the trigger value and extracts the
		// binding data it produces for the other parameters.
		BindTrigger(ctx context.Context, inv *Invocation, value any) (ValueProvider, bindingdata.Data, error)
	}

	// Provider creates runtime bindings from static ones.
	// A Provider that does not support a binding returns nil.
	Provider interface {
		Create(param metadata.Parameter, binding static.Binding) (Binding, error)
	}

	// ProviderFunc adapts a function to a Provider.
	ProviderFunc func(param metadata.Parameter, binding static.Binding) (Binding, error)

	// Providers tries each Provider in order.
	Providers []Provider
)

func (f ProviderFunc) Create(param metadata.Parameter, binding static.Binding) (Binding, error) {
	return f(param, binding)
}

func (p Providers) Create(param metadata.Parameter, binding static.Binding) (Binding, error) {
	for _, provider := range p {
		if b, err := provider.Create(param, binding); err != nil || b != nil {
			return b, err
		}
	}
	return nil, nil
}
