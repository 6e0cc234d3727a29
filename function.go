package bindings

import (
	"context"
	"fmt"
	"reflect"

	"github.com/hashicorp/go-multierror"
	"github.com/jobhost/bindings/bindingdata"
	"github.com/jobhost/bindings/index"
	"github.com/jobhost/bindings/static"
)

type (
	// FunctionBinding holds the runtime bindings of an indexed function.
	FunctionBinding struct {
		Function *index.Function
		Trigger  TriggerBinding
		Bindings []Binding
	}

	// Argument is a bound parameter.
	Argument struct {
		Name     string
		Provider ValueProvider
	}

	// Arguments are the bound parameters of one invocation, in order.
	Arguments []Argument
)

// NewFunctionBinding creates the runtime bindings of fn.
func NewFunctionBinding(fn *index.Function, provider Provider) (*FunctionBinding, error) {
	fb := &FunctionBinding{Function: fn, Bindings: make([]Binding, len(fn.Bindings))}
	for i, sb := range fn.Bindings {
		param := fn.Parameters[i]
		b, err := provider.Create(param, sb)
		if err != nil {
			return nil, &index.Error{Function: fn.Name, Reason: &BindingError{param.Name, err}}
		}
		if b == nil {
			return nil, &index.Error{Function: fn.Name, Reason: &BindingError{
				param.Name, fmt.Errorf("%w: %s", ErrUnsupported, sb)}}
		}
		if sb == static.Binding(fn.Trigger) {
			trigger, ok := b.(TriggerBinding)
			if !ok {
				return nil, &index.Error{Function: fn.Name, Reason: &BindingError{
					param.Name, fmt.Errorf("%w: %s cannot start a function", ErrUnsupported, sb)}}
			}
			fb.Trigger = trigger
		}
		fb.Bindings[i] = b
	}
	return fb, nil
}

// Bind binds every parameter in declaration order.  The trigger value,
// when present, is supplied under the trigger parameter's name and its
// binding data is merged into the invocation before any other parameter
// binds.  Values supplied for named parameters are binding data too and
// replace trigger data of the same name.  Supplied values bind directly,
// the rest from binding data.  Parameters that fail bind to an
// ErrorProvider.
func (fb *FunctionBinding) Bind(
	ctx      context.Context,
	inv      *Invocation,
	supplied map[string]any,
) Arguments {
	args := make(Arguments, len(fb.Bindings))
	var triggerAt = -1
	if fb.Trigger != nil {
		triggerAt = 0
		param := fb.Function.Parameters[0]
		provider, err := fb.bindTrigger(ctx, inv, param.Name, supplied)
		args[0] = fb.register(inv, 0, provider, err)
	}
	if named := fb.named(supplied); len(named) > 0 {
		if merged, err := bindingdata.Merge(inv.Data, named); err == nil {
			inv.Data = merged
		}
	}
	for i, b := range fb.Bindings {
		if i == triggerAt {
			continue
		}
		name := fb.Function.Parameters[i].Name
		provider, err := protect(func() (ValueProvider, error) {
			if value, ok := supplied[name]; ok {
				return b.Bind(ctx, inv, value)
			}
			return b.BindFromData(ctx, inv)
		})
		args[i] = fb.register(inv, i, provider, err)
	}
	return args
}

func (fb *FunctionBinding) bindTrigger(
	ctx      context.Context,
	inv      *Invocation,
	name     string,
	supplied map[string]any,
) (ValueProvider, error) {
	value, ok := supplied[name]
	if !ok {
		return nil, ErrNoTriggerValue
	}
	var data bindingdata.Data
	provider, err := protect(func() (p ValueProvider, err error) {
		p, data, err = fb.Trigger.BindTrigger(ctx, inv, value)
		return
	})
	if err == nil && len(data) > 0 {
		merged, mergeErr := bindingdata.Merge(inv.Data, data)
		if mergeErr != nil {
			return nil, mergeErr
		}
		inv.Data = merged
	}
	return provider, err
}

func (fb *FunctionBinding) named(supplied map[string]any) bindingdata.Data {
	entries := make(map[string]any)
	for i, b := range fb.Function.Bindings {
		if _, ok := b.(*static.Name); !ok {
			continue
		}
		name := fb.Function.Parameters[i].Name
		if value, ok := supplied[name]; ok && value != nil {
			entries[name] = value
		}
	}
	return bindingdata.New(entries)
}

func (fb *FunctionBinding) register(inv *Invocation, i int, provider ValueProvider, err error) Argument {
	param := fb.Function.Parameters[i]
	kind := kindOf(fb.Function.Bindings[i])
	if err == nil && provider == nil {
		err = fmt.Errorf("%s produced no value", fb.Function.Bindings[i])
	}
	if err == nil {
		err = inv.Register(param.Name, provider)
	}
	inv.Observer().Bound(kind, err)
	if err != nil {
		inv.Logger().Error(err, "parameter binding failed",
			"function", fb.Function.Name, "parameter", param.Name, "binding", kind)
		return Argument{param.Name, NewErrorProvider(param.Name, param.Type, err)}
	}
	inv.Logger().V(1).Info("bound parameter",
		"function", fb.Function.Name, "parameter", param.Name, "value", provider.InvokeString())
	return Argument{param.Name, provider}
}

// Err returns the failures of the arguments: nil, the single
// BindingError, or a multierror of all of them.
func (args Arguments) Err() error {
	var errs []error
	for _, arg := range args {
		if ep, ok := arg.Provider.(*ErrorProvider); ok {
			errs = append(errs, ep.Err)
		}
	}
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	return multierror.Append(nil, errs...)
}

// Values returns the argument values in order.
func (args Arguments) Values() ([]any, error) {
	values := make([]any, len(args))
	for i, arg := range args {
		value, err := arg.Provider.Value()
		if err != nil {
			return nil, &BindingError{arg.Name, err}
		}
		values[i] = value
	}
	return values, nil
}

// InvokeStrings maps each parameter to the description of its value.
func (args Arguments) InvokeStrings() map[string]string {
	strs := make(map[string]string, len(args))
	for _, arg := range args {
		strs[arg.Name] = arg.Provider.InvokeString()
	}
	return strs
}

func protect(bind func() (ValueProvider, error)) (provider ValueProvider, err error) {
	defer func() {
		if r := recover(); r != nil {
			provider, err = nil, &PanicError{r}
		}
	}()
	return bind()
}

func kindOf(b static.Binding) string {
	typ := reflect.TypeOf(b)
	if typ == nil {
		return ""
	}
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	return typ.Name()
}
