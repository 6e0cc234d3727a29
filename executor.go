package bindings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

type (
	// Result describes a completed invocation.
	Result struct {
		Id        uuid.UUID
		Function  string
		Arguments map[string]string
		Status    string
		Started   time.Time
		Elapsed   time.Duration
		Err       error
	}

	// Executor binds and invokes functions.
	Executor struct {
		// Timeout bounds the handler when positive.
		Timeout time.Duration
	}
)

// Execute binds the parameters of fb, invokes the handler, stores
// the values the handler left in writable arguments in declaration
// order followed by those bound at runtime, snapshots the watch log and disposes the invocation scope.
// The handler is not invoked when any parameter failed to bind.
// The returned error is also recorded in the Result.
func (e *Executor) Execute(
	ctx      context.Context,
	fb       *FunctionBinding,
	inv      *Invocation,
	supplied map[string]any,
) (result *Result, err error) {
	result = &Result{Id: inv.Id, Function: fb.Function.Name, Started: time.Now()}
	log := inv.Logger().WithValues("function", fb.Function.Name, "id", inv.Id)
	log.V(1).Info("executing function")

	args := fb.Bind(ctx, inv, supplied)
	result.Arguments = args.InvokeStrings()
	defer func() {
		disposeErr := inv.Scope.Dispose()
		inv.Observer().Disposed(disposeErr)
		if disposeErr != nil {
			log.Error(disposeErr, "disposing invocation scope failed")
			if err == nil {
				err = disposeErr
			} else {
				err = multierror.Append(err, disposeErr)
			}
		}
		result.Elapsed = time.Since(result.Started)
		result.Err = err
		inv.Observer().Invoked(fb.Function.Name, result.Elapsed, err)
		if err != nil {
			log.Error(err, "function failed")
		} else {
			log.V(1).Info("function completed", "elapsed", result.Elapsed)
		}
	}()

	if err = args.Err(); err != nil {
		return
	}
	values, err := args.Values()
	if err != nil {
		return
	}
	if err = e.invoke(ctx, fb, values); err != nil {
		result.Status = inv.Watch.Status()
		return
	}
	for i, arg := range args {
		if vb, ok := arg.Provider.(ValueBinder); ok && vb.Capabilities().Has(CanWrite) {
			if err = vb.SetValue(ctx, values[i]); err != nil {
				err = &BindingError{arg.Name, err}
				break
			}
		}
	}
	if err == nil {
		err = inv.Commit(ctx)
	}
	result.Status = inv.Watch.Status()
	return
}

func (e *Executor) invoke(ctx context.Context, fb *FunctionBinding, values []any) error {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	return fb.Function.Handler(ctx, values)
}
