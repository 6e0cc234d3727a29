package setup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"
	"github.com/jobhost/bindings"
	"github.com/jobhost/bindings/blobpath"
	"github.com/jobhost/bindings/index"
	"github.com/jobhost/bindings/internal/slices"
	"github.com/jobhost/bindings/names"
	"github.com/jobhost/bindings/static"
	"github.com/jobhost/bindings/storage"
	"github.com/jobhost/bindings/timers"
)

type (
	// Host runs the functions of a Builder.
	Host struct {
		functions []*bindings.FunctionBinding
		byName    map[string]*bindings.FunctionBinding
		executor  *bindings.Executor
		accounts  storage.Accounts
		names     names.Resolver
		log       logr.Logger
		console   io.Writer
		metrics   bindings.Metrics
		closers   []io.Closer
		closeOnce sync.Once
	}

	// QueueMessage is a message received from a queue.
	QueueMessage struct {
		Queue   string
		Message *storage.Message
	}

	// written collects the blobs functions write during a dispatch.
	written struct {
		lock  sync.Mutex
		paths []blobpath.Path
	}
)

var (
	ErrUnknownFunction = errors.New("unknown function")
	ErrUnknownTrigger  = errors.New("unsupported trigger")
)

// Functions returns the indexed functions.
func (h *Host) Functions() []*index.Function {
	return slices.Map[*bindings.FunctionBinding, *index.Function](h.functions,
		func(fb *bindings.FunctionBinding) *index.Function { return fb.Function })
}

// Accounts returns the storage accounts functions bind to.
func (h *Host) Accounts() storage.Accounts {
	return h.accounts
}

// Call invokes a function by name.  A trigger value, if any, is
// supplied under the trigger parameter's name.
func (h *Host) Call(
	ctx      context.Context,
	function string,
	supplied map[string]any,
) (*bindings.Result, error) {
	fb, ok := h.byName[function]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, function)
	}
	return h.execute(ctx, fb, supplied, nil)
}

// Dispatch invokes the functions triggered by trigger: a blob path,
// a QueueMessage or a timers.Tick for every timer.  Blobs written by
// the invoked functions trigger further functions, once per path.
func (h *Host) Dispatch(ctx context.Context, trigger any) ([]*bindings.Result, error) {
	switch t := trigger.(type) {
	case blobpath.Path:
		return h.DispatchBlob(ctx, t)
	case QueueMessage:
		return h.DispatchQueue(ctx, t.Queue, t.Message)
	case *QueueMessage:
		return h.DispatchQueue(ctx, t.Queue, t.Message)
	case timers.Tick:
		return h.dispatchTimers(ctx, t, func(*static.Timer) bool { return true })
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownTrigger, trigger)
}

// DispatchBlob invokes every function whose blob trigger matches path.
// Candidates are selected by matching from the end of the path.
func (h *Host) DispatchBlob(ctx context.Context, path blobpath.Path) ([]*bindings.Result, error) {
	var (
		results []*bindings.Result
		errs    error
		seen    = map[string]struct{}{}
		pending = []blobpath.Path{path}
	)
	for len(pending) > 0 && ctx.Err() == nil {
		next := pending[0]
		pending = pending[1:]
		key := next.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		for _, fb := range h.functions {
			blob, ok := fb.Function.Trigger.(*static.Blob)
			if !ok {
				continue
			}
			if _, ok := blob.Pattern.Match(key); !ok {
				continue
			}
			w := &written{}
			result, err := h.execute(ctx, fb, map[string]any{blob.Param: next}, w)
			results = append(results, result)
			if err != nil {
				errs = multierror.Append(errs, err)
			}
			pending = append(pending, w.drain()...)
		}
	}
	if err := ctx.Err(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return results, errs
}

// DispatchQueue invokes every function triggered by queue with msg.
func (h *Host) DispatchQueue(
	ctx   context.Context,
	queue string,
	msg   *storage.Message,
) ([]*bindings.Result, error) {
	if msg == nil {
		return nil, fmt.Errorf("queue %s: no message", queue)
	}
	var (
		results []*bindings.Result
		errs    error
		paths   []blobpath.Path
	)
	for _, fb := range h.queueFunctions(queue) {
		q := fb.Function.Trigger.(*static.Queue)
		w := &written{}
		result, err := h.execute(ctx, fb, map[string]any{q.Param: msg}, w)
		results = append(results, result)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		paths = append(paths, w.drain()...)
	}
	for _, path := range paths {
		more, err := h.DispatchBlob(ctx, path)
		results = append(results, more...)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return results, errs
}

// Poll dequeues one message for each function triggered by queue
// and dispatches it to that function.
func (h *Host) Poll(ctx context.Context, queue string) ([]*bindings.Result, error) {
	var (
		results []*bindings.Result
		errs    error
	)
	for _, fb := range h.queueFunctions(queue) {
		q := fb.Function.Trigger.(*static.Queue)
		queues, err := h.accounts.Queues(q.Connection)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		msg, ok, err := queues.Dequeue(ctx, q.QueueName)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		result, err := h.execute(ctx, fb, map[string]any{q.Param: msg}, nil)
		results = append(results, result)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return results, errs
}

// Startup fires the timers that run when the host starts.
func (h *Host) Startup(ctx context.Context) ([]*bindings.Result, error) {
	now := time.Now()
	return h.dispatchTimers(ctx, timers.Tick{Fired: now},
		func(t *static.Timer) bool { return t.RunOnStartup })
}

// Close closes the storage opened by the Builder.
func (h *Host) Close() (err error) {
	h.closeOnce.Do(func() {
		for i := len(h.closers) - 1; i >= 0; i-- {
			if ce := h.closers[i].Close(); ce != nil {
				err = multierror.Append(err, ce)
			}
		}
	})
	return
}

func (h *Host) dispatchTimers(
	ctx    context.Context,
	tick   timers.Tick,
	accept func(*static.Timer) bool,
) ([]*bindings.Result, error) {
	var (
		results []*bindings.Result
		errs    error
	)
	for _, fb := range h.functions {
		timer, ok := fb.Function.Trigger.(*static.Timer)
		if !ok || !accept(timer) {
			continue
		}
		result, err := h.execute(ctx, fb, map[string]any{timer.Param: tick}, nil)
		results = append(results, result)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return results, errs
}

func (h *Host) queueFunctions(queue string) []*bindings.FunctionBinding {
	queue = strings.ToLower(queue)
	return slices.Filter(h.functions, func(fb *bindings.FunctionBinding) bool {
		q, ok := fb.Function.Trigger.(*static.Queue)
		return ok && q.QueueName == queue
	})
}

func (h *Host) execute(
	ctx      context.Context,
	fb       *bindings.FunctionBinding,
	supplied map[string]any,
	w        *written,
) (*bindings.Result, error) {
	inv := bindings.NewInvocation(fb.Function.Name, h.accounts)
	inv.Names = h.names
	inv.Log = h.log.WithName(fb.Function.Name)
	inv.Console = h.console
	if h.metrics != nil {
		inv.Metrics = h.metrics
	}
	if w != nil {
		inv.Notifier = w
	}
	return h.executor.Execute(ctx, fb, inv, supplied)
}

func (w *written) BlobWritten(_ context.Context, path blobpath.Path) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.paths = append(w.paths, path)
}

func (w *written) drain() []blobpath.Path {
	w.lock.Lock()
	defer w.lock.Unlock()
	paths := w.paths
	w.paths = nil
	return paths
}
