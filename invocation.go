package bindings

import (
	"context"
	"io"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/jobhost/bindings/bindingdata"
	"github.com/jobhost/bindings/blobpath"
	"github.com/jobhost/bindings/names"
	"github.com/jobhost/bindings/storage"
)

type (
	// BlobWrittenNotifier is told of every blob a function writes.
	BlobWrittenNotifier interface {
		BlobWritten(ctx context.Context, path blobpath.Path)
	}

	// BlobWrittenFunc adapts a function to a BlobWrittenNotifier.
	BlobWrittenFunc func(ctx context.Context, path blobpath.Path)

	// Invocation is the context of a single function invocation.
	// It is created before binding and discarded once the scope
	// is disposed.
	Invocation struct {
		Id       uuid.UUID
		Function string
		Data     bindingdata.Data
		Names    names.Resolver
		Accounts storage.Accounts
		Log      logr.Logger
		Console  io.Writer
		Notifier BlobWrittenNotifier
		Metrics  Metrics
		Scope    *Scope
		Watch    *WatchLog

		lock    sync.Mutex
		pending []pendingOutput
	}

	pendingOutput struct {
		name   string
		binder ValueBinder
		value  any
	}
)

func (f BlobWrittenFunc) BlobWritten(ctx context.Context, path blobpath.Path) {
	f(ctx, path)
}

// NewInvocation creates an Invocation of function with a new id.
func NewInvocation(function string, accounts storage.Accounts) *Invocation {
	id := uuid.New()
	return &Invocation{
		Id:       id,
		Function: function,
		Accounts: accounts,
		Log:      logr.Discard(),
		Console:  io.Discard,
		Metrics:  NopMetrics{},
		Scope:    &Scope{},
		Watch:    &WatchLog{},
	}
}

// BlobWritten notifies the invocation's notifier, if any.
func (inv *Invocation) BlobWritten(ctx context.Context, path blobpath.Path) {
	if inv.Notifier != nil {
		inv.Notifier.BlobWritten(ctx, path)
	}
}

// Register adds the disposable and watchable capabilities
// of provider to the scope and watch log.
func (inv *Invocation) Register(name string, provider ValueProvider) error {
	caps := provider.Capabilities()
	if caps.Has(CanWatch) {
		if w, ok := provider.(Watchable); ok {
			inv.Watch.Add(name, w.Watcher())
		}
	}
	if caps.Has(CanDispose) {
		if d, ok := provider.(Disposable); ok {
			return inv.Scope.Add(d)
		}
	}
	return nil
}

// Defer holds value for binder until the handler succeeds.
func (inv *Invocation) Defer(name string, binder ValueBinder, value any) {
	inv.lock.Lock()
	defer inv.lock.Unlock()
	inv.pending = append(inv.pending, pendingOutput{name, binder, value})
}

// Commit stores the deferred values in the order they were bound.
// It stops at the first failure.
func (inv *Invocation) Commit(ctx context.Context) error {
	inv.lock.Lock()
	pending := inv.pending
	inv.pending = nil
	inv.lock.Unlock()
	for _, out := range pending {
		if err := out.binder.SetValue(ctx, out.value); err != nil {
			return &BindingError{out.name, err}
		}
	}
	return nil
}

// Logger returns the invocation logger or a discarding one.
func (inv *Invocation) Logger() logr.Logger {
	if inv.Log.GetSink() == nil {
		return logr.Discard()
	}
	return inv.Log
}

// Observer returns the invocation metrics or a discarding one.
func (inv *Invocation) Observer() Metrics {
	if inv.Metrics == nil {
		return NopMetrics{}
	}
	return inv.Metrics
}
