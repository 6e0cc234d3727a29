// Package setup composes storage, providers and functions into a Host.
package setup

import (
	"container/list"
	"context"
	"fmt"
	"io"
	"maps"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"
	"github.com/jobhost/bindings"
	"github.com/jobhost/bindings/blobs"
	"github.com/jobhost/bindings/codec"
	"github.com/jobhost/bindings/index"
	"github.com/jobhost/bindings/metadata"
	"github.com/jobhost/bindings/names"
	"github.com/jobhost/bindings/queues"
	"github.com/jobhost/bindings/storage"
	"github.com/jobhost/bindings/tables"
	"github.com/jobhost/bindings/timers"
)

// Builder orchestrates the setup process.
type Builder struct {
	ctx       context.Context
	features  []Feature
	providers []bindings.Provider
	functions []metadata.Function
	manifests []string
	handlers  map[string]any
	types     *metadata.Types
	names     names.Chain
	accounts  storage.Accounts
	closers   []io.Closer
	log       logr.Logger
	console   io.Writer
	metrics   bindings.Metrics
	codec     []codec.Options
	strict    bool
	timeout   time.Duration
	tags      map[any]struct{}
}

// New returns a new Builder with initial Feature's.
func New(features ...Feature) *Builder {
	return &Builder{
		features: features,
		handlers: map[string]any{},
		accounts: storage.Accounts{},
		types:    types(),
		log:      logr.Discard(),
		console:  io.Discard,
	}
}

func (s *Builder) Features(features ...Feature) *Builder {
	s.features = append(s.features, features...)
	return s
}

// Providers adds runtime binding providers.  They are consulted
// before the built-in providers.
func (s *Builder) Providers(providers ...bindings.Provider) *Builder {
	s.providers = append(s.providers, providers...)
	return s
}

func (s *Builder) Functions(functions ...metadata.Function) *Builder {
	s.functions = append(s.functions, functions...)
	return s
}

// Manifest adds the functions declared in a YAML or HCL file.
// Each needs a handler registered under its name.
func (s *Builder) Manifest(path string) *Builder {
	if path != "" {
		s.manifests = append(s.manifests, path)
	}
	return s
}

// Handler registers the handler of a manifest function.
func (s *Builder) Handler(function string, handler any) *Builder {
	s.handlers[function] = handler
	return s
}

// Types returns the data types available to manifests.
func (s *Builder) Types() *metadata.Types {
	return s.types
}

// Names adds resolvers of %name% tokens, consulted in order
// before the environment.
func (s *Builder) Names(resolvers ...names.Resolver) *Builder {
	s.names = append(s.names, resolvers...)
	return s
}

// Account registers a storage account under a connection name.
// A non-nil closer is closed with the Host.
func (s *Builder) Account(connection string, account *storage.Account, closer io.Closer) *Builder {
	s.accounts[connection] = account
	if closer != nil {
		s.closers = append(s.closers, closer)
	}
	return s
}

// Accounts returns the registered storage accounts.
func (s *Builder) Accounts() storage.Accounts {
	return s.accounts
}

// Log returns the host logger.
func (s *Builder) Log() logr.Logger {
	return s.log
}

func (s *Builder) Logger(logger logr.Logger) *Builder {
	s.log = logger
	return s
}

// Console receives the output functions write through their invocation.
func (s *Builder) Console(w io.Writer) *Builder {
	if w != nil {
		s.console = w
	}
	return s
}

func (s *Builder) Metrics(metrics bindings.Metrics) *Builder {
	s.metrics = metrics
	return s
}

// Codec adds options to the serialization of blob, queue and table values.
func (s *Builder) Codec(options ...codec.Options) *Builder {
	s.codec = append(s.codec, options...)
	return s
}

// Strict fails functions whose route parameters may not resolve.
func (s *Builder) Strict(strict bool) *Builder {
	s.strict = strict
	return s
}

// Timeout bounds each function handler when positive.
func (s *Builder) Timeout(timeout time.Duration) *Builder {
	s.timeout = timeout
	return s
}

// Context returns the context the Host is built with.
func (s *Builder) Context() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// Tag reports if tag was not seen before, recording it.
// Features use it to install once.
func (s *Builder) Tag(tag any) bool {
	if tags := s.tags; tags == nil {
		s.tags = map[any]struct{}{tag: {}}
		return true
	} else if _, found := tags[tag]; !found {
		tags[tag] = struct{}{}
		return true
	}
	return false
}

// Host installs the features, indexes every function and binds
// it at runtime.  Functions that fail are reported together and
// no Host is returned.
func (s *Builder) Host(ctx context.Context) (*Host, error) {
	s.ctx = ctx
	if err := s.installGraph(s.features); err != nil {
		return nil, s.abort(err)
	}

	functions, err := s.load()
	if err != nil {
		return nil, s.abort(err)
	}

	resolver := append(append(names.Chain{}, s.names...), names.Env)
	indexer := &index.Indexer{
		Names:      resolver,
		BinderType: bindings.BinderType,
		Strict:     s.strict,
		Log:        s.log.WithName("index"),
	}
	indexed, err := indexer.IndexAll(functions)
	if err != nil {
		return nil, s.abort(err)
	}

	provider := s.provider()
	host := &Host{
		byName:   make(map[string]*bindings.FunctionBinding, len(indexed)),
		executor: &bindings.Executor{Timeout: s.timeout},
		accounts: maps.Clone(s.accounts),
		names:    resolver,
		log:      s.log,
		console:  s.console,
		metrics:  s.metrics,
		closers:  s.closers,
	}
	var bindErr error
	for _, fn := range indexed {
		fb, err := bindings.NewFunctionBinding(fn, provider)
		if err != nil {
			bindErr = multierror.Append(bindErr, err)
			continue
		}
		host.functions = append(host.functions, fb)
		host.byName[fn.Name] = fb
	}
	if bindErr != nil {
		return nil, s.abort(bindErr)
	}
	s.log.V(1).Info("host built", "functions", len(host.functions), "accounts", len(host.accounts))
	return host, nil
}

// provider returns the custom providers followed by the built-in ones.
// Payloads are indented unless the codec options say otherwise.
func (s *Builder) provider() bindings.Providers {
	opts := codec.Merge(append([]codec.Options{codec.Pretty}, s.codec...)...)
	core := &bindings.Core{}
	providers := append(bindings.Providers{}, s.providers...)
	providers = append(providers,
		&blobs.Provider{Codec: opts},
		&queues.Provider{Codec: opts},
		&tables.Provider{Codec: opts},
		&timers.Provider{},
		core)
	core.Provider = providers
	return providers
}

func (s *Builder) load() ([]metadata.Function, error) {
	functions := append([]metadata.Function(nil), s.functions...)
	var err error
	for _, path := range s.manifests {
		declared, le := metadata.LoadFile(path, s.types)
		if le != nil {
			err = multierror.Append(err, le)
			continue
		}
		for _, fn := range declared {
			handler, ok := s.handlers[fn.Name]
			if !ok {
				err = multierror.Append(err, fmt.Errorf("%s: function %q has no handler", path, fn.Name))
				continue
			}
			bound, he := fn.WithHandler(handler)
			if he != nil {
				err = multierror.Append(err, he)
				continue
			}
			functions = append(functions, bound)
		}
	}
	return functions, err
}

func (s *Builder) installGraph(features []Feature) (err error) {
	// traverse level-order so overrides can be applied in any order
	queue := list.New()
	for _, feature := range features {
		if feature != nil {
			queue.PushBack(feature)
		}
	}
	for queue.Len() > 0 {
		front := queue.Front()
		queue.Remove(front)
		feature := front.Value.(Feature)
		if dependsOn, ok := feature.(interface {
			DependsOn() []Feature
		}); ok {
			for _, dep := range dependsOn.DependsOn() {
				if dep != nil {
					queue.PushBack(dep)
				}
			}
		}
		if ie := feature.Install(s); ie != nil {
			err = multierror.Append(err, ie)
		}
	}
	return err
}

// abort closes what features opened.
func (s *Builder) abort(err error) error {
	for _, c := range s.closers {
		if ce := c.Close(); ce != nil {
			err = multierror.Append(err, ce)
		}
	}
	s.closers = nil
	return err
}

func types() *metadata.Types {
	t := metadata.NewTypes()
	t.Register("table", tables.TableType)
	t.Register("timerInfo", timers.TimerInfoType)
	t.Register("binder", bindings.BinderType)
	metadata.RegisterFor[*queues.Collector](t, "collector")
	return t
}
