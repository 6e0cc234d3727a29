// Package log builds the host loggers.
package log

import (
	"fmt"
	"io"
	"reflect"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
)

// Options configure the root logger.
type Options struct {
	Verbosity int
	// Json emits one json object per line.
	Json      bool
	Timestamp bool
}

// New returns a logger writing one line per entry to w.
func New(w io.Writer, options Options) logr.Logger {
	write := func(prefix, args string) {
		if prefix != "" {
			_, _ = fmt.Fprintf(w, "%s: %s\n", prefix, args)
		} else {
			_, _ = fmt.Fprintln(w, args)
		}
	}
	opts := funcr.Options{
		Verbosity:    options.Verbosity,
		LogTimestamp: options.Timestamp,
	}
	if options.Json {
		return funcr.NewJSON(func(obj string) {
			_, _ = fmt.Fprintln(w, obj)
		}, opts)
	}
	return funcr.New(write, opts)
}

// For returns root named after the type of v.
func For(root logr.Logger, v any) logr.Logger {
	if typ, ok := v.(reflect.Type); ok {
		return root.WithName(typ.String())
	}
	if v == nil {
		return root
	}
	return root.WithName(reflect.TypeOf(v).String())
}
