package bindings

import "time"

// Metrics observes the binding pipeline.
type Metrics interface {
	// Bound records the outcome of binding one parameter.
	Bound(kind string, err error)
	// Invoked records a completed invocation.
	Invoked(function string, elapsed time.Duration, err error)
	// Disposed records the outcome of disposing an invocation scope.
	Disposed(err error)
	// Transferred records bytes read or written by a watched stream.
	Transferred(direction string, bytes int64)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) Bound(string, error)                  {}
func (NopMetrics) Invoked(string, time.Duration, error) {}
func (NopMetrics) Disposed(error)                       {}
func (NopMetrics) Transferred(string, int64)            {}

