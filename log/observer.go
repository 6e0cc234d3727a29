package log

import (
	"time"

	"github.com/go-logr/logr"
	"github.com/jobhost/bindings"
)

// observer logs the binding pipeline before forwarding
// to the next Metrics.
type observer struct {
	log  logr.Logger
	next bindings.Metrics
}

// Observe returns a bindings.Metrics logging every observation
// at verbosity.  Failures are always logged as errors.
func Observe(
	logger    logr.Logger,
	verbosity int,
	next      bindings.Metrics,
) bindings.Metrics {
	if next == nil {
		next = bindings.NopMetrics{}
	}
	return &observer{logger.V(verbosity), next}
}

func (o *observer) Bound(kind string, err error) {
	if err != nil {
		o.log.Error(err, "binding failed", "kind", kind)
	} else {
		o.log.Info("bound", "kind", kind)
	}
	o.next.Bound(kind, err)
}

func (o *observer) Invoked(function string, elapsed time.Duration, err error) {
	if err != nil {
		o.log.Error(err, "function failed", "function", function, "elapsed", elapsed)
	} else {
		o.log.Info("function succeeded", "function", function, "elapsed", elapsed)
	}
	o.next.Invoked(function, elapsed, err)
}

func (o *observer) Disposed(err error) {
	if err != nil {
		o.log.Error(err, "dispose failed")
	}
	o.next.Disposed(err)
}

func (o *observer) Transferred(direction string, bytes int64) {
	if bytes > 0 {
		o.log.Info("transferred", "direction", direction, "bytes", bytes)
	}
	o.next.Transferred(direction, bytes)
}
