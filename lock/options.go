package lock

import (
	"time"

	metrics "github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"
)

// FailureHandler receives contract violations from methods that cannot
// return an error. It may panic, exit, or record and return; if it returns,
// the failing call returns without having changed the lock state.
type FailureHandler func(*ContractError)

// Fatal returns the default FailureHandler: log the violation at Error
// level, then panic with it.
func Fatal(logger hclog.Logger) FailureHandler {
	return func(err *ContractError) {
		logger.Error("mutex contract violation", err.logArgs()...)
		panic(err)
	}
}

// Option configures a Mutex built with [New].
type Option func(*options)

// WithName names the mutex in logs, metrics, reports and the registry.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger. The mutex logs under a sub-logger named
// after the mutex.
func WithLogger(logger hclog.Logger) Option {
	return func(o *options) {
		o.logger = logger
		o.loggerSet = true
	}
}

// WithMetrics emits contention and hold-time metrics to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithFailureHandler replaces the default [Fatal] handler.
func WithFailureHandler(h FailureHandler) Option {
	return func(o *options) { o.onFailure = h }
}

// WithSiteTracking records the call stack of each outermost acquisition so
// violation reports can show where the holder took the lock. It costs a
// stack walk per acquisition; leave it off in production.
func WithSiteTracking(enabled bool) Option {
	return func(o *options) { o.trackSites = enabled }
}

// WithHoldWarning logs a warning when an outermost hold lasts longer than
// budget. Zero disables the check.
func WithHoldWarning(budget time.Duration) Option {
	return func(o *options) { o.holdWarning = budget }
}

// WithRegistry adds the mutex to r on construction and removes it on
// Close.
func WithRegistry(r *Registry) Option {
	return func(o *options) { o.registry = r }
}

type options struct {
	name        string
	logger      hclog.Logger
	loggerSet   bool
	metrics     *metrics.Metrics
	labels      []metrics.Label
	onFailure   FailureHandler
	trackSites  bool
	holdWarning time.Duration
	registry    *Registry
}

// defaults serves zero-value mutexes.
var defaults = mustOptions()

func mustOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	// A mutex that cannot report its own failures is not usable.
	if o.loggerSet && o.logger == nil {
		panic("reclock: WithLogger(nil)")
	}
	if o.holdWarning < 0 {
		panic("reclock: negative hold warning budget")
	}

	if o.logger == nil {
		o.logger = hclog.Default().Named("reclock")
	}
	if o.name != "" {
		o.logger = o.logger.Named(o.name)
		o.labels = []metrics.Label{{Name: "mutex", Value: o.name}}
	}
	if o.onFailure == nil {
		o.onFailure = Fatal(o.logger)
	}
	return o
}

// timed reports whether acquisitions need a start timestamp.
func (o *options) timed() bool {
	return o.metrics != nil || o.holdWarning > 0
}

var (
	keyContended = []string{"lock", "contended"}
	keyTryFailed = []string{"lock", "try_failed"}
	keyHeld      = []string{"lock", "held"}
)
