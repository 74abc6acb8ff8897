package coordinator

import (
	"time"

	"github.com/tactix-ai/tactix/internal/validation"
	"github.com/tactix-ai/tactix/pkg/models"
)

// DefaultQuorum is the number of agents a consensus vote dispatches to.
const DefaultQuorum = 3

// defaultTimeouts maps request complexity to per-dispatch timeouts.
var defaultTimeouts = map[models.Complexity]time.Duration{
	models.ComplexitySimple:  30 * time.Second,
	models.ComplexityMedium:  60 * time.Second,
	models.ComplexityComplex: 2 * time.Minute,
	models.ComplexityExpert:  4 * time.Minute,
}

// Option configures a Coordinator. Use With* functions to create Options.
type Option func(*coordinatorOptions)

// coordinatorOptions holds all optional configuration.
type coordinatorOptions struct {
	globalConcurrency int
	quorum            int
	timeouts          map[models.Complexity]time.Duration
	pipeline          *validation.Pipeline
	maxCorrections    int
	reliability       ReliabilitySource
	emitter           *EventEmitter
	debugLog          func(format string, args ...interface{})
	acquireWait       time.Duration
}

func defaultOptions() *coordinatorOptions {
	return &coordinatorOptions{
		globalConcurrency: 8,
		quorum:            DefaultQuorum,
		timeouts:          defaultTimeouts,
		maxCorrections:    validation.DefaultMaxCorrectionAttempts,
		debugLog:          func(format string, args ...interface{}) {},
		acquireWait:       25 * time.Millisecond,
	}
}

// WithGlobalConcurrency sets the global in-flight dispatch ceiling across
// all tasks of a graph.
func WithGlobalConcurrency(n int) Option {
	return func(o *coordinatorOptions) {
		if n > 0 {
			o.globalConcurrency = n
		}
	}
}

// WithQuorum sets the number of agents a consensus vote uses. Values
// below 3 are raised to 3.
func WithQuorum(k int) Option {
	return func(o *coordinatorOptions) {
		if k < DefaultQuorum {
			k = DefaultQuorum
		}
		o.quorum = k
	}
}

// WithTimeouts overrides the complexity-to-timeout table.
func WithTimeouts(timeouts map[models.Complexity]time.Duration) Option {
	return func(o *coordinatorOptions) {
		if len(timeouts) > 0 {
			o.timeouts = timeouts
		}
	}
}

// WithValidation wires a validation pipeline into dispatch: every produced
// artifact must pass it, with up to maxCorrections correction attempts.
func WithValidation(pipeline *validation.Pipeline, maxCorrections int) Option {
	return func(o *coordinatorOptions) {
		o.pipeline = pipeline
		if maxCorrections > 0 {
			o.maxCorrections = maxCorrections
		}
	}
}

// WithReliability sets the historical reliability source consulted by the
// adaptive strategy.
func WithReliability(source ReliabilitySource) Option {
	return func(o *coordinatorOptions) { o.reliability = source }
}

// WithEventEmitter sets the emitter for lifecycle events.
func WithEventEmitter(emitter *EventEmitter) Option {
	return func(o *coordinatorOptions) { o.emitter = emitter }
}

// WithDebugLogger sets a debug logging function.
func WithDebugLogger(fn func(format string, args ...interface{})) Option {
	return func(o *coordinatorOptions) {
		if fn != nil {
			o.debugLog = fn
		}
	}
}

// WithAcquireWait sets the poll interval used while waiting for a busy
// pool to free an agent. Mainly for tests.
func WithAcquireWait(d time.Duration) Option {
	return func(o *coordinatorOptions) {
		if d > 0 {
			o.acquireWait = d
		}
	}
}
