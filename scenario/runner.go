// Package scenario puts reader/writer locks under load and reports on
// starvation and exclusion.
package scenario

import (
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"gitlab.com/slon/sharedmutex/lockstat"
	"gitlab.com/slon/sharedmutex/rwmutex"
)

type Runner struct {
	log     *zap.Logger
	clock   clockwork.Clock
	metrics *lockstat.Metrics
}

type Option func(*Runner)

func WithClock(clock clockwork.Clock) Option {
	return func(r *Runner) {
		r.clock = clock
	}
}

// WithMetrics reports every lock the runner creates to m.
func WithMetrics(m *lockstat.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

func NewRunner(log *zap.Logger, opts ...Option) *Runner {
	r := &Runner{
		log:   log,
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) newLock(name string, cfg Config) rwmutex.Locker {
	var opts []rwmutex.Option
	if cfg.WriterPreference {
		opts = append(opts, rwmutex.WithWriterPreference())
	}

	var mu rwmutex.Locker = rwmutex.New(opts...)
	if r.metrics != nil {
		mu = r.metrics.Wrap(name, mu)
	}
	return mu
}

// hold keeps the caller inside the critical section for d.
func (r *Runner) hold(d time.Duration) {
	if d > 0 {
		r.clock.Sleep(d)
	}
}
