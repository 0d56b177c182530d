// Package lockstat exports Prometheus metrics for reader/writer locks.
package lockstat

import (
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"gitlab.com/slon/sharedmutex/rwmutex"
)

// Values of the mode label.
const (
	ModeShared    = "shared"
	ModeExclusive = "exclusive"
)

// Metrics are the collectors shared by every wrapped lock.
type Metrics struct {
	clock clockwork.Clock

	wait         *prometheus.HistogramVec
	tryFailures  *prometheus.CounterVec
	acquisitions *prometheus.CounterVec
	readers      *prometheus.GaugeVec
}

// Option configures Metrics.
type Option func(*Metrics)

// WithClock sets the clock used to measure wait time.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Metrics) {
		m.clock = clock
	}
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer, opts ...Option) *Metrics {
	m := &Metrics{
		clock: clockwork.NewRealClock(),
		wait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sharedmutex",
			Name:      "wait_seconds",
			Help:      "Time spent blocked in Lock or RLock.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"lock", "mode"}),
		tryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sharedmutex",
			Name:      "try_failures_total",
			Help:      "TryLock and TryRLock calls that did not get the lock.",
		}, []string{"lock", "mode"}),
		acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sharedmutex",
			Name:      "acquisitions_total",
			Help:      "Successful lock acquisitions.",
		}, []string{"lock", "mode"}),
		readers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sharedmutex",
			Name:      "readers",
			Help:      "Shared holders currently inside the lock.",
		}, []string{"lock"}),
	}
	for _, opt := range opts {
		opt(m)
	}
	reg.MustRegister(m.wait, m.tryFailures, m.acquisitions, m.readers)
	return m
}

// Mutex is a rwmutex.Locker that reports to Metrics under a lock name.
type Mutex struct {
	mu    rwmutex.Locker
	clock clockwork.Clock

	waitShared, waitExclusive       prometheus.Observer
	failShared, failExclusive       prometheus.Counter
	acquireShared, acquireExclusive prometheus.Counter
	readers                         prometheus.Gauge
}

var _ rwmutex.Locker = (*Mutex)(nil)

// Wrap instruments mu as the lock called name. Series for both modes are
// created here, so they are exported before the first acquisition.
func (m *Metrics) Wrap(name string, mu rwmutex.Locker) *Mutex {
	return &Mutex{
		mu:               mu,
		clock:            m.clock,
		waitShared:       m.wait.WithLabelValues(name, ModeShared),
		waitExclusive:    m.wait.WithLabelValues(name, ModeExclusive),
		failShared:       m.tryFailures.WithLabelValues(name, ModeShared),
		failExclusive:    m.tryFailures.WithLabelValues(name, ModeExclusive),
		acquireShared:    m.acquisitions.WithLabelValues(name, ModeShared),
		acquireExclusive: m.acquisitions.WithLabelValues(name, ModeExclusive),
		readers:          m.readers.WithLabelValues(name),
	}
}

// Lock records how long the inner Lock blocked.
func (w *Mutex) Lock() {
	start := w.clock.Now()
	w.mu.Lock()
	w.waitExclusive.Observe(w.clock.Since(start).Seconds())
	w.acquireExclusive.Inc()
}

// TryLock counts a failure instead of waiting.
func (w *Mutex) TryLock() bool {
	if !w.mu.TryLock() {
		w.failExclusive.Inc()
		return false
	}
	w.acquireExclusive.Inc()
	return true
}

// Unlock releases the inner lock.
func (w *Mutex) Unlock() {
	w.mu.Unlock()
}

// RLock records how long the inner RLock blocked.
func (w *Mutex) RLock() {
	start := w.clock.Now()
	w.mu.RLock()
	w.waitShared.Observe(w.clock.Since(start).Seconds())
	w.acquireShared.Inc()
	w.readers.Inc()
}

// TryRLock counts a failure instead of waiting.
func (w *Mutex) TryRLock() bool {
	if !w.mu.TryRLock() {
		w.failShared.Inc()
		return false
	}
	w.acquireShared.Inc()
	w.readers.Inc()
	return true
}

// RUnlock drops the reader gauge before releasing.
func (w *Mutex) RUnlock() {
	w.readers.Dec()
	w.mu.RUnlock()
}
