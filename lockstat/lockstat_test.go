package lockstat_test

import (
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"gitlab.com/slon/sharedmutex/lockstat"
	"gitlab.com/slon/sharedmutex/rwmutex"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m := lockstat.NewMetrics(reg)
	mu := m.Wrap("cache", rwmutex.New())

	mu.Lock()
	require.False(t, mu.TryLock())
	require.False(t, mu.TryRLock())
	mu.Unlock()

	mu.RLock()
	require.True(t, mu.TryRLock())
	require.False(t, mu.TryLock())

	expected := `
# HELP sharedmutex_acquisitions_total Successful lock acquisitions.
# TYPE sharedmutex_acquisitions_total counter
sharedmutex_acquisitions_total{lock="cache",mode="exclusive"} 1
sharedmutex_acquisitions_total{lock="cache",mode="shared"} 2
# HELP sharedmutex_readers Shared holders currently inside the lock.
# TYPE sharedmutex_readers gauge
sharedmutex_readers{lock="cache"} 2
# HELP sharedmutex_try_failures_total TryLock and TryRLock calls that did not get the lock.
# TYPE sharedmutex_try_failures_total counter
sharedmutex_try_failures_total{lock="cache",mode="exclusive"} 2
sharedmutex_try_failures_total{lock="cache",mode="shared"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"sharedmutex_acquisitions_total",
		"sharedmutex_readers",
		"sharedmutex_try_failures_total",
	))

	mu.RUnlock()
	mu.RUnlock()
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP sharedmutex_readers Shared holders currently inside the lock.
# TYPE sharedmutex_readers gauge
sharedmutex_readers{lock="cache"} 0
`), "sharedmutex_readers"))
}

type waitSample struct {
	Count uint64
	Sum   float64
}

// waitSamples returns the wait histogram keyed by "lock/mode".
func waitSamples(t *testing.T, reg *prometheus.Registry) map[string]waitSample {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	samples := make(map[string]waitSample)
	for _, mf := range families {
		if mf.GetName() != "sharedmutex_wait_seconds" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			h := metric.GetHistogram()
			samples[labels["lock"]+"/"+labels["mode"]] = waitSample{Count: h.GetSampleCount(), Sum: h.GetSampleSum()}
		}
	}
	return samples
}

func TestWaitHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := lockstat.NewMetrics(reg, lockstat.WithClock(clockwork.NewFakeClock()))
	a := m.Wrap("a", rwmutex.New())
	b := m.Wrap("b", rwmutex.New())

	a.Lock()
	a.Unlock()
	a.RLock()
	a.RUnlock()
	b.RLock()
	b.RUnlock()

	// Wrap creates both modes for every lock.
	n, err := testutil.GatherAndCount(reg, "sharedmutex_wait_seconds")
	require.NoError(t, err)
	require.Equal(t, 4, n)

	require.Equal(t, map[string]waitSample{
		"a/exclusive": {Count: 1},
		"a/shared":    {Count: 1},
		"b/exclusive": {},
		"b/shared":    {Count: 1},
	}, waitSamples(t, reg))
}

func TestWaitRecordsBlockedTime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := prometheus.NewRegistry()
	inner := rwmutex.New()
	mu := lockstat.NewMetrics(reg, lockstat.WithClock(clock)).Wrap("db", inner)

	mu.RLock()

	locked := make(chan struct{})
	go func() {
		mu.Lock()
		close(locked)
	}()

	// The writer has read the clock once it is queued on the inner lock.
	require.Eventually(t, func() bool { return inner.State().WaitingWriters == 1 }, 5*time.Second, time.Millisecond)
	clock.Advance(2 * time.Second)
	mu.RUnlock()
	<-locked
	mu.Unlock()

	samples := waitSamples(t, reg)
	require.Equal(t, waitSample{Count: 1, Sum: 2}, samples["db/exclusive"])
	require.Equal(t, waitSample{Count: 1}, samples["db/shared"])
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	lockstat.NewMetrics(reg)
	require.Panics(t, func() { lockstat.NewMetrics(reg) })
}
