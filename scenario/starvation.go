package scenario

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Starvation runs readers in a relay, each one entering before the previous
// one leaves, so the lock never drains while a single writer waits in Lock.
//
// A reader-preferring lock keeps the writer out until the deadline stops the
// relay. With writer preference the next reader is refused as soon as the
// writer queues, the relay breaks and the writer gets in.
func (r *Runner) Starvation(ctx context.Context, cfg Config) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	if cfg.Readers < 2 {
		return Report{}, fmt.Errorf("%w: starvation needs at least 2 readers, got %d", ErrInvalidConfig, cfg.Readers)
	}

	mu := r.newLock("starvation", cfg)
	log := r.log.With(zap.String("scenario", "starvation"))

	var (
		entries  atomic.Int64
		refusals atomic.Int64
		waited   atomic.Int64
	)

	done := make(chan struct{})
	started := make(chan struct{})
	writerIn := make(chan struct{})

	// The baton carries the release channel of the reader currently inside.
	baton := make(chan chan struct{}, 1)
	baton <- nil

	reader := func(id int) error {
		first := id == 0
		for {
			select {
			case <-done:
				return nil
			default:
			}

			var prev chan struct{}
			select {
			case <-done:
				return nil
			case prev = <-baton:
			}

			released := false
			if mu.TryRLock() {
				entries.Add(1)
			} else {
				refusals.Add(1)
				log.Debug("reader refused", zap.Int("reader", id))
				if prev != nil {
					close(prev)
					released = true
				}
				mu.RLock()
				entries.Add(1)
			}

			mine := make(chan struct{})
			baton <- mine
			if prev != nil && !released {
				close(prev)
			}
			if first {
				close(started)
				first = false
			}

			r.hold(cfg.Hold)
			select {
			case <-mine:
			case <-done:
			}
			mu.RUnlock()
		}
	}

	start := r.clock.Now()
	g, gctx := errgroup.WithContext(ctx)

	// Reader 0 must take the first baton, so start it before the others.
	g.Go(func() error { return reader(0) })
	<-started
	for i := 1; i < cfg.Readers; i++ {
		i := i
		g.Go(func() error { return reader(i) })
	}

	g.Go(func() error {
		begin := r.clock.Now()
		mu.Lock()
		waited.Store(int64(r.clock.Since(begin)))
		close(writerIn)
		mu.Unlock()
		return nil
	})

	report := Report{Scenario: "starvation"}

	deadline := r.clock.After(cfg.Duration)
	select {
	case <-writerIn:
		report.WriterAdmitted = true
	case <-deadline:
		log.Info("deadline reached with writer still waiting")
	case <-gctx.Done():
	}
	close(done)

	if err := g.Wait(); err != nil {
		return report, err
	}

	report.ReaderEntries = entries.Load()
	report.ReaderRefusals = refusals.Load()
	report.WriterEntries = 1
	if report.WriterAdmitted {
		report.WriterWait = time.Duration(waited.Load())
	}
	report.Elapsed = r.clock.Since(start)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}
