package scenario

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrExclusionViolated = errors.New("reader and writer were inside the lock together")

// probe counts who is inside the critical section.
type probe struct {
	readers    atomic.Int64
	writers    atomic.Int64
	violations atomic.Int64
}

func (p *probe) enterShared() {
	p.readers.Add(1)
	if p.writers.Load() != 0 {
		p.violations.Add(1)
	}
}

func (p *probe) leaveShared() {
	p.readers.Add(-1)
}

func (p *probe) enterExclusive() {
	if p.writers.Add(1) != 1 || p.readers.Load() != 0 {
		p.violations.Add(1)
	}
}

func (p *probe) leaveExclusive() {
	p.writers.Add(-1)
}

// Contention runs readers and writers against one lock until the deadline
// and checks that the lock never admits both kinds at once.
func (r *Runner) Contention(ctx context.Context, cfg Config) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}

	mu := r.newLock("contention", cfg)
	log := r.log.With(zap.String("scenario", "contention"))

	var (
		p        probe
		entries  atomic.Int64
		refusals atomic.Int64
		writes   atomic.Int64
	)

	done := make(chan struct{})
	stopped := func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}

	start := r.clock.Now()
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < cfg.Readers; i++ {
		g.Go(func() error {
			for !stopped() {
				if !mu.TryRLock() {
					refusals.Add(1)
					mu.RLock()
				}
				p.enterShared()
				entries.Add(1)
				r.hold(cfg.Hold)
				p.leaveShared()
				mu.RUnlock()
			}
			return nil
		})
	}

	for i := 0; i < cfg.Writers; i++ {
		g.Go(func() error {
			for !stopped() {
				mu.Lock()
				p.enterExclusive()
				writes.Add(1)
				r.hold(cfg.Hold)
				p.leaveExclusive()
				mu.Unlock()
			}
			return nil
		})
	}

	select {
	case <-r.clock.After(cfg.Duration):
	case <-gctx.Done():
	}
	close(done)

	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report := Report{
		Scenario:       "contention",
		ReaderEntries:  entries.Load(),
		ReaderRefusals: refusals.Load(),
		WriterEntries:  writes.Load(),
		Elapsed:        r.clock.Since(start),
	}

	if v := p.violations.Load(); v != 0 {
		log.Error("exclusion violated", zap.Int64("violations", v))
		return report, fmt.Errorf("%w: %d times", ErrExclusionViolated, v)
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}
