package application

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultRequestsPerMinute is the completion call ceiling when none is configured.
const DefaultRequestsPerMinute = 6

const pairWindow = time.Minute

// clock abstracts time for the pacer so tests can run without sleeping.
type clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Pacer spaces completion calls at a fixed interval derived from a
// requests-per-minute ceiling. It can also cap the question/answer pairs
// requested per minute. The first call is never delayed.
type Pacer struct {
	mu             sync.Mutex
	clock          clock
	interval       time.Duration
	pairsPerMinute int

	last        time.Time
	windowStart time.Time
	windowPairs int
}

// NewPacer creates a Pacer allowing requestsPerMinute calls per minute. A
// value of zero or less uses DefaultRequestsPerMinute.
func NewPacer(requestsPerMinute int) *Pacer {
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	return &Pacer{
		clock:    realClock{},
		interval: time.Minute / time.Duration(requestsPerMinute),
	}
}

// WithPairBudget caps the pairs requested per rolling minute window. Zero
// disables the cap.
func (p *Pacer) WithPairBudget(pairsPerMinute int) *Pacer {
	p.pairsPerMinute = max(pairsPerMinute, 0)
	return p
}

// Interval returns the fixed delay between calls.
func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// Wait blocks until a call requesting pairs question/answer pairs may start,
// or ctx is done.
func (p *Pacer) Wait(ctx context.Context, pairs int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pairsPerMinute > 0 {
		now := p.clock.Now()
		if p.windowStart.IsZero() || now.Sub(p.windowStart) >= pairWindow {
			p.windowStart = now
			p.windowPairs = 0
		}
		if p.windowPairs > 0 && p.windowPairs+pairs > p.pairsPerMinute {
			wait := pairWindow - now.Sub(p.windowStart)
			slog.Info("pair budget reached, waiting for next window", "wait", wait.Round(time.Second), "budget", p.pairsPerMinute)
			if err := p.clock.Sleep(ctx, wait); err != nil {
				return err
			}
			p.windowStart = p.clock.Now()
			p.windowPairs = 0
		}
	}

	if !p.last.IsZero() {
		if elapsed := p.clock.Now().Sub(p.last); elapsed < p.interval {
			wait := p.interval - elapsed
			slog.Debug("pacing completion call", "wait", wait.Round(time.Millisecond))
			if err := p.clock.Sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	p.last = p.clock.Now()
	p.windowPairs += pairs
	return nil
}
