// Package pacing spaces out browser interactions with randomized delays so
// that typing, scrolling and page transitions follow a human rhythm.
package pacing

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/entrhq/forumreply/pkg/browser"
)

// Range is an inclusive duration interval. A zero Max means "exactly Min".
type Range struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// Validate reports whether the range is usable.
func (r Range) Validate() error {
	if r.Min < 0 || r.Max < 0 {
		return fmt.Errorf("negative duration in range %s..%s", r.Min, r.Max)
	}
	if r.Max != 0 && r.Max < r.Min {
		return fmt.Errorf("range max %s is below min %s", r.Max, r.Min)
	}
	return nil
}

// Scroll describes one natural scrolling pass.
type Scroll struct {
	MinSteps int     `yaml:"min_steps"`
	MaxSteps int     `yaml:"max_steps"`
	MinDelta float64 `yaml:"min_delta"`
	MaxDelta float64 `yaml:"max_delta"`
	Pause    Range   `yaml:"pause"`
}

// Config holds the delay ranges used by a Pacer.
type Config struct {
	Typing Range  `yaml:"typing"`
	Action Range  `yaml:"action"`
	Scroll Scroll `yaml:"scroll"`
}

// DefaultConfig returns the pacing used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Typing: Range{Min: 50 * time.Millisecond, Max: 200 * time.Millisecond},
		Action: Range{Min: 2 * time.Second, Max: 4 * time.Second},
		Scroll: Scroll{
			MinSteps: 2,
			MaxSteps: 5,
			MinDelta: 300,
			MaxDelta: 700,
			Pause:    Range{Min: time.Second, Max: 3 * time.Second},
		},
	}
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures a Pacer.
type Option func(*Pacer)

// WithRand sets the random source. Tests pass a seeded source for
// reproducible sequences.
func WithRand(src rand.Source) Option {
	return func(p *Pacer) {
		p.rng = rand.New(src)
	}
}

// WithSleep replaces the sleep implementation.
func WithSleep(sleep SleepFunc) Option {
	return func(p *Pacer) {
		p.sleep = sleep
	}
}

// Pacer produces randomized waits. It is safe for concurrent use.
type Pacer struct {
	cfg   Config
	mu    sync.Mutex
	rng   *rand.Rand
	sleep SleepFunc
}

// New creates a Pacer for cfg.
func New(cfg Config, opts ...Option) *Pacer {
	p := &Pacer{
		cfg:   cfg,
		rng:   rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64())),
		sleep: Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the ranges the pacer was built with.
func (p *Pacer) Config() Config {
	return p.cfg
}

// Pick returns a uniformly distributed duration within r.
func (p *Pacer) Pick(r Range) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return r.Min + time.Duration(p.rng.Int64N(int64(r.Max-r.Min)+1))
}

func (p *Pacer) intBetween(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo + p.rng.IntN(hi-lo+1)
}

func (p *Pacer) floatBetween(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo + p.rng.Float64()*(hi-lo)
}

// Delay sleeps for a random duration within r.
func (p *Pacer) Delay(ctx context.Context, r Range) error {
	return p.sleep(ctx, p.Pick(r))
}

// Between sleeps for a random duration in [min, max].
func (p *Pacer) Between(ctx context.Context, min, max time.Duration) error {
	return p.Delay(ctx, Range{Min: min, Max: max})
}

// Act waits the configured pause that follows a click or form fill.
func (p *Pacer) Act(ctx context.Context) error {
	return p.Delay(ctx, p.cfg.Action)
}

// TypeIncrementally types text into el one rune at a time with a typing
// delay after every rune.
func (p *Pacer) TypeIncrementally(ctx context.Context, el browser.Element, text string) error {
	for _, r := range text {
		if err := el.Type(string(r)); err != nil {
			return fmt.Errorf("failed to type into element: %w", err)
		}
		if err := p.Delay(ctx, p.cfg.Typing); err != nil {
			return err
		}
	}
	return nil
}

// ScrollNaturally scrolls page down in a few uneven steps with pauses in
// between.
func (p *Pacer) ScrollNaturally(ctx context.Context, page browser.Page) error {
	sc := p.cfg.Scroll
	steps := p.intBetween(sc.MinSteps, sc.MaxSteps)
	for i := 0; i < steps; i++ {
		if err := page.Scroll(ctx, p.floatBetween(sc.MinDelta, sc.MaxDelta)); err != nil {
			return fmt.Errorf("failed to scroll: %w", err)
		}
		if err := p.Delay(ctx, sc.Pause); err != nil {
			return err
		}
	}
	return nil
}

// Shuffle randomizes the order of n items through swap.
func (p *Pacer) Shuffle(n int, swap func(i, j int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rng.Shuffle(n, swap)
}

// Sleep waits for d or until ctx is cancelled, returning ctx.Err() in the
// latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
