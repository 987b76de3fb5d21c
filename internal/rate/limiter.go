package rate

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"
)

// DefaultJitter is the upper bound of the random delay added to every granted slot.
const DefaultJitter = 150 * time.Millisecond

// Config defines the request budget for one provider.
type Config struct {
	// RequestsPerSecond may be fractional: 0.5 means one request every 2s.
	// Zero or negative disables limiting.
	RequestsPerSecond float64
	// MaxJitter bounds the random extra sleep per call. Zero disables jitter.
	MaxJitter time.Duration
	// Clock defaults to RealClock.
	Clock Clock
}

// Interval is the minimum spacing between granted slots.
func (c Config) Interval() time.Duration {
	if c.RequestsPerSecond <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.RequestsPerSecond)
}

// Limiter spaces calls at least Interval apart regardless of how many
// goroutines share it. The next-eligible cursor lives in a burst-1 x/time/rate
// limiter, whose reservations are serialized internally.
type Limiter struct {
	lim    *xrate.Limiter
	jitter time.Duration
	clock  Clock
}

// New creates a limiter from cfg.
func New(cfg Config) *Limiter {
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock{}
	}
	limit := xrate.Inf
	if iv := cfg.Interval(); iv > 0 {
		limit = xrate.Every(iv)
	}
	return &Limiter{
		lim:    xrate.NewLimiter(limit, 1),
		jitter: cfg.MaxJitter,
		clock:  clock,
	}
}

// Wait blocks until the caller's slot arrives (plus jitter) or ctx is done.
// A cancelled wait gives its slot back.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := l.clock.Now()
	r := l.lim.ReserveN(now, 1)
	if !r.OK() {
		return context.Canceled
	}

	wait := r.DelayFrom(now)
	if l.lim.Limit() != xrate.Inf {
		wait += l.randomJitter()
	}
	if wait <= 0 {
		return nil
	}
	if err := l.clock.Sleep(ctx, wait); err != nil {
		r.CancelAt(l.clock.Now())
		return err
	}
	return nil
}

func (l *Limiter) randomJitter() time.Duration {
	if l.jitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(l.jitter) + 1))
}

// Manager holds one limiter per provider. Limiters are shared by every
// worker so the total request rate per provider stays bounded.
type Manager struct {
	mu        sync.RWMutex
	limiters  map[string]*Limiter
	overrides map[string]Config
	defaults  Config
}

func NewManager(defaults Config) *Manager {
	return &Manager{
		limiters:  make(map[string]*Limiter),
		overrides: make(map[string]Config),
		defaults:  defaults,
	}
}

// Configure sets a provider-specific budget. It must be called before the
// provider's first Wait.
func (m *Manager) Configure(key string, cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[key] = cfg
	delete(m.limiters, key)
}

func (m *Manager) GetLimiter(key string) *Limiter {
	m.mu.RLock()
	if lim, ok := m.limiters[key]; ok {
		m.mu.RUnlock()
		return lim
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if lim, ok := m.limiters[key]; ok {
		return lim
	}
	cfg, ok := m.overrides[key]
	if !ok {
		cfg = m.defaults
	}
	lim := New(cfg)
	m.limiters[key] = lim
	return lim
}

// Wait throttles a call against the named provider's limiter.
func (m *Manager) Wait(ctx context.Context, key string) error {
	return m.GetLimiter(key).Wait(ctx)
}
