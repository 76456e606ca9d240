package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrBreakerOpen is returned when a call is rejected without being attempted.
var ErrBreakerOpen = eris.New("resilience: breaker open")

// BreakerConfig controls when a sink stops being called.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before one probe call.
	ResetTimeout time.Duration
}

// DefaultBreakerConfig returns five failures and a one minute cool-down.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, ResetTimeout: time.Minute}
}

// Breaker guards one downstream sink (GIS layer, Notion, mail relay) so a
// dead sink does not cost every remaining job its full retry budget.
type Breaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now}
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.allow() {
		return eris.Wrap(ErrBreakerOpen, b.name)
	}
	err := fn(ctx)
	b.record(err)
	return err
}

// State returns the current state, reporting half-open once the cool-down
// has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return BreakerHalfOpen
	}
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != BreakerOpen {
		return true
	}
	if b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		b.setState(BreakerHalfOpen)
		return true
	}
	return false
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		if b.state != BreakerClosed {
			b.setState(BreakerClosed)
		}
		return
	}

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.openedAt = b.now()
		if b.state != BreakerOpen {
			b.setState(BreakerOpen)
		}
	}
}

// setState must be called with mu held.
func (b *Breaker) setState(to BreakerState) {
	zap.L().Info("breaker state change",
		zap.String("sink", b.name),
		zap.Stringer("from", b.state),
		zap.Stringer("to", to),
	)
	b.state = to
}

// Breakers is a concurrency-safe set of per-sink breakers.
type Breakers struct {
	cfg BreakerConfig

	mu  sync.Mutex
	set map[string]*Breaker
}

// NewBreakers creates an empty set sharing cfg.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, set: make(map[string]*Breaker)}
}

// Get returns the breaker for name, creating it on first use.
func (bs *Breakers) Get(name string) *Breaker {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	b, ok := bs.set[name]
	if !ok {
		b = NewBreaker(name, bs.cfg)
		bs.set[name] = b
	}
	return b
}

// States snapshots every breaker's state.
func (bs *Breakers) States() map[string]BreakerState {
	bs.mu.Lock()
	names := make([]*Breaker, 0, len(bs.set))
	for _, b := range bs.set {
		names = append(names, b)
	}
	bs.mu.Unlock()

	out := make(map[string]BreakerState, len(names))
	for _, b := range names {
		out[b.name] = b.State()
	}
	return out
}
