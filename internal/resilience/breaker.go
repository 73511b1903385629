// Package resilience guards calls to the anonymization and machine
// translation services with per-service circuit breakers and retries.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Names of the outbound services a task depends on.
const (
	ServiceAnonymizer = "anonymizer"
	ServiceMT         = "mt"
)

// State is the position of a breaker as reported on /health and to monitoring.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// ErrBreakerOpen is returned without calling the service while its breaker is open.
var ErrBreakerOpen = eris.New("service unavailable: circuit breaker is open")

// BreakerConfig controls when a service is considered down.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failed calls that opens the breaker.
	FailureThreshold int
	// Cooldown is how long an open breaker rejects calls before letting a trial through.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the settings used when none are configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, Cooldown: 30 * time.Second}
}

// BreakerConfigFrom builds a config from the resilience settings. Values
// below one keep the default.
func BreakerConfigFrom(failureThreshold, cooldownSecs int) BreakerConfig {
	cfg := DefaultBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if cooldownSecs > 0 {
		cfg.Cooldown = time.Duration(cooldownSecs) * time.Second
	}
	return cfg
}

// Breaker tracks the health of one service.
//
// Only failures that say the service is unhealthy count: a permanent error
// means the service answered and rejected the request, and a canceled caller
// says nothing about the service at all. While half-open, one trial call is
// admitted at a time.
type Breaker struct {
	service string
	cfg     BreakerConfig
	now     func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool
}

// NewBreaker returns a closed breaker for service.
func NewBreaker(service string, cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &Breaker{service: service, cfg: cfg, now: time.Now, state: StateClosed}
}

// Service returns the name the breaker was created for.
func (b *Breaker) Service() string { return b.service }

// State returns the breaker's position. An open breaker whose cooldown has
// passed reports half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.cooled() {
		return StateHalfOpen
	}
	return b.state
}

// Call runs fn if b admits it and records the outcome. A nil breaker admits everything.
func Call[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	if b == nil {
		return fn(ctx)
	}
	if err := b.admit(); err != nil {
		var zero T
		return zero, eris.Wrapf(err, "%s", b.service)
	}
	val, err := fn(ctx)
	b.record(ctx, err)
	return val, err
}

// Guard runs fn under b, retrying transient failures per p inside a single
// admission, so one exhausted retry sequence counts as one failure.
func Guard[T any](ctx context.Context, b *Breaker, p RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	return Call(ctx, b, func(ctx context.Context) (T, error) {
		return RetryVal(ctx, p, fn)
	})
}

func (b *Breaker) cooled() bool {
	return b.now().Sub(b.openedAt) >= b.cfg.Cooldown
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if !b.cooled() {
			return ErrBreakerOpen
		}
		b.setState(StateHalfOpen)
		b.trial = true
		return nil
	case StateHalfOpen:
		if b.trial {
			return ErrBreakerOpen
		}
		b.trial = true
		return nil
	default:
		return nil
	}
}

func (b *Breaker) record(ctx context.Context, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.trial = false
	}

	switch {
	case err != nil && ctx.Err() != nil:
		// The caller gave up; the service's health is unknown.
		return
	case err == nil || IsPermanent(err):
		b.failures = 0
		if b.state == StateHalfOpen {
			b.setState(StateClosed)
		}
		return
	}

	b.failures++
	switch b.state {
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.open(err)
		}
	case StateHalfOpen:
		b.open(err)
	}
}

func (b *Breaker) open(cause error) {
	b.openedAt = b.now()
	b.setState(StateOpen)
	zap.L().Warn("resilience: service marked unavailable",
		zap.String("service", b.service),
		zap.Int("consecutive_failures", b.failures),
		zap.Duration("cooldown", b.cfg.Cooldown),
		zap.Error(cause),
	)
}

func (b *Breaker) setState(to State) {
	if b.state == to {
		return
	}
	zap.L().Info("resilience: breaker state changed",
		zap.String("service", b.service),
		zap.String("from", string(b.state)),
		zap.String("to", string(to)),
	)
	b.state = to
}

// Breakers holds one breaker per service, created on first use.
type Breakers struct {
	cfg BreakerConfig

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakers returns an empty registry whose breakers share cfg.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for service.
func (r *Breakers) Get(service string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[service]
	if !ok {
		b = NewBreaker(service, r.cfg)
		r.breakers[service] = b
	}
	return b
}

// States reports every known breaker's state keyed by service.
func (r *Breakers) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]State, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State()
	}
	return out
}
