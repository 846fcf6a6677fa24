package circuitbreaker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var ErrOpen = errors.New("circuit breaker is open")

// Settings configure a Breaker. IsFailure decides which errors count against
// the breaker; nil counts every non-nil error. Errors matching
// context.Canceled are neutral: they neither count as failures nor close a
// half-open breaker.
type Settings struct {
	MaxFailures   int
	ResetTimeout  time.Duration
	IsFailure     func(error) bool
	OnStateChange func(from, to State)
}

// Breaker is a thread-safe circuit breaker. After MaxFailures consecutive
// failures it opens and rejects calls until ResetTimeout has passed, then lets
// one probe through.
type Breaker struct {
	settings Settings
	now      func() time.Time

	state           atomic.Int32
	failures        atomic.Int64
	lastFailureTime atomic.Int64
	probing         atomic.Bool
}

func New(settings Settings) *Breaker {
	if settings.MaxFailures < 1 {
		settings.MaxFailures = 1
	}
	cb := &Breaker{settings: settings, now: time.Now}
	cb.state.Store(int32(StateClosed))
	return cb
}

func (cb *Breaker) State() State {
	return State(cb.state.Load())
}

// Allow reports ErrOpen when the call must be skipped. Every successful Allow
// must be followed by exactly one Record.
func (cb *Breaker) Allow() error {
	switch State(cb.state.Load()) {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.now().UnixNano() <= cb.lastFailureTime.Load()+cb.settings.ResetTimeout.Nanoseconds() {
			return ErrOpen
		}
		cb.transition(StateOpen, StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if cb.probing.CompareAndSwap(false, true) {
			return nil
		}
		return ErrOpen
	default:
		return ErrOpen
	}
}

// Record feeds the outcome of an allowed call back into the breaker.
func (cb *Breaker) Record(err error) {
	current := State(cb.state.Load())
	if current == StateHalfOpen {
		defer cb.probing.Store(false)
	}

	// The caller gave up; the call says nothing about the remote side.
	if errors.Is(err, context.Canceled) {
		return
	}

	if err != nil && (cb.settings.IsFailure == nil || cb.settings.IsFailure(err)) {
		failures := cb.failures.Add(1)
		cb.lastFailureTime.Store(cb.now().UnixNano())
		if current == StateHalfOpen || (current == StateClosed && failures >= int64(cb.settings.MaxFailures)) {
			cb.transition(current, StateOpen)
		}
		return
	}

	cb.failures.Store(0)
	if current == StateHalfOpen {
		cb.transition(StateHalfOpen, StateClosed)
	}
}

func (cb *Breaker) transition(from, to State) {
	if cb.state.CompareAndSwap(int32(from), int32(to)) && cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(from, to)
	}
}

// Execute wraps fn with Allow and Record.
func Execute[T any](ctx context.Context, cb *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	if err := cb.Allow(); err != nil {
		var zero T
		return zero, err
	}
	result, err := fn(ctx)
	cb.Record(err)
	return result, err
}
