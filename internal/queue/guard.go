package queue

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Outcome classifies the result of a connection or publish primitive so the
// guard's decisions never hinge on matching broad error strings.
type Outcome int

const (
	OutcomeOK Outcome = iota
	// OutcomeSuppressed means the guard short-circuited the attempt; the
	// network was never touched.
	OutcomeSuppressed
	OutcomeBrokerUnreachable
	OutcomeSocketError
	OutcomeOther
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeSuppressed:
		return "suppressed"
	case OutcomeBrokerUnreachable:
		return "broker_unreachable"
	case OutcomeSocketError:
		return "socket_error"
	default:
		return "other"
	}
}

// ClassifyError maps a transport error to an Outcome.
func ClassifyError(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}

	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) || errors.Is(err, amqp.ErrClosed) {
		return OutcomeBrokerUnreachable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return OutcomeSocketError
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return OutcomeSocketError
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeSocketError
	}

	return OutcomeOther
}

const (
	defaultReconnectDelay   = 30 * time.Second
	defaultFailureThreshold = 3
	defaultBreakDuration    = 60 * time.Second
)

type GuardConfig struct {
	ReconnectDelay   time.Duration
	FailureThreshold int
	BreakDuration    time.Duration
}

// ConnectionGuard decides whether a (re)connection attempt may proceed. It
// combines a reconnect cooldown with a count-and-cooldown circuit breaker:
// Closed until FailureThreshold consecutive failures, then Open for
// BreakDuration, then back to Closed with a fresh failure count. Half-open
// probing is not modeled.
//
// Each broker connection role owns exactly one guard; state is never shared
// through package-level variables.
type ConnectionGuard struct {
	mu sync.Mutex

	reconnectDelay   time.Duration
	failureThreshold int
	breakDuration    time.Duration

	failureCount int
	lastAttempt  time.Time
	openedAt     time.Time
	open         bool

	now func() time.Time
}

func NewConnectionGuard(cfg GuardConfig) *ConnectionGuard {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.BreakDuration <= 0 {
		cfg.BreakDuration = defaultBreakDuration
	}

	return &ConnectionGuard{
		reconnectDelay:   cfg.ReconnectDelay,
		failureThreshold: cfg.FailureThreshold,
		breakDuration:    cfg.BreakDuration,
		now:              time.Now,
	}
}

// ShouldAttempt reports whether a connection attempt may be made now, and
// records the attempt time when it may. available is the caller's current
// view of the connection; a known-available connection is never throttled by
// the cooldown.
func (g *ConnectionGuard) ShouldAttempt(available bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	if g.open {
		if now.Sub(g.openedAt) < g.breakDuration {
			return false
		}
		// Break elapsed: next attempt is a fresh closed-state try.
		g.open = false
		g.failureCount = 0
	}

	if !available && !g.lastAttempt.IsZero() && now.Sub(g.lastAttempt) < g.reconnectDelay {
		return false
	}

	g.lastAttempt = now
	return true
}

// RecordSuccess resets the failure count and closes the circuit.
func (g *ConnectionGuard) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.failureCount = 0
	g.open = false
}

// RecordFailure counts a failed attempt and opens the circuit once the
// threshold is reached. OutcomeOK and OutcomeSuppressed are not failures.
func (g *ConnectionGuard) RecordFailure(outcome Outcome) {
	if outcome == OutcomeOK || outcome == OutcomeSuppressed {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.failureCount++
	if g.failureCount >= g.failureThreshold {
		g.open = true
		g.openedAt = g.now()
	}
}

// Open reports whether the circuit is currently open.
func (g *ConnectionGuard) Open() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.open && g.now().Sub(g.openedAt) >= g.breakDuration {
		return false
	}
	return g.open
}
