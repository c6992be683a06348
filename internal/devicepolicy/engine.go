package devicepolicy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fleetops/devicepolicy/internal/telemetry"
)

// EventPayload is the input to ApplyEvent.
type EventPayload struct {
	Serial        string
	EventType     EventType
	TransactionID string // empty means no idempotency key
	Actor         string // defaults to "system" at the HTTP boundary
	Metadata      map[string]any
}

// ApplyResult is the outcome of a successful ApplyEvent call.
type ApplyResult struct {
	Duplicate     bool
	Serial        string
	TransactionID string // only set when Duplicate
	FromState     DeviceState
	ToState       DeviceState
	Event         EventType
}

// PolicyResult is the response to GetPolicy.
type PolicyResult struct {
	Serial            string
	DeviceState       DeviceState
	Restrictions      Restrictions
	LockScreenMessage string
	ProtectedPackages []string
}

// Engine is the authoritative policy engine (component E). It owns the
// single critical section that spans the idempotency check, transition
// lookup, breaker admission, state write, audit append, and command
// enqueue for a single event — see the concurrency model this module follows.
// mu is shared with Admin so that EmergencyUnlock serializes against
// ApplyEvent instead of merely against other admin calls.
type Engine struct {
	mu *sync.Mutex

	repo    Repository
	breaker *CircuitBreaker
	logger  *slog.Logger
	notify  Notifier
}

// NewEngine creates an Engine over repo and breaker, guarded by mu. notifier
// may be nil. Pass the same mu to NewAdmin so ApplyEvent and EmergencyUnlock
// share one critical section.
func NewEngine(repo Repository, breaker *CircuitBreaker, logger *slog.Logger, notifier Notifier, mu *sync.Mutex) *Engine {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Engine{mu: mu, repo: repo, breaker: breaker, logger: logger, notify: notifier}
}

// ApplyEvent runs the full event-application algorithm inside a single
// critical section. See the transition table in model.go and the
// circuit-breaker semantics in breaker.go for the rules this enforces.
func (e *Engine) ApplyEvent(ctx context.Context, payload EventPayload) (ApplyResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// 1. Idempotency check precedes all other checks: no audit, no
	// command, no state change for a replayed transaction id.
	if payload.TransactionID != "" {
		seen, err := e.repo.HasTxn(ctx, payload.TransactionID)
		if err != nil {
			return ApplyResult{}, fmt.Errorf("checking processed transaction: %w", err)
		}
		if seen {
			telemetry.EventOutcomesTotal.WithLabelValues("duplicate").Inc()
			e.logger.Warn("duplicate event ignored", "serial", payload.Serial, "event", payload.EventType,
				"actor", payload.Actor, "transaction_id", payload.TransactionID)
			return ApplyResult{Duplicate: true, Serial: payload.Serial, TransactionID: payload.TransactionID}, nil
		}
	}

	// 2. Absent state is treated as PROVISIONING (devices are created implicitly).
	current, ok, err := e.repo.GetState(ctx, payload.Serial)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("reading device state: %w", err)
	}
	if !ok {
		current = StateProvisioning
	}

	// 3. Transition lookup, with the admin.decommission wildcard.
	newState, ok := lookupTransition(current, payload.EventType)
	if !ok {
		telemetry.EventOutcomesTotal.WithLabelValues("invalid_transition").Inc()
		e.logger.Info("invalid transition rejected", "serial", payload.Serial, "from", current,
			"event", payload.EventType, "actor", payload.Actor, "transaction_id", payload.TransactionID)
		return ApplyResult{}, &InvalidTransitionError{From: current, Event: payload.EventType}
	}

	// 4. Circuit breaker admission for lock-producing transitions only.
	if isLockProducing(newState) {
		if !e.breaker.AllowLock() {
			telemetry.EventOutcomesTotal.WithLabelValues("circuit_open").Inc()
			e.logger.Warn("lock refused: circuit breaker open", "serial", payload.Serial, "from", current,
				"to", newState, "event", payload.EventType, "actor", payload.Actor, "transaction_id", payload.TransactionID)
			return ApplyResult{}, &CircuitOpenError{}
		}
		e.breaker.RecordLock()
		telemetry.BreakerLocksInWindow.Set(float64(e.breaker.CurrentCount()))
		if e.breaker.State() == BreakerOpen {
			telemetry.BreakerStateGauge.Set(1)
			notify(ctx, e.notify, e.logger, fmt.Sprintf(
				"circuit breaker tripped OPEN: %d locks in window", e.breaker.CurrentCount()))
			telemetry.NotificationsTotal.WithLabelValues("breaker_trip").Inc()
		}
	}

	// 5. Write state.
	if err := e.repo.PutState(ctx, payload.Serial, newState); err != nil {
		return ApplyResult{}, fmt.Errorf("writing device state: %w", err)
	}

	// 6. Audit.
	actor := payload.Actor
	if actor == "" {
		actor = "system"
	}
	now := time.Now().UTC()
	if err := e.repo.AppendAudit(ctx, AuditRecord{
		Serial:        payload.Serial,
		FromState:     current,
		ToState:       newState,
		Event:         payload.EventType,
		Actor:         actor,
		Timestamp:     now,
		TransactionID: payload.TransactionID,
	}); err != nil {
		return ApplyResult{}, fmt.Errorf("appending audit record: %w", err)
	}

	// 7. Command enqueue.
	if cmd, ok := commandForState(newState); ok {
		if err := e.repo.EnqueueCommand(ctx, CommandEntry{
			ID:        newCommandID(),
			Serial:    payload.Serial,
			Command:   cmd,
			Payload:   templateFor(newState).Restrictions,
			CreatedAt: now,
			Acknowledged: false,
		}); err != nil {
			return ApplyResult{}, fmt.Errorf("enqueuing command: %w", err)
		}
		telemetry.CommandsEnqueuedTotal.WithLabelValues(string(cmd)).Inc()
	}

	// 8. Record the transaction id as processed.
	if payload.TransactionID != "" {
		if err := e.repo.MarkTxn(ctx, payload.TransactionID); err != nil {
			return ApplyResult{}, fmt.Errorf("marking transaction processed: %w", err)
		}
	}

	telemetry.TransitionsTotal.WithLabelValues(string(payload.EventType), string(newState)).Inc()
	telemetry.EventOutcomesTotal.WithLabelValues("ok").Inc()

	e.logger.Info("device transition applied",
		"serial", payload.Serial,
		"from", current,
		"to", newState,
		"event", payload.EventType,
		"actor", actor,
		"transaction_id", payload.TransactionID,
	)

	return ApplyResult{
		Serial:    payload.Serial,
		FromState: current,
		ToState:   newState,
		Event:     payload.EventType,
	}, nil
}

// GetPolicy returns the authoritative policy view the DPC enforces for serial.
func (e *Engine) GetPolicy(ctx context.Context, serial string) (PolicyResult, error) {
	state, ok, err := e.repo.GetState(ctx, serial)
	if err != nil {
		return PolicyResult{}, fmt.Errorf("reading device state: %w", err)
	}
	if !ok {
		return PolicyResult{}, &NotFoundError{Kind: "device", ID: serial}
	}

	tmpl := templateFor(state)
	return PolicyResult{
		Serial:            serial,
		DeviceState:       state,
		Restrictions:      tmpl.Restrictions,
		LockScreenMessage: tmpl.LockScreenMessage,
		ProtectedPackages: tmpl.ProtectedPackages,
	}, nil
}
