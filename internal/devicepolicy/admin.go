package devicepolicy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fleetops/devicepolicy/internal/telemetry"
)

// lockedStates are the states emergency unlock reinstates from. STOLEN_LOCKED
// and DECOMMISSIONED are deliberately excluded.
var lockedStates = map[DeviceState]bool{
	StateSoftLocked: true,
	StateHardLocked: true,
	StateSuspended:  true,
}

// EmergencyUnlockResult is the response to EmergencyUnlock.
type EmergencyUnlockResult struct {
	UnlockedCount   int
	UnlockedDevices []string
	Reason          string
}

// Admin implements the admin surface (component G): emergency mass-unlock,
// device deletion, and fleet/audit/command read-throughs. mu must be the
// same mutex passed to NewEngine, so EmergencyUnlock's scan-unlock-audit
// sequence is atomic with respect to ApplyEvent's critical section, not
// merely serialized against other Admin calls.
type Admin struct {
	mu *sync.Mutex

	repo    Repository
	breaker *CircuitBreaker
	logger  *slog.Logger
	notify  Notifier
}

// NewAdmin creates an Admin over repo and breaker, guarded by mu (share this
// with the Engine constructed alongside it). notifier may be nil.
func NewAdmin(repo Repository, breaker *CircuitBreaker, logger *slog.Logger, notifier Notifier, mu *sync.Mutex) *Admin {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Admin{mu: mu, repo: repo, breaker: breaker, logger: logger, notify: notifier}
}

// EmergencyUnlock reinstates every device in SOFT_LOCKED, HARD_LOCKED, or
// SUSPENDED directly to ACTIVE, audits each reinstatement with actor
// "emergency:<reason>", and resets the circuit breaker. No transition-table
// consultation and no command is emitted: the next policy poll already
// returns the permissive ACTIVE policy.
func (a *Admin) EmergencyUnlock(ctx context.Context, reason string) (EmergencyUnlockResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	candidates, err := a.repo.ScanDevicesInStates(ctx, lockedStates)
	if err != nil {
		return EmergencyUnlockResult{}, fmt.Errorf("scanning locked devices: %w", err)
	}

	now := time.Now().UTC()
	unlocked := make([]string, 0, len(candidates))

	for _, d := range candidates {
		if err := a.repo.PutState(ctx, d.Serial, StateActive); err != nil {
			return EmergencyUnlockResult{}, fmt.Errorf("unlocking %s: %w", d.Serial, err)
		}
		if err := a.repo.AppendAudit(ctx, AuditRecord{
			Serial:    d.Serial,
			FromState: d.State,
			ToState:   StateActive,
			Event:     EventAdminReinstate,
			Actor:     fmt.Sprintf("emergency:%s", reason),
			Timestamp: now,
		}); err != nil {
			return EmergencyUnlockResult{}, fmt.Errorf("auditing unlock of %s: %w", d.Serial, err)
		}
		unlocked = append(unlocked, d.Serial)
	}

	a.breaker.Reset()
	telemetry.BreakerStateGauge.Set(0)
	telemetry.BreakerLocksInWindow.Set(0)
	telemetry.EmergencyUnlocksTotal.Add(float64(len(unlocked)))

	a.logger.Info("emergency unlock completed", "unlocked_count", len(unlocked), "reason", reason)
	notify(ctx, a.notify, a.logger, fmt.Sprintf("emergency unlock: %d devices reinstated (reason: %s)", len(unlocked), reason))
	telemetry.NotificationsTotal.WithLabelValues("emergency_unlock").Inc()

	return EmergencyUnlockResult{
		UnlockedCount:   len(unlocked),
		UnlockedDevices: unlocked,
		Reason:          reason,
	}, nil
}

// DeleteDevice removes all state, audit records, and command entries for serial.
func (a *Admin) DeleteDevice(ctx context.Context, serial string) (removedAudit, removedCommands int, err error) {
	removedAudit, removedCommands, err = a.repo.DeleteDevice(ctx, serial)
	if err != nil {
		return 0, 0, fmt.Errorf("deleting device: %w", err)
	}
	return removedAudit, removedCommands, nil
}

// ListDevices returns every device and its current state.
func (a *Admin) ListDevices(ctx context.Context) ([]DeviceSummary, error) {
	devices, err := a.repo.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	return devices, nil
}

// GetAudit returns the full audit trail for serial, in commit order.
func (a *Admin) GetAudit(ctx context.Context, serial string) ([]AuditRecord, error) {
	records, err := a.repo.ListAudit(ctx, serial)
	if err != nil {
		return nil, fmt.Errorf("listing audit records: %w", err)
	}
	return records, nil
}

// GetCommands returns every command entry (acknowledged or not) for serial.
func (a *Admin) GetCommands(ctx context.Context, serial string) ([]CommandEntry, error) {
	commands, err := a.repo.ListAllCommands(ctx, serial)
	if err != nil {
		return nil, fmt.Errorf("listing commands: %w", err)
	}
	return commands, nil
}
