package devicepolicy

import (
	"context"
	"fmt"

	"github.com/fleetops/devicepolicy/internal/telemetry"
)

// Dispatcher serves pending commands per device and records acknowledgements
// (component F). It has no critical-section requirements of its own beyond
// what the Repository already guarantees per-operation.
type Dispatcher struct {
	repo Repository
}

// NewDispatcher creates a Dispatcher over repo.
func NewDispatcher(repo Repository) *Dispatcher {
	return &Dispatcher{repo: repo}
}

// Pending returns the unacknowledged commands for serial, in commit order.
func (d *Dispatcher) Pending(ctx context.Context, serial string) ([]CommandEntry, error) {
	entries, err := d.repo.ListPendingCommands(ctx, serial)
	if err != nil {
		return nil, fmt.Errorf("listing pending commands: %w", err)
	}
	return entries, nil
}

// Ack marks commandID as acknowledged. It is idempotent: acknowledging an
// already-acknowledged id still returns success, since the Repository
// simply re-sets the same flag.
func (d *Dispatcher) Ack(ctx context.Context, commandID string) error {
	_, _, err := d.repo.AckCommand(ctx, commandID)
	if err != nil {
		return fmt.Errorf("acknowledging command: %w", err)
	}
	telemetry.CommandsAcknowledgedTotal.Inc()
	return nil
}
