package devicepolicy

import (
	"context"
	"time"
)

// AuditRecord is an append-only log entry recording one committed transition.
type AuditRecord struct {
	Serial        string
	FromState     DeviceState
	ToState       DeviceState
	Event         EventType
	Actor         string
	Timestamp     time.Time
	TransactionID string // empty when the event carried none
}

// CommandEntry is a queued actuation the DPC must perform on its next poll.
type CommandEntry struct {
	ID           string
	Serial       string
	Command      CommandType
	Payload      Restrictions
	CreatedAt    time.Time
	Acknowledged bool
}

// DeviceSummary is a (serial, state) pair returned by fleet listings.
type DeviceSummary struct {
	Serial string
	State  DeviceState
}

// Repository is the storage contract for device state, audit records, the
// command queue, and the processed-transaction idempotency set. All
// operations must be linearizable with respect to one another; the engine
// relies on that to implement its single-critical-section semantics.
type Repository interface {
	GetState(ctx context.Context, serial string) (DeviceState, bool, error)
	PutState(ctx context.Context, serial string, state DeviceState) error
	DeleteDevice(ctx context.Context, serial string) (removedAudit, removedCommands int, err error)

	AppendAudit(ctx context.Context, record AuditRecord) error
	ListAudit(ctx context.Context, serial string) ([]AuditRecord, error)

	EnqueueCommand(ctx context.Context, entry CommandEntry) error
	ListPendingCommands(ctx context.Context, serial string) ([]CommandEntry, error)
	ListAllCommands(ctx context.Context, serial string) ([]CommandEntry, error)
	AckCommand(ctx context.Context, id string) (serial string, command CommandType, err error)

	MarkTxn(ctx context.Context, id string) error
	HasTxn(ctx context.Context, id string) (bool, error)

	ListDevices(ctx context.Context) ([]DeviceSummary, error)
	ScanDevicesInStates(ctx context.Context, states map[DeviceState]bool) ([]DeviceSummary, error)
}
