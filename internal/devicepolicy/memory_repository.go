package devicepolicy

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory, mutex-guarded Repository implementation.
// It is the reference backend: the spec treats persistent storage as a
// drop-in replacement behind this interface, and this is the
// implementation every handler test and engine test exercises directly.
type MemoryRepository struct {
	mu sync.Mutex

	states       map[string]DeviceState
	audit        map[string][]AuditRecord // serial -> records, insertion order
	commands     map[string][]*CommandEntry
	commandIndex map[string]*CommandEntry // command id -> entry, for O(1) ack
	processedTxn map[string]bool
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		states:       make(map[string]DeviceState),
		audit:        make(map[string][]AuditRecord),
		commands:     make(map[string][]*CommandEntry),
		commandIndex: make(map[string]*CommandEntry),
		processedTxn: make(map[string]bool),
	}
}

func (r *MemoryRepository) GetState(_ context.Context, serial string) (DeviceState, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[serial]
	return s, ok, nil
}

func (r *MemoryRepository) PutState(_ context.Context, serial string, state DeviceState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[serial] = state
	return nil
}

func (r *MemoryRepository) DeleteDevice(_ context.Context, serial string) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.states[serial]; !ok {
		return 0, 0, &NotFoundError{Kind: "device", ID: serial}
	}

	removedAudit := len(r.audit[serial])
	removedCommands := len(r.commands[serial])

	for _, entry := range r.commands[serial] {
		delete(r.commandIndex, entry.ID)
	}

	delete(r.states, serial)
	delete(r.audit, serial)
	delete(r.commands, serial)

	return removedAudit, removedCommands, nil
}

func (r *MemoryRepository) AppendAudit(_ context.Context, record AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audit[record.Serial] = append(r.audit[record.Serial], record)
	return nil
}

func (r *MemoryRepository) ListAudit(_ context.Context, serial string) ([]AuditRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AuditRecord, len(r.audit[serial]))
	copy(out, r.audit[serial])
	return out, nil
}

func (r *MemoryRepository) EnqueueCommand(_ context.Context, entry CommandEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := entry
	r.commands[entry.Serial] = append(r.commands[entry.Serial], &e)
	r.commandIndex[entry.ID] = &e
	return nil
}

func (r *MemoryRepository) ListPendingCommands(_ context.Context, serial string) ([]CommandEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CommandEntry
	for _, e := range r.commands[serial] {
		if !e.Acknowledged {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListAllCommands(_ context.Context, serial string) ([]CommandEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CommandEntry, 0, len(r.commands[serial]))
	for _, e := range r.commands[serial] {
		out = append(out, *e)
	}
	return out, nil
}

func (r *MemoryRepository) AckCommand(_ context.Context, id string) (string, CommandType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.commandIndex[id]
	if !ok {
		return "", "", &NotFoundError{Kind: "command", ID: id}
	}

	entry.Acknowledged = true
	return entry.Serial, entry.Command, nil
}

func (r *MemoryRepository) MarkTxn(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processedTxn[id] = true
	return nil
}

func (r *MemoryRepository) HasTxn(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processedTxn[id], nil
}

func (r *MemoryRepository) ListDevices(_ context.Context) ([]DeviceSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DeviceSummary, 0, len(r.states))
	for serial, state := range r.states {
		out = append(out, DeviceSummary{Serial: serial, State: state})
	}
	return out, nil
}

func (r *MemoryRepository) ScanDevicesInStates(_ context.Context, states map[DeviceState]bool) ([]DeviceSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []DeviceSummary
	for serial, state := range r.states {
		if states[state] {
			out = append(out, DeviceSummary{Serial: serial, State: state})
		}
	}
	return out, nil
}

// newCommandID generates a unique opaque command identifier.
func newCommandID() string {
	return uuid.New().String()
}
