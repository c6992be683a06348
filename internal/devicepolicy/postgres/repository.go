// Package postgres implements devicepolicy.Repository on top of Postgres via
// pgx. It is the durable drop-in the policy engine's spec invites: the
// in-memory repository remains the default and authoritative reference
// implementation, this is an additive alternate behind the same interface.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetops/devicepolicy/internal/devicepolicy"
)

// Repository is a Postgres-backed devicepolicy.Repository. The abstract
// table layout is devices(serial pk, state), audit(serial, from, to, event,
// actor, ts, txn), commands(id pk, serial, command, payload, created_at,
// acked), processed_txns(txn pk).
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a Repository over pool.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetState(ctx context.Context, serial string) (devicepolicy.DeviceState, bool, error) {
	var state string
	err := r.pool.QueryRow(ctx, `SELECT state FROM devices WHERE serial = $1`, serial).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying device state: %w", err)
	}
	return devicepolicy.DeviceState(state), true, nil
}

func (r *Repository) PutState(ctx context.Context, serial string, state devicepolicy.DeviceState) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO devices (serial, state) VALUES ($1, $2)
		ON CONFLICT (serial) DO UPDATE SET state = EXCLUDED.state
	`, serial, string(state))
	if err != nil {
		return fmt.Errorf("writing device state: %w", err)
	}
	return nil
}

func (r *Repository) DeleteDevice(ctx context.Context, serial string) (removedAudit, removedCommands int, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM devices WHERE serial = $1)`, serial).Scan(&exists); err != nil {
		return 0, 0, fmt.Errorf("checking device existence: %w", err)
	}
	if !exists {
		return 0, 0, &devicepolicy.NotFoundError{Kind: "device", ID: serial}
	}

	auditTag, err := tx.Exec(ctx, `DELETE FROM audit WHERE serial = $1`, serial)
	if err != nil {
		return 0, 0, fmt.Errorf("deleting audit records: %w", err)
	}
	commandsTag, err := tx.Exec(ctx, `DELETE FROM commands WHERE serial = $1`, serial)
	if err != nil {
		return 0, 0, fmt.Errorf("deleting commands: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM devices WHERE serial = $1`, serial); err != nil {
		return 0, 0, fmt.Errorf("deleting device: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("committing delete: %w", err)
	}

	return int(auditTag.RowsAffected()), int(commandsTag.RowsAffected()), nil
}

func (r *Repository) AppendAudit(ctx context.Context, record devicepolicy.AuditRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit (serial, from_state, to_state, event, actor, ts, txn)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
	`, record.Serial, string(record.FromState), string(record.ToState), string(record.Event),
		record.Actor, record.Timestamp, record.TransactionID)
	if err != nil {
		return fmt.Errorf("appending audit record: %w", err)
	}
	return nil
}

func (r *Repository) ListAudit(ctx context.Context, serial string) ([]devicepolicy.AuditRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT serial, from_state, to_state, event, actor, ts, COALESCE(txn, '')
		FROM audit WHERE serial = $1 ORDER BY ts ASC, id ASC
	`, serial)
	if err != nil {
		return nil, fmt.Errorf("querying audit records: %w", err)
	}
	defer rows.Close()

	var records []devicepolicy.AuditRecord
	for rows.Next() {
		var rec devicepolicy.AuditRecord
		var from, to, event string
		if err := rows.Scan(&rec.Serial, &from, &to, &event, &rec.Actor, &rec.Timestamp, &rec.TransactionID); err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}
		rec.FromState = devicepolicy.DeviceState(from)
		rec.ToState = devicepolicy.DeviceState(to)
		rec.Event = devicepolicy.EventType(event)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit records: %w", err)
	}
	return records, nil
}

func (r *Repository) EnqueueCommand(ctx context.Context, entry devicepolicy.CommandEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO commands (id, serial, command, payload, created_at, acked)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.Serial, string(entry.Command), restrictionsJSON(entry.Payload), entry.CreatedAt, entry.Acknowledged)
	if err != nil {
		return fmt.Errorf("enqueuing command: %w", err)
	}
	return nil
}

func (r *Repository) ListPendingCommands(ctx context.Context, serial string) ([]devicepolicy.CommandEntry, error) {
	return r.listCommands(ctx, serial, true)
}

func (r *Repository) ListAllCommands(ctx context.Context, serial string) ([]devicepolicy.CommandEntry, error) {
	return r.listCommands(ctx, serial, false)
}

func (r *Repository) listCommands(ctx context.Context, serial string, pendingOnly bool) ([]devicepolicy.CommandEntry, error) {
	query := `SELECT id, serial, command, payload, created_at, acked FROM commands WHERE serial = $1`
	if pendingOnly {
		query += ` AND acked = false`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, serial)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close()

	var entries []devicepolicy.CommandEntry
	for rows.Next() {
		var entry devicepolicy.CommandEntry
		var command string
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.Serial, &command, &payload, &entry.CreatedAt, &entry.Acknowledged); err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		entry.Command = devicepolicy.CommandType(command)
		entry.Payload = restrictionsFromJSON(payload)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating commands: %w", err)
	}
	return entries, nil
}

func (r *Repository) AckCommand(ctx context.Context, id string) (serial string, command devicepolicy.CommandType, err error) {
	var commandStr string
	row := r.pool.QueryRow(ctx, `
		UPDATE commands SET acked = true WHERE id = $1
		RETURNING serial, command
	`, id)
	if err := row.Scan(&serial, &commandStr); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", &devicepolicy.NotFoundError{Kind: "command", ID: id}
		}
		return "", "", fmt.Errorf("acknowledging command: %w", err)
	}
	return serial, devicepolicy.CommandType(commandStr), nil
}

func (r *Repository) MarkTxn(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO processed_txns (txn) VALUES ($1) ON CONFLICT DO NOTHING`, id)
	if err != nil {
		return fmt.Errorf("marking transaction processed: %w", err)
	}
	return nil
}

func (r *Repository) HasTxn(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM processed_txns WHERE txn = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking processed transaction: %w", err)
	}
	return exists, nil
}

func (r *Repository) ListDevices(ctx context.Context) ([]devicepolicy.DeviceSummary, error) {
	rows, err := r.pool.Query(ctx, `SELECT serial, state FROM devices ORDER BY serial ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []devicepolicy.DeviceSummary
	for rows.Next() {
		var d devicepolicy.DeviceSummary
		var state string
		if err := rows.Scan(&d.Serial, &state); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		d.State = devicepolicy.DeviceState(state)
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

func (r *Repository) ScanDevicesInStates(ctx context.Context, states map[devicepolicy.DeviceState]bool) ([]devicepolicy.DeviceSummary, error) {
	names := make([]string, 0, len(states))
	for s, on := range states {
		if on {
			names = append(names, string(s))
		}
	}
	if len(names) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT serial, state FROM devices WHERE state = ANY($1) ORDER BY serial ASC`, names)
	if err != nil {
		return nil, fmt.Errorf("scanning devices by state: %w", err)
	}
	defer rows.Close()

	var devices []devicepolicy.DeviceSummary
	for rows.Next() {
		var d devicepolicy.DeviceSummary
		var state string
		if err := rows.Scan(&d.Serial, &state); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		d.State = devicepolicy.DeviceState(state)
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}
