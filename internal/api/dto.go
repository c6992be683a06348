package api

import "github.com/fleetops/devicepolicy/internal/devicepolicy"

// EventRequest is the body of POST /event.
type EventRequest struct {
	SerialNumber  string         `json:"serial_number" validate:"required,min=1,max=64"`
	EventType     string         `json:"event_type" validate:"required,oneof=dpc.enrolled payment.received payment.overdue payment.completed grace.expired escalation.timeout admin.suspend admin.reinstate admin.report_stolen admin.recover admin.decommission provisioning.failed"`
	TransactionID string         `json:"transaction_id,omitempty"`
	Actor         string         `json:"actor"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// EventResponse is the 200 body of POST /event for a committed (non-duplicate) transition.
type EventResponse struct {
	Status    string                  `json:"status"`
	Serial    string                  `json:"serial"`
	FromState devicepolicy.DeviceState `json:"from_state"`
	ToState   devicepolicy.DeviceState `json:"to_state"`
	Event     devicepolicy.EventType   `json:"event"`
}

// DuplicateResponse is the 200 body of POST /event for a replayed transaction id.
type DuplicateResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// PolicyResponse is the body of GET /policy/{serial}.
type PolicyResponse struct {
	SerialNumber      string                       `json:"serial_number"`
	DeviceState       devicepolicy.DeviceState     `json:"device_state"`
	Restrictions      devicepolicy.Restrictions    `json:"restrictions"`
	LockScreenMessage string                       `json:"lock_screen_message"`
	ProtectedPackages []string                     `json:"protected_packages"`
}

func newPolicyResponse(p devicepolicy.PolicyResult) PolicyResponse {
	return PolicyResponse{
		SerialNumber:      p.Serial,
		DeviceState:       p.DeviceState,
		Restrictions:      p.Restrictions,
		LockScreenMessage: p.LockScreenMessage,
		ProtectedPackages: p.ProtectedPackages,
	}
}

// CommandEntryView is the JSON shape of a queued command.
type CommandEntryView struct {
	ID           string                    `json:"id"`
	SerialNumber string                    `json:"serial_number"`
	Command      devicepolicy.CommandType  `json:"command"`
	Payload      devicepolicy.Restrictions `json:"payload"`
	CreatedAt    string                    `json:"created_at"`
	Acknowledged bool                      `json:"acknowledged"`
}

func newCommandEntryView(c devicepolicy.CommandEntry) CommandEntryView {
	return CommandEntryView{
		ID:           c.ID,
		SerialNumber: c.Serial,
		Command:      c.Command,
		Payload:      c.Payload,
		CreatedAt:    c.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		Acknowledged: c.Acknowledged,
	}
}

func newCommandEntryViews(entries []devicepolicy.CommandEntry) []CommandEntryView {
	views := make([]CommandEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, newCommandEntryView(e))
	}
	return views
}

// AuditRecordView is the JSON shape of an audit log entry.
type AuditRecordView struct {
	Serial        string                   `json:"serial"`
	FromState     devicepolicy.DeviceState `json:"from_state"`
	ToState       devicepolicy.DeviceState `json:"to_state"`
	Event         devicepolicy.EventType   `json:"event"`
	Actor         string                   `json:"actor"`
	Timestamp     string                   `json:"timestamp"`
	TransactionID string                   `json:"transaction_id,omitempty"`
}

func newAuditRecordView(r devicepolicy.AuditRecord) AuditRecordView {
	return AuditRecordView{
		Serial:        r.Serial,
		FromState:     r.FromState,
		ToState:       r.ToState,
		Event:         r.Event,
		Actor:         r.Actor,
		Timestamp:     r.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		TransactionID: r.TransactionID,
	}
}

func newAuditRecordViews(records []devicepolicy.AuditRecord) []AuditRecordView {
	views := make([]AuditRecordView, 0, len(records))
	for _, r := range records {
		views = append(views, newAuditRecordView(r))
	}
	return views
}

// DeviceSummaryView is the JSON shape of a device/state pair in a fleet listing.
type DeviceSummaryView struct {
	Serial string                   `json:"serial"`
	State  devicepolicy.DeviceState `json:"state"`
}

func newDeviceSummaryViews(devices []devicepolicy.DeviceSummary) []DeviceSummaryView {
	views := make([]DeviceSummaryView, 0, len(devices))
	for _, d := range devices {
		views = append(views, DeviceSummaryView{Serial: d.Serial, State: d.State})
	}
	return views
}
