// Package devicepolicy implements the authoritative policy engine for a
// fleet of financed devices: the lifecycle state machine, the lock-rate
// circuit breaker, the canary rollout controller, the command dispatcher,
// and the admin surface that sits on top of all of them.
package devicepolicy

// DeviceState is a closed enumeration of lifecycle states a device can occupy.
type DeviceState string

const (
	StateProvisioning   DeviceState = "PROVISIONING"
	StateActive         DeviceState = "ACTIVE"
	StateGracePeriod    DeviceState = "GRACE_PERIOD"
	StateSoftLocked     DeviceState = "SOFT_LOCKED"
	StateHardLocked     DeviceState = "HARD_LOCKED"
	StateSuspended      DeviceState = "SUSPENDED"
	StatePaidOff        DeviceState = "PAID_OFF"
	StateStolenLocked   DeviceState = "STOLEN_LOCKED"
	StateDecommissioned DeviceState = "DECOMMISSIONED"
)

// EventType is a closed enumeration of events the engine accepts.
type EventType string

const (
	EventDPCEnrolled        EventType = "dpc.enrolled"
	EventPaymentReceived    EventType = "payment.received"
	EventPaymentOverdue     EventType = "payment.overdue"
	EventPaymentCompleted   EventType = "payment.completed"
	EventGraceExpired       EventType = "grace.expired"
	EventEscalationTimeout  EventType = "escalation.timeout"
	EventAdminSuspend       EventType = "admin.suspend"
	EventAdminReinstate     EventType = "admin.reinstate"
	EventAdminReportStolen  EventType = "admin.report_stolen"
	EventAdminRecover       EventType = "admin.recover"
	EventAdminDecommission  EventType = "admin.decommission"
	EventProvisioningFailed EventType = "provisioning.failed"
)

// CommandType is a closed enumeration of actuation commands the DPC can pick up.
type CommandType string

const (
	CommandLock             CommandType = "LOCK"
	CommandUnlock           CommandType = "UNLOCK"
	CommandWipe             CommandType = "WIPE"
	CommandSetRestrictions  CommandType = "SET_RESTRICTIONS"
)

type transitionKey struct {
	from  DeviceState
	event EventType
}

// transitions is the complete, compile-time (state, event) -> state relation.
// admin.decommission is deliberately absent here: the engine consults it as
// a wildcard after a normal lookup miss, per the universal-terminator rule.
var transitions = map[transitionKey]DeviceState{
	{StateProvisioning, EventDPCEnrolled}:        StateActive,
	{StateProvisioning, EventProvisioningFailed}: StateDecommissioned,

	{StateActive, EventPaymentOverdue}:    StateGracePeriod,
	{StateActive, EventPaymentCompleted}:  StatePaidOff,
	{StateActive, EventAdminSuspend}:      StateSuspended,
	{StateActive, EventAdminReportStolen}: StateStolenLocked,

	{StateGracePeriod, EventPaymentReceived}: StateActive,
	{StateGracePeriod, EventGraceExpired}:    StateSoftLocked,

	{StateSoftLocked, EventPaymentReceived}:   StateActive,
	{StateSoftLocked, EventEscalationTimeout}: StateHardLocked,

	{StateHardLocked, EventPaymentReceived}:   StateActive,
	{StateHardLocked, EventAdminSuspend}:      StateSuspended,
	{StateHardLocked, EventAdminReportStolen}: StateStolenLocked,

	{StateSuspended, EventAdminReinstate}: StateActive,

	{StateStolenLocked, EventAdminRecover}: StateSuspended,
}

// lookupTransition resolves the next state for (from, event), honoring the
// admin.decommission wildcard after a normal-table miss.
func lookupTransition(from DeviceState, event EventType) (DeviceState, bool) {
	if to, ok := transitions[transitionKey{from, event}]; ok {
		return to, true
	}
	if event == EventAdminDecommission {
		return StateDecommissioned, true
	}
	return "", false
}

// stateCommands maps a newly-entered state to the command the DPC must
// execute, when entering that state produces one.
var stateCommands = map[DeviceState]CommandType{
	StateActive:       CommandUnlock,
	StatePaidOff:      CommandUnlock,
	StateSoftLocked:   CommandLock,
	StateHardLocked:   CommandLock,
	StateSuspended:    CommandLock,
	StateStolenLocked: CommandLock,
	StateDecommissioned: CommandWipe,
}

// commandForState returns the command to enqueue for entering state, and
// whether one should be enqueued at all (GRACE_PERIOD and PROVISIONING emit none).
func commandForState(state DeviceState) (CommandType, bool) {
	cmd, ok := stateCommands[state]
	return cmd, ok
}

// lockProducingStates are the states whose entry counts against the
// circuit breaker's lock budget. SUSPENDED and STOLEN_LOCKED are
// admin-driven and excluded: they carry no fleet-wide lock-storm risk.
var lockProducingStates = map[DeviceState]bool{
	StateSoftLocked: true,
	StateHardLocked: true,
}

func isLockProducing(state DeviceState) bool {
	return lockProducingStates[state]
}

// Restrictions is the fixed set of boolean restrictions a PolicyTemplate can impose.
type Restrictions struct {
	NoUSB         bool `json:"no_usb"`
	NoCamera      bool `json:"no_camera"`
	NoInstallApps bool `json:"no_install_apps"`
}

// PolicyTemplate is the static per-state policy the DPC enforces.
type PolicyTemplate struct {
	Restrictions       Restrictions
	LockScreenMessage  string
	ProtectedPackages  []string
}

// protectedApp is the package identifier protected from uninstallation
// across every state that still recognizes the financed app.
const protectedApp = "com.fleetops.dpc"

// policyTemplates is the compile-time table of per-state policy, keyed by DeviceState.
var policyTemplates = map[DeviceState]PolicyTemplate{
	StateProvisioning: {
		Restrictions:      Restrictions{NoUSB: true, NoCamera: false, NoInstallApps: true},
		LockScreenMessage: "Setup in progress.",
		ProtectedPackages: []string{protectedApp},
	},
	StateActive: {
		Restrictions:      Restrictions{},
		LockScreenMessage: "",
		ProtectedPackages: []string{protectedApp},
	},
	StateGracePeriod: {
		Restrictions:      Restrictions{},
		LockScreenMessage: "Payment overdue. Please pay to avoid restrictions.",
		ProtectedPackages: []string{protectedApp},
	},
	StateSoftLocked: {
		Restrictions:      Restrictions{NoUSB: true, NoCamera: true, NoInstallApps: true},
		LockScreenMessage: "Device restricted due to missed payment. Pay now to restore access.",
		ProtectedPackages: []string{protectedApp},
	},
	StateHardLocked: {
		Restrictions:      Restrictions{NoUSB: true, NoCamera: true, NoInstallApps: true},
		LockScreenMessage: "Device locked. Contact support or make a payment to unlock.",
		ProtectedPackages: []string{protectedApp},
	},
	StateSuspended: {
		Restrictions:      Restrictions{NoUSB: true, NoCamera: true, NoInstallApps: true},
		LockScreenMessage: "Device suspended. Contact support.",
		ProtectedPackages: []string{protectedApp},
	},
	StatePaidOff: {
		Restrictions:      Restrictions{},
		LockScreenMessage: "",
		ProtectedPackages: nil,
	},
	StateStolenLocked: {
		Restrictions:      Restrictions{NoUSB: true, NoCamera: true, NoInstallApps: true},
		LockScreenMessage: "This device has been reported stolen. Contact authorities.",
		ProtectedPackages: nil,
	},
	StateDecommissioned: {
		Restrictions:      Restrictions{},
		LockScreenMessage: "Device decommissioned.",
		ProtectedPackages: nil,
	},
}

// templateFor returns the policy template for state, falling back to the
// ACTIVE template if state is somehow unrecognized (it never should be,
// since DeviceState is a closed enumeration enforced at the boundary).
func templateFor(state DeviceState) PolicyTemplate {
	if t, ok := policyTemplates[state]; ok {
		return t
	}
	return policyTemplates[StateActive]
}
