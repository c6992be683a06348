// Package api implements the HTTP boundary (component H): request/response
// DTOs and the chi routes that translate them onto the devicepolicy engine,
// dispatcher, and admin surface.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetops/devicepolicy/internal/devicepolicy"
	"github.com/fleetops/devicepolicy/internal/httpserver"
)

// Handler wires the devicepolicy core onto HTTP routes.
type Handler struct {
	engine     *devicepolicy.Engine
	dispatcher *devicepolicy.Dispatcher
	admin      *devicepolicy.Admin
	logger     *slog.Logger
}

// NewHandler creates a Handler over the given core components.
func NewHandler(engine *devicepolicy.Engine, dispatcher *devicepolicy.Dispatcher, admin *devicepolicy.Admin, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, dispatcher: dispatcher, admin: admin, logger: logger}
}

// Routes returns a chi.Router with every external interface from the
// device-policy route table mounted at its named path.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/event", h.handleEvent)
	r.Get("/policy/{serial}", h.handleGetPolicy)
	r.Get("/commands/{serial}", h.handleGetCommands)
	r.Post("/commands/{id}/ack", h.handleAckCommand)
	r.Get("/audit/{serial}", h.handleGetAudit)
	r.Delete("/device/{serial}", h.handleDeleteDevice)
	r.Get("/devices", h.handleListDevices)
	r.Post("/admin/emergency-unlock", h.handleEmergencyUnlock)
	return r
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	actor := req.Actor
	if actor == "" {
		actor = "system"
	}

	result, err := h.engine.ApplyEvent(r.Context(), devicepolicy.EventPayload{
		Serial:        req.SerialNumber,
		EventType:     devicepolicy.EventType(req.EventType),
		TransactionID: req.TransactionID,
		Actor:         actor,
		Metadata:      req.Metadata,
	})
	if err != nil {
		h.respondCoreError(w, r, "applying event", err)
		return
	}

	if result.Duplicate {
		httpserver.Respond(w, http.StatusOK, DuplicateResponse{
			Status:  "duplicate",
			Message: "transaction already processed",
		})
		return
	}

	httpserver.Respond(w, http.StatusOK, EventResponse{
		Status:    "ok",
		Serial:    result.Serial,
		FromState: result.FromState,
		ToState:   result.ToState,
		Event:     result.Event,
	})
}

func (h *Handler) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	policy, err := h.engine.GetPolicy(r.Context(), serial)
	if err != nil {
		h.respondCoreError(w, r, "getting policy", err)
		return
	}

	httpserver.Respond(w, http.StatusOK, newPolicyResponse(policy))
}

func (h *Handler) handleGetCommands(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	commands, err := h.dispatcher.Pending(r.Context(), serial)
	if err != nil {
		h.respondCoreError(w, r, "listing pending commands", err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"serial":   serial,
		"commands": newCommandEntryViews(commands),
	})
}

func (h *Handler) handleAckCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.dispatcher.Ack(r.Context(), id); err != nil {
		h.respondCoreError(w, r, "acknowledging command", err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{
		"status":     "ok",
		"command_id": id,
	})
}

func (h *Handler) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	records, err := h.admin.GetAudit(r.Context(), serial)
	if err != nil {
		h.respondCoreError(w, r, "listing audit records", err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"serial":  serial,
		"records": newAuditRecordViews(records),
	})
}

func (h *Handler) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	removedAudit, removedCommands, err := h.admin.DeleteDevice(r.Context(), serial)
	if err != nil {
		h.respondCoreError(w, r, "deleting device", err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"status":               "ok",
		"serial":               serial,
		"removed_audit_records": removedAudit,
		"removed_commands":     removedCommands,
	})
}

func (h *Handler) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.admin.ListDevices(r.Context())
	if err != nil {
		h.respondCoreError(w, r, "listing devices", err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"devices": newDeviceSummaryViews(devices),
		"total":   len(devices),
	})
}

func (h *Handler) handleEmergencyUnlock(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "unspecified"
	}

	result, err := h.admin.EmergencyUnlock(r.Context(), reason)
	if err != nil {
		h.respondCoreError(w, r, "running emergency unlock", err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"unlocked_count":   result.UnlockedCount,
		"unlocked_devices": result.UnlockedDevices,
		"reason":           result.Reason,
	})
}

// respondCoreError maps the closed devicepolicy error taxonomy onto HTTP
// status codes per the error handling design: InvalidTransition -> 409,
// NotFound -> 404, CircuitOpen -> 503, anything else -> 500.
func (h *Handler) respondCoreError(w http.ResponseWriter, r *http.Request, action string, err error) {
	var invalidTransition *devicepolicy.InvalidTransitionError
	var notFound *devicepolicy.NotFoundError
	var circuitOpen *devicepolicy.CircuitOpenError

	switch {
	case errors.As(err, &invalidTransition):
		httpserver.RespondError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.As(err, &notFound):
		httpserver.RespondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &circuitOpen):
		httpserver.RespondError(w, http.StatusServiceUnavailable, "circuit_open", err.Error())
	default:
		h.logger.Error(action, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "an internal error occurred")
	}
}
