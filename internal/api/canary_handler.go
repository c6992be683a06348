package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetops/devicepolicy/internal/devicepolicy"
	"github.com/fleetops/devicepolicy/internal/httpserver"
	"github.com/fleetops/devicepolicy/internal/telemetry"
)

// CanaryHandler exposes the canary rollout controller (component D) as an
// operator surface: start a rollout, feed it health observations, and read
// its current status.
type CanaryHandler struct {
	canary *devicepolicy.CanaryController
	notify devicepolicy.Notifier
	logger *slog.Logger
}

// NewCanaryHandler creates a CanaryHandler over controller. notifier may be nil.
func NewCanaryHandler(controller *devicepolicy.CanaryController, notifier devicepolicy.Notifier, logger *slog.Logger) *CanaryHandler {
	return &CanaryHandler{canary: controller, notify: notifier, logger: logger}
}

// Routes returns a chi.Router with the canary operator routes mounted.
func (h *CanaryHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/start", h.handleStart)
	r.Post("/evaluate", h.handleEvaluate)
	r.Get("/status", h.handleStatus)
	return r
}

type evaluateRequest struct {
	ErrorRate         float64 `json:"error_rate"`
	HeartbeatLossRate float64 `json:"heartbeat_loss_rate"`
}

func (h *CanaryHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	version := r.URL.Query().Get("version")
	if version == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "version query parameter is required")
		return
	}

	status := h.canary.StartRollout(version)
	telemetry.CanaryStageGauge.Set(0)
	httpserver.Respond(w, http.StatusOK, status)
}

func (h *CanaryHandler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	status := h.canary.EvaluateAndAdvance(req.ErrorRate, req.HeartbeatLossRate)

	switch status.Status {
	case "rolled_back":
		h.notifyRollback(r.Context(), status.Reason)
		telemetry.NotificationsTotal.WithLabelValues("canary_rollback").Inc()
	case "promoted", "ga_complete":
		telemetry.CanaryStageGauge.Set(float64(stageIndexFor(status.Stage)))
	}

	httpserver.Respond(w, http.StatusOK, status)
}

func (h *CanaryHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	httpserver.Respond(w, http.StatusOK, h.canary.CurrentStatus())
}

func stageIndexFor(stage string) int {
	switch stage {
	case "CANARY":
		return 0
	case "STAGED":
		return 1
	case "BROAD":
		return 2
	case "GA":
		return 3
	default:
		return -1
	}
}

// notifyRollback posts the rollback reason to the configured notifier, if any.
func (h *CanaryHandler) notifyRollback(ctx context.Context, reason string) {
	if h.notify == nil {
		return
	}
	if err := h.notify.PostMessage(ctx, "canary rollout rolled back: "+reason); err != nil {
		h.logger.Warn("failed to post canary rollback notification", "error", err)
	}
}
