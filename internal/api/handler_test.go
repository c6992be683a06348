package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/fleetops/devicepolicy/internal/devicepolicy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler() *Handler {
	repo := devicepolicy.NewMemoryRepository()
	breaker := devicepolicy.NewCircuitBreaker(devicepolicy.BreakerConfig{})
	var mu sync.Mutex
	engine := devicepolicy.NewEngine(repo, breaker, testLogger(), nil, &mu)
	dispatcher := devicepolicy.NewDispatcher(repo)
	admin := devicepolicy.NewAdmin(repo, breaker, testLogger(), nil, &mu)
	return NewHandler(engine, dispatcher, admin, testLogger())
}

func newTestRouter() chi.Router {
	r := chi.NewRouter()
	r.Mount("/", newTestHandler().Routes())
	return r
}

func postJSON(t *testing.T, router chi.Router, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleEvent_EnrollmentToActive(t *testing.T) {
	router := newTestRouter()

	w := postJSON(t, router, "/event", `{"serial_number":"SN1","event_type":"dpc.enrolled"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", w.Code, w.Body.String())
	}

	var resp EventResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.FromState != devicepolicy.StateProvisioning || resp.ToState != devicepolicy.StateActive {
		t.Errorf("resp = %+v, want PROVISIONING -> ACTIVE", resp)
	}
}

func TestHandleEvent_Validation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"missing serial", `{"event_type":"dpc.enrolled"}`, http.StatusUnprocessableEntity},
		{"missing event type", `{"serial_number":"SN1"}`, http.StatusUnprocessableEntity},
		{"invalid JSON", `{bad}`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
	}

	router := newTestRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, router, "/event", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestHandleEvent_InvalidTransition(t *testing.T) {
	router := newTestRouter()

	w := postJSON(t, router, "/event", `{"serial_number":"SN1","event_type":"payment.received"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body = %s", w.Code, w.Body.String())
	}
}

func TestHandleEvent_Duplicate(t *testing.T) {
	router := newTestRouter()

	body := `{"serial_number":"SN1","event_type":"dpc.enrolled","transaction_id":"T1"}`
	postJSON(t, router, "/event", body)
	w := postJSON(t, router, "/event", body)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", w.Code, w.Body.String())
	}

	var resp DuplicateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Status != "duplicate" {
		t.Errorf("status field = %q, want duplicate", resp.Status)
	}
}

func TestHandleGetPolicy_NotFound(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/policy/ghost", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body = %s", w.Code, w.Body.String())
	}
}

func TestHandleGetPolicy_Found(t *testing.T) {
	router := newTestRouter()
	postJSON(t, router, "/event", `{"serial_number":"SN1","event_type":"dpc.enrolled"}`)

	req := httptest.NewRequest(http.MethodGet, "/policy/SN1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", w.Code, w.Body.String())
	}

	var resp PolicyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.DeviceState != devicepolicy.StateActive {
		t.Errorf("device_state = %s, want ACTIVE", resp.DeviceState)
	}
}

func TestHandleGetCommandsAndAck(t *testing.T) {
	router := newTestRouter()
	postJSON(t, router, "/event", `{"serial_number":"SN1","event_type":"dpc.enrolled"}`)

	req := httptest.NewRequest(http.MethodGet, "/commands/SN1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var listResp struct {
		Serial   string              `json:"serial"`
		Commands []CommandEntryView `json:"commands"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(listResp.Commands) != 1 {
		t.Fatalf("commands = %+v, want exactly one", listResp.Commands)
	}

	ackReq := httptest.NewRequest(http.MethodPost, "/commands/"+listResp.Commands[0].ID+"/ack", nil)
	ackW := httptest.NewRecorder()
	router.ServeHTTP(ackW, ackReq)
	if ackW.Code != http.StatusOK {
		t.Fatalf("ack status = %d, want 200, body = %s", ackW.Code, ackW.Body.String())
	}
}

func TestHandleAckCommand_NotFound(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/commands/does-not-exist/ack", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body = %s", w.Code, w.Body.String())
	}
}

func TestHandleDeleteDevice(t *testing.T) {
	router := newTestRouter()
	postJSON(t, router, "/event", `{"serial_number":"SN1","event_type":"dpc.enrolled"}`)

	req := httptest.NewRequest(http.MethodDelete, "/device/SN1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", w.Code, w.Body.String())
	}

	getReq := httptest.NewRequest(http.MethodGet, "/policy/SN1", nil)
	getW := httptest.NewRecorder()
	router.ServeHTTP(getW, getReq)
	if getW.Code != http.StatusNotFound {
		t.Errorf("policy after delete status = %d, want 404", getW.Code)
	}
}

func TestHandleListDevices(t *testing.T) {
	router := newTestRouter()
	postJSON(t, router, "/event", `{"serial_number":"SN1","event_type":"dpc.enrolled"}`)
	postJSON(t, router, "/event", `{"serial_number":"SN2","event_type":"dpc.enrolled"}`)

	req := httptest.NewRequest(http.MethodGet, "/devices", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp struct {
		Devices []DeviceSummaryView `json:"devices"`
		Total   int                 `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Total)
	}
}

func TestHandleEmergencyUnlock(t *testing.T) {
	router := newTestRouter()

	for _, serial := range []string{"SN1", "SN2"} {
		postJSON(t, router, "/event", `{"serial_number":"`+serial+`","event_type":"dpc.enrolled"}`)
		postJSON(t, router, "/event", `{"serial_number":"`+serial+`","event_type":"admin.suspend"}`)
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/emergency-unlock?reason=incident", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		UnlockedCount int    `json:"unlocked_count"`
		Reason        string `json:"reason"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.UnlockedCount != 2 {
		t.Errorf("unlocked_count = %d, want 2", resp.UnlockedCount)
	}
	if resp.Reason != "incident" {
		t.Errorf("reason = %q, want incident", resp.Reason)
	}
}
