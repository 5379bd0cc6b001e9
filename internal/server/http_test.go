package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/talkstream/talkstream/internal/capture"
	"github.com/talkstream/talkstream/internal/config"
	"github.com/talkstream/talkstream/internal/controller"
	"github.com/talkstream/talkstream/internal/metrics"
)

// fakeControl is a scripted controller
type fakeControl struct {
	mu        sync.Mutex
	status    controller.Status
	toggleErr error
	windowErr error
	toggles   []capture.Mode
	windows   []capture.WindowTarget
}

func (c *fakeControl) Toggle(mode capture.Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toggles = append(c.toggles, mode)
	return c.toggleErr
}

func (c *fakeControl) SetWindow(target capture.WindowTarget) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windows = append(c.windows, target)
	return c.windowErr
}

func (c *fakeControl) CurrentState() controller.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T, control *fakeControl) *httptest.Server {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	cfg := config.Default()

	h := NewHTTPServer(cfg.HTTP, testLogger(), cfg, control, m, reg)
	mux := http.NewServeMux()
	h.setupRoutes(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestStateEndpoint(t *testing.T) {
	control := &fakeControl{status: controller.Status{State: "active", Mode: "screen", Speaking: true, SessionID: "abc"}}
	server := newTestServer(t, control)

	resp, err := http.Get(server.URL + "/state")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var status controller.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if status.State != "active" || !status.Speaking || status.SessionID != "abc" {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestStateRejectsPost(t *testing.T) {
	server := newTestServer(t, &fakeControl{})

	resp, err := http.Post(server.URL+"/state", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}

func TestToggleDefaultsToConfiguredMode(t *testing.T) {
	control := &fakeControl{}
	server := newTestServer(t, control)

	resp, err := http.Post(server.URL+"/toggle", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	control.mu.Lock()
	defer control.mu.Unlock()
	if len(control.toggles) != 1 || control.toggles[0] != capture.ModeScreen {
		t.Errorf("expected one screen toggle, got %v", control.toggles)
	}
}

func TestToggleWithExplicitMode(t *testing.T) {
	control := &fakeControl{}
	server := newTestServer(t, control)

	body := bytes.NewBufferString(`{"mode":"none"}`)
	resp, err := http.Post(server.URL+"/toggle", "application/json", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	control.mu.Lock()
	defer control.mu.Unlock()
	if len(control.toggles) != 1 || control.toggles[0] != capture.ModeNone {
		t.Errorf("expected one voice-only toggle, got %v", control.toggles)
	}
}

func TestToggleRejectsUnknownMode(t *testing.T) {
	server := newTestServer(t, &fakeControl{})

	body := bytes.NewBufferString(`{"mode":"desktop"}`)
	resp, err := http.Post(server.URL+"/toggle", "application/json", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestToggleBusyMapsToConflict(t *testing.T) {
	control := &fakeControl{toggleErr: controller.ErrBusy}
	server := newTestServer(t, control)

	resp, err := http.Post(server.URL+"/toggle", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", resp.StatusCode)
	}
}

func TestToggleStartFailureMapsToBadGateway(t *testing.T) {
	control := &fakeControl{toggleErr: errors.New("endpoint unreachable")}
	server := newTestServer(t, control)

	resp, err := http.Post(server.URL+"/toggle", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", resp.StatusCode)
	}
}

func TestWindowEndpoint(t *testing.T) {
	control := &fakeControl{}
	server := newTestServer(t, control)

	body := bytes.NewBufferString(`{"display":1,"x":10,"y":20,"width":640,"height":480,"title":"editor"}`)
	resp, err := http.Post(server.URL+"/window", "application/json", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	control.mu.Lock()
	defer control.mu.Unlock()
	if len(control.windows) != 1 {
		t.Fatalf("expected one window call, got %d", len(control.windows))
	}
	want := capture.WindowTarget{Display: 1, X: 10, Y: 20, Width: 640, Height: 480, Title: "editor"}
	if control.windows[0] != want {
		t.Errorf("unexpected target %+v", control.windows[0])
	}
}

func TestWindowRejectsInvalidBody(t *testing.T) {
	server := newTestServer(t, &fakeControl{})

	resp, err := http.Post(server.URL+"/window", "application/json", bytes.NewBufferString("{"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, &fakeControl{status: controller.Status{State: "idle", Mode: "screen"}})

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var health map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("unexpected health %+v", health)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, &fakeControl{})

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestEventsFeedPushesState(t *testing.T) {
	control := &fakeControl{status: controller.Status{State: "active", Mode: "window", Speaking: true}}
	server := newTestServer(t, control)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var status controller.Status
	if err := conn.ReadJSON(&status); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if status.State != "active" || status.Mode != "window" || !status.Speaking {
		t.Errorf("unexpected snapshot %+v", status)
	}
}
