package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-kinetic/pkg/capture"
	"github.com/teslashibe/go-kinetic/pkg/kinetic"
	"github.com/teslashibe/go-kinetic/pkg/metrics"
	"github.com/teslashibe/go-kinetic/pkg/scenario"
	"github.com/teslashibe/go-kinetic/pkg/session"
)

type fakeController struct {
	mu       sync.Mutex
	state    session.State
	started  []string
	stops    int
	StartErr error
	StopErr  error
	logs     []kinetic.LogEntry
	subs     []func(kinetic.Update)
}

func (f *fakeController) Start(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
	if f.StartErr != nil {
		return f.StartErr
	}
	f.state = session.Connecting
	return nil
}

func (f *fakeController) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.state = session.Disconnected
	return f.StopErr
}

func (f *fakeController) Snapshot() kinetic.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return kinetic.Snapshot{State: f.state, Transcript: "hello"}
}

func (f *fakeController) Logs() []kinetic.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs
}

func (f *fakeController) Scenarios() []scenario.Scenario {
	return scenario.Default().List()
}

func (f *fakeController) Subscribe(fn func(kinetic.Update)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
	return func() {}
}

type fakeOfferer struct {
	got webrtc.SessionDescription
	err error
}

func (f *fakeOfferer) HandleOffer(_ context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	f.got = offer
	if f.err != nil {
		return webrtc.SessionDescription{}, f.err
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func do(t *testing.T, s *Server, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func TestStatus(t *testing.T) {
	s := NewServer(&fakeController{}, Config{})
	code, body := do(t, s, http.MethodGet, "/api/status", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var snap map[string]any
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatal(err)
	}
	if snap["state"] != "DISCONNECTED" || snap["transcript"] != "hello" {
		t.Errorf("snapshot = %v", snap)
	}
}

func TestScenariosAndLogs(t *testing.T) {
	ctrl := &fakeController{logs: []kinetic.LogEntry{{Origin: kinetic.OriginSystem, Text: "hi", Severity: kinetic.SeverityText}}}
	s := NewServer(ctrl, Config{})

	code, body := do(t, s, http.MethodGet, "/api/scenarios", "")
	var list []scenario.Scenario
	if code != http.StatusOK || json.Unmarshal(body, &list) != nil {
		t.Fatalf("scenarios: %d %s", code, body)
	}
	if len(list) != 4 || list[0].ID != scenario.DefaultID {
		t.Errorf("scenarios = %+v", list)
	}
	if strings.Contains(string(body), "Current Context") {
		t.Error("scenario context leaked into the listing")
	}

	code, body = do(t, s, http.MethodGet, "/api/logs", "")
	if code != http.StatusOK || !strings.Contains(string(body), `"text":"hi"`) {
		t.Errorf("logs: %d %s", code, body)
	}

	ctrl.logs = nil
	_, body = do(t, s, http.MethodGet, "/api/logs", "")
	if strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("empty logs = %s", body)
	}
}

func TestStartStop(t *testing.T) {
	ctrl := &fakeController{}
	s := NewServer(ctrl, Config{})

	code, body := do(t, s, http.MethodPost, "/api/session/start", `{"scenario_id":"wiring"}`)
	if code != http.StatusAccepted {
		t.Fatalf("start = %d %s", code, body)
	}
	if len(ctrl.started) != 1 || ctrl.started[0] != "wiring" {
		t.Errorf("started = %v", ctrl.started)
	}

	code, _ = do(t, s, http.MethodPost, "/api/session/start", "")
	if code != http.StatusAccepted || ctrl.started[1] != "" {
		t.Errorf("start without body = %d, %v", code, ctrl.started)
	}

	code, body = do(t, s, http.MethodPost, "/api/session/stop", "")
	if code != http.StatusOK || !strings.Contains(string(body), "DISCONNECTED") {
		t.Errorf("stop = %d %s", code, body)
	}

	ctrl.StopErr = errors.New("camera: close failed")
	code, body = do(t, s, http.MethodPost, "/api/session/stop", "")
	if code != http.StatusInternalServerError || !strings.Contains(string(body), "close failed") {
		t.Errorf("stop with error = %d %s", code, body)
	}
}

func TestStartErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"config", &kinetic.ConfigError{Field: "api_key", Err: errors.New("missing")}, http.StatusBadRequest},
		{"unknown scenario", scenario.ErrUnknown, http.StatusNotFound},
		{"running", kinetic.ErrAlreadyRunning, http.StatusConflict},
		{"permission", &capture.AcquisitionError{Track: "video", Err: capture.ErrPermissionDenied}, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(&fakeController{StartErr: tt.err}, Config{})
			code, body := do(t, s, http.MethodPost, "/api/session/start", `{}`)
			if code != tt.want {
				t.Errorf("status = %d, want %d (%s)", code, tt.want, body)
			}
			if !strings.Contains(string(body), `"error"`) {
				t.Errorf("body = %s", body)
			}
		})
	}

	s := NewServer(&fakeController{}, Config{})
	if code, _ := do(t, s, http.MethodPost, "/api/session/start", `{bad`); code != http.StatusBadRequest {
		t.Errorf("bad body = %d", code)
	}
}

func TestOffer(t *testing.T) {
	s := NewServer(&fakeController{}, Config{})
	if code, _ := do(t, s, http.MethodPost, "/api/rtc/offer", `{"type":"offer","sdp":"v=0"}`); code != http.StatusNotFound {
		t.Errorf("offer without receiver = %d", code)
	}

	rtc := &fakeOfferer{}
	s = NewServer(&fakeController{}, Config{RTC: rtc})
	code, body := do(t, s, http.MethodPost, "/api/rtc/offer", `{"type":"offer","sdp":"v=0"}`)
	if code != http.StatusOK {
		t.Fatalf("offer = %d %s", code, body)
	}
	if rtc.got.Type != webrtc.SDPTypeOffer || rtc.got.SDP != "v=0" {
		t.Errorf("offer received = %+v", rtc.got)
	}
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(body, &answer); err != nil || answer.Type != webrtc.SDPTypeAnswer {
		t.Errorf("answer = %s", body)
	}

	if code, _ := do(t, s, http.MethodPost, "/api/rtc/offer", `{"type":"offer"}`); code != http.StatusBadRequest {
		t.Errorf("empty sdp = %d", code)
	}
	rtc.err = errors.New("ice failed")
	if code, _ := do(t, s, http.MethodPost, "/api/rtc/offer", `{"type":"offer","sdp":"v=0"}`); code != http.StatusBadGateway {
		t.Errorf("failed negotiation = %d", code)
	}
}

func TestMetrics(t *testing.T) {
	m := metrics.New(nil)
	m.Interruptions.Inc()
	s := NewServer(&fakeController{}, Config{Metrics: m.Handler()})

	code, body := do(t, s, http.MethodGet, "/metrics", "")
	if code != http.StatusOK || !strings.Contains(string(body), "kinetic_interruptions_total 1") {
		t.Errorf("metrics = %d\n%s", code, body)
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s := NewServer(&fakeController{}, Config{})
	if code, _ := do(t, s, http.MethodGet, "/ws/status", ""); code != http.StatusUpgradeRequired {
		t.Errorf("plain GET /ws/status = %d", code)
	}
}

func TestRunSubscribesOnce(t *testing.T) {
	ctrl := &fakeController{}
	s := NewServer(ctrl, Config{})
	s.Run()
	s.Run()
	defer s.Shutdown()

	if len(ctrl.subs) != 1 {
		t.Fatalf("subscriptions = %d", len(ctrl.subs))
	}
	// Forwarding never blocks, even with no websocket clients.
	for i := 0; i < 10; i++ {
		ctrl.subs[0](kinetic.Update{Kind: kinetic.UpdateStatus})
		ctrl.subs[0](kinetic.Update{Kind: kinetic.UpdateLog, Cleared: true})
		ctrl.subs[0](kinetic.Update{Kind: kinetic.UpdateFrame, Frame: []byte{0xff}})
	}
}
