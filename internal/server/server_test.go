package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/san-kum/bounce/internal/config"
	"github.com/san-kum/bounce/internal/synth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestSession(t *testing.T) (*Session, *gin.Engine) {
	t.Helper()
	hub := NewHub(nil)
	s := NewSession(config.DefaultConfig(), synth.NewRecorder(), hub, nil)
	t.Cleanup(s.Close)
	return s, NewRouter(s, nil)
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	_, router := newTestSession(t)
	w := do(t, router, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	decode(t, w, &body)
	if body["status"] != "ok" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestWallRoutes(t *testing.T) {
	_, router := newTestSession(t)

	var before config.Scene
	decode(t, do(t, router, http.MethodGet, "/api/v1/scene", ""), &before)

	w := do(t, router, http.MethodPost, "/api/v1/walls", `{"from":[-1,0],"to":[1,0]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		ID   uint32 `json:"id"`
		Note string `json:"note"`
	}
	decode(t, w, &created)
	if created.ID == 0 || created.Note == "" {
		t.Errorf("expected an id and a bound note, got %+v", created)
	}

	var after config.Scene
	decode(t, do(t, router, http.MethodGet, "/api/v1/scene", ""), &after)
	if len(after.Walls) != len(before.Walls)+1 {
		t.Errorf("expected %d walls, got %d", len(before.Walls)+1, len(after.Walls))
	}

	w = do(t, router, http.MethodPost, "/api/v1/walls", `{"from":[1,1],"to":[1,1]}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("degenerate wall: expected 422, got %d", w.Code)
	}
	w = do(t, router, http.MethodPost, "/api/v1/walls", `{"from":`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json: expected 400, got %d", w.Code)
	}
}

func TestDispenserSteps(t *testing.T) {
	_, router := newTestSession(t)

	w := do(t, router, http.MethodPost, "/api/v1/dispensers", `{"at":[0,2],"pattern":"x..............."}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		ID uint32 `json:"id"`
	}
	decode(t, w, &created)
	base := "/api/v1/dispensers/" + jsonNumber(created.ID) + "/steps/"

	tests := []struct {
		name string
		step string
		body string
		code int
		on   bool
	}{
		{"toggle on", "3", "", http.StatusOK, true},
		{"toggle off", "3", "", http.StatusOK, false},
		{"explicit on", "5", `{"on":true}`, http.StatusOK, true},
		{"explicit on again", "5", `{"on":true}`, http.StatusOK, true},
		{"pattern step", "0", `{"on":false}`, http.StatusOK, false},
		{"out of range", "16", "", http.StatusBadRequest, false},
		{"not a number", "x", "", http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPut, base+tt.step, tt.body)
			if w.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
			if tt.code != http.StatusOK {
				return
			}
			var got struct {
				On bool `json:"on"`
			}
			decode(t, w, &got)
			if got.On != tt.on {
				t.Errorf("expected on=%v, got %v", tt.on, got.On)
			}
		})
	}

	w = do(t, router, http.MethodPut, "/api/v1/dispensers/999/steps/1", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown dispenser: expected 404, got %d", w.Code)
	}
}

func jsonNumber(n uint32) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestDeleteBody(t *testing.T) {
	_, router := newTestSession(t)

	var created struct {
		ID uint32 `json:"id"`
	}
	decode(t, do(t, router, http.MethodPost, "/api/v1/walls", `{"from":[-1,-1],"to":[1,-1]}`), &created)

	path := "/api/v1/bodies/" + jsonNumber(created.ID)
	if w := do(t, router, http.MethodDelete, path, ""); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w := do(t, router, http.MethodDelete, path, ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/api/v1/bodies/0", ""); w.Code != http.StatusBadRequest {
		t.Errorf("zero id: expected 400, got %d", w.Code)
	}
}

func TestTransportAndTempo(t *testing.T) {
	s, router := newTestSession(t)

	w := do(t, router, http.MethodPost, "/api/v1/transport/start", "")
	var state struct {
		Running bool `json:"running"`
	}
	decode(t, w, &state)
	if !state.Running {
		t.Error("expected transport running after start")
	}
	decode(t, do(t, router, http.MethodPost, "/api/v1/transport/stop", ""), &state)
	if state.Running {
		t.Error("expected transport stopped after stop")
	}

	tests := []struct {
		body string
		want int
	}{
		{`{"bpm":140}`, 140},
		{`{"bpm":1000}`, 240},
		{`{"bpm":10}`, 40},
	}
	for _, tt := range tests {
		var got struct {
			Tempo int `json:"tempo"`
		}
		decode(t, do(t, router, http.MethodPut, "/api/v1/transport/tempo", tt.body), &got)
		if got.Tempo != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.body, tt.want, got.Tempo)
		}
	}
	if s.engine.Tempo() != 40 {
		t.Errorf("engine tempo not applied: %d", s.engine.Tempo())
	}
}

func TestPresets(t *testing.T) {
	_, router := newTestSession(t)

	var list []map[string]any
	decode(t, do(t, router, http.MethodGet, "/api/v1/presets", ""), &list)
	if len(list) != len(config.Presets) {
		t.Fatalf("expected %d presets, got %d", len(config.Presets), len(list))
	}

	name := config.ListPresets()[0]
	if w := do(t, router, http.MethodPost, "/api/v1/presets/"+name, ""); w.Code != http.StatusOK {
		t.Errorf("load %s: expected 200, got %d: %s", name, w.Code, w.Body.String())
	}
	var scene config.Scene
	decode(t, do(t, router, http.MethodGet, "/api/v1/scene", ""), &scene)
	if len(scene.Walls) != len(config.Presets[name].Walls) {
		t.Errorf("expected %d walls after loading %s, got %d", len(config.Presets[name].Walls), name, len(scene.Walls))
	}

	if w := do(t, router, http.MethodPost, "/api/v1/presets/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown preset: expected 404, got %d", w.Code)
	}
}

func TestCommand(t *testing.T) {
	s, _ := newTestSession(t)

	err := s.Command(Command{Type: "wall", Data: json.RawMessage(`{"from":[0,0],"to":[2,0]}`)})
	if err != nil {
		t.Fatalf("wall: %v", err)
	}
	if n := len(s.engine.Scene().Walls); n == 0 {
		t.Error("expected the wall in the scene")
	}
	if err := s.Command(Command{Type: "start"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !s.engine.Sequencer().Running() {
		t.Error("expected transport running")
	}
	if err := s.Command(Command{Type: "tempo"}); err == nil {
		t.Error("expected an error for tempo without data")
	}
	if err := s.Command(Command{Type: "bogus"}); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}
	if err := s.Command(Command{Type: "preset", Data: json.RawMessage(`{"name":"nope"}`)}); !errors.Is(err, ErrUnknownPreset) {
		t.Errorf("expected ErrUnknownPreset, got %v", err)
	}
}

func TestClosedSession(t *testing.T) {
	s, router := newTestSession(t)
	s.Close()
	if w := do(t, router, http.MethodGet, "/api/v1/snapshot", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after close, got %d", w.Code)
	}
}

func TestWebSocket(t *testing.T) {
	s, router := newTestSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)

	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(Command{Type: "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var msg struct {
		Type string `json:"type"`
		Data string `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "error" || !strings.Contains(msg.Data, "bogus") {
		t.Errorf("expected an error reply, got %+v", msg)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.hub.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.hub.Len() != 1 {
		t.Fatalf("expected 1 client, got %d", s.hub.Len())
	}

	s.hub.Broadcast(Message{Type: "snapshot", Data: s.engine.Snapshot()})
	var snap struct {
		Type string `json:"type"`
	}
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if snap.Type != "snapshot" {
		t.Errorf("expected a snapshot, got %q", snap.Type)
	}
}
