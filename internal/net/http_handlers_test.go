package net

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"gridrun/server/internal/hub"
	"gridrun/server/internal/sim"
	"gridrun/server/levels/catalog"
)

func newTestHub(cfg hub.Config) *hub.Hub {
	if cfg.Session.SimulationsPerSecond == 0 {
		cfg.Session.SimulationsPerSecond = 120
	}
	if (cfg.Session.SpawnPoint == sim.Point{}) {
		cfg.Session.SpawnPoint = sim.Point{X: 4, Y: 4}
	}
	return hub.New(cfg, hub.Deps{})
}

func dialSocket(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("failed to decode %s: %v", string(data), err)
	}
}

func writeClientJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to encode message: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestJoinEndpointIssuesSession(t *testing.T) {
	h := newTestHub(hub.Config{})
	handler := NewHTTPHandler(h, HTTPHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/join", bytes.NewBufferString(`{"nickname":"ada"}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}
	if contentType := resp.Header().Get("Content-Type"); contentType != "application/json" {
		t.Fatalf("expected Content-Type application/json, got %q", contentType)
	}

	var join hub.JoinResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &join); err != nil {
		t.Fatalf("failed to decode join payload: %v", err)
	}
	if join.Token == "" {
		t.Fatalf("expected a session token")
	}
	if join.NetID == 0 {
		t.Fatalf("expected a player net id")
	}
	if join.Ver != hub.ProtocolVersion {
		t.Fatalf("expected protocol version %d, got %d", hub.ProtocolVersion, join.Ver)
	}
	if join.Config.SimulationsPerSecond != 120 {
		t.Fatalf("expected config echo, got %+v", join.Config)
	}
}

func TestJoinEndpointRejectsWrongMethod(t *testing.T) {
	h := newTestHub(hub.Config{})
	handler := NewHTTPHandler(h, HTTPHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/join", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405 Method Not Allowed, got %d", resp.Code)
	}
}

func TestJoinEndpointRejectsInvalidPayload(t *testing.T) {
	h := newTestHub(hub.Config{})
	handler := NewHTTPHandler(h, HTTPHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/join", bytes.NewBufferString("{"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 Bad Request, got %d", resp.Code)
	}
}

func TestHealthzEndpoint(t *testing.T) {
	h := newTestHub(hub.Config{})
	handler := NewHTTPHandler(h, HTTPHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}
	if body := resp.Body.String(); body != "ok" {
		t.Fatalf("expected ok body, got %q", body)
	}
}

func TestDiagnosticsListsSessions(t *testing.T) {
	h := newTestHub(hub.Config{})
	if _, err := h.Join("ada"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	handler := NewHTTPHandler(h, HTTPHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/diagnostics", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode diagnostics payload: %v", err)
	}
	if status, ok := payload["status"].(string); !ok || status != "ok" {
		t.Fatalf("expected status ok, got %v", payload["status"])
	}
	if sps, ok := payload["simulationsPerSecond"].(float64); !ok || sps != 120 {
		t.Fatalf("expected 120 simulations per second, got %v", payload["simulationsPerSecond"])
	}
	players, ok := payload["players"].([]any)
	if !ok {
		t.Fatalf("expected players array, got %T", payload["players"])
	}
	if len(players) != 1 {
		t.Fatalf("expected 1 player row, got %d", len(players))
	}
}

func TestSocketRejectsUnknownToken(t *testing.T) {
	h := newTestHub(hub.Config{})
	srv := httptest.NewServer(NewHTTPHandler(h, HTTPHandlerConfig{}))
	defer srv.Close()

	conn := dialSocket(t, srv, "no-such-token")
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestSocketDeliversBaselineAndAcksCommands(t *testing.T) {
	h := newTestHub(hub.Config{})
	srv := httptest.NewServer(NewHTTPHandler(h, HTTPHandlerConfig{}))
	defer srv.Close()

	join, err := h.Join("ada")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	conn := dialSocket(t, srv, join.Token)
	defer conn.Close()

	var baseline struct {
		Type     string `json:"type"`
		Sequence uint64 `json:"sequence"`
	}
	readJSON(t, conn, &baseline)
	if baseline.Type != "keyframe" || baseline.Sequence != 1 {
		t.Fatalf("expected baseline keyframe 1, got type %q sequence %d", baseline.Type, baseline.Sequence)
	}

	writeClientJSON(t, conn, map[string]any{"type": "move", "x": 12.0, "y": 6.0, "seq": 1})
	var ack struct {
		Type string `json:"type"`
		Seq  uint64 `json:"seq"`
	}
	readJSON(t, conn, &ack)
	if ack.Type != "commandAck" || ack.Seq != 1 {
		t.Fatalf("expected ack for sequence 1, got type %q seq %d", ack.Type, ack.Seq)
	}
	if got := h.Loop().Pending(); got != 2 {
		t.Fatalf("expected the spawn and move staged, got %d pending", got)
	}

	// A replayed sequence is re-acked without staging the command again.
	writeClientJSON(t, conn, map[string]any{"type": "move", "x": 99.0, "y": 6.0, "seq": 1})
	readJSON(t, conn, &ack)
	if ack.Type != "commandAck" || ack.Seq != 1 {
		t.Fatalf("expected duplicate ack for sequence 1, got type %q seq %d", ack.Type, ack.Seq)
	}
	if got := h.Loop().Pending(); got != 2 {
		t.Fatalf("expected the replay to be dropped, got %d pending", got)
	}
}

func TestSocketRejectsCommandWhenIntakeFull(t *testing.T) {
	h := newTestHub(hub.Config{Loop: sim.LoopConfig{CommandCapacity: 1}})
	srv := httptest.NewServer(NewHTTPHandler(h, HTTPHandlerConfig{}))
	defer srv.Close()

	join, err := h.Join("ada")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	conn := dialSocket(t, srv, join.Token)
	defer conn.Close()

	var baseline map[string]any
	readJSON(t, conn, &baseline)

	writeClientJSON(t, conn, map[string]any{"type": "move", "x": 1.0, "y": 1.0, "seq": 1})
	var reject struct {
		Type   string `json:"type"`
		Seq    uint64 `json:"seq"`
		Reason string `json:"reason"`
		Retry  bool   `json:"retry"`
	}
	readJSON(t, conn, &reject)
	if reject.Type != "commandReject" || reject.Seq != 1 {
		t.Fatalf("expected reject for sequence 1, got type %q seq %d", reject.Type, reject.Seq)
	}
	if reject.Reason != sim.CommandRejectQueueFull {
		t.Fatalf("expected reason %q, got %q", sim.CommandRejectQueueFull, reject.Reason)
	}
	if reject.Retry {
		t.Fatalf("expected no retry hint for a full intake")
	}
}

func TestSocketHeartbeatAckRoundTrip(t *testing.T) {
	h := newTestHub(hub.Config{})
	srv := httptest.NewServer(NewHTTPHandler(h, HTTPHandlerConfig{}))
	defer srv.Close()

	join, err := h.Join("ada")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	conn := dialSocket(t, srv, join.Token)
	defer conn.Close()

	var baseline map[string]any
	readJSON(t, conn, &baseline)
	h.AdvanceFrames(1)

	sent := time.Now().Add(-25 * time.Millisecond).UnixMilli()
	writeClientJSON(t, conn, map[string]any{"type": "heartbeat", "sentAt": sent})
	waitFor(t, func() bool { return h.Loop().Pending() == 1 })
	h.AdvanceFrames(1)

	var ack struct {
		Type       string `json:"type"`
		ClientTime int64  `json:"clientTime"`
		RTT        int64  `json:"rtt"`
	}
	readJSON(t, conn, &ack)
	if ack.Type != "heartbeat" {
		t.Fatalf("expected heartbeat ack, got %q", ack.Type)
	}
	if ack.ClientTime != sent {
		t.Fatalf("expected client time echo %d, got %d", sent, ack.ClientTime)
	}
	if ack.RTT < 25 || ack.RTT > 1000 {
		t.Fatalf("expected a round trip near 25ms, got %dms", ack.RTT)
	}
}

func TestSocketKeyframeRequestRoundTrip(t *testing.T) {
	h := newTestHub(hub.Config{})
	srv := httptest.NewServer(NewHTTPHandler(h, HTTPHandlerConfig{}))
	defer srv.Close()

	join, err := h.Join("ada")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	conn := dialSocket(t, srv, join.Token)
	defer conn.Close()

	var baseline map[string]any
	readJSON(t, conn, &baseline)

	writeClientJSON(t, conn, map[string]any{"type": "keyframeRequest", "keyframeSeq": 1})
	var served struct {
		Type     string `json:"type"`
		Sequence uint64 `json:"sequence"`
	}
	readJSON(t, conn, &served)
	if served.Type != "keyframe" || served.Sequence != 1 {
		t.Fatalf("expected keyframe 1, got type %q sequence %d", served.Type, served.Sequence)
	}

	writeClientJSON(t, conn, map[string]any{"type": "keyframeRequest", "keyframeSeq": 999})
	var nack struct {
		Type     string `json:"type"`
		Sequence uint64 `json:"sequence"`
		Reason   string `json:"reason"`
		Resync   bool   `json:"resync"`
	}
	readJSON(t, conn, &nack)
	if nack.Type != "keyframeNack" || nack.Sequence != 999 {
		t.Fatalf("expected nack for sequence 999, got type %q sequence %d", nack.Type, nack.Sequence)
	}
	if nack.Reason != "unavailable" || !nack.Resync {
		t.Fatalf("expected an unavailable nack advising resync, got %+v", nack)
	}
}

func TestSocketEditorObjectCommands(t *testing.T) {
	h := newTestHub(hub.Config{})
	srv := httptest.NewServer(NewHTTPHandler(h, HTTPHandlerConfig{}))
	defer srv.Close()

	join, err := h.Join("ada")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	conn := dialSocket(t, srv, join.Token)
	defer conn.Close()

	var baseline map[string]any
	readJSON(t, conn, &baseline)

	obj := sim.LevelObject{
		NetID: 7,
		Label: "lava-pit",
		Desc:  sim.LevelObjectDesc{Kind: sim.ShapeCube, Size: 2, Pos: sim.Point{X: 3, Y: 1}},
		Logic: sim.LogicDeath,
	}
	writeClientJSON(t, conn, map[string]any{"type": "spawnObject", "seq": 1, "object": obj})
	var ack struct {
		Type string `json:"type"`
		Seq  uint64 `json:"seq"`
	}
	readJSON(t, conn, &ack)
	if ack.Type != "commandAck" || ack.Seq != 1 {
		t.Fatalf("expected ack for sequence 1, got type %q seq %d", ack.Type, ack.Seq)
	}

	writeClientJSON(t, conn, map[string]any{"type": "despawnObject", "seq": 2, "netId": 7})
	readJSON(t, conn, &ack)
	if ack.Type != "commandAck" || ack.Seq != 2 {
		t.Fatalf("expected ack for sequence 2, got type %q seq %d", ack.Type, ack.Seq)
	}

	var reject struct {
		Type   string `json:"type"`
		Seq    uint64 `json:"seq"`
		Reason string `json:"reason"`
	}
	writeClientJSON(t, conn, map[string]any{"type": "spawnObject", "seq": 3})
	readJSON(t, conn, &reject)
	if reject.Type != "commandReject" || reject.Seq != 3 || reject.Reason != sim.CommandRejectMalformed {
		t.Fatalf("expected malformed reject for a bodyless spawn, got %+v", reject)
	}

	writeClientJSON(t, conn, map[string]any{"type": "despawnObject", "seq": 4})
	readJSON(t, conn, &reject)
	if reject.Type != "commandReject" || reject.Seq != 4 || reject.Reason != sim.CommandRejectMalformed {
		t.Fatalf("expected malformed reject for a despawn without a net id, got %+v", reject)
	}

	if got := h.Loop().Pending(); got != 3 {
		t.Fatalf("expected spawn, object spawn and object despawn staged, got %d pending", got)
	}
}

func TestSocketCatalogSpawn(t *testing.T) {
	resolver, err := catalog.NewResolver(catalog.Memory("inline.json", []byte(
		`[{"id": "lava-pit", "label": "Lava Pit", "logic": "death", "desc": {"kind": "cube", "size": 4}}]`,
	)))
	if err != nil {
		t.Fatalf("catalog load failed: %v", err)
	}

	h := newTestHub(hub.Config{})
	srv := httptest.NewServer(NewHTTPHandler(h, HTTPHandlerConfig{Catalog: resolver}))
	defer srv.Close()

	join, err := h.Join("ada")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	conn := dialSocket(t, srv, join.Token)
	defer conn.Close()

	var baseline map[string]any
	readJSON(t, conn, &baseline)

	writeClientJSON(t, conn, map[string]any{
		"type": "spawnObject", "seq": 1, "catalogId": "lava-pit", "netId": 9, "x": 2, "y": 5,
	})
	var ack struct {
		Type string `json:"type"`
		Seq  uint64 `json:"seq"`
	}
	readJSON(t, conn, &ack)
	if ack.Type != "commandAck" || ack.Seq != 1 {
		t.Fatalf("expected ack for catalog spawn, got type %q seq %d", ack.Type, ack.Seq)
	}
	if got := h.Loop().Pending(); got != 2 {
		t.Fatalf("expected join spawn and catalog spawn staged, got %d pending", got)
	}

	writeClientJSON(t, conn, map[string]any{
		"type": "spawnObject", "seq": 2, "catalogId": "bogus", "netId": 10,
	})
	var reject struct {
		Type   string `json:"type"`
		Seq    uint64 `json:"seq"`
		Reason string `json:"reason"`
	}
	readJSON(t, conn, &reject)
	if reject.Type != "commandReject" || reject.Seq != 2 || reject.Reason != sim.CommandRejectMalformed {
		t.Fatalf("expected malformed reject for unknown catalog id, got type %q seq %d reason %q",
			reject.Type, reject.Seq, reject.Reason)
	}
	if got := h.Loop().Pending(); got != 2 {
		t.Fatalf("expected rejected spawn to stage nothing, got %d pending", got)
	}
}
