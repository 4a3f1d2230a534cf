package ws_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/godlewis/process-list/internal/cache"
	"github.com/godlewis/process-list/internal/record"
	"github.com/godlewis/process-list/internal/refresh"
	wsHub "github.com/godlewis/process-list/internal/ws"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seededCache(t *testing.T) *cache.Cache {
	t.Helper()
	c := cache.New(time.Minute)
	c.Rebuild([]record.Record{
		{ID: "100", Name: "nginx", Owner: "www", Ports: []string{"80"}},
		{ID: "200", Name: "redis", Owner: "redis", Ports: []string{"6379"}},
	})
	return c
}

// startHub starts a test HTTP server with the hub as its handler and the
// Run loop consuming from a buffered results channel.
func startHub(t *testing.T, c *cache.Cache) (wsURL string, hub *wsHub.Hub, results chan refresh.Result, cancel context.CancelFunc) {
	t.Helper()

	hub = wsHub.New(c, discardLogger())
	results = make(chan refresh.Result, 4)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx, results)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub, results, cancelFn
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(msg, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", msg, err)
	}
	return m
}

func TestHubConnectReceivesValidity(t *testing.T) {
	wsURL, _, _, _ := startHub(t, seededCache(t))

	conn := dial(t, wsURL)
	m := readJSON(t, conn)

	if m["event"] != "validity" {
		t.Fatalf("event: got %v, want validity", m["event"])
	}
	data, ok := m["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("data: missing or wrong type")
	}
	if data["state"] != "valid" {
		t.Errorf("state: got %v, want valid", data["state"])
	}
	if data["records"] != float64(2) {
		t.Errorf("records: got %v, want 2", data["records"])
	}
}

func TestHubBroadcastsRefreshSuccess(t *testing.T) {
	wsURL, _, results, _ := startHub(t, seededCache(t))

	conn := dial(t, wsURL)
	readJSON(t, conn) // consume the validity message

	results <- refresh.Result{
		Trigger: refresh.TriggerForced,
		Records: []record.Record{{ID: "1"}, {ID: "2"}, {ID: "3"}},
		At:      time.Now(),
		Took:    42 * time.Millisecond,
	}

	m := readJSON(t, conn)
	if m["event"] != "refresh" {
		t.Fatalf("event: got %v, want refresh", m["event"])
	}
	if m["ok"] != true {
		t.Errorf("ok: got %v, want true", m["ok"])
	}
	if m["trigger"] != "forced" {
		t.Errorf("trigger: got %v, want forced", m["trigger"])
	}
	if m["records"] != float64(3) {
		t.Errorf("records: got %v, want 3", m["records"])
	}
}

func TestHubBroadcastsRefreshFailure(t *testing.T) {
	wsURL, _, results, _ := startHub(t, seededCache(t))

	conn := dial(t, wsURL)
	readJSON(t, conn)

	results <- refresh.Result{
		Trigger: refresh.TriggerPeriodic,
		Err:     errors.New("fetch: permission denied"),
		At:      time.Now(),
	}

	m := readJSON(t, conn)
	if m["event"] != "refresh" {
		t.Fatalf("event: got %v, want refresh", m["event"])
	}
	if m["ok"] != false {
		t.Errorf("ok: got %v, want false", m["ok"])
	}
	if m["error"] != "fetch: permission denied" {
		t.Errorf("error: got %v", m["error"])
	}
}

func TestHubAllClientsReceiveBroadcast(t *testing.T) {
	wsURL, _, results, _ := startHub(t, seededCache(t))

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dial(t, wsURL)
		readJSON(t, conns[i])
	}

	results <- refresh.Result{Trigger: refresh.TriggerRequested, At: time.Now()}

	for i, conn := range conns {
		m := readJSON(t, conn)
		if m["event"] != "refresh" {
			t.Errorf("client %d: event: got %v, want refresh", i, m["event"])
		}
	}
}

func TestHubCountTracksClients(t *testing.T) {
	wsURL, hub, _, _ := startHub(t, seededCache(t))

	conn := dial(t, wsURL)
	readJSON(t, conn)
	time.Sleep(10 * time.Millisecond)
	if n := hub.Count(); n != 1 {
		t.Fatalf("Count: got %d, want 1", n)
	}

	_ = conn.Close()
	time.Sleep(50 * time.Millisecond) // let readPump detect the close
	if n := hub.Count(); n != 0 {
		t.Fatalf("Count after disconnect: got %d, want 0", n)
	}
}

func TestHubCancelClosesConnections(t *testing.T) {
	wsURL, hub, _, cancel := startHub(t, seededCache(t))

	conn := dial(t, wsURL)
	readJSON(t, conn)
	time.Sleep(10 * time.Millisecond)

	cancel()
	time.Sleep(50 * time.Millisecond)
	if n := hub.Count(); n != 0 {
		t.Fatalf("Count after cancel: got %d, want 0", n)
	}
}

func TestHubNonWebSocketRequestReturns400(t *testing.T) {
	hub := wsHub.New(seededCache(t), discardLogger())
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", resp.StatusCode)
	}
}
