package ws

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pgbouncer-lab/liveload/internal/lifecycle"
	"github.com/pgbouncer-lab/liveload/internal/snapshot"
)

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	securityHeaders(inner).ServeHTTP(rec, req)

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"X-XSS-Protection":        "1; mode=block",
		"Content-Security-Policy": "default-src 'self'",
	}

	for header, expected := range want {
		if got := rec.Header().Get(header); got != expected {
			t.Errorf("header %s = %q, want %q", header, got, expected)
		}
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{"no origin", "", "example.com:8080", true},
		{"same host", "http://example.com:8080", "example.com:8080", true},
		{"localhost", "http://localhost:3000", "example.com:8080", true},
		{"loopback v4", "http://127.0.0.1:3000", "example.com:8080", true},
		{"loopback v6", "http://[::1]:3000", "example.com:8080", true},
		{"foreign", "http://evil.test", "example.com:8080", false},
		{"lookalike", "http://localhost.evil.test", "example.com:8080", false},
		{"garbage", "://", "example.com:8080", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := checkOrigin(req); got != tt.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	s := NewServer("127.0.0.1:0")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/snapshot")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status before first render = %d, want 503", resp.StatusCode)
	}

	s.Render(snapshot.Snapshot{
		Mode:        "cohort",
		StateCounts: map[lifecycle.State]int{lifecycle.Active: 2},
	})

	resp, err = http.Get(ts.URL + "/api/snapshot")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var msg Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != MsgSnapshot || msg.Payload.Mode != "cohort" {
		t.Errorf("decoded %+v", msg)
	}
	if got := msg.Payload.Count(lifecycle.Active); got != 2 {
		t.Errorf("active count = %d, want 2", got)
	}
}

func TestHealthz(t *testing.T) {
	ts := httptest.NewServer(NewServer("").Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok\n" {
		t.Errorf("healthz = %d %q", resp.StatusCode, body)
	}
}

func readSnapshot(t *testing.T, conn *websocket.Conn) snapshot.Snapshot {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return *msg.Payload
}

func TestWebSocketStream(t *testing.T) {
	s := NewServer("")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	s.Render(snapshot.Snapshot{Mode: "first"})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if got := readSnapshot(t, conn).Mode; got != "first" {
		t.Errorf("initial snapshot mode = %q, want first", got)
	}

	s.Render(snapshot.Snapshot{Mode: "second", Final: true})
	got := readSnapshot(t, conn)
	if got.Mode != "second" || !got.Final {
		t.Errorf("streamed snapshot = %+v", got)
	}
	if n := s.broadcaster.ClientCount(); n != 1 {
		t.Errorf("ClientCount() = %d, want 1", n)
	}
}

func TestStartClose(t *testing.T) {
	s := NewServer("127.0.0.1:0")
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if err := s.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if _, err := http.Get("http://" + s.Addr() + "/healthz"); err == nil {
		t.Error("server still answering after Close")
	}
}

func TestCloseWithoutStart(t *testing.T) {
	if err := NewServer("127.0.0.1:0").Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
