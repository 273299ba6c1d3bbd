package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/store"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSplitTopics(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", []string{}},
		{"patients", []string{"patients"}},
		{" patients , billing,,", []string{"patients", "billing"}},
	}
	for _, tt := range tests {
		got := splitTopics(tt.raw)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("splitTopics(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	e := echo.New()
	NewHandler(NewHub(zerolog.Nop()), nil).RegisterRoutes(e.Group(""))

	found := false
	for _, r := range e.Routes() {
		if r.Method == http.MethodGet && r.Path == "/ws" {
			found = true
		}
	}
	if !found {
		t.Error("expected GET /ws route")
	}
}

func TestHandler_PlainHTTPRejected(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	NewHandler(hub, nil).RegisterRoutes(e.Group(""))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if hub.Subscribers() != 0 {
		t.Error("rejected request must not join the hub")
	}
}

func TestHandler_CheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", []string{"https://clinic.example"}, "", true},
		{"listed origin", []string{"https://clinic.example"}, "https://clinic.example", true},
		{"unlisted origin", []string{"https://clinic.example"}, "https://evil.example", false},
		{"wildcard", []string{"*"}, "https://anything.example", true},
		{"nothing allowed", nil, "https://clinic.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(NewHub(zerolog.Nop()), tt.allowed)
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := h.upgrader.CheckOrigin(req); got != tt.want {
				t.Errorf("CheckOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestHandler_StreamsStoreChanges(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	NewHandler(hub, []string{"*"}).RegisterRoutes(e.Group(""))

	server := httptest.NewServer(e)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?topics=patients"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}
	waitFor(t, "patients follower", func() bool { return hub.Followers(TopicPatients) == 1 })

	// A malformed frame is skipped, not fatal.
	if err := conn.WriteMessage(gorillawebsocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(Command{Action: "subscribe", Topics: []string{TopicBilling}}); err != nil {
		t.Fatalf("failed to send command: %v", err)
	}
	waitFor(t, "billing follower", func() bool { return hub.Followers(TopicBilling) == 1 })

	records := store.New[int]("billing")
	records.Subscribe(hub.Forward(TopicBilling))
	records.Add(1)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if received.Type != "record.created" || received.Topic != TopicBilling || received.Collection != "billing" {
		t.Fatalf("unexpected event %+v", received)
	}

	conn.Close()
	waitFor(t, "subscriber to leave", func() bool { return hub.Subscribers() == 0 })
}
