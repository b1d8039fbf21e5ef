package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", h.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) WSEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev WSEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return ev
}

func TestHub_BroadcastsEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub(zerolog.Nop())
	go h.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWs))
	defer srv.Close()

	a, b := dial(t, srv), dial(t, srv)
	waitClients(t, h, 2)

	h.Notify("message", map[string]string{"contactId": "5511", "text": "oi"})

	for _, conn := range []*websocket.Conn{a, b} {
		ev := readEvent(t, conn)
		if ev.Type != "message" {
			t.Fatalf("event type = %q", ev.Type)
		}
		data, _ := ev.Data.(map[string]any)
		if data["text"] != "oi" {
			t.Fatalf("event data = %v", ev.Data)
		}
	}

	a.Close()
	waitClients(t, h, 1)
}

func TestHub_ReplaysLastQR(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub(zerolog.Nop())
	go h.Run(ctx)
	h.Notify("qr", "2@abc")

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWs))
	defer srv.Close()
	conn := dial(t, srv)

	ev := readEvent(t, conn)
	if ev.Type != "qr" || ev.Data != "2@abc" {
		t.Fatalf("replayed event = %+v", ev)
	}
}

func TestHub_NotifyNeverBlocks(t *testing.T) {
	h := NewHub(zerolog.Nop())
	done := make(chan struct{})
	go func() {
		for i := 0; i < sendBuffer*2; i++ {
			h.Notify("pause", i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Notify blocked without a running hub")
	}
}
