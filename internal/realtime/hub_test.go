package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"
)

func dial(t *testing.T, srv *httptest.Server, tenant string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?tenant=" + tenant
	conn, err := websocket.Dial(url, "", srv.URL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, hub *Hub, tenantID int64, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.SubscriberCount(tenantID) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("tenant %d subscribers never reached %d", tenantID, want)
}

func TestHubBroadcastScopedByTenant(t *testing.T) {
	hub := NewHub(nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWebSocket)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn1 := dial(t, srv, "1")
	conn2 := dial(t, srv, "2")
	waitForSubscribers(t, hub, 1, 1)
	waitForSubscribers(t, hub, 2, 1)

	hub.Broadcast(1, EventTicket, TicketEvent{Action: ActionUpdate, TicketID: 77})

	var frame Frame
	conn1.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := websocket.JSON.Receive(conn1, &frame); err != nil {
		t.Fatalf("receive on tenant 1: %v", err)
	}
	if frame.Event != EventTicket {
		t.Fatalf("event = %q", frame.Event)
	}
	payload, ok := frame.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload type %T", frame.Payload)
	}
	if payload["action"] != ActionUpdate {
		t.Fatalf("action = %v", payload["action"])
	}
	if payload["ticketId"] != float64(77) {
		t.Fatalf("ticketId = %v", payload["ticketId"])
	}

	// Tenant 2 must not see tenant 1 traffic.
	conn2.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var stray Frame
	if err := websocket.JSON.Receive(conn2, &stray); err == nil {
		t.Fatalf("tenant 2 received stray frame: %+v", stray)
	}
}

func TestHubDetachOnDisconnect(t *testing.T) {
	hub := NewHub(nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWebSocket)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dial(t, srv, "5")
	waitForSubscribers(t, hub, 5, 1)

	conn.Close()
	waitForSubscribers(t, hub, 5, 0)
}

func TestHubRejectsBadTenant(t *testing.T) {
	hub := NewHub(nil)
	req := httptest.NewRequest(http.MethodGet, "/ws?tenant=abc", nil)
	rec := httptest.NewRecorder()
	hub.HandleWebSocket(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
