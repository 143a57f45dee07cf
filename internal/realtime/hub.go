package realtime

import (
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/chatline/chatline/pkg/logging"
)

// sendBuffer is the per-client frame backlog; a client that falls further
// behind starts losing frames rather than stalling the broadcaster.
const sendBuffer = 64

// Hub tracks WebSocket subscribers per tenant and broadcasts frames to
// them. Broadcast never blocks on a slow client.
type Hub struct {
	logger *logging.Logger

	mu   sync.RWMutex
	subs map[int64]map[*subscriber]struct{}
}

type subscriber struct {
	conn *websocket.Conn
	send chan Frame
	once sync.Once
	done chan struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		logger: logger,
		subs:   make(map[int64]map[*subscriber]struct{}),
	}
}

// Broadcast delivers an event to every subscriber of the tenant. Frames to
// clients with a full backlog are dropped.
func (h *Hub) Broadcast(tenantID int64, event string, payload any) {
	frame := Frame{Event: event, Payload: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[tenantID] {
		select {
		case sub.send <- frame:
		default:
			h.logger.Warn("realtime subscriber backlog full, dropping frame", "tenant_id", tenantID, "event", event)
		}
	}
}

// SubscriberCount reports how many clients a tenant has connected.
func (h *Hub) SubscriberCount(tenantID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[tenantID])
}

// HandleWebSocket upgrades the request and pins the connection to the
// tenant in the `tenant` query parameter until the client goes away.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tenantID, err := strconv.ParseInt(r.URL.Query().Get("tenant"), 10, 64)
	if err != nil || tenantID <= 0 {
		http.Error(w, "invalid tenant parameter", http.StatusBadRequest)
		return
	}
	websocket.Handler(func(conn *websocket.Conn) {
		h.serve(conn, tenantID)
	}).ServeHTTP(w, r)
}

func (h *Hub) serve(conn *websocket.Conn, tenantID int64) {
	sub := &subscriber{
		conn: conn,
		send: make(chan Frame, sendBuffer),
		done: make(chan struct{}),
	}
	h.attach(tenantID, sub)
	defer h.detach(tenantID, sub)

	h.logger.Info("realtime connection opened", "tenant_id", tenantID)

	go func() {
		for {
			select {
			case frame := <-sub.send:
				if err := websocket.JSON.Send(conn, frame); err != nil {
					sub.close()
					return
				}
			case <-sub.done:
				return
			}
		}
	}()

	// Drain the client side; anything it sends is a keepalive.
	for {
		var discard map[string]any
		if err := websocket.JSON.Receive(conn, &discard); err != nil {
			h.logger.Debug("realtime connection closed", "tenant_id", tenantID, "error", err)
			sub.close()
			return
		}
	}
}

func (sub *subscriber) close() {
	sub.once.Do(func() { close(sub.done) })
}

func (h *Hub) attach(tenantID int64, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[tenantID] == nil {
		h.subs[tenantID] = make(map[*subscriber]struct{})
	}
	h.subs[tenantID][sub] = struct{}{}
}

func (h *Hub) detach(tenantID int64, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[tenantID], sub)
	if len(h.subs[tenantID]) == 0 {
		delete(h.subs, tenantID)
	}
}
