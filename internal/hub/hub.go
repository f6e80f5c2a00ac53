// Package hub implements the stateless WebSocket change-broadcast fan-out
// (C6): connections subscribe by class_id or (class_id, id), the engine's
// emitter posts commits to /broadcast, and the hub pushes "changes" frames
// to every subscriber except the one that originated the commit.
package hub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/elementstore/objstore/internal/platform/logging"
	"github.com/elementstore/objstore/internal/platform/metrics"
)

const (
	pingInterval    = 30 * time.Second
	missedPongLimit = 2
	handshakeTimeout = 5 * time.Second
	idleTimeout      = 60 * time.Second
	outboundQueueCap = 64
)

// state is a connection's position in the {opening, ready, closed} machine.
type state int

const (
	stateOpening state = iota
	stateReady
	stateClosed
)

// ChangeEvent mirrors objstore.ChangeEvent's wire shape; the hub package
// intentionally does not import internal/objstore, keeping it a reusable
// fan-out primitive decoupled from the schema engine.
type ChangeEvent struct {
	Kind               string `json:"kind"`
	ClassID            string `json:"class_id"`
	ID                 string `json:"id"`
	New                map[string]any `json:"new,omitempty"`
	Old                map[string]any `json:"old,omitempty"`
	OriginConnectionID string `json:"origin_connection_id,omitempty"`
}

// changeItem is one entry of a "changes" server frame.
type changeItem struct {
	ClassID string `json:"class_id"`
	ID      string `json:"id"`
	Deleted bool   `json:"_deleted,omitempty"`
	Old     any    `json:"_old,omitempty"`
	Fields  map[string]any
}

// connection is one accepted WebSocket client.
type connection struct {
	id       string
	ws       *websocket.Conn
	send     chan []byte
	hub      *Hub
	mu       sync.Mutex
	state    state
	missedPongs int

	subClasses map[string]bool
	subObjects map[string]bool // keyed by "class_id\x00id"
}

// Hub is the stateless fan-out server. It holds no durable subscription
// state across restarts (§4.5: "no persistence").
type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*connection

	log     *logging.Logger
	metrics *metrics.Metrics
	nextID  func() string
}

// New returns a Hub. idGen mints connection ids (e.g. uuid.NewString).
func New(log *logging.Logger, m *metrics.Metrics, idGen func() string) *Hub {
	if log == nil {
		log = logging.NewFromEnv("objstore-hub")
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			HandshakeTimeout: handshakeTimeout,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
		conns:   make(map[string]*connection),
		log:     log,
		metrics: m,
		nextID:  idGen,
	}
}

// ServeWS upgrades r to a WebSocket and runs the connection's read/write
// pumps until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("hub: upgrade failed")
		return
	}

	c := &connection{
		id:         h.nextID(),
		ws:         ws,
		send:       make(chan []byte, outboundQueueCap),
		hub:        h,
		state:      stateOpening,
		subClasses: make(map[string]bool),
		subObjects: make(map[string]bool),
	}

	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.HubConnections.Inc()
	}

	c.mu.Lock()
	c.state = stateReady
	c.mu.Unlock()

	hello, _ := encodeFrame(map[string]any{"type": "hello", "connection_id": c.id})
	c.send <- hello

	go c.writePump()
	c.readPump()
}

// removeConn drops c from the registry and closes its socket; safe to call
// more than once.
func (h *Hub) removeConn(c *connection) {
	h.mu.Lock()
	_, existed := h.conns[c.id]
	delete(h.conns, c.id)
	h.mu.Unlock()
	if !existed {
		return
	}
	if h.metrics != nil {
		h.metrics.HubConnections.Dec()
	}
	c.mu.Lock()
	c.state = stateClosed
	c.mu.Unlock()
	close(c.send)
	if c.ws != nil {
		c.ws.Close()
	}
}

// Broadcast fans event out to every subscriber of its class or its
// (class_id, id) pair, skipping the originating connection. Multiple
// concurrent broadcasts for the same class preserve arrival order per
// subscriber because each connection drains its own ordered channel.
func (h *Hub) Broadcast(ctx context.Context, event ChangeEvent) {
	item := changeItem{
		ClassID: event.ClassID,
		ID:      event.ID,
		Deleted: event.Kind == "delete",
		Old:     event.Old,
		Fields:  event.New,
	}
	frame, err := encodeFrame(changesFrame(item))
	if err != nil {
		h.log.WithError(err).Warn("hub: failed to encode changes frame")
		return
	}

	objKey := subscriptionKey(event.ClassID, event.ID)

	h.mu.RLock()
	targets := make([]*connection, 0, len(h.conns))
	for _, c := range h.conns {
		if c.id == event.OriginConnectionID {
			continue
		}
		c.mu.Lock()
		subscribed := c.subClasses[event.ClassID] || c.subObjects[objKey]
		c.mu.Unlock()
		if subscribed {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.deliver(frame)
	}
	_ = ctx
}

func subscriptionKey(classID, id string) string { return classID + "\x00" + id }

// changesFrame wraps item as the batch "changes" server frame shape (§6).
func changesFrame(item changeItem) map[string]any {
	entry := map[string]any{"id": item.ID, "class_id": item.ClassID}
	for k, v := range item.Fields {
		entry[k] = v
	}
	if item.Deleted {
		entry["_deleted"] = true
	}
	if item.Old != nil {
		entry["_old"] = item.Old
	}
	return map[string]any{"type": "changes", "items": []any{entry}}
}

// deliver enqueues frame on c's outbound queue; a full queue drops the
// oldest pending frame and retries once, and if that retry also fails the
// connection is removed (§5).
func (c *connection) deliver(frame []byte) {
	select {
	case c.send <- frame:
	default:
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- frame:
		default:
			c.hub.log.WithFields(map[string]any{"connection_id": c.id}).
				Warn("hub: outbound queue saturated twice, closing connection")
			c.hub.removeConn(c)
		}
	}
}
