package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elementstore/objstore/internal/platform/logging"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	n := 0
	return New(logging.New("test", "error", "text"), nil, func() string {
		n++
		return "conn-" + string(rune('a'+n-1))
	})
}

func newTestConn(h *Hub, id string) *connection {
	c := &connection{
		id:         id,
		hub:        h,
		send:       make(chan []byte, outboundQueueCap),
		state:      stateReady,
		subClasses: make(map[string]bool),
		subObjects: make(map[string]bool),
	}
	h.mu.Lock()
	h.conns[id] = c
	h.mu.Unlock()
	return c
}

func recvFrame(t *testing.T, c *connection) map[string]any {
	t.Helper()
	select {
	case data := <-c.send:
		var frame map[string]any
		require.NoError(t, json.Unmarshal(data, &frame))
		return frame
	case <-time.After(time.Second):
		t.Fatalf("connection %s: timed out waiting for a frame", c.id)
		return nil
	}
}

func assertNoFrame(t *testing.T, c *connection) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("connection %s: expected no frame, got %s", c.id, string(data))
	case <-time.After(50 * time.Millisecond):
	}
}

// Scenario 5: A and B subscribe to the same class; A's own write does not
// echo back to A, but B receives exactly one changes frame.
func TestBroadcastSuppressesEchoToOriginatingConnection(t *testing.T) {
	h := newTestHub(t)
	a := newTestConn(h, "conn-a")
	b := newTestConn(h, "conn-b")

	a.handleFrame(clientFrame{Op: "subscribe", ClassID: "customer"})
	b.handleFrame(clientFrame{Op: "subscribe", ClassID: "customer"})

	h.Broadcast(context.Background(), ChangeEvent{
		Kind: "update", ClassID: "customer", ID: "c1",
		New:                map[string]any{"name": "ada"},
		OriginConnectionID: "conn-a",
	})

	assertNoFrame(t, a)
	frame := recvFrame(t, b)
	assert.Equal(t, "changes", frame["type"])
	items, ok := frame["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	entry := items[0].(map[string]any)
	assert.Equal(t, "c1", entry["id"])
	assert.Equal(t, "ada", entry["name"])
}

func TestBroadcastOnlyReachesSubscribers(t *testing.T) {
	h := newTestHub(t)
	subscribed := newTestConn(h, "conn-sub")
	other := newTestConn(h, "conn-other")

	subscribed.handleFrame(clientFrame{Op: "subscribe", ClassID: "customer"})

	h.Broadcast(context.Background(), ChangeEvent{
		Kind: "create", ClassID: "customer", ID: "c1", New: map[string]any{"name": "ada"},
	})

	recvFrame(t, subscribed)
	assertNoFrame(t, other)
}

func TestSubscribeObjectScopesToSingleID(t *testing.T) {
	h := newTestHub(t)
	watcher := newTestConn(h, "conn-watch")
	watcher.handleFrame(clientFrame{Op: "subscribe_object", ClassID: "customer", ID: "c1"})

	h.Broadcast(context.Background(), ChangeEvent{Kind: "update", ClassID: "customer", ID: "c2"})
	assertNoFrame(t, watcher)

	h.Broadcast(context.Background(), ChangeEvent{Kind: "update", ClassID: "customer", ID: "c1"})
	recvFrame(t, watcher)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := newTestHub(t)
	c := newTestConn(h, "conn-c")
	c.handleFrame(clientFrame{Op: "subscribe", ClassID: "customer"})
	c.handleFrame(clientFrame{Op: "unsubscribe", ClassID: "customer"})

	h.Broadcast(context.Background(), ChangeEvent{Kind: "update", ClassID: "customer", ID: "c1"})
	assertNoFrame(t, c)
}

func TestBroadcastMarksDeletedAndOldValue(t *testing.T) {
	h := newTestHub(t)
	c := newTestConn(h, "conn-d")
	c.handleFrame(clientFrame{Op: "subscribe", ClassID: "customer"})

	h.Broadcast(context.Background(), ChangeEvent{
		Kind: "delete", ClassID: "customer", ID: "c1", Old: map[string]any{"name": "ada"},
	})

	frame := recvFrame(t, c)
	items := frame["items"].([]any)
	entry := items[0].(map[string]any)
	assert.Equal(t, true, entry["_deleted"])
	assert.NotNil(t, entry["_old"])
}

func TestDeliverClosesConnectionWhenQueueCannotDrain(t *testing.T) {
	h := newTestHub(t)
	// An unbuffered, unread send channel means the drain-then-retry in
	// deliver fails both attempts on the very first call, closing the
	// connection rather than blocking the broadcaster.
	c := &connection{
		id:         "conn-full",
		hub:        h,
		send:       make(chan []byte),
		state:      stateReady,
		subClasses: map[string]bool{},
		subObjects: map[string]bool{},
	}
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()

	frame, _ := encodeFrame(map[string]any{"n": 1})
	c.deliver(frame)

	h.mu.RLock()
	_, stillPresent := h.conns[c.id]
	h.mu.RUnlock()
	assert.False(t, stillPresent, "connection should be removed when its outbound queue can't absorb a frame")
}

func TestRemoveConnIsIdempotent(t *testing.T) {
	h := newTestHub(t)
	c := newTestConn(h, "conn-gone")
	h.removeConn(c)
	assert.NotPanics(t, func() { h.removeConn(c) })
}
