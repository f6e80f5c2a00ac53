package hub

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

// clientFrame is the shape of every inbound text frame (§6).
type clientFrame struct {
	Op      string `json:"op"`
	ClassID string `json:"class_id"`
	ID      string `json:"id"`
}

func encodeFrame(v any) ([]byte, error) {
	return json.Marshal(v)
}

// readPump consumes client frames until the socket closes, applying
// subscribe/unsubscribe/ping ops. It owns the read side exclusively, per
// gorilla/websocket's single-reader requirement.
func (c *connection) readPump() {
	defer c.hub.removeConn(c)

	c.ws.SetReadDeadline(time.Now().Add(idleTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.missedPongs = 0
		c.mu.Unlock()
		c.ws.SetReadDeadline(time.Now().Add(idleTimeout))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		c.handleFrame(frame)
	}
}

func (c *connection) handleFrame(frame clientFrame) {
	switch frame.Op {
	case "subscribe":
		if frame.ClassID == "" {
			return
		}
		c.mu.Lock()
		c.subClasses[frame.ClassID] = true
		c.mu.Unlock()
		if c.hub.metrics != nil {
			c.hub.metrics.HubSubscriptions.Inc()
		}
	case "subscribe_object":
		if frame.ClassID == "" || frame.ID == "" {
			return
		}
		c.mu.Lock()
		c.subObjects[subscriptionKey(frame.ClassID, frame.ID)] = true
		c.mu.Unlock()
		if c.hub.metrics != nil {
			c.hub.metrics.HubSubscriptions.Inc()
		}
	case "unsubscribe":
		c.mu.Lock()
		if frame.ID != "" {
			delete(c.subObjects, subscriptionKey(frame.ClassID, frame.ID))
		} else {
			delete(c.subClasses, frame.ClassID)
		}
		c.mu.Unlock()
		if c.hub.metrics != nil {
			c.hub.metrics.HubSubscriptions.Dec()
		}
	case "ping":
		pong, _ := encodeFrame(map[string]any{"type": "pong"})
		c.deliver(pong)
	}
}

// writePump drains c.send and writes frames to the socket, additionally
// driving the ping/pong liveness check. It owns the write side exclusively.
func (c *connection) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.ws.Close()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(idleTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.mu.Lock()
			c.missedPongs++
			missed := c.missedPongs
			c.mu.Unlock()
			if missed > missedPongLimit {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(idleTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
