// Package broadcast implements the engine-side half of the change-broadcast
// plane (C5): it posts commit events to the WebSocket hub over HTTP and
// never lets a delivery failure fail the originating request.
package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/elementstore/objstore/internal/objstore"
	"github.com/elementstore/objstore/internal/platform/logging"
	"github.com/elementstore/objstore/internal/platform/metrics"
)

// postTimeout bounds each fire-and-forget delivery attempt; it is
// intentionally short since a slow hub must never back-pressure the write
// path (§4.5, §5 suspension points).
const postTimeout = 2 * time.Second

// HTTPEmitter posts ChangeEvents to the hub's POST /broadcast endpoint.
type HTTPEmitter struct {
	hubURL  string
	client  *http.Client
	log     *logging.Logger
	metrics *metrics.Metrics
}

// NewHTTPEmitter returns an emitter targeting hubURL (e.g.
// "http://localhost:8081"). log and m may be nil.
func NewHTTPEmitter(hubURL string, log *logging.Logger, m *metrics.Metrics) *HTTPEmitter {
	if log == nil {
		log = logging.NewFromEnv("objstore-emitter")
	}
	return &HTTPEmitter{
		hubURL:  hubURL,
		client:  &http.Client{Timeout: postTimeout},
		log:     log,
		metrics: m,
	}
}

// Emit implements objstore.Emitter. Delivery is best-effort: failures are
// logged and counted, never returned to the caller.
func (e *HTTPEmitter) Emit(ctx context.Context, event objstore.ChangeEvent) {
	go e.deliver(event)
	_ = ctx
}

func (e *HTTPEmitter) deliver(event objstore.ChangeEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		e.log.WithError(err).Warn("broadcast: failed to encode change event")
		e.recordOutcome(event.Kind, "encode_error")
		return
	}

	reqCtx, cancel := context.WithTimeout(context.Background(), postTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.hubURL+"/broadcast", bytes.NewReader(body))
	if err != nil {
		e.log.WithError(err).Warn("broadcast: failed to build request")
		e.recordOutcome(event.Kind, "request_error")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		e.log.WithFields(map[string]any{"class_id": event.ClassID, "id": event.ID}).
			WithError(err).Warn("broadcast: hub unreachable, event dropped")
		e.recordOutcome(event.Kind, "unreachable")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		e.log.WithFields(map[string]any{"class_id": event.ClassID, "id": event.ID, "status": resp.StatusCode}).
			Warn("broadcast: hub rejected event")
		e.recordOutcome(event.Kind, "rejected")
		return
	}
	e.recordOutcome(event.Kind, "ok")
}

func (e *HTTPEmitter) recordOutcome(kind, outcome string) {
	if e.metrics == nil {
		return
	}
	e.metrics.BroadcastsTotal.WithLabelValues(kind, outcome).Inc()
}
