package hub

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// BroadcastIngress wires POST /broadcast (the emitter's delivery target)
// and GET /ws (the client-facing WebSocket upgrade) onto r.
func (h *Hub) BroadcastIngress(r *mux.Router) {
	r.HandleFunc("/broadcast", h.handleBroadcastIngress).Methods(http.MethodPost)
	r.HandleFunc("/ws", h.ServeWS).Methods(http.MethodGet)
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
}

func (h *Hub) handleBroadcastIngress(w http.ResponseWriter, r *http.Request) {
	var event ChangeEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid broadcast payload"})
		return
	}
	h.Broadcast(r.Context(), event)
	w.WriteHeader(http.StatusAccepted)
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "service": "objhub"})
}
