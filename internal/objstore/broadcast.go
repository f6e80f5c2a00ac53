package objstore

import "context"

// ChangeEvent is the wire shape the engine hands to the broadcast emitter
// after every committed mutation.
type ChangeEvent struct {
	Kind               string `json:"kind"` // "change" | "delete"
	ClassID            string `json:"class_id"`
	ID                 string `json:"id"`
	New                Object `json:"new,omitempty"`
	Old                Object `json:"old,omitempty"`
	OriginConnectionID string `json:"origin_connection_id,omitempty"`
}

// Emitter delivers change events to the hub. Implementations must be
// fire-and-forget: a delivery failure is logged by the implementation and
// never propagated to the caller (spec §4.5, §7 propagation policy).
type Emitter interface {
	Emit(ctx context.Context, event ChangeEvent)
}

// noopEmitter discards every event; used when the engine is constructed
// without a broadcast target (e.g. genesis-only tooling, tests).
type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, ChangeEvent) {}
