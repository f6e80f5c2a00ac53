package objstore

import "context"

// ctxKey namespaces context values this package injects, keeping it
// collision-free with keys set by unrelated packages (e.g. the logging
// package's trace/principal keys).
type ctxKey int

const (
	ctxEnforceOwnership ctxKey = iota
	ctxAllowCustomIDs
	ctxPrincipal
	ctxOriginConnectionID
)

// Capabilities bundles the per-request runtime flags the shell derives from
// headers (§4.3 State & capabilities). The engine itself is immutable after
// construction; these are injected per call via context, never stored on
// the Engine.
type Capabilities struct {
	EnforceOwnership bool
	AllowCustomIDs   bool
	Principal        string
}

// WithCapabilities returns a context carrying c for the engine to consult.
func WithCapabilities(ctx context.Context, c Capabilities) context.Context {
	ctx = context.WithValue(ctx, ctxEnforceOwnership, c.EnforceOwnership)
	ctx = context.WithValue(ctx, ctxAllowCustomIDs, c.AllowCustomIDs)
	ctx = context.WithValue(ctx, ctxPrincipal, c.Principal)
	return ctx
}

// WithOriginConnectionID attaches the WebSocket echo-suppression hint
// (X-WS-Connection-Id) to ctx.
func WithOriginConnectionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxOriginConnectionID, id)
}

func enforceOwnership(ctx context.Context) bool {
	v, _ := ctx.Value(ctxEnforceOwnership).(bool)
	return v
}

func allowCustomIDs(ctx context.Context) bool {
	v, _ := ctx.Value(ctxAllowCustomIDs).(bool)
	return v
}

func principalOf(ctx context.Context) string {
	v, _ := ctx.Value(ctxPrincipal).(string)
	return v
}

func originConnectionID(ctx context.Context) string {
	v, _ := ctx.Value(ctxOriginConnectionID).(string)
	return v
}

// DefaultCapabilities returns the spec defaults: ownership enforced, custom
// ids disallowed, no principal.
func DefaultCapabilities() Capabilities {
	return Capabilities{EnforceOwnership: true, AllowCustomIDs: false}
}
