// Package storage defines the narrow provider contract the engine depends on
// (C1) and the generic Object type providers persist.
package storage

import "context"

// Object is a storage-agnostic map of attribute name to value. Providers
// never interpret its keys — that is the registry/validator's job.
type Object = map[string]any

// Provider is the contract every storage backend implements. Per §4.1:
// durability of a successful Put precedes broadcast; per-id Put linearizes;
// List returns a torn-free snapshot with respect to concurrent writes on
// other ids; providers never couple to schema.
type Provider interface {
	// Get returns the object stored under (classID, id), or ok=false if absent.
	Get(ctx context.Context, classID, id string) (Object, bool, error)

	// List returns every object currently stored for classID. Order is
	// unspecified but the slice reflects one consistent snapshot.
	List(ctx context.Context, classID string) ([]Object, error)

	// Put atomically creates or replaces the object at (classID, id).
	Put(ctx context.Context, classID, id string, obj Object) error

	// Delete removes (classID, id), reporting whether anything was removed.
	Delete(ctx context.Context, classID, id string) (bool, error)

	// Exists reports whether classID has an underlying container at all
	// (distinct from having zero objects).
	Exists(ctx context.Context, classID string) (bool, error)

	// Drop removes every object of classID and its container.
	Drop(ctx context.Context, classID string) (bool, error)

	// Init lazily creates the underlying container for classID.
	Init(ctx context.Context, classID string) error
}
