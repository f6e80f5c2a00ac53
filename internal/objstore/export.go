package objstore

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
)

// Bundle is the content-addressed export snapshot (C8, §4.7). ID is derived
// from a hash of everything but ExportedAt, so identical content always
// yields the same id.
type Bundle struct {
	ID         string              `json:"id"`
	ExportedAt string              `json:"exported_at"`
	Version    int                 `json:"version"`
	Classes    []Object            `json:"classes"`
	Data       map[string][]Object `json:"data"`
}

const bundleFormatVersion = 1

// Export snapshots every committed class (meta and user) and every non-meta
// object into a Bundle.
func (e *Engine) Export(ctx context.Context) (Bundle, error) {
	classObjs, err := e.def.List(ctx, ClassMetaClass)
	if err != nil {
		return Bundle{}, err
	}
	propObjs, err := e.def.List(ctx, PropMetaClass)
	if err != nil {
		return Bundle{}, err
	}
	storageObjs, err := e.def.List(ctx, StorageMetaClass)
	if err != nil {
		return Bundle{}, err
	}

	classes := make([]Object, 0, len(classObjs)+len(propObjs)+len(storageObjs))
	for _, o := range classObjs {
		classes = append(classes, Object(o))
	}
	for _, o := range propObjs {
		classes = append(classes, Object(o))
	}
	for _, o := range storageObjs {
		classes = append(classes, Object(o))
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].ID() < classes[j].ID() })

	data := make(map[string][]Object)
	for _, co := range classObjs {
		cd := ClassDefFromObject(Object(co))
		store, err := e.storeFor(ctx, cd.ID)
		if err != nil {
			return Bundle{}, err
		}
		objs, err := store.List(ctx, cd.ID)
		if err != nil {
			return Bundle{}, err
		}
		list := make([]Object, 0, len(objs))
		for _, o := range objs {
			list = append(list, Object(o))
		}
		sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })
		data[cd.ID] = list
	}

	b := Bundle{Version: bundleFormatVersion, Classes: classes, Data: data}
	b.ID, err = contentHash(b)
	if err != nil {
		return Bundle{}, err
	}
	b.ExportedAt = nowISO()
	return b, nil
}

// contentHash hashes the bundle's JSON encoding, excluding ExportedAt, to a
// 16-hex-character digest (64 bits — short enough to use as a filename,
// long enough that accidental collision across distinct snapshots is not a
// practical concern).
func contentHash(b Bundle) (string, error) {
	b.ID = ""
	b.ExportedAt = ""
	raw, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("encode bundle for hashing: %w", err)
	}
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%x", sum[:8]), nil
}
