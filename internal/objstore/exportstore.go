package objstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/elementstore/objstore/internal/apierror"
)

// BundleMeta is the listing-endpoint summary of a persisted export bundle.
type BundleMeta struct {
	ID         string `json:"id"`
	ExportedAt string `json:"exported_at"`
}

// ExportStore persists Bundles to <root>/exports/export_<id>.json, matching
// the filesystem provider's own atomic-replace discipline (§6 "Persisted
// layout").
type ExportStore struct {
	root string
}

// NewExportStore returns a store rooted at <dataRoot>/exports, creating the
// directory if absent.
func NewExportStore(dataRoot string) (*ExportStore, error) {
	dir := filepath.Join(dataRoot, "exports")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apierror.IOError("mkdir exports dir", err)
	}
	return &ExportStore{root: dir}, nil
}

func (s *ExportStore) pathFor(id string) string {
	return filepath.Join(s.root, "export_"+id+".json")
}

// Save writes b, keyed by its content-hash id. Saving an id that already
// exists is a no-op (identical content by construction).
func (s *ExportStore) Save(_ context.Context, b Bundle) error {
	path := s.pathFor(b.ID)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return apierror.IOError("encode bundle", err)
	}
	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return apierror.IOError("create temp export file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apierror.IOError("write temp export file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apierror.IOError("close temp export file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return apierror.IOError("rename temp export file", err)
	}
	return nil
}

// Get loads the bundle stored under id.
func (s *ExportStore) Get(_ context.Context, id string) (Bundle, bool, error) {
	data, err := os.ReadFile(s.pathFor(id))
	if os.IsNotExist(err) {
		return Bundle{}, false, nil
	}
	if err != nil {
		return Bundle{}, false, apierror.IOError("read export file", err)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return Bundle{}, false, apierror.IOError("decode export file", err)
	}
	return b, true, nil
}

// List returns every persisted bundle's metadata, sorted by ExportedAt
// descending (most recent first).
func (s *ExportStore) List(_ context.Context) ([]BundleMeta, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, apierror.IOError("read exports dir", err)
	}
	var out []BundleMeta
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.root, e.Name()))
		if err != nil {
			continue
		}
		var b Bundle
		if err := json.Unmarshal(data, &b); err != nil {
			continue
		}
		out = append(out, BundleMeta{ID: b.ID, ExportedAt: b.ExportedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExportedAt > out[j].ExportedAt })
	return out, nil
}

// Delete removes the bundle stored under id, reporting whether it existed.
func (s *ExportStore) Delete(_ context.Context, id string) (bool, error) {
	err := os.Remove(s.pathFor(id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, apierror.IOError("remove export file", err)
	}
	return true, nil
}
