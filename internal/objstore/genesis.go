package objstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/elementstore/objstore/internal/apierror"
	"github.com/elementstore/objstore/internal/objstore/storage"
	"github.com/elementstore/objstore/internal/platform/logging"
)

// GenesisResult reports what the loader did, including any drift it
// observed (a committed @class newer than the seed file for it).
type GenesisResult struct {
	ClassesCreated []string `json:"classes_created"`
	ClassesUpdated []string `json:"classes_updated"`
	DriftNotes     []string `json:"drift_notes,omitempty"`
	ObjectsSeeded  int      `json:"objects_seeded"`
}

// Genesis reads the canonical seed layout under root:
//
//	<root>/classes/*.json   — one meta object (or an array of them) per file;
//	                           class_id selects @class (the default), @prop or
//	                           @storage. Each object is stored as written: an
//	                           embedded "props" array is not expanded into
//	                           @prop records, so props need their own entries
//	                           with class_id: "@prop")
//	<root>/data/<class_id>/*.json — one seed instance object per file
//
// and populates the store, idempotently. It is the only caller permitted to
// stamp _version directly, bypassing setObject's ownership/custom-id checks
// (§4.6) since genesis is authoritative.
type Genesis struct {
	store storage.Provider
	log   *logging.Logger
}

// NewGenesis returns a loader writing directly to store (bypassing the
// engine's write pipeline, per §4.6).
func NewGenesis(store storage.Provider, log *logging.Logger) *Genesis {
	if log == nil {
		log = logging.NewFromEnv("objstore-genesis")
	}
	return &Genesis{store: store, log: log}
}

// LoadClassesOnly applies root's classes/*.json meta-objects (@class,
// @prop, @storage) without touching data/<class_id>/*.json seed instances.
// Reset (§4.8) calls this instead of Load so re-genesis-ing meta-classes
// never repopulates non-meta classes the operator may have seeded.
func (g *Genesis) LoadClassesOnly(ctx context.Context, root string) (GenesisResult, error) {
	result := GenesisResult{}

	classFiles, err := listJSONFiles(filepath.Join(root, "classes"))
	if err != nil {
		return result, err
	}
	sort.Strings(classFiles)

	for _, path := range classFiles {
		objs, err := readJSONObjects(path)
		if err != nil {
			return result, err
		}
		for _, raw := range objs {
			obj := Object(raw)
			classID := obj.ClassID()
			if classID == "" {
				classID = ClassMetaClass
			}
			created, updated, drift, err := g.applyMetaObject(ctx, classID, obj)
			if err != nil {
				return result, err
			}
			if created {
				result.ClassesCreated = append(result.ClassesCreated, obj.ID())
			}
			if updated {
				result.ClassesUpdated = append(result.ClassesUpdated, obj.ID())
			}
			if drift != "" {
				result.DriftNotes = append(result.DriftNotes, drift)
			}
		}
	}

	return result, nil
}

// Load reads root and applies every class/seed file found there, including
// non-meta seed data under data/<class_id>/*.json.
func (g *Genesis) Load(ctx context.Context, root string) (GenesisResult, error) {
	result, err := g.LoadClassesOnly(ctx, root)
	if err != nil {
		return result, err
	}

	dataRoot := filepath.Join(root, "data")
	entries, err := os.ReadDir(dataRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return result, apierror.IOError("read genesis data dir", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		classID := entry.Name()
		files, err := listJSONFiles(filepath.Join(dataRoot, classID))
		if err != nil {
			return result, err
		}
		sort.Strings(files)
		for _, path := range files {
			objs, err := readJSONObjects(path)
			if err != nil {
				return result, err
			}
			for _, raw := range objs {
				obj := Object(raw)
				if obj.ID() == "" {
					return result, apierror.IOError("seed object", fmt.Errorf("%s: missing id", path))
				}
				if err := g.store.Put(ctx, classID, obj.ID(), storage.Object(obj)); err != nil {
					return result, err
				}
				result.ObjectsSeeded++
			}
		}
	}

	return result, nil
}

// applyMetaObject writes a single @class/@prop/@storage seed object,
// respecting the create/update/drift rule of §4.6.
func (g *Genesis) applyMetaObject(ctx context.Context, metaClass string, obj Object) (created, updated bool, drift string, err error) {
	existingRaw, ok, err := g.store.Get(ctx, metaClass, obj.ID())
	if err != nil {
		return false, false, "", err
	}

	seedVersion := obj.Version()
	if seedVersion == 0 {
		seedVersion = 1
	}

	if !ok {
		stamped := obj.Clone()
		stamped[FieldClassID] = metaClass
		stamped[FieldVersion] = seedVersion
		if err := g.store.Put(ctx, metaClass, obj.ID(), storage.Object(stamped)); err != nil {
			return false, false, "", err
		}
		if err := g.store.Init(ctx, metaClass); err != nil {
			return false, false, "", err
		}
		return true, false, "", nil
	}

	existing := Object(existingRaw)
	switch {
	case existing.Version() > seedVersion:
		note := fmt.Sprintf("drift: %s/%s at stored version %d newer than seed version %d; skipped",
			metaClass, obj.ID(), existing.Version(), seedVersion)
		g.log.WithContext(ctx).Warn(note)
		return false, false, note, nil
	default:
		stamped := obj.Clone()
		stamped[FieldClassID] = metaClass
		stamped[FieldVersion] = seedVersion
		if err := g.store.Put(ctx, metaClass, obj.ID(), storage.Object(stamped)); err != nil {
			return false, false, "", err
		}
		return false, true, "", nil
	}
}

func listJSONFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apierror.IOError("read genesis dir", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out, nil
}

// readJSONObjects accepts either a single object or an array of objects in
// one file.
func readJSONObjects(path string) ([]Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apierror.IOError("read genesis file "+path, err)
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var arr []Object
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, apierror.IOError("decode genesis file "+path, err)
		}
		return arr, nil
	}
	var single Object
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, apierror.IOError("decode genesis file "+path, err)
	}
	return []Object{single}, nil
}
