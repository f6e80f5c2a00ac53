package objstore

import (
	"context"
	"sort"
	"sync"

	"github.com/elementstore/objstore/internal/apierror"
	"github.com/elementstore/objstore/internal/objstore/storage"
)

// registry resolves @class/@prop objects into typed ClassDef/PropDef views.
// It memoizes a snapshot of every class and of each class's directly
// declared props; ancestor chains and resolved property sets are derived
// from that snapshot on each call. The snapshot is invalidated wholesale on
// any commit touching @class or @prop,
// which is cheap given the meta-model's size relative to user data.
type registry struct {
	store storage.Provider

	mu         sync.RWMutex
	classes    map[string]ClassDef
	propsByCls map[string][]PropDef // props declared directly on a class (not inherited)
	loaded     bool
}

func newRegistry(store storage.Provider) *registry {
	return &registry{store: store}
}

// invalidate drops the memoized class/prop snapshot. Called after any
// successful commit to @class or @prop.
func (r *registry) invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = false
	r.classes = nil
	r.propsByCls = nil
}

func (r *registry) ensureLoaded(ctx context.Context) error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}

	classObjs, err := r.store.List(ctx, ClassMetaClass)
	if err != nil {
		return err
	}
	propObjs, err := r.store.List(ctx, PropMetaClass)
	if err != nil {
		return err
	}

	classes := make(map[string]ClassDef, len(classObjs))
	for _, o := range classObjs {
		cd := ClassDefFromObject(o)
		classes[cd.ID] = cd
	}
	propsByCls := make(map[string][]PropDef, len(classes))
	for _, o := range propObjs {
		pd := PropDefFromObject(o)
		propsByCls[pd.ClassID] = append(propsByCls[pd.ClassID], pd)
	}
	for cls := range propsByCls {
		sort.Slice(propsByCls[cls], func(i, j int) bool {
			if propsByCls[cls][i].DisplayOrder != propsByCls[cls][j].DisplayOrder {
				return propsByCls[cls][i].DisplayOrder < propsByCls[cls][j].DisplayOrder
			}
			return propsByCls[cls][i].Key < propsByCls[cls][j].Key
		})
	}

	r.mu.Lock()
	r.classes = classes
	r.propsByCls = propsByCls
	r.loaded = true
	r.mu.Unlock()
	return nil
}

// getClass returns the ClassDef for id, including the built-in meta-classes
// which are synthesized if no override has been committed for them.
func (r *registry) getClass(ctx context.Context, id string) (ClassDef, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return ClassDef{}, err
	}
	r.mu.RLock()
	cd, ok := r.classes[id]
	r.mu.RUnlock()
	if ok {
		return cd, nil
	}
	if IsMetaClass(id) {
		return ClassDef{ID: id, Name: id, IsSystem: true}, nil
	}
	return ClassDef{}, apierror.NotFound("class", id)
}

// ancestors returns the chain [id, parent, grandparent, ...] walking
// extends_id, erroring with CodeCycleDetected if a class ever repeats.
func (r *registry) ancestors(ctx context.Context, id string) ([]ClassDef, error) {
	var chain []ClassDef
	seen := make(map[string]bool)
	cur := id
	for cur != "" {
		if seen[cur] {
			return nil, apierror.CycleDetected(id)
		}
		seen[cur] = true
		cd, err := r.getClass(ctx, cur)
		if err != nil {
			return nil, err
		}
		chain = append(chain, cd)
		if cd.ExtendsID == nil {
			break
		}
		cur = *cd.ExtendsID
	}
	return chain, nil
}

// propsOf returns every property resolvable on classID: ancestor properties
// first (root-most first), with a class's own declarations overriding an
// ancestor's declaration of the same key. The returned map is keyed by Key
// so callers can look properties up by name.
func (r *registry) propsOf(ctx context.Context, classID string) (map[string]PropDef, error) {
	chain, err := r.ancestors(ctx, classID)
	if err != nil {
		return nil, err
	}
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	resolved := make(map[string]PropDef)
	// Walk root-most ancestor to classID itself, so later (more specific)
	// declarations overwrite earlier ones by key.
	for i := len(chain) - 1; i >= 0; i-- {
		r.mu.RLock()
		props := r.propsByCls[chain[i].ID]
		r.mu.RUnlock()
		for _, p := range props {
			resolved[p.Key] = p
		}
	}
	return resolved, nil
}

// propOf resolves a single property by key on classID, walking ancestors.
func (r *registry) propOf(ctx context.Context, classID, key string) (PropDef, bool, error) {
	props, err := r.propsOf(ctx, classID)
	if err != nil {
		return PropDef{}, false, err
	}
	p, ok := props[key]
	return p, ok, nil
}

// isSubclassOf reports whether classID == ancestorID or ancestorID appears
// in classID's ancestor chain.
func (r *registry) isSubclassOf(ctx context.Context, classID, ancestorID string) (bool, error) {
	chain, err := r.ancestors(ctx, classID)
	if err != nil {
		return false, err
	}
	for _, cd := range chain {
		if cd.ID == ancestorID {
			return true, nil
		}
	}
	return false, nil
}

// storageFor resolves the effective StorageDef id for classID, walking
// ancestors until one declares storage_id, defaulting to "" (engine default
// provider) if none do.
func (r *registry) storageFor(ctx context.Context, classID string) (string, error) {
	chain, err := r.ancestors(ctx, classID)
	if err != nil {
		return "", err
	}
	for _, cd := range chain {
		if cd.StorageID != nil && *cd.StorageID != "" {
			return *cd.StorageID, nil
		}
	}
	return "", nil
}
