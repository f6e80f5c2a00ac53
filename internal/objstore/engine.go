// Package objstore's Engine is the single public façade (C4): it orchestrates
// the registry (C2), the validator (C3), storage providers (C1), and the
// broadcast emitter (C5) behind getClass/getObject/query/setObject/
// deleteObject/deleteClass/reset/runTests.
package objstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/elementstore/objstore/internal/apierror"
	"github.com/elementstore/objstore/internal/objstore/storage"
	"github.com/elementstore/objstore/internal/platform/logging"
)

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithEmitter sets the broadcast emitter used after every committed write.
func WithEmitter(e Emitter) Option {
	return func(eng *Engine) { eng.emitter = e }
}

// WithLogger sets the structured logger.
func WithLogger(l *logging.Logger) Option {
	return func(eng *Engine) { eng.log = l }
}

// WithNamedStorage registers an additional storage provider reachable by
// @storage id, for classes whose resolved storage_id names it.
func WithNamedStorage(storageID string, p storage.Provider) Option {
	return func(eng *Engine) { eng.named[storageID] = p }
}

// Engine is the process-scoped façade. It is immutable after construction
// except for the registry's cache invalidation; capability flags are
// injected per call via context (§9 "Global process state").
type Engine struct {
	registry *registry
	def      storage.Provider // default provider, used when a class has no storage_id
	named    map[string]storage.Provider
	emitter  Emitter
	log      *logging.Logger
}

// New constructs an Engine backed by the default storage provider.
func New(defaultStore storage.Provider, opts ...Option) *Engine {
	e := &Engine{
		registry: newRegistry(defaultStore),
		def:      defaultStore,
		named:    make(map[string]storage.Provider),
		emitter:  noopEmitter{},
		log:      logging.NewFromEnv("objstore"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// storeFor resolves the provider backing classID, consulting the class's
// (inherited) storage_id before falling back to the default provider.
func (e *Engine) storeFor(ctx context.Context, classID string) (storage.Provider, error) {
	if IsMetaClass(classID) {
		return e.def, nil
	}
	storageID, err := e.registry.storageFor(ctx, classID)
	if err != nil {
		return nil, err
	}
	if storageID == "" {
		return e.def, nil
	}
	p, ok := e.named[storageID]
	if !ok {
		return nil, apierror.NotFound("@storage", storageID)
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// Read operations
// ---------------------------------------------------------------------------

// GetClass returns the class meta for id, delegating to the registry (C2).
func (e *Engine) GetClass(ctx context.Context, id string) (ClassDef, error) {
	return e.registry.getClass(ctx, id)
}

// GetClassProps returns the resolved (inherited) prop set for id, keyed by
// prop key, sorted by display_order then key for deterministic listing.
func (e *Engine) GetClassProps(ctx context.Context, id string) ([]PropDef, error) {
	resolved, err := e.registry.propsOf(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]PropDef, 0, len(resolved))
	for _, p := range resolved {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// ListClasses returns every committed @class definition.
func (e *Engine) ListClasses(ctx context.Context) ([]ClassDef, error) {
	objs, err := e.def.List(ctx, ClassMetaClass)
	if err != nil {
		return nil, err
	}
	out := make([]ClassDef, 0, len(objs))
	for _, o := range objs {
		out = append(out, ClassDefFromObject(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetObject returns the object stored at (class, id), applying ownership
// filtering: when enforcement is enabled and the principal does not own it,
// the object is reported absent rather than forbidden (§4.3).
func (e *Engine) GetObject(ctx context.Context, class, id string) (Object, bool, error) {
	store, err := e.storeFor(ctx, class)
	if err != nil {
		return nil, false, err
	}
	obj, ok, err := store.Get(ctx, class, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	if enforceOwnership(ctx) && !IsMetaClass(class) && obj.OwnerID() != "" && obj.OwnerID() != principalOf(ctx) {
		return nil, false, nil
	}
	return Object(obj), true, nil
}

// QueryOptions carries the control parameters accepted by query/list (§4.3).
type QueryOptions struct {
	Filters []Filter
	Sort    string
	SortDir string // "asc" | "desc"
	Limit   int    // <=0 means unlimited
	Offset  int
}

// Filter is one equality-match constraint applied to a field.
type Filter struct {
	Field string
	Value any
}

// Query lists class's objects matching every filter (equality only, no
// joins), applies ownership filtering, then sorts, skips Offset and caps at
// Limit, in that order.
func (e *Engine) Query(ctx context.Context, class string, opts QueryOptions) ([]Object, error) {
	store, err := e.storeFor(ctx, class)
	if err != nil {
		return nil, err
	}
	raw, err := store.List(ctx, class)
	if err != nil {
		return nil, err
	}

	principal := principalOf(ctx)
	enforced := enforceOwnership(ctx) && !IsMetaClass(class)

	out := make([]Object, 0, len(raw))
	for _, o := range raw {
		obj := Object(o)
		if enforced && obj.OwnerID() != "" && obj.OwnerID() != principal {
			continue
		}
		if matchesFilters(obj, opts.Filters) {
			out = append(out, obj)
		}
	}

	sortDir := opts.SortDir
	if sortDir == "" {
		sortDir = "asc"
	}
	sort.SliceStable(out, func(i, j int) bool {
		if fieldLess, fieldGreater := compareField(out[i], out[j], opts.Sort); fieldLess || fieldGreater {
			if sortDir == "desc" {
				return fieldGreater
			}
			return fieldLess
		}
		// Tied on the sort field: ids always break ties ascending,
		// regardless of sortDir.
		return out[i].ID() < out[j].ID()
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []Object{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func matchesFilters(obj Object, filters []Filter) bool {
	for _, f := range filters {
		v, ok := obj[f.Field]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", v) != fmt.Sprintf("%v", f.Value) {
			return false
		}
	}
	return true
}

// compareField implements §4.3's ordering rule for a single sort field,
// reporting only whether a sorts strictly before (less) or strictly after
// (greater) b on that field. Both false means the field is tied (including
// both missing it), leaving the id-ascending tie-break — which must never
// invert with sortDir — to the caller.
func compareField(a, b Object, field string) (less, greater bool) {
	if field == "" || field == FieldID {
		if a.ID() == b.ID() {
			return false, false
		}
		return a.ID() < b.ID(), a.ID() > b.ID()
	}
	av, aok := a[field]
	bv, bok := b[field]
	if !aok && !bok {
		return false, false
	}
	if !aok {
		return true, false
	}
	if !bok {
		return false, true
	}
	switch at := av.(type) {
	case string:
		bt, _ := bv.(string)
		if at != bt {
			return at < bt, at > bt
		}
	case bool:
		bt, _ := bv.(bool)
		if at != bt {
			return !at && bt, at && !bt // false < true
		}
	case float64:
		bt, ok := toFloat(bv)
		if ok && at != bt {
			return at < bt, at > bt
		}
	case int:
		af := float64(at)
		bt, ok := toFloat(bv)
		if ok && af != bt {
			return af < bt, af > bt
		}
	case int64:
		af := float64(at)
		bt, ok := toFloat(bv)
		if ok && af != bt {
			return af < bt, af > bt
		}
	default:
		as := fmt.Sprintf("%v", av)
		bs := fmt.Sprintf("%v", bv)
		if as != bs {
			return as < bs, as > bs
		}
	}
	return false, false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

// Find performs the cross-class lookup (GET /find/{id}): first match wins,
// system (meta) classes are skipped.
func (e *Engine) Find(ctx context.Context, id string) (Object, string, bool, error) {
	classes, err := e.ListClasses(ctx)
	if err != nil {
		return nil, "", false, err
	}
	for _, cd := range classes {
		if cd.IsSystem || IsMetaClass(cd.ID) {
			continue
		}
		obj, ok, err := e.GetObject(ctx, cd.ID, id)
		if err != nil {
			return nil, "", false, err
		}
		if ok {
			return obj, cd.ID, true, nil
		}
	}
	return nil, "", false, nil
}

// ---------------------------------------------------------------------------
// Write operations
// ---------------------------------------------------------------------------

// SetObject implements the full §4.3 setObject pipeline for the create and
// update paths alike.
func (e *Engine) SetObject(ctx context.Context, class string, input Object) (Object, error) {
	store, err := e.storeFor(ctx, class)
	if err != nil {
		return nil, err
	}

	// 1. Identity resolution.
	id := input.str(FieldID)
	var existing Object
	isUpdate := false
	if id != "" {
		raw, ok, err := store.Get(ctx, class, id)
		if err != nil {
			return nil, err
		}
		if ok {
			existing = Object(raw)
			isUpdate = true
		} else if !allowCustomIDs(ctx) && !IsMetaClass(class) {
			return nil, apierror.Forbidden("custom object ids are not permitted")
		}
	} else {
		minted, err := mintID()
		if err != nil {
			return nil, apierror.IOError("mint id", err)
		}
		id = minted
	}

	// 2. Schema lookup.
	props, err := e.registry.propsOf(ctx, class)
	if err != nil {
		return nil, err
	}

	// 3. Ownership check (update path only).
	principal := principalOf(ctx)
	if isUpdate && enforceOwnership(ctx) && !IsMetaClass(class) {
		if existing.OwnerID() != "" && existing.OwnerID() != principal {
			return nil, apierror.Forbidden("not permitted to modify this object")
		}
	}

	// 4. Merge.
	var merged Object
	if isUpdate {
		merged = existing.Clone()
		for k, v := range input {
			if IsManagedField(k) {
				continue
			}
			merged[k] = v
		}
	} else {
		merged = Object{}
		for k, v := range input {
			if IsManagedField(k) {
				continue
			}
			merged[k] = v
		}
		merged[FieldID] = id
		merged[FieldClassID] = class
		merged[FieldOwnerID] = principal
		merged[FieldCreatedAt] = nowISO()
		merged[FieldVersion] = int64(1)
	}
	// object_class_id is accepted as a scalar or an array and stored as an array.
	if class == PropMetaClass {
		if v, ok := merged["object_class_id"]; ok && v != nil {
			merged["object_class_id"] = normalizeObjectClassID(v)
		}
	}

	// 5. Defaults (create path only).
	if !isUpdate {
		for _, p := range props {
			if _, present := merged[p.Key]; !present && p.DefaultValue != nil {
				merged[p.Key] = p.DefaultValue
			}
		}
	}

	// 6. Coercion & validation.
	coerced, ferrs := coerceAndValidate(props, merged)
	if len(ferrs) > 0 {
		return nil, apierror.ValidationFailed(ferrs...)
	}
	merged = coerced

	// 7. Relation consistency.
	if err := e.checkRelations(ctx, props, merged); err != nil {
		return nil, err
	}

	// 8. Uniqueness.
	cd, err := e.registry.getClass(ctx, class)
	if err != nil {
		return nil, err
	}
	if len(cd.Unique) > 0 {
		if err := e.checkUnique(ctx, store, class, id, cd.Unique, merged); err != nil {
			return nil, err
		}
	}

	// 9. Stamp.
	merged[FieldUpdatedAt] = nowISO()
	if isUpdate {
		merged[FieldVersion] = existing.Version() + 1
	}

	// 10. Persist.
	if err := store.Put(ctx, class, id, storage.Object(merged)); err != nil {
		return nil, err
	}

	if class == ClassMetaClass || class == PropMetaClass {
		e.registry.invalidate()
	}

	// 11. Broadcast.
	kind := "change"
	var oldPayload Object
	if isUpdate {
		oldPayload = existing
	}
	e.emitter.Emit(ctx, ChangeEvent{
		Kind:               kind,
		ClassID:            class,
		ID:                 id,
		New:                merged,
		Old:                oldPayload,
		OriginConnectionID: originConnectionID(ctx),
	})

	// 12. Return.
	return merged, nil
}

func (e *Engine) checkRelations(ctx context.Context, props map[string]PropDef, obj Object) error {
	for _, p := range props {
		if p.DataType != TypeRelation {
			continue
		}
		v, ok := obj[p.Key]
		if !ok || v == nil {
			continue
		}
		ids := relationIDs(v)
		for _, target := range ids {
			if err := e.verifyRelationTarget(ctx, p, target); err != nil {
				return err
			}
		}
	}
	return nil
}

func relationIDs(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func (e *Engine) verifyRelationTarget(ctx context.Context, p PropDef, targetID string) error {
	for _, targetClass := range p.ObjectClassID {
		store, err := e.storeFor(ctx, targetClass)
		if err != nil {
			continue
		}
		_, ok, err := store.Get(ctx, targetClass, targetID)
		if err != nil {
			return err
		}
		if ok {
			if p.ObjectClassStrict {
				cd, err := e.registry.getClass(ctx, targetClass)
				if err == nil && cd.ID == targetClass {
					return nil
				}
				continue
			}
			return nil
		}
	}
	return apierror.ValidationFailed(apierror.FieldError{
		Field:  p.Key,
		Reason: "relation_target_missing",
	})
}

func (e *Engine) checkUnique(ctx context.Context, store storage.Provider, class, id string, unique [][]string, candidate Object) error {
	existingObjs, err := store.List(ctx, class)
	if err != nil {
		return err
	}
	for _, fields := range unique {
		key := fingerprintUnique(fields, candidate)
		for _, raw := range existingObjs {
			other := Object(raw)
			if other.ID() == id {
				continue
			}
			if fingerprintUnique(fields, other) == key {
				return apierror.Conflict(fmt.Sprintf("unique constraint (%s) violated", strings.Join(fields, ",")))
			}
		}
	}
	return nil
}

// DeleteObject implements §4.3's deleteObject, including on_orphan cascade.
func (e *Engine) DeleteObject(ctx context.Context, class, id string) (bool, error) {
	existing, ok, err := e.GetObject(ctx, class, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	store, err := e.storeFor(ctx, class)
	if err != nil {
		return false, err
	}
	if _, err := store.Delete(ctx, class, id); err != nil {
		return false, err
	}

	if err := e.cascadeOrphans(ctx, class, id); err != nil {
		e.log.WithError(err).Warn("cascade delete encountered an error; remaining cascade aborted")
	}

	e.emitter.Emit(ctx, ChangeEvent{
		Kind:               "delete",
		ClassID:            class,
		ID:                 id,
		Old:                existing,
		OriginConnectionID: originConnectionID(ctx),
	})
	return true, nil
}

const maxCascadeDepth = 32

// cascadeOrphans applies on_orphan policy to every referrer of (class, id)
// across every user class, bounded to maxCascadeDepth referring relation
// props visited.
func (e *Engine) cascadeOrphans(ctx context.Context, class, id string) error {
	classes, err := e.ListClasses(ctx)
	if err != nil {
		return err
	}
	visited := 0
	for _, cd := range classes {
		if visited >= maxCascadeDepth {
			return apierror.IOError("cascade delete", fmt.Errorf("recursion bound exceeded at class %s", cd.ID))
		}
		props, err := e.registry.propsOf(ctx, cd.ID)
		if err != nil {
			continue
		}
		for _, p := range props {
			if p.DataType != TypeRelation || p.OnOrphanPolicy == OrphanKeep {
				continue
			}
			if !containsString(p.ObjectClassID, class) {
				continue
			}
			visited++
			if err := e.cascadeForProp(ctx, cd.ID, p, id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) cascadeForProp(ctx context.Context, referrerClass string, p PropDef, targetID string) error {
	store, err := e.storeFor(ctx, referrerClass)
	if err != nil {
		return err
	}
	objs, err := store.List(ctx, referrerClass)
	if err != nil {
		return err
	}
	for _, raw := range objs {
		obj := Object(raw)
		ids := relationIDs(obj[p.Key])
		if !containsString(ids, targetID) {
			continue
		}
		switch p.OnOrphanPolicy {
		case OrphanDelete:
			if _, err := e.DeleteObject(ctx, referrerClass, obj.ID()); err != nil {
				return err
			}
		case OrphanNullify:
			update := Object{p.Key: nil}
			if _, err := e.SetObject(ctx, referrerClass, mergeID(update, obj.ID())); err != nil {
				return err
			}
		}
	}
	return nil
}

func mergeID(o Object, id string) Object {
	o[FieldID] = id
	return o
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// DeleteClass implements §4.3's deleteClass.
func (e *Engine) DeleteClass(ctx context.Context, id string) error {
	store, err := e.storeFor(ctx, id)
	if err != nil {
		return err
	}
	populated, err := store.Exists(ctx, id)
	if err != nil {
		return err
	}
	if populated {
		objs, err := store.List(ctx, id)
		if err != nil {
			return err
		}
		if len(objs) > 0 {
			return apierror.Conflict(fmt.Sprintf("class %s still has %d instance(s)", id, len(objs)))
		}
	}

	classes, err := e.ListClasses(ctx)
	if err != nil {
		return err
	}
	for _, cd := range classes {
		if cd.ExtendsID != nil && *cd.ExtendsID == id {
			return apierror.Conflict(fmt.Sprintf("class %s is extended by %s", id, cd.ID))
		}
	}

	propObjs, err := e.def.List(ctx, PropMetaClass)
	if err != nil {
		return err
	}
	for _, raw := range propObjs {
		pd := PropDefFromObject(Object(raw))
		if pd.ClassID == id {
			if _, err := e.def.Delete(ctx, PropMetaClass, pd.ID); err != nil {
				return err
			}
		}
	}

	classObj, ok, err := e.def.Get(ctx, ClassMetaClass, id)
	if err != nil {
		return err
	}
	if ok {
		if _, err := e.def.Delete(ctx, ClassMetaClass, id); err != nil {
			return err
		}
		e.registry.invalidate()
		e.emitter.Emit(ctx, ChangeEvent{Kind: "delete", ClassID: ClassMetaClass, ID: id, Old: Object(classObj)})
	}
	return nil
}

// Reset drops every non-meta class and returns the cleared class ids. The
// caller is responsible for re-running genesis on meta-classes afterward
// (the engine has no compiled-in seed data).
func (e *Engine) Reset(ctx context.Context) ([]string, error) {
	classes, err := e.ListClasses(ctx)
	if err != nil {
		return nil, err
	}
	var cleared []string
	for _, cd := range classes {
		if IsMetaClass(cd.ID) || cd.IsSystem {
			continue
		}
		store, err := e.storeFor(ctx, cd.ID)
		if err != nil {
			return cleared, err
		}
		if _, err := store.Drop(ctx, cd.ID); err != nil {
			return cleared, err
		}
		if _, err := e.def.Delete(ctx, ClassMetaClass, cd.ID); err != nil {
			return cleared, err
		}
		cleared = append(cleared, cd.ID)
	}
	e.registry.invalidate()
	return cleared, nil
}

// TestReport is runTests's structured pass/fail result.
type TestReport struct {
	Passed int      `json:"passed"`
	Failed int      `json:"failed"`
	Notes  []string `json:"notes"`
}

// RunTests exercises a scripted schema+data round trip against the live
// engine: create a throwaway class, add a prop, write and read an instance
// back, then clean up. Testing aid only, never part of the data path.
func (e *Engine) RunTests(ctx context.Context) TestReport {
	report := TestReport{}
	testCtx := WithCapabilities(ctx, Capabilities{EnforceOwnership: false, AllowCustomIDs: true, Principal: "runTests"})
	const probeClass = "__objstore_selftest_probe"

	step := func(ok bool, note string) {
		if ok {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Notes = append(report.Notes, note)
	}

	_, err := e.SetObject(testCtx, ClassMetaClass, Object{FieldID: probeClass, "name": "selftest probe"})
	step(err == nil, fmt.Sprintf("create probe class: %v", errOrOK(err)))

	_, err = e.SetObject(testCtx, PropMetaClass, Object{
		FieldID: PropDefID(probeClass, "label"), "key": "label", "data_type": "string", "required": true,
	})
	step(err == nil, fmt.Sprintf("create probe prop: %v", errOrOK(err)))

	written, err := e.SetObject(testCtx, probeClass, Object{"label": "hello"})
	step(err == nil, fmt.Sprintf("write probe instance: %v", errOrOK(err)))

	if err == nil {
		fetched, ok, ferr := e.GetObject(testCtx, probeClass, written.ID())
		step(ferr == nil && ok && fetched.str("label") == "hello", "round-trip read matches write")
		if ok {
			deleted, derr := e.DeleteObject(testCtx, probeClass, written.ID())
			step(derr == nil && deleted, "delete probe instance")
		}
	}

	if derr := e.DeleteClass(testCtx, probeClass); derr != nil {
		step(false, fmt.Sprintf("cleanup probe class: %v", derr))
	} else {
		step(true, "cleanup probe class")
	}

	return report
}

func errOrOK(err error) string {
	if err == nil {
		return "ok"
	}
	return err.Error()
}
