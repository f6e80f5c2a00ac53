// Package objstore implements the schema-and-object engine: the class/property
// meta-model, the validation/coercion pipeline, and the public façade that
// orchestrates storage and change broadcast for every CRUD operation.
//
// Per the no-reflection design note, every stored record is carried as a
// generic Object (string -> tagged value) map. ClassDef, PropDef, and
// StorageDef are thin typed views decoded from that map on demand; the map,
// not the view, is what storage persists.
package objstore

import (
	"fmt"
	"sort"
	"time"
)

// Reserved meta-class identifiers. Every class, property, and storage binding
// is itself an ordinary Object stored under one of these classes.
const (
	ClassMetaClass   = "@class"
	PropMetaClass    = "@prop"
	StorageMetaClass = "@storage"
)

// IsMetaClass reports whether id names one of the three reserved meta-classes.
func IsMetaClass(id string) bool {
	switch id {
	case ClassMetaClass, PropMetaClass, StorageMetaClass:
		return true
	default:
		return false
	}
}

// DataType enumerates the scalar kinds a property may hold.
type DataType string

const (
	TypeString   DataType = "string"
	TypeBoolean  DataType = "boolean"
	TypeInteger  DataType = "integer"
	TypeFloat    DataType = "float"
	TypeObject   DataType = "object"
	TypeRelation DataType = "relation"
	TypeFunction DataType = "function"
)

// OnOrphan enumerates the cascade policy applied to referrers when a relation
// target is deleted.
type OnOrphan string

const (
	OrphanKeep    OnOrphan = "keep"
	OrphanDelete  OnOrphan = "delete"
	OrphanNullify OnOrphan = "nullify"
)

// Engine-managed attribute keys. Clients may never set these directly;
// setObject always stamps/overwrites them.
const (
	FieldID        = "id"
	FieldClassID   = "class_id"
	FieldOwnerID   = "owner_id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
	FieldVersion   = "_version"
)

var managedFields = map[string]bool{
	FieldID: true, FieldClassID: true, FieldOwnerID: true,
	FieldCreatedAt: true, FieldUpdatedAt: true, FieldVersion: true,
}

// IsManagedField reports whether key is stamped by the engine and therefore
// cannot be set directly by client input.
func IsManagedField(key string) bool { return managedFields[key] }

// Object is the generic, storage-agnostic representation of any record —
// meta or user data alike.
type Object map[string]any

// Clone returns a shallow copy safe to mutate independently of the original.
func (o Object) Clone() Object {
	if o == nil {
		return nil
	}
	out := make(Object, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

func (o Object) str(key string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (o Object) strPtr(key string) *string {
	if v, ok := o[key]; ok && v != nil {
		if s, ok := v.(string); ok {
			return &s
		}
	}
	return nil
}

func (o Object) boolean(key string) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func (o Object) intVal(key string) int {
	switch v := o[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func (o Object) int64Val(key string) int64 {
	switch v := o[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

func (o Object) stringSlice(key string) []string {
	v, ok := o[key]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
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

// ID returns the object's id attribute.
func (o Object) ID() string { return o.str(FieldID) }

// ClassID returns the object's class_id attribute.
func (o Object) ClassID() string { return o.str(FieldClassID) }

// OwnerID returns the object's owner_id attribute, or "" if unset/null.
func (o Object) OwnerID() string { return o.str(FieldOwnerID) }

// Version returns the object's _version attribute.
func (o Object) Version() int64 { return o.int64Val(FieldVersion) }

// ClassDef is a typed façade over an Object stored under @class.
type ClassDef struct {
	ID          string
	Name        string
	Description string
	ExtendsID   *string
	StorageID   *string
	IsSystem    bool
	Unique      [][]string
	Version     int64
}

// ClassDefFromObject decodes a ClassDef view from a generic @class Object.
func ClassDefFromObject(o Object) ClassDef {
	return ClassDef{
		ID:          o.ID(),
		Name:        o.str("name"),
		Description: o.str("description"),
		ExtendsID:   o.strPtr("extends_id"),
		StorageID:   o.strPtr("storage_id"),
		IsSystem:    o.boolean("is_system"),
		Unique:      decodeUnique(o["unique"]),
		Version:     o.Version(),
	}
}

func decodeUnique(v any) [][]string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([][]string, 0, len(raw))
	for _, item := range raw {
		switch t := item.(type) {
		case []any:
			fields := make([]string, 0, len(t))
			for _, f := range t {
				if s, ok := f.(string); ok {
					fields = append(fields, s)
				}
			}
			out = append(out, fields)
		case []string:
			out = append(out, t)
		}
	}
	return out
}

// ToObject re-encodes the ClassDef as a generic Object, preserving id/version.
func (c ClassDef) ToObject() Object {
	o := Object{
		FieldID:      c.ID,
		FieldClassID: ClassMetaClass,
		"name":       c.Name,
		"description": c.Description,
		"is_system":  c.IsSystem,
		FieldVersion: c.Version,
	}
	if c.ExtendsID != nil {
		o["extends_id"] = *c.ExtendsID
	}
	if c.StorageID != nil {
		o["storage_id"] = *c.StorageID
	}
	if len(c.Unique) > 0 {
		unique := make([]any, 0, len(c.Unique))
		for _, fields := range c.Unique {
			unique = append(unique, fields)
		}
		o["unique"] = unique
	}
	return o
}

// PropOptions bundles the enum/range/length/pattern constraint container.
type PropOptions struct {
	Values    []any
	MinLength *int
	MaxLength *int
	Pattern   string
	Min       *float64
	Max       *float64
}

// PropDef is a typed façade over an Object stored under @prop.
type PropDef struct {
	ID                string
	ClassID           string
	Key               string
	Label             string
	Description       string
	DataType          DataType
	IsArray           bool
	ObjectClassID     []string
	ObjectClassStrict bool
	OnOrphanPolicy    OnOrphan
	Required          bool
	ReadOnly          bool
	CreateOnly        bool
	DefaultValue      any
	DisplayOrder      int
	GroupName         string
	Hidden            bool
	Options           PropOptions
	Validators        []string
	Editor            any
}

// PropDefID forms the "<class_id>.<key>" identity convention.
func PropDefID(classID, key string) string { return classID + "." + key }

// PropDefFromObject decodes a PropDef view from a generic @prop Object.
func PropDefFromObject(o Object) PropDef {
	p := PropDef{
		ID:                o.ID(),
		ClassID:           o.str("owner_class_id"),
		Key:               o.str("key"),
		Label:             o.str("label"),
		Description:       o.str("description"),
		DataType:          DataType(o.str("data_type")),
		IsArray:           o.boolean("is_array"),
		ObjectClassID:     normalizeObjectClassID(o["object_class_id"]),
		ObjectClassStrict: o.boolean("object_class_strict"),
		OnOrphanPolicy:    OnOrphan(orDefault(o.str("on_orphan"), string(OrphanKeep))),
		Required:          o.boolean("required"),
		ReadOnly:          o.boolean("readonly"),
		CreateOnly:        o.boolean("create_only"),
		DefaultValue:      o["default_value"],
		DisplayOrder:      o.intVal("display_order"),
		GroupName:         o.str("group_name"),
		Hidden:            o.boolean("hidden"),
		Validators:        o.stringSlice("validators"),
		Editor:            o["editor"],
	}
	p.Options = decodePropOptions(o["options"])
	if p.ClassID == "" {
		// Owning class id is conventionally the prefix of the prop id.
		if idx := lastDot(p.ID); idx >= 0 {
			p.ClassID = p.ID[:idx]
		}
	}
	return p
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}

// normalizeObjectClassID accepts either a scalar class id or an array (spec
// §9 Open Questions: the source accepts either shape; the engine always
// normalizes to an array on read and on write).
func normalizeObjectClassID(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func decodePropOptions(v any) PropOptions {
	m, ok := v.(map[string]any)
	if !ok {
		return PropOptions{}
	}
	opts := PropOptions{Pattern: strOf(m["pattern"])}
	if values, ok := m["values"].([]any); ok {
		opts.Values = values
	}
	if n, ok := numOf(m["min_length"]); ok {
		i := int(n)
		opts.MinLength = &i
	}
	if n, ok := numOf(m["max_length"]); ok {
		i := int(n)
		opts.MaxLength = &i
	}
	if n, ok := numOf(m["min"]); ok {
		opts.Min = &n
	}
	if n, ok := numOf(m["max"]); ok {
		opts.Max = &n
	}
	return opts
}

func strOf(v any) string {
	s, _ := v.(string)
	return s
}

func numOf(v any) (float64, bool) {
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

// ToObject re-encodes the PropDef as a generic Object.
func (p PropDef) ToObject() Object {
	id := p.ID
	if id == "" {
		id = PropDefID(p.ClassID, p.Key)
	}
	o := Object{
		FieldID:             id,
		FieldClassID:        PropMetaClass,
		"owner_class_id":    p.ClassID,
		"key":                p.Key,
		"label":              p.Label,
		"description":        p.Description,
		"data_type":          string(p.DataType),
		"is_array":           p.IsArray,
		"object_class_id":    p.ObjectClassID,
		"object_class_strict": p.ObjectClassStrict,
		"on_orphan":          string(p.OnOrphanPolicy),
		"required":           p.Required,
		"readonly":           p.ReadOnly,
		"create_only":        p.CreateOnly,
		"display_order":      p.DisplayOrder,
		"group_name":         p.GroupName,
		"hidden":             p.Hidden,
		"validators":         p.Validators,
	}
	if p.DefaultValue != nil {
		o["default_value"] = p.DefaultValue
	}
	if p.Editor != nil {
		o["editor"] = p.Editor
	}
	options := map[string]any{}
	if p.Options.Pattern != "" {
		options["pattern"] = p.Options.Pattern
	}
	if len(p.Options.Values) > 0 {
		options["values"] = p.Options.Values
	}
	if p.Options.MinLength != nil {
		options["min_length"] = *p.Options.MinLength
	}
	if p.Options.MaxLength != nil {
		options["max_length"] = *p.Options.MaxLength
	}
	if p.Options.Min != nil {
		options["min"] = *p.Options.Min
	}
	if p.Options.Max != nil {
		options["max"] = *p.Options.Max
	}
	if len(options) > 0 {
		o["options"] = options
	}
	return o
}

// StorageDef is a typed façade over an Object stored under @storage.
type StorageDef struct {
	ID          string
	Type        string
	URL         string
	Credentials map[string]any
}

// StorageDefFromObject decodes a StorageDef view from a generic @storage Object.
func StorageDefFromObject(o Object) StorageDef {
	creds, _ := o["credentials"].(map[string]any)
	return StorageDef{ID: o.ID(), Type: o.str("type"), URL: o.str("url"), Credentials: creds}
}

// nowISO returns the current UTC time formatted as ISO-8601.
func nowISO() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// sortedKeys returns a map's keys in sorted order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// fingerprintUnique builds a stable string key for a composite unique
// constraint so two candidate records can be compared for collision.
func fingerprintUnique(fields []string, o Object) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", f, o[f]))
	}
	return fmt.Sprintf("%v", parts)
}
