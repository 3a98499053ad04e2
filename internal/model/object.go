package model

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// AnnotationDestinationID records the destination ID a previous migration
// assigned to a source object. The resolver trusts it while the destination
// object still exists.
const AnnotationDestinationID = "migration.destination_id"

// Object is a configuration record read from an instance.
//
// Fields holds the record as decoded from the platform: strings, bools,
// json.Number, []any and map[string]any. Objects are treated as immutable
// once read; use Clone before modifying Fields.
type Object struct {
	Kind        Kind              `json:"kind" yaml:"kind"`
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name,omitempty" yaml:"name,omitempty"`
	Fields      map[string]any    `json:"fields" yaml:"fields"`
	Annotations map[string]string `json:"annotations,omitempty" yaml:"annotations,omitempty"`
}

// NewObject builds an Object, normalizing field values to JSON types.
// It panics on values that have no JSON representation; use it for literals.
func NewObject(kind Kind, id, name string, fields map[string]any) Object {
	norm, err := NormalizeFields(fields)
	if err != nil {
		panic(fmt.Sprintf("NewObject %s/%s: %v", kind, id, err))
	}
	if name != "" {
		norm["name"] = name
	}
	return Object{Kind: kind, ID: id, Name: name, Fields: norm}
}

// Key returns the object's identity on its instance.
func (o Object) Key() Key {
	return Key{Kind: o.Kind, ID: o.ID}
}

// Ref returns the immutable ObjectRef view of the object.
func (o Object) Ref() Ref {
	return Ref{
		Kind:        o.Kind,
		ID:          o.ID,
		Name:        o.Name,
		ContentHash: ContentHash(o),
	}
}

// Label returns a human readable name: the name, or the ID for unnamed kinds.
func (o Object) Label() string {
	if o.Name != "" {
		return o.Name
	}
	return o.ID
}

// String returns a string field, or "" if absent or not a string.
func (o Object) String(field string) string {
	s, _ := o.Fields[field].(string)
	return s
}

// Bool returns a boolean field, or false if absent.
func (o Object) Bool(field string) bool {
	b, _ := o.Fields[field].(bool)
	return b
}

// Strings returns a list-of-strings field. Non-string elements are skipped.
func (o Object) Strings(field string) []string {
	raw, ok := o.Fields[field].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Has reports whether the field is present and non-null.
func (o Object) Has(field string) bool {
	v, ok := o.Fields[field]
	return ok && v != nil
}

// Annotation returns an annotation value.
func (o Object) Annotation(key string) string {
	return o.Annotations[key]
}

// Clone returns a deep copy of the object.
func (o Object) Clone() Object {
	c := o
	c.Fields = cloneMap(o.Fields)
	if o.Annotations != nil {
		c.Annotations = maps.Clone(o.Annotations)
	}
	return c
}

// Ref is the ObjectRef of an object: who it is and what its content hashes to.
// ContentHash is empty for kinds without a content field.
type Ref struct {
	Kind        Kind   `json:"kind" yaml:"kind"`
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	ContentHash string `json:"content_hash,omitempty" yaml:"content_hash,omitempty"`
}

// Key returns the ref's identity.
func (r Ref) Key() Key {
	return Key{Kind: r.Kind, ID: r.ID}
}

// String returns "kind/id (name)".
func (r Ref) String() string {
	if r.Name == "" {
		return r.Key().String()
	}
	return fmt.Sprintf("%s (%s)", r.Key(), r.Name)
}

// NormalizeFields converts Go literals into the JSON value set used by Object.
func NormalizeFields(fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = nv
	}
	return out, nil
}

func normalizeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, bool, json.Number:
		return val, nil
	case int:
		return json.Number(strconv.Itoa(val)), nil
	case int64:
		return json.Number(strconv.FormatInt(val, 10)), nil
	case float64:
		return json.Number(strconv.FormatFloat(val, 'f', -1, 64)), nil
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			nv, err := normalizeValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = nv
		}
		return out, nil
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, s := range val {
			out[k] = s
		}
		return out, nil
	case map[string]any:
		return NormalizeFields(val)
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return val
	}
}

// Inventory is a snapshot of objects read from one instance.
// It is built once and then only read; Add is not safe for concurrent use.
type Inventory struct {
	byKind map[Kind][]Object
	index  map[Key]int
}

// NewInventory creates an inventory holding objs.
func NewInventory(objs ...Object) *Inventory {
	inv := &Inventory{
		byKind: make(map[Kind][]Object),
		index:  make(map[Key]int),
	}
	inv.Add(objs...)
	return inv
}

// Add inserts objects, replacing any object with the same key.
func (inv *Inventory) Add(objs ...Object) {
	for _, o := range objs {
		if i, ok := inv.index[o.Key()]; ok {
			inv.byKind[o.Kind][i] = o
			continue
		}
		inv.index[o.Key()] = len(inv.byKind[o.Kind])
		inv.byKind[o.Kind] = append(inv.byKind[o.Kind], o)
	}
}

// Get returns the object with the given key.
func (inv *Inventory) Get(key Key) (Object, bool) {
	i, ok := inv.index[key]
	if !ok {
		return Object{}, false
	}
	return inv.byKind[key.Kind][i], true
}

// Objects returns the objects of one kind in insertion order.
func (inv *Inventory) Objects(kind Kind) []Object {
	return slices.Clone(inv.byKind[kind])
}

// All returns every object, grouped by kind in canonical order.
func (inv *Inventory) All() []Object {
	var out []Object
	for _, k := range AllKinds {
		out = append(out, inv.byKind[k]...)
	}
	return out
}

// ByName returns the objects of a kind with an exact, case-sensitive name.
func (inv *Inventory) ByName(kind Kind, name string) []Object {
	var out []Object
	for _, o := range inv.byKind[kind] {
		if o.Name == name {
			out = append(out, o)
		}
	}
	return out
}

// Len returns the total number of objects.
func (inv *Inventory) Len() int {
	return len(inv.index)
}

// Counts returns the number of objects per kind.
func (inv *Inventory) Counts() map[Kind]int {
	out := make(map[Kind]int, len(inv.byKind))
	for k, objs := range inv.byKind {
		out[k] = len(objs)
	}
	return out
}

// AssociationID builds the composite ID of a rule-action association.
func AssociationID(ruleID, actionID string) string {
	return ruleID + ":" + actionID
}

// SplitAssociationID splits a composite association ID.
func SplitAssociationID(id string) (ruleID, actionID string, ok bool) {
	ruleID, actionID, ok = strings.Cut(id, ":")
	return ruleID, actionID, ok && ruleID != "" && actionID != ""
}
