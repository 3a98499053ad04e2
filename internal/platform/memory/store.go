// Package memory provides an in-memory platform.Client.
//
// It behaves like an instance closely enough to drive scenario runs:
// named objects are unique per name and discriminators, references are
// validated, and associations and rule exclusions are stored on their
// rule the way the platform stores them. Every call is recorded.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/cfgmigrate/internal/model"
	"github.com/roach88/cfgmigrate/internal/platform"
)

// IDGenerator assigns IDs to created objects.
type IDGenerator interface {
	Generate() string
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Call records one client call.
type Call struct {
	Op   string
	Kind model.Kind
	ID   string
}

// Fault makes matching calls fail.
//
// A fault matches on Op and Kind, and on Name when set (the payload name on
// create, the object ID on update). Times limits how many calls fail; zero
// means every matching call fails.
type Fault struct {
	Op    string
	Kind  model.Kind
	Name  string
	Err   error
	Times int

	hits int
}

// Store is a concurrency-safe in-memory instance.
type Store struct {
	mu      sync.Mutex
	ids     IDGenerator
	objects map[model.Kind]map[string]model.Object
	order   map[model.Kind][]string
	calls   []Call
	faults  []*Fault
}

// Option configures a Store.
type Option func(*Store)

// WithIDs sets the generator for created object IDs.
func WithIDs(g IDGenerator) Option {
	return func(s *Store) { s.ids = g }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		ids:     uuidGenerator{},
		objects: make(map[model.Kind]map[string]model.Object),
		order:   make(map[model.Kind][]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed loads objects without recording calls or validating references.
// Associations and rule exclusions are attached to their rule.
func (s *Store) Seed(objs ...model.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range objs {
		switch o.Kind {
		case model.KindRuleAction, model.KindRuleExclusion:
			if _, err := s.attachLocked(o.Kind, o.Fields); err != nil {
				return fmt.Errorf("seed %s: %w", o.Key(), err)
			}
		default:
			if o.ID == "" {
				return fmt.Errorf("seed %s: missing id", o.Kind)
			}
			s.putLocked(o.Clone())
		}
	}
	return nil
}

// InjectFault registers a fault.
func (s *Store) InjectFault(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, &f)
}

// Calls returns the calls made so far.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// Writes returns the create and update calls made so far.
func (s *Store) Writes() []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Op == "create" || c.Op == "update" {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls clears the call log.
func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Objects returns every stored object of kind, derived kinds included.
func (s *Store) Objects(kind model.Kind) []model.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(kind)
}

// ListObjects implements platform.Reader.
func (s *Store) ListObjects(ctx context.Context, kind model.Kind, filter platform.ListFilter) (platform.Page, error) {
	if err := ctx.Err(); err != nil {
		return platform.Page{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: "list", Kind: kind})
	if err := s.faultLocked("list", kind, ""); err != nil {
		return platform.Page{}, err
	}

	var all []model.Object
	for _, o := range s.listLocked(kind) {
		if !filter.IncludeSystem && model.IsSystem(o) {
			continue
		}
		all = append(all, o)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = platform.DefaultPageSize
	}
	start := min(filter.Offset, len(all))
	end := min(start+limit, len(all))
	return platform.Page{
		Objects: all[start:end],
		Total:   len(all),
		HasMore: end < len(all),
	}, nil
}

// GetObject implements platform.Reader.
func (s *Store) GetObject(ctx context.Context, kind model.Kind, id string) (model.Object, error) {
	if err := ctx.Err(); err != nil {
		return model.Object{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: "get", Kind: kind, ID: id})
	if err := s.faultLocked("get", kind, id); err != nil {
		return model.Object{}, err
	}
	for _, o := range s.listLocked(kind) {
		if o.ID == id {
			return o, nil
		}
	}
	return model.Object{}, platform.NewNotFound("get", kind, id)
}

// CreateObject implements platform.Writer.
func (s *Store) CreateObject(ctx context.Context, kind model.Kind, payload map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fields, err := model.NormalizeFields(payload)
	if err != nil {
		return "", &platform.Error{Code: platform.ErrCodeValidation, Op: "create", Kind: kind, Message: err.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	name, _ := fields["name"].(string)
	s.calls = append(s.calls, Call{Op: "create", Kind: kind})
	if err := s.faultLocked("create", kind, name); err != nil {
		return "", err
	}

	switch kind {
	case model.KindRuleAction, model.KindRuleExclusion:
		id, err := s.attachLocked(kind, fields)
		if err != nil {
			return "", err
		}
		s.calls[len(s.calls)-1].ID = id
		return id, nil
	}

	spec, ok := model.SpecFor(kind)
	if !ok {
		return "", validation("create", kind, "", "unknown kind")
	}
	if name == "" {
		return "", validation("create", kind, "", "name is required")
	}
	obj := model.Object{Kind: kind, Name: name, Fields: fields}
	for _, existing := range s.objects[kind] {
		if existing.Name == name && model.SameDiscriminators(existing, obj) {
			return "", &platform.Error{
				Code:    platform.ErrCodeConflict,
				Op:      "create",
				Kind:    kind,
				Message: fmt.Sprintf("%s %q already exists", kind, name),
			}
		}
	}
	if err := s.checkSlotsLocked(spec, fields); err != nil {
		return "", err
	}
	obj.ID = s.ids.Generate()
	s.putLocked(obj)
	s.calls[len(s.calls)-1].ID = obj.ID
	return obj.ID, nil
}

// UpdateObject implements platform.Writer.
func (s *Store) UpdateObject(ctx context.Context, kind model.Kind, id string, payload map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fields, err := model.NormalizeFields(payload)
	if err != nil {
		return &platform.Error{Code: platform.ErrCodeValidation, Op: "update", Kind: kind, ID: id, Message: err.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: "update", Kind: kind, ID: id})
	if err := s.faultLocked("update", kind, id); err != nil {
		return err
	}
	if kind == model.KindRuleAction || kind == model.KindRuleExclusion {
		return validation("update", kind, id, "attachments cannot be updated")
	}
	obj, ok := s.objects[kind][id]
	if !ok {
		return platform.NewNotFound("update", kind, id)
	}
	if err := s.checkSlotsLocked(model.MustSpec(kind), fields); err != nil {
		return err
	}
	obj = obj.Clone()
	for k, v := range fields {
		obj.Fields[k] = v
	}
	s.objects[kind][id] = obj
	return nil
}

func (s *Store) putLocked(o model.Object) {
	if s.objects[o.Kind] == nil {
		s.objects[o.Kind] = make(map[string]model.Object)
	}
	if _, exists := s.objects[o.Kind][o.ID]; !exists {
		s.order[o.Kind] = append(s.order[o.Kind], o.ID)
	}
	if o.Fields == nil {
		o.Fields = map[string]any{}
	}
	if o.Name != "" {
		o.Fields["name"] = o.Name
	}
	s.objects[o.Kind][o.ID] = o
}

func (s *Store) listLocked(kind model.Kind) []model.Object {
	var out []model.Object
	switch kind {
	case model.KindRuleAction, model.KindRuleExclusion:
		for _, id := range s.order[model.KindRule] {
			rule := s.objects[model.KindRule][id]
			if kind == model.KindRuleAction {
				out = append(out, model.Associations(rule)...)
			} else {
				out = append(out, model.RuleExclusions(rule)...)
			}
		}
	default:
		for _, id := range s.order[kind] {
			out = append(out, s.objects[kind][id].Clone())
		}
	}
	return out
}

// attachLocked stores an association or rule exclusion on its rule.
func (s *Store) attachLocked(kind model.Kind, fields map[string]any) (string, error) {
	ruleID, _ := fields["rule_id"].(string)
	rule, ok := s.objects[model.KindRule][ruleID]
	if !ok {
		return "", platform.NewNotFound("create", model.KindRule, ruleID)
	}
	rule = rule.Clone()

	var id, field, value string
	if kind == model.KindRuleAction {
		value, _ = fields["action_id"].(string)
		if _, ok := s.objects[model.KindAction][value]; !ok {
			return "", validation("create", kind, "", fmt.Sprintf("action %q does not exist", value))
		}
		field, id = "action_ids", model.AssociationID(ruleID, value)
	} else {
		value, _ = fields["source"].(string)
		if model.NormalizeContent(value) == "" {
			return "", validation("create", kind, "", "source is required")
		}
		field, id = "exclusions", model.RuleExclusionID(ruleID, value)
	}

	existing, _ := rule.Fields[field].([]any)
	for _, v := range existing {
		cur, _ := v.(string)
		if cur == value || (kind == model.KindRuleExclusion && model.HashContent(cur) == model.HashContent(value)) {
			return "", &platform.Error{
				Code:    platform.ErrCodeConflict,
				Op:      "create",
				Kind:    kind,
				ID:      id,
				Message: "already attached",
			}
		}
	}
	rule.Fields[field] = append(slices.Clone(existing), value)
	s.objects[model.KindRule][ruleID] = rule
	return id, nil
}

// checkSlotsLocked rejects references to objects that do not exist here.
func (s *Store) checkSlotsLocked(spec model.Spec, fields map[string]any) error {
	shape := model.Object{Kind: spec.Kind, Fields: fields}
	for _, ref := range model.References(shape) {
		if ref.ID == "" {
			continue
		}
		if _, ok := s.objects[ref.Kind][ref.ID]; !ok {
			return validation("create", spec.Kind, "", fmt.Sprintf("%s: %s %q does not exist", ref.Field, ref.Kind, ref.ID))
		}
	}
	return nil
}

func (s *Store) faultLocked(op string, kind model.Kind, name string) error {
	for _, f := range s.faults {
		if f.Op != op || f.Kind != kind || (f.Name != "" && f.Name != name) {
			continue
		}
		if f.Times > 0 && f.hits >= f.Times {
			continue
		}
		f.hits++
		return f.Err
	}
	return nil
}

func validation(op string, kind model.Kind, id, msg string) *platform.Error {
	return &platform.Error{Code: platform.ErrCodeValidation, Op: op, Kind: kind, ID: id, Message: msg}
}

var _ platform.Client = (*Store)(nil)
