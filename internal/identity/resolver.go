package identity

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/cfgmigrate/internal/model"
)

// Status is the outcome of resolving one source object.
type Status string

const (
	StatusFound     Status = "FOUND"
	StatusNotFound  Status = "NOT_FOUND"
	StatusAmbiguous Status = "AMBIGUOUS"
)

// Via records which rule matched.
type Via string

const (
	ViaPinned    Via = "pinned"
	ViaLink      Via = "link"
	ViaName      Via = "name"
	ViaContent   Via = "content"
	ViaComposite Via = "composite"
)

// Resolution is the result of Resolve.
type Resolution struct {
	Status        Status
	DestinationID string
	// Destination is the matched object as read from the destination. It
	// is nil when the match was pinned by an earlier create in this run.
	Destination *model.Object
	Via         Via
	// Candidates are the destination IDs that made the result ambiguous.
	Candidates []string
	Reason     string
}

type nameKey struct {
	kind model.Kind
	name string
}

type hashKey struct {
	kind model.Kind
	hash string
}

// Resolver finds the destination object equivalent to a source object.
//
// It reads only the destination snapshot it was built with. Matches are
// pinned into the IdentityMap so each destination object is claimed by
// at most one source object.
type Resolver struct {
	dest   *model.Inventory
	ids    *IdentityMap
	byName map[nameKey][]model.Object
	byHash map[hashKey][]model.Object
}

// NewResolver indexes the destination snapshot.
func NewResolver(dest *model.Inventory, ids *IdentityMap) *Resolver {
	r := &Resolver{
		dest:   dest,
		ids:    ids,
		byName: make(map[nameKey][]model.Object),
		byHash: make(map[hashKey][]model.Object),
	}
	for _, o := range dest.All() {
		if o.Name != "" {
			k := nameKey{o.Kind, o.Name}
			r.byName[k] = append(r.byName[k], o)
		}
		if h := model.ContentHash(o); h != "" {
			k := hashKey{o.Kind, h}
			r.byHash[k] = append(r.byHash[k], o)
		}
	}
	return r
}

// IDs returns the IdentityMap the resolver pins into.
func (r *Resolver) IDs() *IdentityMap {
	return r.ids
}

// Resolve maps obj to zero or one destination object. Found results are
// pinned.
func (r *Resolver) Resolve(obj model.Object) Resolution {
	if id, ok := r.ids.Lookup(obj.Key()); ok {
		res := Resolution{Status: StatusFound, DestinationID: id, Via: ViaPinned}
		if d, ok := r.dest.Get(model.Key{Kind: obj.Kind, ID: id}); ok {
			res.Destination = &d
		}
		return res
	}

	res := r.match(obj)
	if res.Status != StatusFound {
		return res
	}
	if owner, ok := r.ids.Owner(model.Key{Kind: obj.Kind, ID: res.DestinationID}); ok && owner != obj.ID {
		return Resolution{
			Status:     StatusAmbiguous,
			Candidates: []string{res.DestinationID},
			Reason:     fmt.Sprintf("destination %s already matched by source %s", res.DestinationID, owner),
		}
	}
	if err := r.ids.Pin(obj.Key(), res.DestinationID); err != nil {
		return Resolution{Status: StatusAmbiguous, Candidates: []string{res.DestinationID}, Reason: err.Error()}
	}
	return res
}

func (r *Resolver) match(obj model.Object) Resolution {
	if id := obj.Annotation(model.AnnotationDestinationID); id != "" {
		if d, ok := r.dest.Get(model.Key{Kind: obj.Kind, ID: id}); ok {
			return found(d, ViaLink)
		}
	}

	spec := model.MustSpec(obj.Kind)
	if !spec.Named {
		return r.matchComposite(obj)
	}

	var byName []model.Object
	for _, d := range r.byName[nameKey{obj.Kind, obj.Name}] {
		if model.SameDiscriminators(obj, d) {
			byName = append(byName, d)
		}
	}
	var byContent []model.Object
	if h := model.ContentHash(obj); h != "" {
		for _, d := range r.byHash[hashKey{obj.Kind, h}] {
			if model.SameDiscriminators(obj, d) {
				byContent = append(byContent, d)
			}
		}
	}

	switch {
	case len(byName) > 1:
		return ambiguous(byName, "multiple destination objects named %q", obj.Name)
	case len(byName) == 1:
		if len(byContent) > 0 && !slices.ContainsFunc(byContent, sameID(byName[0])) {
			return ambiguous(append(byName, byContent...),
				"name %q matches %s but content matches another object", obj.Name, byName[0].ID)
		}
		return found(byName[0], ViaName)
	case len(byContent) > 1:
		return ambiguous(byContent, "multiple destination objects with identical content")
	case len(byContent) == 1:
		return found(byContent[0], ViaContent)
	}
	return Resolution{Status: StatusNotFound}
}

// matchComposite resolves associations and rule exclusions through their
// parents, which must already be mapped.
func (r *Resolver) matchComposite(obj model.Object) Resolution {
	ruleDest, ok := r.ids.Lookup(model.Key{Kind: model.KindRule, ID: obj.String("rule_id")})
	if !ok {
		return Resolution{Status: StatusNotFound}
	}

	switch obj.Kind {
	case model.KindRuleAction:
		actionDest, ok := r.ids.Lookup(model.Key{Kind: model.KindAction, ID: obj.String("action_id")})
		if !ok {
			return Resolution{Status: StatusNotFound}
		}
		id := model.AssociationID(ruleDest, actionDest)
		if d, ok := r.dest.Get(model.Key{Kind: model.KindRuleAction, ID: id}); ok {
			return found(d, ViaComposite)
		}
	case model.KindRuleExclusion:
		var matches []model.Object
		for _, d := range r.byHash[hashKey{model.KindRuleExclusion, model.ContentHash(obj)}] {
			if d.String("rule_id") == ruleDest {
				matches = append(matches, d)
			}
		}
		switch len(matches) {
		case 0:
		case 1:
			return found(matches[0], ViaComposite)
		default:
			return ambiguous(matches, "destination rule %s has duplicate exclusions", ruleDest)
		}
	}
	return Resolution{Status: StatusNotFound}
}

func found(d model.Object, via Via) Resolution {
	return Resolution{Status: StatusFound, DestinationID: d.ID, Destination: &d, Via: via}
}

func ambiguous(objs []model.Object, format string, args ...any) Resolution {
	var ids []string
	for _, o := range objs {
		if !slices.Contains(ids, o.ID) {
			ids = append(ids, o.ID)
		}
	}
	slices.Sort(ids)
	return Resolution{
		Status:     StatusAmbiguous,
		Candidates: ids,
		Reason:     fmt.Sprintf(format, args...) + " (" + strings.Join(ids, ", ") + ")",
	}
}

func sameID(a model.Object) func(model.Object) bool {
	return func(b model.Object) bool { return a.ID == b.ID }
}
