package model

import (
	"regexp"
	"slices"
)

// Reference is one outgoing reference found inside an object. ID is set for
// references held in a slot; Name is set for lists referenced from query text.
type Reference struct {
	Field string
	Kind  Kind
	ID    string
	Name  string
}

var listTokenRe = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// ListNames returns the distinct $name list tokens in text, in order of appearance.
func ListNames(text string) []string {
	var names []string
	for _, m := range listTokenRe.FindAllStringSubmatch(text, -1) {
		if !slices.Contains(names, m[1]) {
			names = append(names, m[1])
		}
	}
	return names
}

// References returns the references held by o: slot IDs first, then list
// names found in its query text fields. Duplicates are dropped.
func References(o Object) []Reference {
	spec, ok := SpecFor(o.Kind)
	if !ok {
		return nil
	}
	var refs []Reference
	add := func(r Reference) {
		for _, existing := range refs {
			if existing.Kind == r.Kind && existing.ID == r.ID && existing.Name == r.Name {
				return
			}
		}
		refs = append(refs, r)
	}
	for _, slot := range spec.Slots {
		if slot.Many {
			for _, id := range o.Strings(slot.Field) {
				if id != "" {
					add(Reference{Field: slot.Field, Kind: slot.Kind, ID: id})
				}
			}
			continue
		}
		if id := o.String(slot.Field); id != "" {
			add(Reference{Field: slot.Field, Kind: slot.Kind, ID: id})
		}
	}
	for _, field := range spec.ListRefFields {
		texts := o.Strings(field)
		if s := o.String(field); s != "" {
			texts = append(texts, s)
		}
		for _, text := range texts {
			for _, name := range ListNames(text) {
				add(Reference{Field: field, Kind: KindList, Name: name})
			}
		}
	}
	return refs
}

// ExclusionPattern is a recognised rule exclusion.
type ExclusionPattern struct {
	Type  string
	Value string
}

var exclusionPatterns = []struct {
	typ string
	re  *regexp.Regexp
}{
	{"recipient_email", regexp.MustCompile(`any\(recipients\.to, \.email\.email == '([^']+)'\)`)},
	{"sender_email", regexp.MustCompile(`sender\.email\.email == '([^']+)'`)},
	{"sender_domain", regexp.MustCompile(`sender\.email\.domain\.domain == '([^']+)'`)},
}

// ParseExclusion recognises the rule exclusion forms the platform generates
// for recipient email, sender email and sender domain.
func ParseExclusion(text string) (ExclusionPattern, bool) {
	for _, p := range exclusionPatterns {
		if m := p.re.FindStringSubmatch(text); m != nil {
			return ExclusionPattern{Type: p.typ, Value: m[1]}, true
		}
	}
	return ExclusionPattern{}, false
}
