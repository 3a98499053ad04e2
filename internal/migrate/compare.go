package migrate

import (
	"context"
	"slices"

	"github.com/roach88/cfgmigrate/internal/model"
	"github.com/roach88/cfgmigrate/internal/planner"
)

// KindComparison is the state of one kind on both instances.
type KindComparison struct {
	Kind             model.Kind `json:"kind"`
	SourceCount      int        `json:"source_count"`
	DestinationCount int        `json:"destination_count"`
	Matching         int        `json:"matching"`

	MissingInDestination []string `json:"missing_in_destination,omitempty"`
	MissingInSource      []string `json:"missing_in_source,omitempty"`
	ContentDiffers       []string `json:"content_differs,omitempty"`
	// Conflicts are source objects with no usable match, such as an
	// ambiguous name or an unavailable dependency.
	Conflicts []string `json:"conflicts,omitempty"`
}

// Differences counts the objects that are not in sync.
func (k KindComparison) Differences() int {
	return len(k.MissingInDestination) + len(k.MissingInSource) + len(k.ContentDiffers) + len(k.Conflicts)
}

// Comparison is the per-kind difference between two instances.
type Comparison struct {
	Source      string           `json:"source"`
	Destination string           `json:"destination"`
	Kinds       []KindComparison `json:"kinds"`
}

// Differences counts unsynced objects over every kind.
func (c *Comparison) Differences() int {
	n := 0
	for _, k := range c.Kinds {
		n += k.Differences()
	}
	return n
}

// Compare plans a migration without applying it and reports, per kind,
// what the destination lacks, what only it has, and what differs.
// opts.UpdateExisting is forced so differing objects are told apart from
// matching ones.
func (m *Migrator) Compare(ctx context.Context, opts Options) (*Comparison, error) {
	opts.UpdateExisting = true
	opts.DryRun = true
	p, err := m.Prepare(ctx, opts)
	if err != nil {
		return nil, err
	}
	c := comparePrepared(p)
	c.Source = m.SourceName
	c.Destination = m.DestinationName
	return c, nil
}

func comparePrepared(p *Prepared) *Comparison {
	kinds := p.Options.Kinds
	if len(kinds) == 0 {
		for _, k := range model.AllKinds {
			if !slices.Contains(p.Options.SkipKinds, k) {
				kinds = append(kinds, k)
			}
		}
	}

	c := &Comparison{}
	for _, kind := range kinds {
		kc := KindComparison{Kind: kind}
		matched := map[string]bool{}
		for _, step := range p.Plan.Steps {
			if step.Key.Kind != kind {
				continue
			}
			kc.SourceCount++
			if step.DestinationID != "" {
				matched[step.DestinationID] = true
			}
			label := stepLabel(step)
			switch step.Action {
			case planner.ActionCreate:
				kc.MissingInDestination = append(kc.MissingInDestination, label)
			case planner.ActionUpdate:
				kc.ContentDiffers = append(kc.ContentDiffers, label)
			case planner.ActionConflict:
				kc.Conflicts = append(kc.Conflicts, label)
			case planner.ActionSkip:
				// Associations left to a rule create have no destination ID.
				if step.DestinationID == "" {
					kc.MissingInDestination = append(kc.MissingInDestination, label)
				} else {
					kc.Matching++
				}
			}
		}

		for _, o := range p.Destination.Objects(kind) {
			if model.IsSystem(o) && !p.Options.IncludeSystem {
				continue
			}
			kc.DestinationCount++
			if !matched[o.ID] {
				kc.MissingInSource = append(kc.MissingInSource, o.Label())
			}
		}

		slices.Sort(kc.MissingInDestination)
		slices.Sort(kc.MissingInSource)
		slices.Sort(kc.ContentDiffers)
		slices.Sort(kc.Conflicts)
		c.Kinds = append(c.Kinds, kc)
	}
	return c
}

func stepLabel(s planner.Step) string {
	if s.Ref.Name != "" {
		return s.Ref.Name
	}
	return s.Key.ID
}
