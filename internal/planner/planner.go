package planner

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/cfgmigrate/internal/graph"
	"github.com/roach88/cfgmigrate/internal/identity"
	"github.com/roach88/cfgmigrate/internal/model"
)

// Options controls planning.
type Options struct {
	// UpdateExisting turns differing existing objects into UPDATE steps.
	// Otherwise they are skipped.
	UpdateExisting bool

	// DryRun is carried for the executor; it does not change the plan.
	DryRun bool
}

// Build plans every node of g in topological order.
//
// Build only reads the destination through r. Matches are pinned in r's
// IdentityMap, which the executor then extends with created IDs.
func Build(g *graph.Graph, r *identity.Resolver, opts Options) (*Plan, error) {
	if g == nil || r == nil {
		return nil, errors.New("planner: graph and resolver are required")
	}
	p := newPlan(g.Len())
	for _, n := range g.Nodes() {
		step := Step{
			Key:       n.Key,
			Ref:       n.Object.Ref(),
			Deps:      slices.Clone(n.Deps),
			Requested: n.Requested,
		}
		planNode(p, n, r, opts, &step)
		p.add(step)
	}
	return p, nil
}

func planNode(p *Plan, n *graph.Node, r *identity.Resolver, opts Options, step *Step) {
	if len(n.Missing) > 0 {
		parts := make([]string, len(n.Missing))
		for i, m := range n.Missing {
			parts[i] = fmt.Sprintf("%s %s (%s)", m.Kind, m.Target(), m.Reason)
		}
		conflict(step, "dependency unavailable: "+strings.Join(parts, ", "))
		return
	}
	for _, dep := range n.Deps {
		if ds, ok := p.Step(dep); ok && ds.Action == ActionConflict {
			conflict(step, "blocked by conflicted dependency "+dep.String())
			return
		}
	}

	res := r.Resolve(n.Object)
	switch res.Status {
	case identity.StatusAmbiguous:
		conflict(step, "ambiguous match: "+res.Reason)
	case identity.StatusNotFound:
		planCreate(p, n.Object, step)
	case identity.StatusFound:
		planExisting(n.Object, res, opts, step)
	}
}

func conflict(step *Step, reason string) {
	step.Action = ActionConflict
	step.Reason = reason
}

func planCreate(p *Plan, obj model.Object, step *Step) {
	if obj.Kind == model.KindRuleAction {
		ruleKey := model.Key{Kind: model.KindRule, ID: obj.String("rule_id")}
		if rs, ok := p.Step(ruleKey); ok && rs.Action == ActionCreate {
			ids, _ := rs.Payload["action_ids"].([]any)
			if slices.Contains(ids, any(obj.String("action_id"))) {
				step.Action = ActionSkip
				step.Reason = "attached by rule create"
				return
			}
		}
	}

	step.Action = ActionCreate
	step.Payload = model.CreatePayload(obj)
	step.Reason = "not found in destination"
	if obj.Kind == model.KindRuleExclusion {
		if pat, ok := model.ParseExclusion(obj.String("source")); ok {
			step.Reason += fmt.Sprintf(" (%s: %s)", pat.Type, pat.Value)
		}
	}
}

func planExisting(obj model.Object, res identity.Resolution, opts Options, step *Step) {
	step.DestinationID = res.DestinationID
	if !model.MustSpec(obj.Kind).Named {
		step.Action = ActionSkip
		step.Reason = "already attached"
		return
	}
	if res.Destination == nil {
		step.Action = ActionSkip
		step.Reason = "already mapped"
		return
	}

	changed := model.Diff(obj, *res.Destination)
	switch {
	case len(changed) == 0:
		step.Action = ActionSkip
		step.Reason = fmt.Sprintf("already in sync (matched by %s)", res.Via)
	case opts.UpdateExisting:
		step.Action = ActionUpdate
		step.Changes = changed
		step.Payload = model.UpdatePayload(obj, changed)
		step.Reason = "fields differ: " + strings.Join(changed, ", ")
	default:
		step.Action = ActionSkip
		step.Reason = fmt.Sprintf("exists, updates disabled (%d fields differ)", len(changed))
	}
}
