// Package planner decides, for every object in a dependency graph, whether
// the destination needs it created, updated, left alone, or cannot take it.
package planner

import (
	"github.com/roach88/cfgmigrate/internal/model"
)

// Action is the planned operation for one object.
type Action string

const (
	ActionCreate   Action = "CREATE"
	ActionUpdate   Action = "UPDATE"
	ActionSkip     Action = "SKIP"
	ActionConflict Action = "CONFLICT"
)

// Actions lists every action in report order.
var Actions = []Action{ActionCreate, ActionUpdate, ActionSkip, ActionConflict}

// Step is the plan for one object.
type Step struct {
	Index  int       `json:"index"`
	Key    model.Key `json:"key"`
	Ref    model.Ref `json:"ref"`
	Action Action    `json:"action"`

	// DestinationID is set for UPDATE and for SKIPs of existing objects.
	DestinationID string `json:"destination_id,omitempty"`
	Reason        string `json:"reason"`

	// Deps are the source keys this step requires.
	Deps []model.Key `json:"deps,omitempty"`

	// Payload holds source IDs in reference slots; the executor rewrites
	// them to destination IDs before writing.
	Payload map[string]any `json:"payload,omitempty"`
	// Changes lists the fields an UPDATE sends.
	Changes []string `json:"changes,omitempty"`

	// Requested is false for objects pulled in as dependencies.
	Requested bool `json:"requested"`
}

// Plan is an ordered list of steps; every step follows its dependencies.
type Plan struct {
	Steps []Step `json:"steps"`
	index map[model.Key]int
}

func newPlan(capacity int) *Plan {
	return &Plan{
		Steps: make([]Step, 0, capacity),
		index: make(map[model.Key]int, capacity),
	}
}

func (p *Plan) add(s Step) {
	s.Index = len(p.Steps)
	p.index[s.Key] = s.Index
	p.Steps = append(p.Steps, s)
}

// Step returns the step for a source key.
func (p *Plan) Step(key model.Key) (*Step, bool) {
	if p.index == nil {
		p.reindex()
	}
	i, ok := p.index[key]
	if !ok {
		return nil, false
	}
	return &p.Steps[i], true
}

// reindex rebuilds the key index, for plans built outside Build.
func (p *Plan) reindex() {
	p.index = make(map[model.Key]int, len(p.Steps))
	for i := range p.Steps {
		p.Steps[i].Index = i
		p.index[p.Steps[i].Key] = i
	}
}

// Summary is a count of steps per action.
type Summary map[Action]int

// Summary counts steps per action.
func (p *Plan) Summary() Summary {
	s := Summary{}
	for _, step := range p.Steps {
		s[step.Action]++
	}
	return s
}

// HasWork reports whether any step writes to the destination.
func (p *Plan) HasWork() bool {
	s := p.Summary()
	return s[ActionCreate]+s[ActionUpdate] > 0
}

// FromSteps builds a plan from explicit steps in order.
func FromSteps(steps ...Step) *Plan {
	p := newPlan(len(steps))
	for _, s := range steps {
		p.add(s)
	}
	return p
}
