package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/cfgmigrate/internal/executor"
	"github.com/roach88/cfgmigrate/internal/model"
	"github.com/roach88/cfgmigrate/internal/planner"
	"github.com/roach88/cfgmigrate/internal/platform/memory"
)

// CheckInvariants returns a message for every rule the report breaks.
// writes are the destination writes in call order.
func CheckInvariants(plan *planner.Plan, report *executor.Report, writes []memory.Call) []string {
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if len(report.Outcomes) != len(plan.Steps) {
		fail("%d outcomes for %d steps", len(report.Outcomes), len(plan.Steps))
		return errs
	}

	byKey := make(map[model.Key]executor.Outcome, len(report.Outcomes))
	for i, o := range report.Outcomes {
		step := plan.Steps[i]
		if o.Key != step.Key || o.Index != i {
			fail("outcome %d is %s, plan step is %s", i, o.Key, step.Key)
		}
		byKey[o.Key] = o

		switch step.Action {
		case planner.ActionSkip:
			if o.Status != executor.StatusSkipped && o.Status != executor.StatusFailedBlocked {
				fail("%s: planned SKIP ended %s", o.Key, o.Status)
			}
		case planner.ActionConflict:
			if o.Status != executor.StatusConflict {
				fail("%s: planned CONFLICT ended %s", o.Key, o.Status)
			}
		}
	}

	for i, o := range report.Outcomes {
		deps := plan.Steps[i].Deps
		switch o.Status {
		case executor.StatusCreated, executor.StatusUpdated, executor.StatusSkipped:
			for _, d := range deps {
				if dep, ok := byKey[d]; ok && !succeeded(dep.Status) {
					fail("%s %s although dependency %s is %s", o.Key, o.Status, d, dep.Status)
				}
			}
		case executor.StatusFailedBlocked:
			if !slices.ContainsFunc(deps, func(d model.Key) bool { return byKey[d].Status.IsFailure() }) {
				fail("%s FAILED-BLOCKED without a failed dependency", o.Key)
			}
		}
	}

	if report.DryRun && len(writes) > 0 {
		fail("dry run made %d writes", len(writes))
	}

	// A create call must follow the create calls of its dependencies.
	position := map[model.Key]int{}
	for i, w := range writes {
		if w.Op != "create" || w.ID == "" {
			continue
		}
		for _, o := range report.Outcomes {
			if o.Status == executor.StatusCreated && o.Key.Kind == w.Kind && o.DestinationID == w.ID {
				position[o.Key] = i
			}
		}
	}
	for i, o := range report.Outcomes {
		pos, ok := position[o.Key]
		if !ok {
			continue
		}
		for _, d := range plan.Steps[i].Deps {
			if dp, ok := position[d]; ok && dp > pos {
				fail("%s written before its dependency %s", o.Key, d)
			}
		}
	}
	return errs
}

func succeeded(s executor.Status) bool {
	return s == executor.StatusCreated || s == executor.StatusUpdated || s == executor.StatusSkipped
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
