package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/cfgmigrate/internal/executor"
	"github.com/roach88/cfgmigrate/internal/migrate"
	"github.com/roach88/cfgmigrate/internal/model"
	"github.com/roach88/cfgmigrate/internal/planner"
	"github.com/roach88/cfgmigrate/internal/platform"
	"github.com/roach88/cfgmigrate/internal/platform/memory"
	"github.com/roach88/cfgmigrate/internal/testutil"
)

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when every expectation, assertion and invariant held.
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`

	Plan   *planner.Plan    `json:"-"`
	Report *executor.Report `json:"-"`
	// Writes are the destination writes of the first run, in call order.
	Writes []memory.Call `json:"-"`
	// Destination is the destination store after the run.
	Destination *memory.Store `json:"-"`
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// retryDelay keeps scenario retries fast.
const retryDelay = time.Millisecond

// Run executes a scenario against fresh in-memory instances.
//
// Execution flow:
//  1. Seed source and destination stores, inject faults
//  2. Prepare and apply the migration
//  3. Check invariants, expectations and assertions
func Run(s *Scenario) (*Result, error) {
	ctx := context.Background()

	src, dest, err := seed(s)
	if err != nil {
		return nil, err
	}
	opts, err := s.Options.options()
	if err != nil {
		return nil, err
	}

	p, report, err := migrator(s, src, dest).Run(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("run scenario %s: %w", s.Name, err)
	}

	result := &Result{
		Pass:        true,
		Plan:        p.Plan,
		Report:      report,
		Writes:      dest.Writes(),
		Destination: dest,
	}

	for _, msg := range CheckInvariants(p.Plan, report, result.Writes) {
		result.addError("invariant: %s", msg)
	}
	checkExpectations(s.Expect, report, result)
	for _, a := range s.Assertions {
		if err := evaluate(ctx, s, a, src, result, opts); err != nil {
			result.addError("%s", err)
		}
	}
	return result, nil
}

func seed(s *Scenario) (src, dest *memory.Store, err error) {
	src = memory.New(memory.WithIDs(testutil.NewSequence("src")))
	dest = memory.New(memory.WithIDs(testutil.NewSequence("dest")))

	for i, spec := range s.Source {
		obj, err := spec.object()
		if err != nil {
			return nil, nil, fmt.Errorf("source[%d]: %w", i, err)
		}
		if err := src.Seed(obj); err != nil {
			return nil, nil, fmt.Errorf("source[%d]: %w", i, err)
		}
	}
	for i, spec := range s.Destination {
		obj, err := spec.object()
		if err != nil {
			return nil, nil, fmt.Errorf("destination[%d]: %w", i, err)
		}
		if err := dest.Seed(obj); err != nil {
			return nil, nil, fmt.Errorf("destination[%d]: %w", i, err)
		}
	}
	for _, f := range s.Faults {
		kind, _ := model.ParseKind(f.Kind)
		dest.InjectFault(memory.Fault{
			Op:    f.Op,
			Kind:  kind,
			Name:  f.Name,
			Times: f.Times,
			Err: &platform.Error{
				Code:    faultCodes[f.Code],
				Op:      f.Op,
				Kind:    kind,
				Message: "injected " + f.Code,
			},
		})
	}
	return src, dest, nil
}

func migrator(s *Scenario, src, dest platform.Client) *migrate.Migrator {
	return &migrate.Migrator{
		Source:      src,
		Destination: dest,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		RunIDs:      testutil.FixedID(s.Name),
	}
}

func (o OptionSpec) options() (migrate.Options, error) {
	kinds, err := model.ParseKinds(o.Kinds)
	if err != nil {
		return migrate.Options{}, err
	}
	skip, err := model.ParseKinds(o.SkipKinds)
	if err != nil {
		return migrate.Options{}, err
	}
	attempts := o.RetryAttempts
	if attempts <= 0 {
		attempts = executor.DefaultRetry.Attempts
	}
	return migrate.Options{
		Kinds:          kinds,
		IncludeIDs:     o.IncludeIDs,
		ExcludeIDs:     o.ExcludeIDs,
		SkipKinds:      skip,
		UpdateExisting: o.UpdateExisting,
		DryRun:         o.DryRun,
		IncludeSystem:  o.IncludeSystem,
		Workers:        o.Workers,
		Retry: executor.RetryPolicy{
			Attempts: attempts,
			Delay:    retryDelay,
			MaxDelay: 4 * retryDelay,
		},
	}, nil
}

func checkExpectations(expect []Expectation, report *executor.Report, result *Result) {
	for _, e := range expect {
		key, _ := model.ParseKey(e.Key)
		o, ok := report.Outcome(key)
		if !ok {
			result.addError("expect %s: no outcome", e.Key)
			continue
		}
		if string(o.Status) != e.Status {
			result.addError("expect %s: status %s, got %s (%s)", e.Key, e.Status, o.Status, o.Reason)
		}
		if e.Reason != "" && !containsFold(o.Reason, e.Reason) {
			result.addError("expect %s: reason containing %q, got %q", e.Key, e.Reason, o.Reason)
		}
		if e.Attempts != 0 && o.Attempts != e.Attempts {
			result.addError("expect %s: %d attempts, got %d", e.Key, e.Attempts, o.Attempts)
		}
	}
}

func evaluate(ctx context.Context, s *Scenario, a Assertion, src platform.Client, result *Result, opts migrate.Options) error {
	switch a.Type {
	case AssertOrder:
		return assertOrder(result.Plan, a.Keys)
	case AssertWriteCount:
		return assertWriteCount(result.Writes, a)
	case AssertDestination:
		return assertDestination(result.Destination, a)
	case AssertRerunNoop:
		opts.DryRun = false
		result.Destination.ResetCalls()
		_, report, err := migrator(s, src, result.Destination).Run(ctx, opts)
		if err != nil {
			return fmt.Errorf("rerun: %w", err)
		}
		if writes := result.Destination.Writes(); len(writes) > 0 {
			return fmt.Errorf("rerun: expected no writes, got %v", writes)
		}
		for _, o := range report.Outcomes {
			if o.Status != executor.StatusSkipped && o.Status != executor.StatusConflict {
				return fmt.Errorf("rerun: %s is %s, expected SKIPPED", o.Key, o.Status)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertOrder(plan *planner.Plan, keys []string) error {
	last := -1
	for _, k := range keys {
		key, _ := model.ParseKey(k)
		step, ok := plan.Step(key)
		if !ok {
			return fmt.Errorf("order: %s not in plan", k)
		}
		if step.Index <= last {
			return fmt.Errorf("order: %s at step %d, expected after step %d", k, step.Index, last)
		}
		last = step.Index
	}
	return nil
}

func assertWriteCount(writes []memory.Call, a Assertion) error {
	n := 0
	for _, w := range writes {
		if a.Op != "" && w.Op != a.Op {
			continue
		}
		if a.Kind != "" && string(w.Kind) != a.Kind {
			continue
		}
		n++
	}
	if n != a.Count {
		return fmt.Errorf("write_count: expected %d writes (op=%q kind=%q), got %d", a.Count, a.Op, a.Kind, n)
	}
	return nil
}

func assertDestination(dest *memory.Store, a Assertion) error {
	kind, _ := model.ParseKind(a.Kind)
	idx := slices.IndexFunc(dest.Objects(kind), func(o model.Object) bool { return o.Name == a.Name })
	if idx < 0 {
		return fmt.Errorf("destination: no %s named %q", kind, a.Name)
	}
	obj := dest.Objects(kind)[idx]
	want, err := model.NormalizeFields(a.Fields)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	for field, v := range want {
		if !model.CanonicalEqual(v, obj.Fields[field]) {
			return fmt.Errorf("destination: %s %q field %s = %v, expected %v", kind, a.Name, field, obj.Fields[field], v)
		}
	}
	return nil
}
