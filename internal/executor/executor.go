// Package executor applies a migration plan to the destination, running
// independent steps concurrently and every step after its dependencies.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/juju/clock"
	"golang.org/x/sync/semaphore"

	"github.com/roach88/cfgmigrate/internal/identity"
	"github.com/roach88/cfgmigrate/internal/model"
	"github.com/roach88/cfgmigrate/internal/planner"
	"github.com/roach88/cfgmigrate/internal/platform"
)

// DefaultWorkers bounds concurrent writes when Options.Workers is unset.
const DefaultWorkers = 4

// Options configures an Executor.
type Options struct {
	// Workers is the maximum number of writes in flight.
	Workers int
	Retry   RetryPolicy
	// DryRun replaces every write with a placeholder.
	DryRun bool
	RunID  string
	Clock  clock.Clock
	Logger *slog.Logger
	// OnOutcome is called once per step as it finishes. Calls are serialized.
	OnOutcome func(Outcome)
}

// Executor runs plans against one destination.
type Executor struct {
	writer stepWriter
	ids    *identity.IdentityMap
	opts   Options
	logger *slog.Logger
	clock  clock.Clock
}

// New returns an executor writing through w. Destination IDs of created
// objects are pinned in ids, which must already hold the IDs of every
// object the plan skips or updates.
func New(w platform.Writer, ids *identity.IdentityMap, opts Options) *Executor {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	opts.Retry = opts.Retry.withDefaults()
	if ids == nil {
		ids = identity.NewIdentityMap()
	}
	e := &Executor{
		ids:    ids,
		opts:   opts,
		logger: opts.Logger,
		clock:  opts.Clock,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.clock == nil {
		e.clock = clock.WallClock
	}
	if opts.DryRun {
		e.writer = dryRunWriter{}
	} else {
		e.writer = liveWriter{w: w}
	}
	return e
}

// run is the state of one Execute call.
type run struct {
	e       *Executor
	plan    *planner.Plan
	sem     *semaphore.Weighted
	done    []chan struct{}
	results []Outcome

	mu        sync.Mutex
	cancelled bool
}

// Execute applies plan and returns a report with one outcome per step in
// plan order. A failed step blocks its dependents but not the rest of the
// plan. When ctx is cancelled, writes already in flight complete, steps
// not yet started are reported FAILED, and the returned error is ctx.Err().
func (e *Executor) Execute(ctx context.Context, plan *planner.Plan) (*Report, error) {
	if plan == nil {
		return nil, errors.New("nil plan")
	}
	if err := validateOrder(plan); err != nil {
		return nil, err
	}

	report := &Report{
		RunID:     e.opts.RunID,
		DryRun:    e.opts.DryRun,
		StartedAt: e.clock.Now().UTC(),
	}
	r := &run{
		e:       e,
		plan:    plan,
		sem:     semaphore.NewWeighted(int64(e.opts.Workers)),
		done:    make([]chan struct{}, len(plan.Steps)),
		results: make([]Outcome, len(plan.Steps)),
	}
	for i := range r.done {
		r.done[i] = make(chan struct{})
	}

	e.logger.Info("executing plan",
		"run_id", e.opts.RunID,
		"steps", len(plan.Steps),
		"workers", e.opts.Workers,
		"dry_run", e.opts.DryRun)

	var wg sync.WaitGroup
	for i := range plan.Steps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.finish(i, r.runStep(ctx, &plan.Steps[i]))
		}(i)
	}
	wg.Wait()

	report.Outcomes = r.results
	report.FinishedAt = e.clock.Now().UTC()
	report.Cancelled = r.cancelled

	e.logger.Info("plan executed",
		"run_id", e.opts.RunID,
		"cancelled", report.Cancelled,
		"failed", report.Failed())

	if report.Cancelled {
		return report, ctx.Err()
	}
	return report, nil
}

// validateOrder rejects plans where a step precedes one of its dependencies.
func validateOrder(plan *planner.Plan) error {
	for i := range plan.Steps {
		s := &plan.Steps[i]
		if s.Index != i {
			return fmt.Errorf("step %s has index %d at position %d", s.Key, s.Index, i)
		}
		for _, dep := range s.Deps {
			d, ok := plan.Step(dep)
			if !ok {
				continue
			}
			if d.Index >= i {
				return fmt.Errorf("step %s precedes its dependency %s", s.Key, dep)
			}
		}
	}
	return nil
}

func (r *run) finish(i int, o Outcome) {
	r.mu.Lock()
	r.results[i] = o
	if o.Reason == ReasonCancelled && o.Status == StatusFailed {
		r.cancelled = true
	}
	if r.e.opts.OnOutcome != nil {
		r.e.opts.OnOutcome(o)
	}
	r.mu.Unlock()
	close(r.done[i])
}

// failedDependency waits for every dependency and returns the outcome of the first failed dependency.
func (r *run) failedDependency(step *planner.Step) (Outcome, bool) {
	for _, dep := range step.Deps {
		d, ok := r.plan.Step(dep)
		if !ok {
			continue
		}
		<-r.done[d.Index]
		r.mu.Lock()
		o := r.results[d.Index]
		r.mu.Unlock()
		if o.Status.IsFailure() {
			return o, true
		}
	}
	return Outcome{}, false
}

func (r *run) runStep(ctx context.Context, step *planner.Step) Outcome {
	out := Outcome{
		Index:         step.Index,
		Key:           step.Key,
		Ref:           step.Ref,
		Action:        step.Action,
		DestinationID: step.DestinationID,
		Reason:        step.Reason,
	}

	if step.Action == planner.ActionConflict {
		out.Status = StatusConflict
		return out
	}

	// A SKIP can rest on a dependency's write, as an association attached
	// by its rule's create does, so it is blocked like any other step.
	dep, failed := r.failedDependency(step)
	if step.Action != planner.ActionSkip && ctx.Err() != nil {
		return cancelled(out)
	}
	if failed {
		out.Status = StatusFailedBlocked
		out.DestinationID = ""
		out.Reason = fmt.Sprintf("dependency %s %s", dep.Key, dep.Status)
		return out
	}
	if step.Action == planner.ActionSkip {
		out.Status = StatusSkipped
		return out
	}
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return cancelled(out)
	}
	defer r.sem.Release(1)

	// Started writes run to completion.
	callCtx := context.WithoutCancel(ctx)

	switch step.Action {
	case planner.ActionCreate:
		return r.e.create(callCtx, step, out)
	case planner.ActionUpdate:
		return r.e.update(callCtx, step, out)
	}
	out.Status = StatusFailed
	out.Reason = fmt.Sprintf("unknown action %q", step.Action)
	return out
}

func cancelled(out Outcome) Outcome {
	out.Status = StatusFailed
	out.DestinationID = ""
	out.Reason = ReasonCancelled
	return out
}

func (e *Executor) create(ctx context.Context, step *planner.Step, out Outcome) Outcome {
	payload, err := model.RewriteReferences(step.Key.Kind, step.Payload, e.ids.Lookup)
	if err != nil {
		return e.fail(step, out, err)
	}

	var id string
	attempts, err := e.withRetry(step, func() error {
		var err error
		id, err = e.writer.create(ctx, step, payload)
		return err
	})
	out.Attempts = attempts
	if err != nil {
		return e.fail(step, out, err)
	}
	if id == "" {
		return e.fail(step, out, errors.New("destination returned no id"))
	}
	if err := e.ids.Pin(step.Key, id); err != nil {
		return e.fail(step, out, fmt.Errorf("pin %s: %w", id, err))
	}

	out.Status = StatusCreated
	out.DestinationID = id
	out.Placeholder = e.writer.placeholders()
	out.Reason = ""
	e.logger.Info("created",
		"kind", step.Key.Kind,
		"source_id", step.Key.ID,
		"destination_id", id,
		"attempts", attempts)
	return out
}

func (e *Executor) update(ctx context.Context, step *planner.Step, out Outcome) Outcome {
	if step.DestinationID == "" {
		return e.fail(step, out, errors.New("update has no destination id"))
	}
	payload, err := model.RewriteReferences(step.Key.Kind, step.Payload, e.ids.Lookup)
	if err != nil {
		return e.fail(step, out, err)
	}

	attempts, err := e.withRetry(step, func() error {
		return e.writer.update(ctx, step, payload)
	})
	out.Attempts = attempts
	if err != nil {
		return e.fail(step, out, err)
	}

	out.Status = StatusUpdated
	out.Reason = ""
	e.logger.Info("updated",
		"kind", step.Key.Kind,
		"source_id", step.Key.ID,
		"destination_id", step.DestinationID,
		"fields", step.Changes,
		"attempts", attempts)
	return out
}

func (e *Executor) fail(step *planner.Step, out Outcome, err error) Outcome {
	out.Status = StatusFailed
	out.Reason = err.Error()
	if step.Action == planner.ActionCreate {
		out.DestinationID = ""
	}
	e.logger.Warn("step failed",
		"kind", step.Key.Kind,
		"source_id", step.Key.ID,
		"action", step.Action,
		"attempts", out.Attempts,
		"error", err)
	return out
}
