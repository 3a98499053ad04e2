// Package migrate runs a configuration migration end to end: it snapshots
// both instances, plans against the destination, and applies the plan.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/juju/clock"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/cfgmigrate/internal/executor"
	"github.com/roach88/cfgmigrate/internal/graph"
	"github.com/roach88/cfgmigrate/internal/identity"
	"github.com/roach88/cfgmigrate/internal/journal"
	"github.com/roach88/cfgmigrate/internal/model"
	"github.com/roach88/cfgmigrate/internal/planner"
	"github.com/roach88/cfgmigrate/internal/platform"
)

// Options selects what to migrate and how.
type Options struct {
	Kinds      []model.Kind
	IncludeIDs []string
	ExcludeIDs []string
	SkipKinds  []model.Kind

	UpdateExisting bool
	DryRun         bool
	// IncludeSystem also migrates platform-owned source objects.
	IncludeSystem bool

	Workers int
	Retry   executor.RetryPolicy
}

func (o Options) selection() graph.Selection {
	return graph.Selection{
		IncludeKinds: o.Kinds,
		IncludeIDs:   o.IncludeIDs,
		ExcludeIDs:   o.ExcludeIDs,
		SkipKinds:    o.SkipKinds,
	}
}

// record is the options as stored in the journal.
func (o Options) record() map[string]any {
	kinds := func(ks []model.Kind) []any {
		out := []any{}
		for _, k := range ks {
			out = append(out, string(k))
		}
		return out
	}
	strs := func(ss []string) []any {
		out := []any{}
		for _, s := range ss {
			out = append(out, s)
		}
		return out
	}
	return map[string]any{
		"kinds":           kinds(o.Kinds),
		"include_ids":     strs(o.IncludeIDs),
		"exclude_ids":     strs(o.ExcludeIDs),
		"skip_kinds":      kinds(o.SkipKinds),
		"update_existing": o.UpdateExisting,
		"dry_run":         o.DryRun,
		"include_system":  o.IncludeSystem,
		"workers":         o.Workers,
	}
}

// Journal records runs. *journal.Journal implements it.
type Journal interface {
	BeginRun(ctx context.Context, run journal.Run) error
	RecordOutcome(ctx context.Context, runID string, o executor.Outcome) error
	FinishRun(ctx context.Context, report *executor.Report) error
}

// Migrator moves configuration from Source to Destination.
type Migrator struct {
	Source      platform.Reader
	Destination platform.Client

	// SourceName and DestinationName label the instances in the journal.
	SourceName      string
	DestinationName string

	Logger  *slog.Logger
	Clock   clock.Clock
	RunIDs  RunIDGenerator
	Journal Journal
}

// Prepared is a planned run, ready to review and apply.
type Prepared struct {
	RunID       string
	Options     Options
	Source      *model.Inventory
	Destination *model.Inventory
	Graph       *graph.Graph
	Plan        *planner.Plan
	IDs         *identity.IdentityMap
}

func (m *Migrator) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

func (m *Migrator) clock() clock.Clock {
	if m.Clock == nil {
		return clock.WallClock
	}
	return m.Clock
}

// buildGraph is replaced in tests to reach graph failures no inventory
// of the current kinds can produce.
var buildGraph = graph.Build

// Prepare snapshots both instances and builds the plan. It makes no writes.
func (m *Migrator) Prepare(ctx context.Context, opts Options) (*Prepared, error) {
	if m.Source == nil || m.Destination == nil {
		return nil, errors.New("migrator needs a source and a destination")
	}
	for _, k := range append(append([]model.Kind{}, opts.Kinds...), opts.SkipKinds...) {
		if !k.Valid() {
			return nil, fmt.Errorf("unknown kind %q", k)
		}
	}

	runIDs := m.RunIDs
	if runIDs == nil {
		runIDs = UUIDv7{}
	}
	runID := runIDs.Generate()
	log := m.logger().With("run_id", runID)

	src, dest, err := m.snapshot(ctx, opts)
	if err != nil {
		return nil, err
	}
	log.Info("snapshot complete", "source_objects", src.Len(), "destination_objects", dest.Len())

	dg, err := buildGraph(src, opts.selection())
	if err != nil {
		return nil, err
	}
	if len(dg.UnmatchedIDs) > 0 {
		log.Warn("ids matched no source object", "ids", dg.UnmatchedIDs)
	}

	ids := identity.NewIdentityMap()
	plan, err := planner.Build(dg, identity.NewResolver(dest, ids), planner.Options{
		UpdateExisting: opts.UpdateExisting,
		DryRun:         opts.DryRun,
	})
	if err != nil {
		return nil, err
	}

	summary := plan.Summary()
	log.Info("plan built",
		"steps", len(plan.Steps),
		"create", summary[planner.ActionCreate],
		"update", summary[planner.ActionUpdate],
		"skip", summary[planner.ActionSkip],
		"conflict", summary[planner.ActionConflict])

	return &Prepared{
		RunID:       runID,
		Options:     opts,
		Source:      src,
		Destination: dest,
		Graph:       dg,
		Plan:        plan,
		IDs:         ids,
	}, nil
}

// snapshot reads both instances concurrently. System objects are read from
// the destination so they can be matched, but only migrated from the source
// when IncludeSystem is set.
func (m *Migrator) snapshot(ctx context.Context, opts Options) (src, dest *model.Inventory, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		inv, err := Snapshot(gctx, m.Source, platform.ListFilter{IncludeSystem: opts.IncludeSystem})
		if err != nil {
			return fmt.Errorf("source: %w", err)
		}
		src = inv
		return nil
	})
	g.Go(func() error {
		inv, err := Snapshot(gctx, m.Destination, platform.ListFilter{IncludeSystem: true})
		if err != nil {
			return fmt.Errorf("destination: %w", err)
		}
		dest = inv
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return src, dest, nil
}

// Apply executes a prepared plan. Outcomes are journaled as they finish
// when a journal is configured; journal failures are logged and do not
// stop the run.
func (m *Migrator) Apply(ctx context.Context, p *Prepared) (*executor.Report, error) {
	if p == nil {
		return nil, errors.New("nil prepared run")
	}
	log := m.logger().With("run_id", p.RunID)
	clk := m.clock()

	// Journal writes outlive a cancelled run so the partial report is kept.
	jctx := context.WithoutCancel(ctx)
	if m.Journal != nil {
		err := m.Journal.BeginRun(jctx, journal.Run{
			ID:          p.RunID,
			StartedAt:   clk.Now().UTC(),
			DryRun:      p.Options.DryRun,
			Source:      m.SourceName,
			Destination: m.DestinationName,
			Options:     p.Options.record(),
		})
		if err != nil {
			log.Warn("journal begin failed", "error", err)
		}
	}

	exec := executor.New(m.Destination, p.IDs, executor.Options{
		Workers: p.Options.Workers,
		Retry:   p.Options.Retry,
		DryRun:  p.Options.DryRun,
		RunID:   p.RunID,
		Clock:   clk,
		Logger:  log,
		OnOutcome: func(o executor.Outcome) {
			if m.Journal == nil {
				return
			}
			if err := m.Journal.RecordOutcome(jctx, p.RunID, o); err != nil {
				log.Warn("journal outcome failed", "key", o.Key.String(), "error", err)
			}
		},
	})

	report, err := exec.Execute(ctx, p.Plan)
	if report != nil && m.Journal != nil {
		if jerr := m.Journal.FinishRun(jctx, report); jerr != nil {
			log.Warn("journal finish failed", "error", jerr)
		}
	}
	return report, err
}

// Run prepares and applies in one call.
func (m *Migrator) Run(ctx context.Context, opts Options) (*Prepared, *executor.Report, error) {
	p, err := m.Prepare(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	report, err := m.Apply(ctx, p)
	return p, report, err
}
