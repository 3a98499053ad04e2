package executor

import (
	"context"

	"github.com/roach88/cfgmigrate/internal/planner"
	"github.com/roach88/cfgmigrate/internal/platform"
)

// stepWriter performs the write of one step.
type stepWriter interface {
	create(ctx context.Context, step *planner.Step, payload map[string]any) (string, error)
	update(ctx context.Context, step *planner.Step, payload map[string]any) error
	placeholders() bool
}

// liveWriter writes to the destination.
type liveWriter struct {
	w platform.Writer
}

func (l liveWriter) create(ctx context.Context, step *planner.Step, payload map[string]any) (string, error) {
	return l.w.CreateObject(ctx, step.Key.Kind, payload)
}

func (l liveWriter) update(ctx context.Context, step *planner.Step, payload map[string]any) error {
	return l.w.UpdateObject(ctx, step.Key.Kind, step.DestinationID, payload)
}

func (liveWriter) placeholders() bool { return false }

// dryRunWriter makes no calls. Creates return a placeholder ID derived
// from the source key so dependents can be rewritten as in a live run.
type dryRunWriter struct{}

// PlaceholderID returns the destination ID a dry run assigns to a created object.
func PlaceholderID(step *planner.Step) string {
	return "dry-run:" + string(step.Key.Kind) + ":" + step.Key.ID
}

func (dryRunWriter) create(_ context.Context, step *planner.Step, _ map[string]any) (string, error) {
	return PlaceholderID(step), nil
}

func (dryRunWriter) update(context.Context, *planner.Step, map[string]any) error {
	return nil
}

func (dryRunWriter) placeholders() bool { return true }
