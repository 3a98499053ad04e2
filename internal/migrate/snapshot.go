package migrate

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/cfgmigrate/internal/model"
	"github.com/roach88/cfgmigrate/internal/platform"
)

// Snapshot reads every kind from r in parallel and returns them as one
// inventory. The first failing read cancels the others.
func Snapshot(ctx context.Context, r platform.Reader, filter platform.ListFilter) (*model.Inventory, error) {
	results := make([][]model.Object, len(model.AllKinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range model.AllKinds {
		g.Go(func() error {
			objs, err := platform.Drain(gctx, r, kind, filter)
			if err != nil {
				return fmt.Errorf("snapshot %s: %w", kind.Plural(), err)
			}
			results[i] = objs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	inv := model.NewInventory()
	for _, objs := range results {
		inv.Add(objs...)
	}
	return inv, nil
}
