package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/runnerr0/tracescope/internal/storage"
)

// Execute implements the go-flags Commander interface for PruneCommand.
func (c *PruneCommand) Execute(args []string) error {
	return withStore(c.globals, func(store *storage.SQLiteStore) error {
		return c.executeWithStore(context.Background(), store, time.Now())
	})
}

// executeWithStore prunes a provided store relative to now (for testing).
func (c *PruneCommand) executeWithStore(ctx context.Context, store storage.Store, now time.Time) error {
	age, err := parseDuration(c.OlderThan)
	if err != nil {
		return fmt.Errorf("invalid --older-than value: %w", err)
	}
	cutoff := now.Add(-age)

	var n int64
	if c.DryRun {
		n, err = store.CountLoads(ctx, cutoff)
	} else {
		n, err = store.PruneLoads(ctx, cutoff)
	}
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(os.Stdout, map[string]interface{}{
			"pruned":  n,
			"dry_run": c.DryRun,
			"cutoff":  cutoff.UTC().Format(time.RFC3339),
		})
	}

	if c.DryRun {
		fmt.Printf("Would prune %d trace loads older than %s.\n", n, formatDurationHuman(age))
		return nil
	}
	fmt.Printf("Pruned %d trace loads older than %s.\n", n, formatDurationHuman(age))
	return nil
}
