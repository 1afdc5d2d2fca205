package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/runnerr0/tracescope/internal/config"
	"github.com/runnerr0/tracescope/internal/storage"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version           string          `json:"version"`
	DatabasePath      string          `json:"database_path"`
	DatabaseSizeBytes int64           `json:"database_size_bytes"`
	TotalProfiles     int64           `json:"total_profiles"`
	TotalRules        int64           `json:"total_rules"`
	TotalLoads        int64           `json:"total_loads"`
	LastLoad          string          `json:"last_load,omitempty"`
	TopTraces         []pathCountJSON `json:"top_traces"`
	CallAttribution   string          `json:"call_attribution"`
	MergeInnerClasses bool            `json:"merge_inner_classes"`
	HideJDK           bool            `json:"hide_jdk"`
}

type pathCountJSON struct {
	Path  string `json:"path"`
	Count int64  `json:"count"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	e, err := loadEnv(c.globals)
	if err != nil {
		return err
	}
	store, db, err := openStore(e.cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return c.executeWithStore(context.Background(), e.cfg, store)
}

// executeWithStore runs status against a provided config and store (for testing).
func (c *StatusCommand) executeWithStore(ctx context.Context, cfg *config.Config, store storage.Store) error {
	stats, err := store.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	dbPath, err := cfg.DBPath()
	if err != nil {
		return err
	}
	dbSize := stats.DatabaseSizeBytes
	if info, err := os.Stat(dbPath); err == nil {
		dbSize = info.Size()
	}

	out := statusJSON{
		Version:           c.version,
		DatabasePath:      dbPath,
		DatabaseSizeBytes: dbSize,
		TotalProfiles:     stats.TotalProfiles,
		TotalRules:        stats.TotalRules,
		TotalLoads:        stats.TotalLoads,
		TopTraces:         make([]pathCountJSON, len(stats.TopTraces)),
		CallAttribution:   cfg.Engine.CallAttribution,
		MergeInnerClasses: cfg.Engine.MergeInnerClasses,
		HideJDK:           cfg.Filters.HideJDK,
	}
	if stats.TotalLoads > 0 {
		out.LastLoad = stats.LastLoad.UTC().Format(time.RFC3339)
	}
	for i, pc := range stats.TopTraces {
		out.TopTraces[i] = pathCountJSON{Path: pc.Path, Count: pc.Count}
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(os.Stdout, out)
	}
	return c.printStatusHuman(out, stats)
}

func (c *StatusCommand) printStatusHuman(out statusJSON, stats *storage.Stats) error {
	fmt.Println("tracescope Status")
	fmt.Println("=================")
	fmt.Printf("Version:       %s\n", out.Version)
	fmt.Printf("Database:      %s (%s)\n", out.DatabasePath, humanize.Bytes(uint64(out.DatabaseSizeBytes)))
	fmt.Printf("Profiles:      %s (%s rules)\n", count(out.TotalProfiles), count(out.TotalRules))
	fmt.Printf("Loads:         %s\n", count(out.TotalLoads))
	if out.TotalLoads > 0 {
		fmt.Printf("Last load:     %s\n", humanize.Time(stats.LastLoad))
	}

	if len(out.TopTraces) > 0 {
		fmt.Println()
		fmt.Println("Top Traces:")
		for _, t := range out.TopTraces {
			fmt.Printf("  %-40s %s\n", t.Path, count(t.Count))
		}
	}

	fmt.Println()
	fmt.Printf("Attribution:   %s\n", out.CallAttribution)
	fmt.Printf("Inner classes: %s\n", map[bool]string{true: "merged", false: "separate"}[out.MergeInnerClasses])
	fmt.Printf("JDK classes:   %s\n", map[bool]string{true: "hidden", false: "shown"}[out.HideJDK])
	return nil
}
