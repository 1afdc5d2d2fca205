package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/runnerr0/tracescope/internal/storage"
)

type loadJSON struct {
	ID       int64  `json:"id"`
	Path     string `json:"path"`
	LoadedAt string `json:"loaded_at"`
	Events   int    `json:"events"`
	Classes  int    `json:"classes"`
	Edges    int    `json:"edges"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
}

// Execute implements the go-flags Commander interface for HistoryCommand.
func (c *HistoryCommand) Execute(args []string) error {
	return withStore(c.globals, func(store *storage.SQLiteStore) error {
		return c.executeWithStore(context.Background(), store)
	})
}

// executeWithStore lists the loads of a provided store (for testing).
func (c *HistoryCommand) executeWithStore(ctx context.Context, store storage.Store) error {
	loads, err := store.ListLoads(ctx, c.Limit)
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		out := make([]loadJSON, len(loads))
		for i, l := range loads {
			out[i] = loadJSON{
				ID:       l.ID,
				Path:     l.Path,
				LoadedAt: l.LoadedAt.UTC().Format(time.RFC3339),
				Events:   l.Events,
				Classes:  l.Vertices,
				Edges:    l.Edges,
				Start:    l.Start,
				End:      l.End,
			}
		}
		return printJSON(os.Stdout, out)
	}

	if len(loads) == 0 {
		fmt.Println("No traces loaded yet.")
		return nil
	}
	table := newTable(os.Stdout, "ID", "Loaded", "Trace", "Events", "Classes", "Edges", "Span")
	for _, l := range loads {
		table.Append([]string{
			strconv.FormatInt(l.ID, 10),
			humanize.Time(l.LoadedAt),
			l.Path,
			count(int64(l.Events)),
			count(int64(l.Vertices)),
			count(int64(l.Edges)),
			fmt.Sprintf("%d..%d", l.Start, l.End),
		})
	}
	table.Render()
	return nil
}
