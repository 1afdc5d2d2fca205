package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/samber/lo"

	"github.com/runnerr0/tracescope/internal/program"
	"github.com/runnerr0/tracescope/internal/storage"
)

type threadJSON struct {
	Thread int64                `json:"thread"`
	Active bool                 `json:"active"`
	Frames []program.StackFrame `json:"frames"`
}

// stacksJSON is the JSON output structure for the stacks command.
type stacksJSON struct {
	Trace   string       `json:"trace"`
	At      int64        `json:"at"`
	Threads []threadJSON `json:"threads"`
}

// snapshotStacks collects every thread that is started or has frames,
// ordered by thread id.
func snapshotStacks(p *program.Program) []threadJSON {
	active := p.ActiveThreads()
	ids := lo.Union(active, p.Threads())
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return lo.Map(ids, func(id int64, _ int) threadJSON {
		frames := p.CallStack(id)
		if frames == nil {
			frames = []program.StackFrame{}
		}
		return threadJSON{Thread: id, Active: lo.Contains(active, id), Frames: frames}
	})
}

// Execute implements the go-flags Commander interface for StacksCommand.
func (c *StacksCommand) Execute(args []string) error {
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

	return c.executeWithStore(context.Background(), e, store)
}

// executeWithStore runs stacks against a provided store (for testing).
func (c *StacksCommand) executeWithStore(ctx context.Context, e *env, store storage.Store) error {
	p, err := openTrace(ctx, e, store, c.Args.Trace, c.EngineFlags, c.FilterFlags)
	if err != nil {
		return err
	}
	if err := p.SetCurrentTime(c.At); err != nil {
		return err
	}

	out := stacksJSON{Trace: c.Args.Trace, At: p.CurrentTime(), Threads: snapshotStacks(p)}

	if c.globals != nil && c.globals.JSON {
		return printJSON(os.Stdout, out)
	}

	fmt.Printf("Stacks at %d\n", out.At)
	if len(out.Threads) == 0 {
		fmt.Println("No threads.")
		return nil
	}
	for _, th := range out.Threads {
		state := "ended"
		if th.Active {
			state = "running"
		}
		fmt.Println()
		fmt.Printf("Thread %d (%s, depth %d)\n", th.Thread, state, len(th.Frames))
		if len(th.Frames) == 0 {
			continue
		}
		table := newTable(os.Stdout, "#", "Class", "Method", "Defining", "Actual", "Object")
		for i, f := range th.Frames {
			table.Append([]string{
				strconv.Itoa(i),
				f.Class,
				f.Method,
				f.Defining,
				f.Actual,
				strconv.FormatInt(f.Object, 10),
			})
		}
		table.Render()
	}
	return nil
}
