package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/samber/lo"

	"github.com/runnerr0/tracescope/internal/metrics"
	"github.com/runnerr0/tracescope/internal/program"
	"github.com/runnerr0/tracescope/internal/series"
	"github.com/runnerr0/tracescope/internal/storage"
)

// inspectJSON is the JSON output structure for the inspect command.
type inspectJSON struct {
	Trace    string               `json:"trace"`
	Start    int64                `json:"start"`
	End      int64                `json:"end"`
	From     int64                `json:"from"`
	At       int64                `json:"at"`
	Events   int                  `json:"events"`
	Filtered int                  `json:"filtered"`
	Classes  []classJSON          `json:"classes"`
	Edges    []metrics.EdgeWindow `json:"edges"`
}

// classJSON is a class's windowed metrics together with its live state at
// the current time.
type classJSON struct {
	metrics.ClassWindow
	OnStack  bool           `json:"on_stack"`
	Activity []series.Range `json:"activity"`
}

func classView(p *program.Program, cw metrics.ClassWindow) classJSON {
	activity := p.Activity(cw.Name)
	if activity == nil {
		activity = []series.Range{}
	}
	return classJSON{ClassWindow: cw, OnStack: p.IsOnStack(cw.Name), Activity: activity}
}

func classViews(p *program.Program) []classJSON {
	return lo.Map(p.Classes(), func(cw metrics.ClassWindow, _ int) classJSON {
		return classView(p, cw)
	})
}

// Execute implements the go-flags Commander interface for InspectCommand.
func (c *InspectCommand) Execute(args []string) error {
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

// executeWithStore runs inspect against a provided store (for testing).
func (c *InspectCommand) executeWithStore(ctx context.Context, e *env, store storage.Store) error {
	p, err := openTrace(ctx, e, store, c.Args.Trace, c.EngineFlags, c.FilterFlags)
	if err != nil {
		return err
	}

	at, from := p.EndTime(), p.StartTime()
	if c.At != nil {
		at = *c.At
	}
	if c.From != nil {
		from = *c.From
	}
	if from > at {
		return fmt.Errorf("--from %d is after --at %d", from, at)
	}
	if err := p.SetCurrentTime(at); err != nil {
		return err
	}
	if err := p.SetMetricWindowStart(from); err != nil {
		return err
	}

	out := inspectJSON{
		Trace:    c.Args.Trace,
		Start:    p.StartTime(),
		End:      p.EndTime(),
		From:     from,
		At:       at,
		Events:   p.Log().Len(),
		Filtered: p.Log().FilteredCount(),
		Classes:  classViews(p),
		Edges:    p.Edges(),
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(os.Stdout, out)
	}
	return c.printHuman(out)
}

func (c *InspectCommand) printHuman(out inspectJSON) error {
	fmt.Printf("Trace:    %s\n", out.Trace)
	fmt.Printf("Span:     %d .. %d\n", out.Start, out.End)
	fmt.Printf("Window:   %d .. %d\n", out.From, out.At)
	fmt.Printf("Events:   %s (%s filtered)\n", count(int64(out.Events)), count(int64(out.Filtered)))
	fmt.Println()

	fmt.Println("Classes:")
	classes := newTable(os.Stdout, "Class", "Sent", "Received", "Instances", "Max Sent", "Max Received", "Max Instances", "On Stack", "Active")
	for _, cw := range out.Classes {
		onStack := ""
		if cw.OnStack {
			onStack = "yes"
		}
		classes.Append([]string{
			cw.Name,
			count(cw.CallsSent),
			count(cw.CallsReceived),
			count(cw.Instances),
			count(cw.MaxCallsSent),
			count(cw.MaxCallsReceived),
			count(cw.MaxInstanceCount),
			onStack,
			ranges(cw.Activity),
		})
	}
	classes.Render()

	fmt.Println()
	fmt.Println("Calls:")
	edges := newTable(os.Stdout, "From", "To", "Calls", "Max", "Methods")
	for _, ew := range out.Edges {
		edges.Append([]string{
			ew.From,
			ew.To,
			count(ew.Calls),
			count(ew.MaxCallCount),
			methodCounts(ew.Methods),
		})
	}
	edges.Render()

	return nil
}
