package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/runnerr0/tracescope/internal/graph"
	"github.com/runnerr0/tracescope/internal/program"
	"github.com/runnerr0/tracescope/internal/storage"
)

// stepJSON is one stepped event. Call is empty for events that are not
// method entries or exits.
type stepJSON struct {
	Index  int    `json:"index"`
	Time   int64  `json:"time"`
	Event  string `json:"event"`
	Call   string `json:"call,omitempty"`
	Caller string `json:"caller,omitempty"`
	Callee string `json:"callee,omitempty"`
}

// callRecorder keeps the last entered/exited notification.
type callRecorder struct {
	program.BaseListener
	p    *program.Program
	last *stepJSON
}

func (r *callRecorder) MethodEntered(caller, callee graph.VertexID) {
	r.record("entered", caller, callee)
}

func (r *callRecorder) MethodExited(caller, callee graph.VertexID) {
	r.record("exited", caller, callee)
}

func (r *callRecorder) record(call string, caller, callee graph.VertexID) {
	m := r.p.Model()
	r.last = &stepJSON{Call: call, Caller: m.Name(caller), Callee: m.Name(callee)}
}

// runSteps moves p over up to n unfiltered events and reports each one. It
// stops early at either end of the trace.
func runSteps(p *program.Program, n int, back bool) ([]stepJSON, error) {
	rec := &callRecorder{p: p}
	p.AddListener(rec)
	defer p.RemoveListener(rec)

	steps := []stepJSON{}
	for i := 0; i < n; i++ {
		before := p.Position()
		rec.last = nil

		var err error
		if back {
			err = p.JumpToPreviousEvent()
		} else {
			err = p.JumpToNextEvent()
		}
		if err != nil {
			return steps, err
		}
		if p.Position() == before {
			break
		}

		idx := p.Position() - 1
		if back {
			idx = p.Position()
		}
		st := stepJSON{}
		if rec.last != nil {
			st = *rec.last
		}
		st.Index = idx
		st.Time = p.CurrentTime()
		st.Event = p.Log().Events[idx].String()
		steps = append(steps, st)
	}
	return steps, nil
}

// Execute implements the go-flags Commander interface for StepCommand.
func (c *StepCommand) Execute(args []string) error {
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

// executeWithStore runs step against a provided store (for testing).
func (c *StepCommand) executeWithStore(ctx context.Context, e *env, store storage.Store) error {
	if c.Count < 0 {
		return fmt.Errorf("--count must not be negative")
	}

	p, err := openTrace(ctx, e, store, c.Args.Trace, c.EngineFlags, c.FilterFlags)
	if err != nil {
		return err
	}

	from := p.StartTime()
	if c.Back {
		from = p.EndTime()
	}
	if c.From != nil {
		from = *c.From
	}
	if err := p.SetCurrentTime(from); err != nil {
		return err
	}

	steps, err := runSteps(p, c.Count, c.Back)
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(os.Stdout, steps)
	}

	if len(steps) == 0 {
		fmt.Println("No events to step over.")
		return nil
	}
	for _, st := range steps {
		line := fmt.Sprintf("%6d  #%-5d %s", st.Time, st.Index, st.Event)
		if st.Call != "" {
			caller := st.Caller
			if caller == "" {
				caller = "(thread)"
			}
			line += fmt.Sprintf("  %s %s -> %s", st.Call, caller, st.Callee)
		}
		fmt.Println(line)
	}
	return nil
}
