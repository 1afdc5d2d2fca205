package program

import (
	"github.com/samber/lo"

	"github.com/runnerr0/tracescope/internal/filter"
	"github.com/runnerr0/tracescope/internal/graph"
	"github.com/runnerr0/tracescope/internal/metrics"
	"github.com/runnerr0/tracescope/internal/series"
	"github.com/runnerr0/tracescope/internal/trace"
)

// Path returns the archive the trace was loaded from, or "".
func (p *Program) Path() string {
	if p.s == nil {
		return ""
	}
	return p.s.path
}

// Model returns the call graph, or nil before a load.
func (p *Program) Model() *graph.Model {
	if p.s == nil {
		return nil
	}
	return p.s.model
}

// Metrics returns the metric set of the active filter, or nil before a load.
func (p *Program) Metrics() *metrics.Set {
	if p.s == nil {
		return nil
	}
	return p.s.metrics
}

// Log returns the event log with the active filter's marks. Callers must
// not modify it.
func (p *Program) Log() *trace.Log {
	if p.s == nil {
		return nil
	}
	return p.s.log
}

// ActiveFilter returns the filter the current marks come from.
func (p *Program) ActiveFilter() filter.EventFilter {
	if p.s == nil {
		return nil
	}
	return p.s.active
}

// StartTime and EndTime bound the trace.
func (p *Program) StartTime() int64 {
	if p.s == nil {
		return 0
	}
	return p.s.log.Start
}

func (p *Program) EndTime() int64 {
	if p.s == nil {
		return 0
	}
	return p.s.log.End
}

// CurrentTime returns the time cursor.
func (p *Program) CurrentTime() int64 {
	if p.s == nil {
		return 0
	}
	return p.s.cursor.Time()
}

// Position returns the index of the next event to apply. Events before it
// are applied.
func (p *Program) Position() int {
	if p.s == nil {
		return 0
	}
	return p.s.cursor.Next()
}

// MetricWindowStart returns the start of the metric window.
func (p *Program) MetricWindowStart() int64 {
	if p.s == nil {
		return 0
	}
	return p.s.metricStart
}

// Window returns the current metric window.
func (p *Program) Window() series.Range {
	return series.Range{Begin: p.MetricWindowStart(), End: p.CurrentTime()}
}

// Lookup resolves a dotted class name to its vertex.
func (p *Program) Lookup(name string) (graph.VertexID, bool) {
	if p.s == nil {
		return graph.NoVertex, false
	}
	return p.s.model.Lookup(name)
}

// ClassMetrics returns the metrics of one class over the metric window.
func (p *Program) ClassMetrics(name string) (metrics.ClassWindow, bool) {
	v, ok := p.Lookup(name)
	if !ok {
		return metrics.ClassWindow{}, false
	}
	w := p.Window()
	return p.s.metrics.ClassWindow(v, w.Begin, w.End), true
}

// Classes returns the metrics of every visible class over the metric
// window, ordered by name.
func (p *Program) Classes() []metrics.ClassWindow {
	if p.s == nil {
		return nil
	}
	w := p.Window()
	return lo.Map(p.s.metrics.VisibleVertices(), func(v graph.ClassVertex, _ int) metrics.ClassWindow {
		return p.s.metrics.ClassWindow(v.ID, w.Begin, w.End)
	})
}

// EdgeMetrics returns the call counts from one class to another over the
// metric window.
func (p *Program) EdgeMetrics(from, to string) (metrics.EdgeWindow, bool) {
	a, ok := p.Lookup(from)
	if !ok {
		return metrics.EdgeWindow{}, false
	}
	b, ok := p.Lookup(to)
	if !ok {
		return metrics.EdgeWindow{}, false
	}
	e, ok := p.s.model.FindEdge(a, b)
	if !ok {
		return metrics.EdgeWindow{}, false
	}
	w := p.Window()
	return p.s.metrics.EdgeWindow(e, w.Begin, w.End), true
}

// Edges returns the call counts of every visible edge over the metric
// window.
func (p *Program) Edges() []metrics.EdgeWindow {
	if p.s == nil {
		return nil
	}
	w := p.Window()
	return lo.Map(p.s.metrics.VisibleEdges(), func(e graph.CallEdge, _ int) metrics.EdgeWindow {
		return p.s.metrics.EdgeWindow(e.ID, w.Begin, w.End)
	})
}

// StackFrame is one call-stack entry by name.
type StackFrame struct {
	Class    string `json:"class"`
	Defining string `json:"defining"`
	Actual   string `json:"actual"`
	Method   string `json:"method"`
	Object   int64  `json:"object,omitempty"`
}

// CallStack returns thread's stack at the current time, top first.
func (p *Program) CallStack(thread int64) []StackFrame {
	if p.s == nil {
		return nil
	}
	m := p.s.model
	return lo.Map(p.s.cursor.State().Stack(thread), func(id graph.FrameID, _ int) StackFrame {
		f := m.Frame(id)
		return StackFrame{
			Class:    m.Name(m.Attributed(id)),
			Defining: m.Name(f.Defining),
			Actual:   m.Name(f.Actual),
			Method:   f.Method,
			Object:   f.Object,
		}
	})
}

// Threads returns the threads with at least one frame on their stack.
func (p *Program) Threads() []int64 {
	if p.s == nil {
		return nil
	}
	return p.s.cursor.State().Threads()
}

// ActiveThreads returns the threads started and not yet ended.
func (p *Program) ActiveThreads() []int64 {
	if p.s == nil {
		return nil
	}
	return p.s.cursor.State().ActiveThreads()
}

// Instances returns the live object ids of class at the current time.
func (p *Program) Instances(class string) []int64 {
	v, ok := p.Lookup(class)
	if !ok {
		return nil
	}
	return p.s.cursor.State().Instances(v)
}

// IsLoaded reports whether class has been loaded by the current time.
func (p *Program) IsLoaded(class string) bool {
	v, ok := p.Lookup(class)
	return ok && p.s.cursor.State().IsLoaded(v)
}

// Activity returns the intervals during which class held the top of some
// thread's stack, limited to those touching the metric window.
func (p *Program) Activity(class string) []series.Range {
	v, ok := p.Lookup(class)
	if !ok {
		return nil
	}
	return p.s.metrics.Class(v).ActivityIn(p.Window())
}

// IsOnStack reports whether class is on some thread's stack now.
func (p *Program) IsOnStack(class string) bool {
	v, ok := p.Lookup(class)
	return ok && p.s.cursor.State().OnStack(v)
}

// Events returns the events registered with class whose time lies in r.
func (p *Program) Events(class string, r series.Range) []trace.Event {
	v, ok := p.Lookup(class)
	if !ok {
		return nil
	}
	return lo.Map(p.s.metrics.Class(v).Events(r), func(i int, _ int) trace.Event {
		return p.s.log.Events[i]
	})
}
