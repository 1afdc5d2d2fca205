// Package metrics aggregates the time-indexed counters of a call graph.
//
// Every counter write is stored as a sample in a step function, so any
// [from, to] window is answered as f(to) - f(from) without rescanning the
// event log. A Set is immutable once Compute returns; re-filtering produces a
// new Set.
package metrics

import (
	"sort"

	"github.com/samber/lo"

	"github.com/runnerr0/tracescope/internal/graph"
	"github.com/runnerr0/tracescope/internal/series"
)

// registry lists the events touching one vertex or edge, in log order.
type registry struct {
	index []int
	times []int64
}

func (r *registry) add(i int, t int64) {
	if n := len(r.index); n > 0 && r.index[n-1] == i {
		return
	}
	r.index = append(r.index, i)
	r.times = append(r.times, t)
}

// within returns the indices of registered events with r.Begin <= time <= r.End.
func (r *registry) within(rng series.Range) []int {
	low := sort.Search(len(r.times), func(i int) bool { return r.times[i] >= rng.Begin })
	high := sort.Search(len(r.times), func(i int) bool { return r.times[i] > rng.End })
	if low >= high {
		return nil
	}
	return append([]int(nil), r.index[low:high]...)
}

// ClassMetrics holds the counters of one vertex.
type ClassMetrics struct {
	Vertex graph.VertexID

	CallsSent     *series.Func[int64]
	CallsReceived *series.Func[int64]
	Instances     *series.Func[int64]

	// Ceilings observed on the unfiltered run. They do not shrink when a
	// filter removes calls.
	MaxCallsSent     int64
	MaxCallsReceived int64
	MaxInstanceCount int64

	activity []series.Range
	events   registry
}

// Activity returns every interval during which the class was on top of some
// thread's stack, in time order.
func (c *ClassMetrics) Activity() []series.Range {
	return append([]series.Range(nil), c.activity...)
}

// ActivityIn returns the activity intervals that touch the closed window r.
func (c *ClassMetrics) ActivityIn(r series.Range) []series.Range {
	return lo.Filter(c.activity, func(a series.Range, _ int) bool { return a.Touches(r) })
}

// Events returns the indices of the events registered with the class whose
// time lies in [r.Begin, r.End].
func (c *ClassMetrics) Events(r series.Range) []int {
	return c.events.within(r)
}

// EdgeMetrics holds the per-method call counts of one edge.
type EdgeMetrics struct {
	Edge graph.EdgeID

	// Total counts calls of every method.
	Total *series.Func[int64]

	// MaxCallCount is the all-time total on the unfiltered run.
	MaxCallCount int64

	methods map[string]*series.Func[int64]
	events  registry
}

// Methods returns the method labels counted on the edge, sorted.
func (e *EdgeMetrics) Methods() []string {
	names := lo.Keys(e.methods)
	sort.Strings(names)
	return names
}

// Calls returns the call-count function of one method label.
func (e *EdgeMetrics) Calls(method string) (*series.Func[int64], bool) {
	f, ok := e.methods[method]
	return f, ok
}

// Events returns the indices of the events registered with the edge whose
// time lies in [r.Begin, r.End].
func (e *EdgeMetrics) Events(r series.Range) []int {
	return e.events.within(r)
}

// Set is the result of one metric computation over a model.
type Set struct {
	model   *graph.Model
	classes []ClassMetrics
	edges   []EdgeMetrics

	vertexVisible []bool
	edgeVisible   []bool
}

// Model returns the graph the set was computed for.
func (s *Set) Model() *graph.Model { return s.model }

// Class returns the metrics of vertex v.
func (s *Set) Class(v graph.VertexID) *ClassMetrics { return &s.classes[v] }

// Edge returns the metrics of edge e.
func (s *Set) Edge(e graph.EdgeID) *EdgeMetrics { return &s.edges[e] }

// VertexVisible reports whether v has a visible incident edge.
func (s *Set) VertexVisible(v graph.VertexID) bool { return s.vertexVisible[v] }

// EdgeVisible reports whether e carried at least one unfiltered call.
func (s *Set) EdgeVisible(e graph.EdgeID) bool { return s.edgeVisible[e] }

// VisibleVertices returns the visible vertices ordered by name.
func (s *Set) VisibleVertices() []graph.ClassVertex {
	return lo.Filter(s.model.Vertices(), func(v graph.ClassVertex, _ int) bool {
		return s.vertexVisible[v.ID]
	})
}

// VisibleEdges returns the visible edges in creation order.
func (s *Set) VisibleEdges() []graph.CallEdge {
	return lo.Filter(s.model.Edges(), func(e graph.CallEdge, _ int) bool {
		return s.edgeVisible[e.ID]
	})
}

// ClassWindow is a class's metrics over one metric window.
type ClassWindow struct {
	Name          string `json:"name"`
	CallsSent     int64  `json:"calls_sent"`
	CallsReceived int64  `json:"calls_received"`
	Instances     int64  `json:"instances"`

	MaxCallsSent     int64 `json:"max_calls_sent"`
	MaxCallsReceived int64 `json:"max_calls_received"`
	MaxInstanceCount int64 `json:"max_instance_count"`
}

// ClassWindow evaluates v over (from, to]. The instance count is the live
// count at to.
func (s *Set) ClassWindow(v graph.VertexID, from, to int64) ClassWindow {
	c := &s.classes[v]
	return ClassWindow{
		Name:             s.model.Name(v),
		CallsSent:        c.CallsSent.Window(from, to),
		CallsReceived:    c.CallsReceived.Window(from, to),
		Instances:        c.Instances.Get(to),
		MaxCallsSent:     c.MaxCallsSent,
		MaxCallsReceived: c.MaxCallsReceived,
		MaxInstanceCount: c.MaxInstanceCount,
	}
}

// EdgeWindow is an edge's call counts over one metric window.
type EdgeWindow struct {
	From         string           `json:"from"`
	To           string           `json:"to"`
	Calls        int64            `json:"calls"`
	MaxCallCount int64            `json:"max_call_count"`
	Methods      map[string]int64 `json:"methods"`
}

// EdgeWindow evaluates e over (from, to].
func (s *Set) EdgeWindow(e graph.EdgeID, from, to int64) EdgeWindow {
	em := &s.edges[e]
	edge := s.model.Edge(e)
	w := EdgeWindow{
		From:         s.model.Name(edge.From),
		To:           s.model.Name(edge.To),
		MaxCallCount: em.MaxCallCount,
		Methods:      make(map[string]int64, len(em.methods)),
	}
	for name, f := range em.methods {
		n := f.Window(from, to)
		w.Methods[name] = n
		w.Calls += n
	}
	return w
}
