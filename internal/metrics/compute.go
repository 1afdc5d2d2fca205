package metrics

import (
	"github.com/pkg/errors"

	"github.com/runnerr0/tracescope/internal/graph"
	"github.com/runnerr0/tracescope/internal/series"
	"github.com/runnerr0/tracescope/internal/trace"
)

// counters are the live values of one vertex during a scan.
type counters struct {
	sent, received, instances int64

	activity    int64
	activeSince int64
}

type computation struct {
	m    *graph.Model
	set  *Set
	live []counters

	// per-edge per-method running counts
	calls []map[string]int64

	// frames whose entry survived the filter, per thread, innermost last
	kept map[int64][]graph.FrameID
}

// Compute scans the unfiltered events of log once and returns the metric set
// of m. prev is the set of the previous run on the same model, or nil on the
// first run; its ceilings and method labels carry over.
func Compute(m *graph.Model, log *trace.Log, prev *Set) (*Set, error) {
	if m == nil || log == nil {
		return nil, errors.New("metrics: nil model or log")
	}
	if prev != nil && prev.model != m {
		return nil, errors.New("metrics: previous set belongs to another model")
	}

	c := &computation{
		m: m,
		set: &Set{
			model:         m,
			classes:       make([]ClassMetrics, m.NumVertices()),
			edges:         make([]EdgeMetrics, m.NumEdges()),
			vertexVisible: make([]bool, m.NumVertices()),
			edgeVisible:   make([]bool, m.NumEdges()),
		},
		live:  make([]counters, m.NumVertices()),
		calls: make([]map[string]int64, m.NumEdges()),
		kept:  make(map[int64][]graph.FrameID),
	}
	c.start(prev)

	for i := range log.Events {
		ev := &log.Events[i]
		if ev.Filtered {
			continue
		}
		if err := c.visit(i, ev); err != nil {
			return nil, err
		}
	}

	c.finish(log.End, prev)
	return c.set, nil
}

func (c *computation) start(prev *Set) {
	for v := range c.set.classes {
		c.set.classes[v] = ClassMetrics{
			Vertex:        graph.VertexID(v),
			CallsSent:     series.New[int64](0),
			CallsReceived: series.New[int64](0),
			Instances:     series.New[int64](0),
		}
		c.live[v].activeSince = -1
	}
	for e := range c.set.edges {
		em := EdgeMetrics{
			Edge:    graph.EdgeID(e),
			Total:   series.New[int64](0),
			methods: make(map[string]*series.Func[int64]),
		}
		if prev != nil {
			// Labels seen before stay listed with a zero count.
			for name := range prev.edges[e].methods {
				em.methods[name] = series.New[int64](0)
			}
		}
		c.set.edges[e] = em
		c.calls[e] = make(map[string]int64)
	}
}

func (c *computation) visit(i int, ev *trace.Event) error {
	switch ev.Kind {
	case trace.KindMethodEntry:
		return c.entry(i, ev)
	case trace.KindMethodExit, trace.KindFramePop:
		return c.exit(i, ev)
	case trace.KindObjectAlloc:
		if v, ok := c.m.Lookup(ev.Class); ok {
			c.instances(v, ev.Time, 1)
		}
	case trace.KindObjectFree:
		if v, ok := c.m.Lookup(ev.Class); ok {
			c.instances(v, ev.Time, -1)
		}
	}
	return nil
}

func (c *computation) resolve(i int, ev *trace.Event) (graph.Resolution, error) {
	res := c.m.Resolution(i)
	if res.Callee == graph.NoVertex {
		return res, errors.Errorf("metrics: event %d (%s) has no resolved callee", i, ev)
	}
	if res.Caller != graph.NoVertex && res.Edge == graph.NoEdge {
		return res, errors.Errorf("metrics: event %d (%s) has no resolved edge", i, ev)
	}
	return res, nil
}

func (c *computation) entry(i int, ev *trace.Event) error {
	res, err := c.resolve(i, ev)
	if err != nil {
		return err
	}

	// The caller only yields the top of the stack if its own frame survived
	// the filter.
	callerKept := c.onTop(ev.Thread, res.CallerFrame)
	c.kept[ev.Thread] = append(c.kept[ev.Thread], res.Frame)

	c.activate(res.Callee, ev.Time)
	c.register(res.Callee, i, ev.Time)

	if res.Caller == graph.NoVertex {
		return nil
	}

	label := graph.MethodLabel(ev.Class, ev.Method, c.m.MergesInnerClasses())
	c.call(res.Edge, label, ev.Time)
	c.set.edges[res.Edge].events.add(i, ev.Time)

	caller := &c.live[res.Caller]
	caller.sent++
	c.set.classes[res.Caller].CallsSent.Put(ev.Time, caller.sent)
	if callerKept {
		c.deactivate(res.Caller, ev.Time)
	}
	c.register(res.Caller, i, ev.Time)

	callee := &c.live[res.Callee]
	callee.received++
	c.set.classes[res.Callee].CallsReceived.Put(ev.Time, callee.received)
	return nil
}

func (c *computation) exit(i int, ev *trace.Event) error {
	res, err := c.resolve(i, ev)
	if err != nil {
		return err
	}

	calleeKept := c.onTop(ev.Thread, res.Frame)
	if calleeKept {
		stack := c.kept[ev.Thread]
		c.kept[ev.Thread] = stack[:len(stack)-1]
	}

	if res.Caller != graph.NoVertex {
		if calleeKept && c.onTop(ev.Thread, res.CallerFrame) {
			c.activate(res.Caller, ev.Time)
		}
		c.register(res.Caller, i, ev.Time)
		c.set.edges[res.Edge].events.add(i, ev.Time)
	}

	if calleeKept {
		c.deactivate(res.Callee, ev.Time)
	}
	c.register(res.Callee, i, ev.Time)
	return nil
}

// onTop reports whether frame is the innermost kept frame of thread.
func (c *computation) onTop(thread int64, frame graph.FrameID) bool {
	stack := c.kept[thread]
	return frame != graph.NoFrame && len(stack) > 0 && stack[len(stack)-1] == frame
}

func (c *computation) call(e graph.EdgeID, label string, t int64) {
	em := &c.set.edges[e]
	counts := c.calls[e]
	counts[label]++

	f, ok := em.methods[label]
	if !ok {
		f = series.New[int64](0)
		em.methods[label] = f
	}
	f.Put(t, counts[label])
	em.Total.Put(t, em.Total.Final()+1)
}

func (c *computation) instances(v graph.VertexID, t int64, delta int64) {
	live := &c.live[v]
	live.instances += delta
	cm := &c.set.classes[v]
	cm.Instances.Put(t, live.instances)
	if live.instances > cm.MaxInstanceCount {
		cm.MaxInstanceCount = live.instances
	}
}

func (c *computation) activate(v graph.VertexID, t int64) {
	live := &c.live[v]
	if live.activity == 0 {
		live.activeSince = t
	}
	live.activity++
}

func (c *computation) deactivate(v graph.VertexID, t int64) {
	live := &c.live[v]
	live.activity--
	if live.activity == 0 {
		cm := &c.set.classes[v]
		cm.activity = append(cm.activity, series.Range{Begin: live.activeSince, End: t})
		live.activeSince = -1
	}
}

func (c *computation) register(v graph.VertexID, i int, t int64) {
	c.set.classes[v].events.add(i, t)
}

func (c *computation) finish(end int64, prev *Set) {
	for v := range c.set.classes {
		cm := &c.set.classes[v]
		live := &c.live[v]
		if live.activeSince != -1 {
			cm.activity = append(cm.activity, series.Range{Begin: live.activeSince, End: end})
		}

		if prev == nil {
			cm.MaxCallsSent = live.sent
			cm.MaxCallsReceived = live.received
		} else {
			old := &prev.classes[v]
			cm.MaxCallsSent = old.MaxCallsSent
			cm.MaxCallsReceived = old.MaxCallsReceived
			cm.MaxInstanceCount = old.MaxInstanceCount
		}
	}

	for e := range c.set.edges {
		em := &c.set.edges[e]
		if prev == nil {
			em.MaxCallCount = em.Total.Final()
		} else {
			em.MaxCallCount = prev.edges[e].MaxCallCount
		}

		visible := em.Total.Final() > 0
		c.set.edgeVisible[e] = visible
		if visible {
			edge := c.m.Edge(graph.EdgeID(e))
			c.set.vertexVisible[edge.From] = true
			c.set.vertexVisible[edge.To] = true
		}
	}
}
