package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// VertexID, EdgeID and FrameID are stable handles into a Model's arenas.
type (
	VertexID int32
	EdgeID   int32
	FrameID  int32
)

const (
	NoVertex VertexID = -1
	NoEdge   EdgeID   = -1
	NoFrame  FrameID  = -1
)

// Attribution selects which class a polymorphic call is charged to.
type Attribution uint8

const (
	// ByDefiningClass charges the class that declares the method.
	ByDefiningClass Attribution = iota
	// ByActualClass charges the runtime class of the receiver.
	ByActualClass
)

func (a Attribution) String() string {
	switch a {
	case ByDefiningClass:
		return "defining_class"
	case ByActualClass:
		return "actual_class"
	}
	return fmt.Sprintf("attribution(%d)", uint8(a))
}

// ParseAttribution accepts "defining_class"/"defining" and
// "actual_class"/"actual"/"object_class".
func ParseAttribution(s string) (Attribution, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "defining_class", "defining", "":
		return ByDefiningClass, nil
	case "actual_class", "actual", "object_class", "object":
		return ByActualClass, nil
	}
	return ByDefiningClass, errors.Errorf("unknown call attribution %q", s)
}

// ClassVertex is one class, or one enclosing class when inner classes are
// merged.
type ClassVertex struct {
	ID   VertexID
	Name string

	// Pruned vertices took part in no call. They keep their handle so that
	// allocations and loads still resolve.
	Pruned bool
}

// CallEdge is the single edge for an ordered (caller, callee) pair.
type CallEdge struct {
	ID   EdgeID
	From VertexID
	To   VertexID
}

// Frame is one call-stack entry.
type Frame struct {
	Defining VertexID
	Actual   VertexID
	Object   int64
	Method   string
}

// Class returns the vertex the frame is attributed to under a.
func (f Frame) Class(a Attribution) VertexID {
	if a == ByActualClass {
		return f.Actual
	}
	return f.Defining
}

// Resolution is what graph construction learned about one event: the frame
// it pushed or popped, the frame directly under it and the caller/callee it
// is charged to.
type Resolution struct {
	Frame       FrameID
	CallerFrame FrameID
	Caller      VertexID
	Callee      VertexID
	Edge        EdgeID
}

var unresolved = Resolution{Frame: NoFrame, CallerFrame: NoFrame, Caller: NoVertex, Callee: NoVertex, Edge: NoEdge}

// Model is the call-attribution graph of one trace. It is immutable once
// Build returns.
type Model struct {
	attribution Attribution
	mergeInner  bool

	vertices []ClassVertex
	edges    []CallEdge
	frames   []Frame
	resolved []Resolution

	byName   map[string]VertexID
	byPair   map[[2]VertexID]EdgeID
	incident [][]EdgeID
}

func newModel(opts Options, events int) *Model {
	m := &Model{
		attribution: opts.Attribution,
		mergeInner:  opts.MergeInnerClasses,
		resolved:    make([]Resolution, events),
		byName:      make(map[string]VertexID),
		byPair:      make(map[[2]VertexID]EdgeID),
	}
	for i := range m.resolved {
		m.resolved[i] = unresolved
	}
	return m
}

// Attribution returns the call-attribution policy the model was built with.
func (m *Model) Attribution() Attribution { return m.attribution }

// MergesInnerClasses reports whether inner classes share their enclosing
// class's vertex.
func (m *Model) MergesInnerClasses() bool { return m.mergeInner }

// NumVertices returns the arena size, pruned vertices included.
func (m *Model) NumVertices() int { return len(m.vertices) }

// NumEdges returns the number of edges.
func (m *Model) NumEdges() int { return len(m.edges) }

// Vertex returns the vertex with handle id.
func (m *Model) Vertex(id VertexID) ClassVertex { return m.vertices[id] }

// Edge returns the edge with handle id.
func (m *Model) Edge(id EdgeID) CallEdge { return m.edges[id] }

// Frame returns the frame with handle id.
func (m *Model) Frame(id FrameID) Frame { return m.frames[id] }

// Resolution returns what construction recorded for the i-th event.
func (m *Model) Resolution(i int) Resolution { return m.resolved[i] }

// Attributed returns the vertex frame id is charged to.
func (m *Model) Attributed(id FrameID) VertexID {
	return m.frames[id].Class(m.attribution)
}

// Lookup resolves a dotted class name, including merged inner-class aliases.
func (m *Model) Lookup(name string) (VertexID, bool) {
	id, ok := m.byName[name]
	return id, ok
}

// Name returns the canonical name of id, or "" for NoVertex.
func (m *Model) Name(id VertexID) string {
	if id == NoVertex {
		return ""
	}
	return m.vertices[id].Name
}

// FindEdge returns the edge from -> to.
func (m *Model) FindEdge(from, to VertexID) (EdgeID, bool) {
	id, ok := m.byPair[[2]VertexID{from, to}]
	return id, ok
}

// Incident returns the edges entering or leaving v. A self-loop appears once.
func (m *Model) Incident(v VertexID) []EdgeID {
	return m.incident[v]
}

// Vertices returns the unpruned vertices ordered by name.
func (m *Model) Vertices() []ClassVertex {
	out := lo.Filter(m.vertices, func(v ClassVertex, _ int) bool { return !v.Pruned })
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Edges returns all edges in creation order.
func (m *Model) Edges() []CallEdge {
	return append([]CallEdge(nil), m.edges...)
}

// Names returns every name that resolves to a vertex, aliases included.
func (m *Model) Names() []string {
	names := lo.Keys(m.byName)
	sort.Strings(names)
	return names
}

func (m *Model) addVertex(name string) VertexID {
	id := VertexID(len(m.vertices))
	m.vertices = append(m.vertices, ClassVertex{ID: id, Name: name})
	m.incident = append(m.incident, nil)
	m.byName[name] = id
	return id
}

// vertexFor finds or creates the vertex for a class name, folding inner
// classes into their enclosing class when merging is on.
func (m *Model) vertexFor(name string) VertexID {
	if id, ok := m.byName[name]; ok {
		return id
	}
	if m.mergeInner && IsInnerClass(name) {
		// Inner classes can load before their enclosing class.
		outer := m.vertexFor(EnclosingClassName(name))
		m.byName[name] = outer
		return outer
	}
	return m.addVertex(name)
}

func (m *Model) edgeFor(from, to VertexID) EdgeID {
	key := [2]VertexID{from, to}
	if id, ok := m.byPair[key]; ok {
		return id
	}
	id := EdgeID(len(m.edges))
	m.edges = append(m.edges, CallEdge{ID: id, From: from, To: to})
	m.byPair[key] = id
	m.incident[from] = append(m.incident[from], id)
	if to != from {
		m.incident[to] = append(m.incident[to], id)
	}
	return id
}

func (m *Model) addFrame(f Frame) FrameID {
	id := FrameID(len(m.frames))
	m.frames = append(m.frames, f)
	return id
}
