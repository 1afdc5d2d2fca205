package graph

import (
	"github.com/runnerr0/tracescope/internal/trace"
)

// Options controls graph construction.
type Options struct {
	Attribution       Attribution
	MergeInnerClasses bool
}

// builder holds the state of the single forward construction pass.
type builder struct {
	m       *Model
	objects map[int64]VertexID
	stacks  Stacks
}

// Build makes one forward pass over the unfiltered log and returns the call
// graph with every call-related event resolved to its frame, caller and
// callee. Unbalanced stacks fail with a *trace.FormatError.
func Build(log *trace.Log, opts Options) (*Model, error) {
	b := &builder{
		m:       newModel(opts, log.Len()),
		objects: make(map[int64]VertexID),
		stacks:  make(Stacks),
	}

	for i := range log.Events {
		if err := b.visit(i, &log.Events[i]); err != nil {
			return nil, err
		}
	}

	b.prune()
	return b.m, nil
}

func (b *builder) visit(i int, ev *trace.Event) error {
	switch ev.Kind {
	case trace.KindClassLoad:
		b.m.vertexFor(ev.Class)
	case trace.KindObjectAlloc:
		b.objects[ev.Object] = b.m.vertexFor(ev.Class)
	case trace.KindObjectFree:
		b.m.vertexFor(ev.Class)
	case trace.KindMethodEntry:
		b.enter(i, ev)
	case trace.KindMethodExit, trace.KindFramePop:
		return b.leave(i, ev)
	case trace.KindThreadEnd:
		if st, ok := b.stacks[ev.Thread]; ok {
			if st.Depth() > 0 {
				return trace.Malformed(ev, "thread %d ended with %d open frames", ev.Thread, st.Depth())
			}
			delete(b.stacks, ev.Thread)
		}
	case trace.KindVMStart, trace.KindVMInit, trace.KindVMDeath,
		trace.KindThreadStart:
	default:
		return trace.Malformed(ev, "unhandled event kind %v", ev.Kind)
	}
	return nil
}

func (b *builder) enter(i int, ev *trace.Event) {
	m := b.m
	defining := m.vertexFor(ev.Class)
	actual, ok := b.objects[ev.Object]
	if !ok {
		// No allocation seen for the receiver: treat the call as static.
		actual = defining
	}

	frame := Frame{Defining: defining, Actual: actual, Object: ev.Object, Method: ev.Method}
	res := Resolution{CallerFrame: NoFrame, Caller: NoVertex, Callee: frame.Class(m.attribution), Edge: NoEdge}

	stack := b.stacks.Get(ev.Thread)
	if top, ok := stack.Top(); ok {
		res.CallerFrame = top
		res.Caller = m.Attributed(top)
		res.Edge = m.edgeFor(res.Caller, res.Callee)
	}

	res.Frame = m.addFrame(frame)
	stack.Push(res.Frame)
	m.resolved[i] = res
}

func (b *builder) leave(i int, ev *trace.Event) error {
	m := b.m
	stack := b.stacks.Get(ev.Thread)

	top, ok := stack.Pop()
	if !ok {
		return trace.Malformed(ev, "%v on thread %d with an empty call stack", ev.Kind, ev.Thread)
	}
	frame := m.frames[top]
	if frame.Method != ev.Method {
		return trace.Malformed(ev, "%v of %s does not match open frame %s.%s",
			ev.Kind, ev.Method, m.Name(frame.Defining), frame.Method)
	}

	res := Resolution{Frame: top, CallerFrame: NoFrame, Caller: NoVertex, Callee: frame.Class(m.attribution), Edge: NoEdge}
	if under, ok := stack.Top(); ok {
		res.CallerFrame = under
		res.Caller = m.Attributed(under)
		res.Edge, _ = m.FindEdge(res.Caller, res.Callee)
	}
	m.resolved[i] = res
	return nil
}

// prune marks vertices that took part in no call. Self-loops count.
func (b *builder) prune() {
	for i := range b.m.vertices {
		b.m.vertices[i].Pruned = len(b.m.incident[i]) == 0
	}
}
