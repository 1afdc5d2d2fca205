package replay

import (
	"github.com/pkg/errors"

	"github.com/runnerr0/tracescope/internal/graph"
	"github.com/runnerr0/tracescope/internal/trace"
)

// effect is the forward effect of one event kind and its exact inverse.
type effect struct {
	apply func(s *State, i int, ev *trace.Event) error
	undo  func(s *State, i int, ev *trace.Event) error
}

var noEffect = effect{
	apply: func(*State, int, *trace.Event) error { return nil },
	undo:  func(*State, int, *trace.Event) error { return nil },
}

var effects = map[trace.Kind]effect{
	trace.KindVMStart: noEffect,
	trace.KindVMInit:  noEffect,
	trace.KindVMDeath: noEffect,
	trace.KindThreadStart: {
		apply: func(s *State, _ int, ev *trace.Event) error { bump(s.threads, ev.Thread, 1); return nil },
		undo:  func(s *State, _ int, ev *trace.Event) error { bump(s.threads, ev.Thread, -1); return nil },
	},
	trace.KindThreadEnd: {
		apply: func(s *State, _ int, ev *trace.Event) error { bump(s.threads, ev.Thread, -1); return nil },
		undo:  func(s *State, _ int, ev *trace.Event) error { bump(s.threads, ev.Thread, 1); return nil },
	},
	trace.KindClassLoad: {
		apply: func(s *State, _ int, ev *trace.Event) error { return s.load(ev, 1) },
		undo:  func(s *State, _ int, ev *trace.Event) error { return s.load(ev, -1) },
	},
	trace.KindMethodEntry: {
		apply: (*State).push,
		undo:  (*State).pop,
	},
	trace.KindMethodExit: {
		apply: (*State).pop,
		undo:  (*State).push,
	},
	trace.KindFramePop: {
		apply: (*State).pop,
		undo:  (*State).push,
	},
	trace.KindObjectAlloc: {
		apply: func(s *State, _ int, ev *trace.Event) error { return s.instance(ev, 1) },
		undo:  func(s *State, _ int, ev *trace.Event) error { return s.instance(ev, -1) },
	},
	trace.KindObjectFree: {
		apply: func(s *State, _ int, ev *trace.Event) error { return s.instance(ev, -1) },
		undo:  func(s *State, _ int, ev *trace.Event) error { return s.instance(ev, 1) },
	},
}

// Apply performs the forward effect of the i-th event.
func (s *State) Apply(i int, ev *trace.Event) error {
	e, ok := effects[ev.Kind]
	if !ok {
		return errors.Errorf("replay: no effect for event kind %v", ev.Kind)
	}
	return e.apply(s, i, ev)
}

// Undo reverts Apply for the same event.
func (s *State) Undo(i int, ev *trace.Event) error {
	e, ok := effects[ev.Kind]
	if !ok {
		return errors.Errorf("replay: no effect for event kind %v", ev.Kind)
	}
	return e.undo(s, i, ev)
}

func (s *State) vertex(ev *trace.Event) (graph.VertexID, error) {
	v, ok := s.m.Lookup(ev.Class)
	if !ok {
		return graph.NoVertex, errors.Errorf("replay: unknown class %s in %s", ev.Class, ev)
	}
	return v, nil
}

func (s *State) load(ev *trace.Event, delta int) error {
	v, err := s.vertex(ev)
	if err != nil {
		return err
	}
	s.loads[v] += delta
	return nil
}

func (s *State) instance(ev *trace.Event, delta int) error {
	v, err := s.vertex(ev)
	if err != nil {
		return err
	}
	if s.instances[v] == nil {
		s.instances[v] = make(map[int64]int)
	}
	bump(s.instances[v], ev.Object, delta)
	return nil
}

// push puts the event's resolved frame back on its thread's stack.
func (s *State) push(i int, ev *trace.Event) error {
	f := s.m.Resolution(i).Frame
	if f == graph.NoFrame {
		return errors.Errorf("replay: event %d (%s) has no frame", i, ev)
	}
	s.stacks.Get(ev.Thread).Push(f)
	return nil
}

// pop removes the event's resolved frame, which must be on top.
func (s *State) pop(i int, ev *trace.Event) error {
	f := s.m.Resolution(i).Frame
	st := s.stacks.Get(ev.Thread)
	top, ok := st.Top()
	if !ok {
		return errors.Errorf("replay: event %d (%s) pops an empty stack", i, ev)
	}
	if top != f {
		return errors.Errorf("replay: event %d (%s) pops frame %d but frame %d is on top", i, ev, f, top)
	}
	st.Pop()
	return nil
}
