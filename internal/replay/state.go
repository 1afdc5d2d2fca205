// Package replay maintains the live program state at the time cursor: call
// stacks, running threads, live instances and class load counts.
package replay

import (
	"sort"

	"github.com/samber/lo"

	"github.com/runnerr0/tracescope/internal/graph"
)

// State is the program state after some prefix of the event log has been
// applied. Counts are kept as multisets so that every Apply has an exact
// inverse, even for records the trace does not pair up.
type State struct {
	m *graph.Model

	stacks    graph.Stacks
	threads   map[int64]int
	instances []map[int64]int
	loads     []int
}

// NewState returns the empty state of m.
func NewState(m *graph.Model) *State {
	s := &State{m: m}
	s.Reset()
	return s
}

// Reset returns s to the state before the first event.
func (s *State) Reset() {
	s.stacks = make(graph.Stacks)
	s.threads = make(map[int64]int)
	s.instances = make([]map[int64]int, s.m.NumVertices())
	s.loads = make([]int, s.m.NumVertices())
}

// Model returns the graph the state refers to.
func (s *State) Model() *graph.Model { return s.m }

// Stack returns the frames on thread's stack, top first.
func (s *State) Stack(thread int64) []graph.FrameID {
	st, ok := s.stacks[thread]
	if !ok {
		return nil
	}
	return st.Frames()
}

// Threads returns the ids of threads with a non-empty stack, sorted.
func (s *State) Threads() []int64 {
	ids := lo.Keys(lo.PickBy(s.stacks, func(_ int64, st *graph.CallStack) bool {
		return st.Depth() > 0
	}))
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ActiveThreads returns the ids of started threads that have not ended, sorted.
func (s *State) ActiveThreads() []int64 {
	return positive(s.threads)
}

// Instances returns the live object ids of v, sorted.
func (s *State) Instances(v graph.VertexID) []int64 {
	return positive(s.instances[v])
}

// LoadCount returns how many times v has been loaded.
func (s *State) LoadCount(v graph.VertexID) int { return s.loads[v] }

// IsLoaded reports whether v has been loaded at least once.
func (s *State) IsLoaded(v graph.VertexID) bool { return s.loads[v] > 0 }

// OnStack reports whether a frame attributed to v is on some thread's stack.
func (s *State) OnStack(v graph.VertexID) bool {
	for _, st := range s.stacks {
		if st.Any(func(f graph.FrameID) bool { return s.m.Attributed(f) == v }) {
			return true
		}
	}
	return false
}

// Snapshot is a comparable copy of a State.
type Snapshot struct {
	Stacks    map[int64][]graph.FrameID
	Threads   []int64
	Instances map[graph.VertexID][]int64
	Loads     map[graph.VertexID]int
}

// Snapshot copies the observable state. Empty stacks and zero counts are
// omitted, so equal states give equal snapshots.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Stacks:    make(map[int64][]graph.FrameID),
		Threads:   s.ActiveThreads(),
		Instances: make(map[graph.VertexID][]int64),
		Loads:     make(map[graph.VertexID]int),
	}
	for _, t := range s.Threads() {
		snap.Stacks[t] = s.Stack(t)
	}
	for v := range s.loads {
		id := graph.VertexID(v)
		if n := s.loads[v]; n != 0 {
			snap.Loads[id] = n
		}
		if ids := s.Instances(id); len(ids) > 0 {
			snap.Instances[id] = ids
		}
	}
	return snap
}

func positive(counts map[int64]int) []int64 {
	ids := lo.Keys(lo.PickBy(counts, func(_ int64, n int) bool { return n > 0 }))
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func bump(counts map[int64]int, id int64, delta int) {
	if n := counts[id] + delta; n != 0 {
		counts[id] = n
	} else {
		delete(counts, id)
	}
}
