package program

import "github.com/runnerr0/tracescope/internal/graph"

// Listener receives notifications at the end of the call that caused them.
// Handles refer to the model current at the time of the call; after
// TraceLoaded the previous model's handles are stale.
type Listener interface {
	TraceLoaded()
	TraceFiltered()
	TimeChanged()
	// MethodEntered and MethodExited report a step over a call event. caller
	// is graph.NoVertex for a thread's outermost call.
	MethodEntered(caller, callee graph.VertexID)
	MethodExited(caller, callee graph.VertexID)
}

// BaseListener implements Listener with no-ops, for embedding.
type BaseListener struct{}

func (BaseListener) TraceLoaded() {}
func (BaseListener) TraceFiltered() {}
func (BaseListener) TimeChanged() {}
func (BaseListener) MethodEntered(caller, callee graph.VertexID) {}
func (BaseListener) MethodExited(caller, callee graph.VertexID) {}
