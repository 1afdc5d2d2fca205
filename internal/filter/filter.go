// Package filter marks trace events as filtered. Filters never touch graph
// or metric state; the caller recomputes metrics after a run.
package filter

import (
	"github.com/runnerr0/tracescope/internal/graph"
	"github.com/runnerr0/tracescope/internal/trace"
)

// EventFilter is a pass over an event log in order. Begin resets any state
// kept between events; Filtered is then called once per event, in log order,
// with the event's index.
type EventFilter interface {
	Begin(m *graph.Model)
	Filtered(i int, ev *trace.Event) bool
}

// Run sets the Filtered flag of every event in log. m must have been built
// from the same events. It returns the number of filtered events.
func Run(f EventFilter, m *graph.Model, log *trace.Log) int {
	f.Begin(m)
	n := 0
	for i := range log.Events {
		ev := &log.Events[i]
		ev.Filtered = f.Filtered(i, ev)
		if ev.Filtered {
			n++
		}
	}
	return n
}

// Null filters nothing.
type Null struct{}

func (Null) Begin(*graph.Model) {}
func (Null) Filtered(int, *trace.Event) bool { return false }

// Chain filters an event when any member does. Every member sees every
// event so that stack-tracking members stay in sync.
type Chain []EventFilter

func (c Chain) Begin(m *graph.Model) {
	for _, f := range c {
		f.Begin(m)
	}
}

func (c Chain) Filtered(i int, ev *trace.Event) bool {
	filtered := false
	for _, f := range c {
		if f.Filtered(i, ev) {
			filtered = true
		}
	}
	return filtered
}

// ConstructorFilter keeps only constructor calls. Non-call events pass.
type ConstructorFilter struct{}

// Constructor is the method name of an instance initializer.
const Constructor = "<init>"

func (ConstructorFilter) Begin(*graph.Model) {}

func (ConstructorFilter) Filtered(_ int, ev *trace.Event) bool {
	if ev.Kind.IsCall() {
		return ev.Method != Constructor
	}
	return false
}
