package replay

import (
	"github.com/pkg/errors"

	"github.com/runnerr0/tracescope/internal/trace"
)

// Cursor moves the time cursor over a log, keeping a State in sync. Events
// [0, Next()) are applied. Filtered events advance the cursor without side
// effects.
type Cursor struct {
	log   *trace.Log
	state *State
	next  int
	time  int64
}

// NewCursor returns a cursor before the first event of log, at the trace
// start. state must be empty.
func NewCursor(log *trace.Log, state *State) *Cursor {
	return &Cursor{log: log, state: state, time: log.Start}
}

// State returns the state the cursor drives.
func (c *Cursor) State() *State { return c.state }

// Log returns the log the cursor walks.
func (c *Cursor) Log() *trace.Log { return c.log }

// Time returns the current time.
func (c *Cursor) Time() int64 { return c.time }

// Next returns the index of the first event not yet applied.
func (c *Cursor) Next() int { return c.next }

// Step is one event crossed by Forward or Back.
type Step struct {
	Index   int
	Event   *trace.Event
	Forward bool
}

// SeekTime applies or undoes events until exactly the events with time <= t are
// applied, then sets the current time to t. On error the cursor and state are
// restored.
func (c *Cursor) SeekTime(t int64) error {
	from, fromTime := c.next, c.time
	events := c.log.Events

	for c.next < len(events) && events[c.next].Time <= t {
		if err := c.forward(); err != nil {
			return c.rollback(from, fromTime, err)
		}
	}
	for c.next > 0 && events[c.next-1].Time > t {
		if err := c.back(); err != nil {
			return c.rollback(from, fromTime, err)
		}
	}
	c.time = t
	return nil
}

// Forward applies events through the next unfiltered one and moves the time
// to it. ok is false, and nothing changes, when no unfiltered event is left.
func (c *Cursor) Forward() (step Step, ok bool, err error) {
	events := c.log.Events
	j := c.next
	for j < len(events) && events[j].Filtered {
		j++
	}
	if j == len(events) {
		return Step{}, false, nil
	}

	from, fromTime := c.next, c.time
	for c.next <= j {
		if err := c.forward(); err != nil {
			return Step{}, false, c.rollback(from, fromTime, err)
		}
	}
	c.time = events[j].Time
	return Step{Index: j, Event: &events[j], Forward: true}, true, nil
}

// Back undoes events through the last applied unfiltered one and leaves the
// cursor just before it, at its time. ok is false, and nothing changes, when
// no unfiltered event has been applied.
func (c *Cursor) Back() (step Step, ok bool, err error) {
	events := c.log.Events
	j := c.next - 1
	for j >= 0 && events[j].Filtered {
		j--
	}
	if j < 0 {
		return Step{}, false, nil
	}

	from, fromTime := c.next, c.time
	for c.next > j {
		if err := c.back(); err != nil {
			return Step{}, false, c.rollback(from, fromTime, err)
		}
	}
	c.time = events[j].Time
	return Step{Index: j, Event: &events[j], Forward: false}, true, nil
}

func (c *Cursor) forward() error {
	ev := &c.log.Events[c.next]
	if !ev.Filtered {
		if err := c.state.Apply(c.next, ev); err != nil {
			return err
		}
	}
	c.next++
	return nil
}

func (c *Cursor) back() error {
	ev := &c.log.Events[c.next-1]
	if !ev.Filtered {
		if err := c.state.Undo(c.next-1, ev); err != nil {
			return err
		}
	}
	c.next--
	return nil
}

// rollback returns the cursor to next and t after a failed move. If stepping
// back fails too, the state is rebuilt from the start of the log.
func (c *Cursor) rollback(next int, t int64, cause error) error {
	err := c.moveTo(next)
	if err != nil {
		c.state.Reset()
		c.next = 0
		err = c.moveTo(next)
	}
	c.time = t
	if err != nil {
		return errors.Wrapf(cause, "replay: state lost during rollback (%v)", err)
	}
	return cause
}

func (c *Cursor) moveTo(next int) error {
	for c.next < next {
		if err := c.forward(); err != nil {
			return err
		}
	}
	for c.next > next {
		if err := c.back(); err != nil {
			return err
		}
	}
	return nil
}
