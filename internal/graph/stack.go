package graph

// CallStack is one thread's LIFO of frame handles.
type CallStack struct {
	frames []FrameID
}

// Push puts f on top.
func (s *CallStack) Push(f FrameID) {
	s.frames = append(s.frames, f)
}

// Pop removes and returns the top frame. ok is false on an empty stack.
func (s *CallStack) Pop() (f FrameID, ok bool) {
	n := len(s.frames)
	if n == 0 {
		return NoFrame, false
	}
	f = s.frames[n-1]
	s.frames = s.frames[:n-1]
	return f, true
}

// Top returns the top frame without removing it.
func (s *CallStack) Top() (FrameID, bool) {
	if len(s.frames) == 0 {
		return NoFrame, false
	}
	return s.frames[len(s.frames)-1], true
}

// Depth returns the number of frames.
func (s *CallStack) Depth() int {
	return len(s.frames)
}

// Frames returns the frames top first.
func (s *CallStack) Frames() []FrameID {
	out := make([]FrameID, len(s.frames))
	for i, f := range s.frames {
		out[len(s.frames)-1-i] = f
	}
	return out
}

// Any reports whether pred holds for some frame.
func (s *CallStack) Any(pred func(FrameID) bool) bool {
	for _, f := range s.frames {
		if pred(f) {
			return true
		}
	}
	return false
}

// Clone returns an independent copy.
func (s *CallStack) Clone() *CallStack {
	return &CallStack{frames: append([]FrameID(nil), s.frames...)}
}

// Stacks maps thread ids to their call stacks.
type Stacks map[int64]*CallStack

// Get returns the stack for thread, creating it on first use.
func (s Stacks) Get(thread int64) *CallStack {
	st, ok := s[thread]
	if !ok {
		st = &CallStack{}
		s[thread] = st
	}
	return st
}
