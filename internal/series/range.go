package series

import "fmt"

// Range is a closed-open interval [Begin, End) on the trace clock.
type Range struct {
	Begin int64 `json:"begin"`
	End   int64 `json:"end"`
}

// Width returns End - Begin.
func (r Range) Width() int64 {
	return r.End - r.Begin
}

// Contains reports whether t lies in [Begin, End).
func (r Range) Contains(t int64) bool {
	return r.Begin <= t && t < r.End
}

// Overlaps reports whether r and o share at least one instant.
func (r Range) Overlaps(o Range) bool {
	return r.Begin < o.End && o.Begin < r.End
}

// Touches reports whether r intersects the closed window [w.Begin, w.End].
// Unlike Overlaps it also accepts zero-width ranges lying inside the window.
func (r Range) Touches(w Range) bool {
	return r.End >= w.Begin && r.Begin <= w.End
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Begin, r.End)
}
