package series

import (
	"github.com/google/btree"
	"golang.org/x/exp/constraints"
)

// Number is the set of value types a Func can hold.
type Number interface {
	constraints.Integer | constraints.Float
}

// Sample is one explicit (time, value) point of a Func.
type Sample[V Number] struct {
	Time  int64
	Value V
}

const degree = 16

// Func is a step function over time. Get(t) returns the value of the latest
// sample at or before t, or the initial value when there is none.
type Func[V Number] struct {
	initial V
	tree    *btree.BTreeG[Sample[V]]
}

// New returns an empty Func that evaluates to initial everywhere.
func New[V Number](initial V) *Func[V] {
	return &Func[V]{
		initial: initial,
		tree: btree.NewG(degree, func(a, b Sample[V]) bool {
			return a.Time < b.Time
		}),
	}
}

// Put records v at time t. A later Put at the same time replaces the value.
func (f *Func[V]) Put(t int64, v V) {
	f.tree.ReplaceOrInsert(Sample[V]{Time: t, Value: v})
}

// Get evaluates the function at t in O(log n).
func (f *Func[V]) Get(t int64) V {
	v := f.initial
	f.tree.DescendLessOrEqual(Sample[V]{Time: t}, func(s Sample[V]) bool {
		v = s.Value
		return false
	})
	return v
}

// Window returns f(to) - f(from), the growth of a cumulative counter over
// (from, to].
func (f *Func[V]) Window(from, to int64) V {
	return f.Get(to) - f.Get(from)
}

// Initial returns the value before the first sample.
func (f *Func[V]) Initial() V {
	return f.initial
}

// Last returns the latest sample. ok is false when the function has none.
func (f *Func[V]) Last() (s Sample[V], ok bool) {
	return f.tree.Max()
}

// Final returns the value after the last sample.
func (f *Func[V]) Final() V {
	if s, ok := f.tree.Max(); ok {
		return s.Value
	}
	return f.initial
}

// Len returns the number of samples.
func (f *Func[V]) Len() int {
	return f.tree.Len()
}

// Samples returns the samples with Begin <= Time <= End, in time order.
func (f *Func[V]) Samples(r Range) []Sample[V] {
	var out []Sample[V]
	f.tree.AscendGreaterOrEqual(Sample[V]{Time: r.Begin}, func(s Sample[V]) bool {
		if s.Time > r.End {
			return false
		}
		out = append(out, s)
		return true
	})
	return out
}
