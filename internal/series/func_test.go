package series

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunc_EmptyReturnsInitial(t *testing.T) {
	f := New(7)

	assert.Equal(t, 7, f.Get(-100))
	assert.Equal(t, 7, f.Get(0))
	assert.Equal(t, 7, f.Final())
	assert.Equal(t, 0, f.Len())

	_, ok := f.Last()
	assert.False(t, ok)
}

func TestFunc_StepSemantics(t *testing.T) {
	f := New(0)
	f.Put(10, 1)
	f.Put(20, 2)
	f.Put(30, 5)

	tests := []struct {
		at   int64
		want int
	}{
		{9, 0},
		{10, 1},
		{15, 1},
		{19, 1},
		{20, 2},
		{29, 2},
		{30, 5},
		{1000, 5},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, f.Get(tc.at), "f(%d)", tc.at)
	}
}

func TestFunc_PutSameTimeReplaces(t *testing.T) {
	f := New(0)
	f.Put(5, 1)
	f.Put(5, 2)
	f.Put(5, 3)

	assert.Equal(t, 1, f.Len())
	assert.Equal(t, 3, f.Get(5))
}

func TestFunc_WindowIsAdditive(t *testing.T) {
	f := New(0)
	for i := int64(1); i <= 10; i++ {
		f.Put(i*3, int(i))
	}

	start, mid, end := int64(2), int64(14), int64(29)
	assert.Equal(t, f.Window(start, end), f.Window(start, mid)+f.Window(mid, end))
	assert.Equal(t, 0, f.Window(end, end))
}

func TestFunc_LastAndSamples(t *testing.T) {
	f := New(0.0)
	f.Put(1, 0.5)
	f.Put(4, 1.5)
	f.Put(9, 2.5)

	last, ok := f.Last()
	require.True(t, ok)
	assert.Equal(t, int64(9), last.Time)
	assert.Equal(t, 2.5, f.Final())

	got := f.Samples(Range{Begin: 1, End: 4})
	assert.Equal(t, []Sample[float64]{{Time: 1, Value: 0.5}, {Time: 4, Value: 1.5}}, got)
	assert.Empty(t, f.Samples(Range{Begin: 10, End: 20}))
}

func TestRange(t *testing.T) {
	r := Range{Begin: 2, End: 5}

	assert.Equal(t, int64(3), r.Width())
	assert.True(t, r.Contains(2))
	assert.True(t, r.Contains(4))
	assert.False(t, r.Contains(5))
	assert.False(t, r.Contains(1))

	assert.True(t, r.Overlaps(Range{Begin: 4, End: 8}))
	assert.False(t, r.Overlaps(Range{Begin: 5, End: 8}))
	assert.False(t, r.Overlaps(Range{Begin: 0, End: 2}))

	point := Range{Begin: 5, End: 5}
	assert.False(t, point.Overlaps(r))
	assert.True(t, point.Touches(r))
	assert.Equal(t, "[2,5)", r.String())
}
