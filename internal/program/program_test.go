package program

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tracescope/internal/filter"
	"github.com/runnerr0/tracescope/internal/graph"
	"github.com/runnerr0/tracescope/internal/series"
	"github.com/runnerr0/tracescope/internal/trace"
)

var scenario = []string{
	"VI:0",
	"CL:0:a/A",
	"CL:0:a/B",
	"TB:0:1",
	"MN:1:1:a/A:m:0",
	"MN:2:1:a/B:n:0",
	"MX:3:1:a/B:n",
	"MX:4:1:a/A:m",
	"TE:5:1",
	"VD:5",
}

func parse(t *testing.T, ls ...string) *trace.Log {
	t.Helper()
	l, err := trace.Parse(strings.NewReader(strings.Join(ls, "\n")))
	require.NoError(t, err)
	return l
}

func loaded(t *testing.T, opts Options, ls ...string) *Program {
	t.Helper()
	p := New(opts)
	require.NoError(t, p.LoadLog(parse(t, ls...)))
	return p
}

// recorder logs notifications as short strings.
type recorder struct {
	BaseListener
	p      *Program
	name   string
	events *[]string
}

func (r *recorder) add(s string) { *r.events = append(*r.events, r.name+":"+s) }

func (r *recorder) TraceLoaded()   { r.add("loaded") }
func (r *recorder) TraceFiltered() { r.add("filtered") }
func (r *recorder) TimeChanged()   { r.add("time") }

func (r *recorder) MethodEntered(caller, callee graph.VertexID) {
	m := r.p.Model()
	r.add("entered " + m.Name(caller) + ">" + m.Name(callee))
}

func (r *recorder) MethodExited(caller, callee graph.VertexID) {
	m := r.p.Model()
	r.add("exited " + m.Name(caller) + ">" + m.Name(callee))
}

func TestProgram_Scenario(t *testing.T) {
	p := loaded(t, Options{}, scenario...)

	assert.Equal(t, int64(0), p.StartTime())
	assert.Equal(t, int64(5), p.EndTime())
	assert.False(t, p.IsOnStack("a.A"))
	assert.False(t, p.IsOnStack("a.B"))
	assert.True(t, p.IsLoaded("a.A"))

	require.NoError(t, p.SetCurrentTime(2))
	assert.True(t, p.IsOnStack("a.A"))
	assert.True(t, p.IsOnStack("a.B"))
	assert.Equal(t, []int64{1}, p.Threads())
	assert.Equal(t, []StackFrame{
		{Class: "a.B", Defining: "a.B", Actual: "a.B", Method: "n"},
		{Class: "a.A", Defining: "a.A", Actual: "a.A", Method: "m"},
	}, p.CallStack(1))

	require.NoError(t, p.SetCurrentTime(5))
	assert.False(t, p.IsOnStack("a.A"))
	assert.False(t, p.IsOnStack("a.B"))
	assert.Empty(t, p.ActiveThreads())

	a, ok := p.ClassMetrics("a.A")
	require.True(t, ok)
	assert.Equal(t, int64(1), a.CallsSent)
	b, ok := p.ClassMetrics("a.B")
	require.True(t, ok)
	assert.Equal(t, int64(1), b.CallsReceived)

	e, ok := p.EdgeMetrics("a.A", "a.B")
	require.True(t, ok)
	assert.Equal(t, int64(1), e.Calls)

	assert.Len(t, p.Classes(), 2)
	assert.Len(t, p.Edges(), 1)
	_, ok = p.EdgeMetrics("a.B", "a.A")
	assert.False(t, ok)

	require.NoError(t, p.SetCurrentTime(0))
	assert.False(t, p.IsOnStack("a.A"))
}

func TestProgram_MetricWindow(t *testing.T) {
	p := loaded(t, Options{}, scenario...)
	require.NoError(t, p.SetCurrentTime(5))

	require.NoError(t, p.SetMetricWindowStart(2))
	assert.Equal(t, series.Range{Begin: 2, End: 5}, p.Window())
	e, _ := p.EdgeMetrics("a.A", "a.B")
	assert.Equal(t, int64(0), e.Calls)

	require.NoError(t, p.SetMetricWindowStart(1))
	e, _ = p.EdgeMetrics("a.A", "a.B")
	assert.Equal(t, int64(1), e.Calls)
	assert.Equal(t, map[string]int64{"n": 1}, e.Methods)
}

func TestProgram_NotLoaded(t *testing.T) {
	p := New(Options{})
	assert.False(t, p.HasTrace())
	assert.ErrorIs(t, p.SetCurrentTime(1), ErrNotLoaded)
	assert.ErrorIs(t, p.JumpToNextEvent(), ErrNotLoaded)
	assert.ErrorIs(t, p.JumpToPreviousEvent(), ErrNotLoaded)
	assert.ErrorIs(t, p.SetMetricWindowStart(0), ErrNotLoaded)
	assert.ErrorIs(t, p.Filter(), ErrNotLoaded)
	assert.ErrorIs(t, p.Unfilter(), ErrNotLoaded)
	assert.ErrorIs(t, p.ConstructorsOnly(), ErrNotLoaded)
	assert.ErrorIs(t, p.NoConstructors(), ErrNotLoaded)
	assert.Nil(t, p.Model())
	assert.Nil(t, p.Classes())
	assert.False(t, p.IsOnStack("a.A"))
}

func TestProgram_StepNotifications(t *testing.T) {
	p := New(Options{})
	var got []string
	p.AddListener(&recorder{p: p, name: "one", events: &got})
	p.AddListener(&recorder{p: p, name: "two", events: &got})

	require.NoError(t, p.LoadLog(parse(t, scenario...)))
	assert.Equal(t, []string{"one:loaded", "two:loaded"}, got)

	got = nil
	require.NoError(t, p.JumpToNextEvent())
	assert.Equal(t, []string{"one:time", "two:time", "one:entered >a.A", "two:entered >a.A"}, got)
	assert.Equal(t, int64(1), p.CurrentTime())

	got = nil
	require.NoError(t, p.JumpToNextEvent())
	assert.Equal(t, []string{"one:time", "two:time", "one:entered a.A>a.B", "two:entered a.A>a.B"}, got)

	got = nil
	require.NoError(t, p.JumpToNextEvent())
	assert.Equal(t, []string{"one:time", "two:time", "one:exited a.A>a.B", "two:exited a.A>a.B"}, got)
	assert.Equal(t, int64(3), p.CurrentTime())

	got = nil
	require.NoError(t, p.JumpToPreviousEvent())
	assert.Equal(t, []string{"one:time", "two:time", "one:entered a.A>a.B", "two:entered a.A>a.B"}, got)
	assert.True(t, p.IsOnStack("a.B"))

	got = nil
	require.NoError(t, p.JumpToPreviousEvent())
	assert.Equal(t, []string{"one:time", "two:time", "one:exited a.A>a.B", "two:exited a.A>a.B"}, got)
	assert.Equal(t, int64(2), p.CurrentTime())
	assert.False(t, p.IsOnStack("a.B"))
}

func TestProgram_StepsAtTheEnds(t *testing.T) {
	p := loaded(t, Options{}, scenario...)
	var got []string
	p.AddListener(&recorder{p: p, name: "l", events: &got})

	require.NoError(t, p.SetCurrentTime(5))
	got = nil
	require.NoError(t, p.JumpToNextEvent())
	assert.Empty(t, got)

	require.NoError(t, p.SetCurrentTime(-1))
	got = nil
	require.NoError(t, p.JumpToPreviousEvent())
	assert.Empty(t, got)
}

func TestProgram_RemoveListener(t *testing.T) {
	p := loaded(t, Options{}, scenario...)
	var got []string
	one := &recorder{p: p, name: "one", events: &got}
	two := &recorder{p: p, name: "two", events: &got}
	p.AddListener(one)
	p.AddListener(two)
	p.RemoveListener(one)

	require.NoError(t, p.SetCurrentTime(1))
	assert.Equal(t, []string{"two:time"}, got)
}

func TestProgram_FailedLoadKeepsPreviousTrace(t *testing.T) {
	p := loaded(t, Options{}, scenario...)
	require.NoError(t, p.SetCurrentTime(2))
	model := p.Model()

	var got []string
	p.AddListener(&recorder{p: p, name: "l", events: &got})

	err := p.LoadLog(parse(t, "CL:0:A", "MX:1:1:A:m"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, trace.ErrMalformed))

	err = p.Load(filepath.Join(t.TempDir(), "missing.zip"))
	require.Error(t, err)

	assert.Same(t, model, p.Model())
	assert.Equal(t, int64(2), p.CurrentTime())
	assert.True(t, p.IsOnStack("a.B"))
	assert.Empty(t, got)
}

func TestProgram_LoadArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.trace.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, trace.WriteArchiveText(f, strings.NewReader(strings.Join(scenario, "\n"))))
	require.NoError(t, f.Close())

	var buf bytes.Buffer
	p := New(Options{Logger: log.NewLogfmtLogger(&buf)})
	require.NoError(t, p.Load(path))
	assert.Equal(t, path, p.Path())
	assert.Contains(t, buf.String(), "msg=\"trace loaded\"")
	assert.Contains(t, buf.String(), "events=10")
}

func TestProgram_ClassFilter(t *testing.T) {
	p := loaded(t, Options{}, scenario...)
	var got []string
	p.AddListener(&recorder{p: p, name: "l", events: &got})
	require.NoError(t, p.SetCurrentTime(2))
	got = nil

	p.AddClassFilter("a.B")
	assert.True(t, p.IsFilteredClass("a.B"))
	require.NoError(t, p.Filter())
	assert.Equal(t, []string{"l:filtered"}, got)

	assert.True(t, p.IsOnStack("a.A"))
	assert.False(t, p.IsOnStack("a.B"), "stacks resynchronize to the current time")
	assert.Empty(t, p.Edges())
	assert.Empty(t, p.Classes())
	assert.Equal(t, 3, p.Log().FilteredCount())

	b, ok := p.ClassMetrics("a.B")
	require.True(t, ok)
	assert.Equal(t, int64(1), b.MaxCallsReceived, "ceilings come from the unfiltered run")

	require.NoError(t, p.SetCurrentTime(5))
	e, _ := p.EdgeMetrics("a.A", "a.B")
	assert.Equal(t, int64(0), e.Calls)

	require.NoError(t, p.Unfilter())
	assert.False(t, p.IsFilteredClass("a.B"))
	e, _ = p.EdgeMetrics("a.A", "a.B")
	assert.Equal(t, int64(1), e.Calls)
	assert.Equal(t, 0, p.Log().FilteredCount())
}

func TestProgram_MethodAndPackageFilters(t *testing.T) {
	p := loaded(t, Options{},
		"CL:0:app/Main", "CL:0:app/Svc", "CL:0:java/util/List",
		"MN:1:1:app/Main:main:0",
		"MN:2:1:app/Svc:get:0",
		"MN:3:1:java/util/List:size:0",
		"MX:4:1:java/util/List:size",
		"MX:5:1:app/Svc:get",
		"MN:6:1:app/Svc:put:0",
		"MX:7:1:app/Svc:put",
		"MX:8:1:app/Main:main",
	)
	require.NoError(t, p.SetCurrentTime(8))

	p.AddPackageFilter("java")
	require.NoError(t, p.Filter())
	_, ok := lookupEdge(p, "app.Svc", "java.util.List")
	assert.False(t, ok)
	e, _ := p.EdgeMetrics("app.Main", "app.Svc")
	assert.Equal(t, int64(2), e.Calls)

	p.AddMethodFilter("app.Svc", "put")
	assert.True(t, p.IsFilteredMethod("app.Svc", "put"))
	require.NoError(t, p.Filter())
	e, _ = p.EdgeMetrics("app.Main", "app.Svc")
	assert.Equal(t, map[string]int64{"get": 1, "put": 0}, e.Methods)

	p.RemoveMethodFilter("app.Svc", "put")
	p.RemovePackageFilter("java")
	require.NoError(t, p.Filter())
	_, ok = lookupEdge(p, "app.Svc", "java.util.List")
	assert.True(t, ok)
}

func lookupEdge(p *Program, from, to string) (int64, bool) {
	for _, e := range p.Edges() {
		if e.From == from && e.To == to {
			return e.Calls, true
		}
	}
	return 0, false
}

var constructors = []string{
	"CL:0:Main", "CL:0:Widget",
	"MN:1:1:Main:main:0",
	"MN:2:1:Widget:<init>:0",
	"MX:3:1:Widget:<init>",
	"MN:4:1:Widget:draw:0",
	"MX:5:1:Widget:draw",
	"MX:6:1:Main:main",
}

func TestProgram_ConstructorModes(t *testing.T) {
	p := loaded(t, Options{}, constructors...)
	require.NoError(t, p.SetCurrentTime(6))

	require.NoError(t, p.ConstructorsOnly())
	e, _ := p.EdgeMetrics("Main", "Widget")
	assert.Equal(t, map[string]int64{"<init>": 1, "draw": 0}, e.Methods)

	require.NoError(t, p.NoConstructors())
	assert.True(t, p.IsFilteredMethod("Widget", "<init>"))
	e, _ = p.EdgeMetrics("Main", "Widget")
	assert.Equal(t, map[string]int64{"<init>": 0, "draw": 1}, e.Methods)
}

func TestProgram_RulesResetOnLoad(t *testing.T) {
	p := loaded(t, Options{}, scenario...)
	p.AddClassFilter("a.B")
	require.NoError(t, p.LoadLog(parse(t, scenario...)))
	assert.True(t, p.Rules().Empty())
}

func TestProgram_ScrubbingReproducesState(t *testing.T) {
	p := loaded(t, Options{}, constructors...)
	q := loaded(t, Options{}, constructors...)

	for t2 := int64(0); t2 <= 6; t2++ {
		for t1 := int64(0); t1 < t2; t1++ {
			require.NoError(t, p.SetCurrentTime(t2))
			require.NoError(t, p.SetCurrentTime(t1))
			require.NoError(t, p.SetCurrentTime(t2))
			require.NoError(t, q.SetCurrentTime(t2))

			assert.Equal(t, q.CallStack(1), p.CallStack(1))
			assert.Equal(t, q.Classes(), p.Classes())
			assert.Equal(t, q.Edges(), p.Edges())
		}
	}
}

func TestProgram_AttributionByActualClass(t *testing.T) {
	p := loaded(t, Options{Attribution: graph.ByActualClass},
		"CL:0:Main", "CL:0:Base", "CL:0:Impl",
		"OA:1:Impl:5",
		"MN:2:1:Main:main:0",
		"MN:3:1:Base:run:5",
		"MX:4:1:Base:run",
		"MX:5:1:Main:main",
		"OF:6:Impl:5",
	)
	require.NoError(t, p.SetCurrentTime(3))
	assert.True(t, p.IsOnStack("Impl"))
	assert.False(t, p.IsOnStack("Base"))
	assert.Equal(t, []int64{5}, p.Instances("Impl"))

	stack := p.CallStack(1)
	require.Len(t, stack, 2)
	assert.Equal(t, StackFrame{Class: "Impl", Defining: "Base", Actual: "Impl", Method: "run", Object: 5}, stack[0])

	require.NoError(t, p.SetCurrentTime(6))
	assert.Empty(t, p.Instances("Impl"))

	evs := p.Events("Impl", series.Range{Begin: 0, End: 6})
	require.Len(t, evs, 2)
	assert.Equal(t, trace.KindMethodEntry, evs[0].Kind)
	assert.Equal(t, trace.KindMethodExit, evs[1].Kind)
}

func TestProgram_Position(t *testing.T) {
	p := New(Options{})
	assert.Equal(t, 0, p.Position())

	require.NoError(t, p.LoadLog(parse(t, scenario...)))
	assert.Equal(t, 4, p.Position(), "events at the start time are applied")

	require.NoError(t, p.JumpToNextEvent())
	assert.Equal(t, 5, p.Position())

	require.NoError(t, p.JumpToPreviousEvent())
	assert.Equal(t, 4, p.Position())

	require.NoError(t, p.SetCurrentTime(5))
	assert.Equal(t, len(scenario), p.Position())
}

func TestProgram_ConstructorsOnlyActivity(t *testing.T) {
	p := loaded(t, Options{},
		"CL:0:A", "CL:0:B",
		"TB:0:1",
		"MN:1:1:A:m:0",
		"MN:2:1:B:<init>:0",
		"MX:3:1:B:<init>",
		"MX:4:1:A:m",
		"TE:5:1",
		"VD:100",
	)
	require.NoError(t, p.ConstructorsOnly())

	a, ok := p.Lookup("A")
	require.True(t, ok)
	b, ok := p.Lookup("B")
	require.True(t, ok)

	assert.Empty(t, p.Metrics().Class(a).Activity(), "A.m is filtered so A never holds the top of the stack")
	assert.Equal(t, []series.Range{{Begin: 2, End: 3}}, p.Metrics().Class(b).Activity())

	require.NoError(t, p.SetCurrentTime(50))
	assert.False(t, p.IsOnStack("A"))
	assert.Empty(t, p.Metrics().Class(a).ActivityIn(series.Range{Begin: 50, End: 50}))
}

func TestProgram_FilterRules(t *testing.T) {
	p := loaded(t, Options{}, scenario...)
	p.AddClassFilter("a.A")

	require.NoError(t, p.FilterRules(filter.Rules{Classes: []string{"a.B"}}))
	assert.Equal(t, []string{"a.B"}, p.Rules().Classes, "previous rules are replaced")
	assert.Equal(t, 3, p.Log().FilteredCount())

	require.NoError(t, p.FilterRules(filter.Rules{}))
	assert.Equal(t, 0, p.Log().FilteredCount())
	assert.True(t, p.Rules().Empty())
}

func TestProgram_FailedFilterKeepsRules(t *testing.T) {
	p := New(Options{})
	p.AddClassFilter("a.A")

	assert.ErrorIs(t, p.FilterRules(filter.Rules{Classes: []string{"a.B"}}), ErrNotLoaded)
	assert.ErrorIs(t, p.Unfilter(), ErrNotLoaded)
	assert.ErrorIs(t, p.NoConstructors(), ErrNotLoaded)
	assert.Equal(t, []string{"a.A"}, p.Rules().Classes)
	assert.Empty(t, p.Rules().Methods)
}

func TestProgram_ConstructorRules(t *testing.T) {
	assert.True(t, New(Options{}).ConstructorRules().Empty())

	p := loaded(t, Options{}, constructors...)
	rules := p.ConstructorRules()
	require.NotEmpty(t, rules.Methods)
	for _, m := range rules.Methods {
		assert.Equal(t, filter.Constructor, m.Method)
	}
}

func TestProgram_Activity(t *testing.T) {
	p := loaded(t, Options{}, scenario...)
	require.NoError(t, p.SetCurrentTime(5))
	assert.Equal(t, []series.Range{{Begin: 1, End: 2}, {Begin: 3, End: 4}}, p.Activity("a.A"))
	assert.Equal(t, []series.Range{{Begin: 2, End: 3}}, p.Activity("a.B"))

	require.NoError(t, p.SetMetricWindowStart(3))
	assert.Equal(t, []series.Range{{Begin: 3, End: 4}}, p.Activity("a.A"), "only ranges touching the window")
	assert.Equal(t, []series.Range{{Begin: 2, End: 3}}, p.Activity("a.B"))

	assert.Nil(t, p.Activity("z.Z"))
	assert.Nil(t, New(Options{}).Activity("a.A"))
}
