package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tracescope/internal/filter"
	"github.com/runnerr0/tracescope/internal/series"
	"github.com/runnerr0/tracescope/internal/storage"
)

func runInspect(t *testing.T, e *env, store storage.Store, cmd *InspectCommand) inspectJSON {
	t.Helper()
	cmd.globals = &GlobalFlags{JSON: true}
	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWithStore(context.Background(), e, store))
	})

	var out inspectJSON
	require.NoError(t, json.Unmarshal([]byte(output), &out), output)
	return out
}

func TestInspect_WholeTrace(t *testing.T) {
	path := writeTrace(t, scenario...)
	out := runInspect(t, testEnv(t), setupStore(t), &InspectCommand{Args: TraceArgs{Trace: path}})

	assert.Equal(t, int64(0), out.Start)
	assert.Equal(t, int64(5), out.End)
	assert.Equal(t, int64(5), out.At, "defaults to the end of the trace")
	assert.Equal(t, int64(0), out.From, "defaults to the start of the trace")
	assert.Equal(t, 10, out.Events)
	assert.Equal(t, 0, out.Filtered)

	require.Len(t, out.Classes, 2)
	assert.Equal(t, "a.A", out.Classes[0].Name)
	assert.Equal(t, "a.B", out.Classes[1].Name)
	assert.Equal(t, int64(1), out.Classes[0].CallsSent)
	assert.Equal(t, int64(1), out.Classes[1].CallsReceived)

	assert.False(t, out.Classes[0].OnStack)
	assert.Equal(t, []series.Range{{Begin: 1, End: 2}, {Begin: 3, End: 4}}, out.Classes[0].Activity)
	assert.Equal(t, []series.Range{{Begin: 2, End: 3}}, out.Classes[1].Activity)

	require.Len(t, out.Edges, 1)
	assert.Equal(t, "a.A", out.Edges[0].From)
	assert.Equal(t, "a.B", out.Edges[0].To)
	assert.Equal(t, int64(1), out.Edges[0].Calls)
	assert.Equal(t, map[string]int64{"n": 1}, out.Edges[0].Methods)
}

func TestInspect_Window(t *testing.T) {
	path := writeTrace(t, scenario...)
	out := runInspect(t, testEnv(t), nil, &InspectCommand{
		At:   ptr(int64(1)),
		Args: TraceArgs{Trace: path},
	})

	assert.Equal(t, int64(1), out.At)
	require.Len(t, out.Edges, 1, "an edge with calls anywhere in the trace stays visible")
	assert.Equal(t, int64(0), out.Edges[0].Calls)
	assert.Equal(t, int64(1), out.Edges[0].MaxCallCount)
}

func TestInspect_FromAfterAt(t *testing.T) {
	path := writeTrace(t, scenario...)
	cmd := &InspectCommand{At: ptr(int64(1)), From: ptr(int64(3)), Args: TraceArgs{Trace: path}}
	err := cmd.executeWithStore(context.Background(), testEnv(t), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after")
}

func TestInspect_BlockedClass(t *testing.T) {
	path := writeTrace(t, scenario...)
	cmd := &InspectCommand{Args: TraceArgs{Trace: path}}
	cmd.Block = []string{"a.B"}
	out := runInspect(t, testEnv(t), nil, cmd)

	assert.Equal(t, 3, out.Filtered)
	assert.Empty(t, out.Edges)
	assert.Empty(t, out.Classes)
}

func TestInspect_Profile(t *testing.T) {
	path := writeTrace(t, scenario...)
	store := setupStore(t)
	require.NoError(t, store.SaveProfile(context.Background(), &storage.Profile{
		Name:  "hide-b",
		Rules: filter.Rules{Classes: []string{"a.B"}},
	}))

	cmd := &InspectCommand{Args: TraceArgs{Trace: path}}
	cmd.Profile = "hide-b"
	out := runInspect(t, testEnv(t), store, cmd)
	assert.Equal(t, 3, out.Filtered)
}

func TestInspect_UnknownProfile(t *testing.T) {
	path := writeTrace(t, scenario...)
	cmd := &InspectCommand{Args: TraceArgs{Trace: path}}
	cmd.Profile = "missing"
	err := cmd.executeWithStore(context.Background(), testEnv(t), setupStore(t))
	assert.ErrorIs(t, err, storage.ErrProfileNotFound)
}

func TestInspect_BadMethodRule(t *testing.T) {
	path := writeTrace(t, scenario...)
	cmd := &InspectCommand{Args: TraceArgs{Trace: path}}
	cmd.BlockMethod = []string{"a.B.n"}
	err := cmd.executeWithStore(context.Background(), testEnv(t), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.B.n")
}

func TestInspect_ConstructorModesExclusive(t *testing.T) {
	path := writeTrace(t, scenario...)
	cmd := &InspectCommand{Args: TraceArgs{Trace: path}}
	cmd.ConstructorsOnly = true
	cmd.NoConstructors = true
	err := cmd.executeWithStore(context.Background(), testEnv(t), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestInspect_RecordsHistory(t *testing.T) {
	path := writeTrace(t, scenario...)
	store := setupStore(t)
	runInspect(t, testEnv(t), store, &InspectCommand{Args: TraceArgs{Trace: path}})

	loads, err := store.ListLoads(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, loads, 1)
	assert.Equal(t, path, loads[0].Path)
	assert.Equal(t, 10, loads[0].Events)
	assert.Equal(t, 2, loads[0].Vertices)
	assert.Equal(t, 1, loads[0].Edges)
	assert.Equal(t, int64(0), loads[0].Start)
	assert.Equal(t, int64(5), loads[0].End)
}

func TestInspect_MissingTrace(t *testing.T) {
	cmd := &InspectCommand{Args: TraceArgs{Trace: t.TempDir() + "/nope.zip"}}
	err := cmd.executeWithStore(context.Background(), testEnv(t), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.zip")
}

func TestInspect_HumanOutput(t *testing.T) {
	path := writeTrace(t, scenario...)
	cmd := &InspectCommand{Args: TraceArgs{Trace: path}, globals: &GlobalFlags{}}

	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWithStore(context.Background(), testEnv(t), nil))
	})

	assert.Contains(t, output, "Window:   0 .. 5")
	assert.Contains(t, output, "Events:   10 (0 filtered)")
	assert.Contains(t, output, "a.A")
	assert.Contains(t, output, "a.B")
	assert.Contains(t, output, "n=1")
}

func TestInspect_LiveState(t *testing.T) {
	path := writeTrace(t, scenario...)
	out := runInspect(t, testEnv(t), nil, &InspectCommand{
		At:   ptr(int64(2)),
		From: ptr(int64(2)),
		Args: TraceArgs{Trace: path},
	})

	require.Len(t, out.Classes, 2)
	for _, c := range out.Classes {
		assert.True(t, c.OnStack, c.Name)
	}
	assert.Equal(t, []series.Range{{Begin: 1, End: 2}}, out.Classes[0].Activity)
	assert.Equal(t, []series.Range{{Begin: 2, End: 3}}, out.Classes[1].Activity)
}

func TestInspect_HumanOutputShowsActivity(t *testing.T) {
	path := writeTrace(t, scenario...)
	cmd := &InspectCommand{At: ptr(int64(2)), Args: TraceArgs{Trace: path}, globals: &GlobalFlags{}}

	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWithStore(context.Background(), testEnv(t), nil))
	})
	assert.Contains(t, output, "yes")
	assert.Contains(t, output, "[1,2)")
}
