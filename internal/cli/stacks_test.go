package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStacks_JSON(t *testing.T) {
	path := writeTrace(t, scenario...)
	cmd := &StacksCommand{At: 2, Args: TraceArgs{Trace: path}, globals: &GlobalFlags{JSON: true}}

	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWithStore(context.Background(), testEnv(t), nil))
	})

	var out stacksJSON
	require.NoError(t, json.Unmarshal([]byte(output), &out), output)
	assert.Equal(t, int64(2), out.At)
	require.Len(t, out.Threads, 1)

	th := out.Threads[0]
	assert.Equal(t, int64(1), th.Thread)
	assert.True(t, th.Active)
	require.Len(t, th.Frames, 2)
	assert.Equal(t, "a.B", th.Frames[0].Class)
	assert.Equal(t, "n", th.Frames[0].Method)
	assert.Equal(t, "a.A", th.Frames[1].Class)
	assert.Equal(t, "m", th.Frames[1].Method)
}

func TestStacks_HumanOutput(t *testing.T) {
	path := writeTrace(t, scenario...)
	cmd := &StacksCommand{At: 2, Args: TraceArgs{Trace: path}, globals: &GlobalFlags{}}

	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWithStore(context.Background(), testEnv(t), nil))
	})

	assert.Contains(t, output, "Stacks at 2")
	assert.Contains(t, output, "Thread 1 (running, depth 2)")
	assert.Less(t, indexOf(output, "a.B"), indexOf(output, "a.A"), "top frame first")
}

func TestStacks_BeforeThreadStarts(t *testing.T) {
	path := writeTrace(t, scenario...)
	cmd := &StacksCommand{At: 0, Args: TraceArgs{Trace: path}, globals: &GlobalFlags{JSON: true}}

	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWithStore(context.Background(), testEnv(t), nil))
	})

	var out stacksJSON
	require.NoError(t, json.Unmarshal([]byte(output), &out), output)
	for _, th := range out.Threads {
		assert.Empty(t, th.Frames)
		assert.NotNil(t, th.Frames)
	}
}
