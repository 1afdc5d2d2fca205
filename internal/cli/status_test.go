package cli

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tracescope/internal/filter"
	"github.com/runnerr0/tracescope/internal/storage"
)

func TestStatus_EmptyDB(t *testing.T) {
	e := testEnv(t)
	store := setupStore(t)

	cmd := &StatusCommand{
		globals: &GlobalFlags{},
		version: "dev",
	}

	output := captureOutput(t, func() {
		err := cmd.executeWithStore(context.Background(), e.cfg, store)
		require.NoError(t, err)
	})

	assert.Contains(t, output, "tracescope Status")
	assert.Contains(t, output, "Version:")
	assert.Contains(t, output, "dev")
	assert.Contains(t, output, "Profiles:")
	assert.Contains(t, output, "Loads:")
	assert.NotContains(t, output, "Last load:")
	assert.Contains(t, output, "defining_class")
	assert.Contains(t, output, "merged")
}

func TestStatus_TopTracesSorted(t *testing.T) {
	e := testEnv(t)
	store := setupStore(t)
	ctx := context.Background()

	for _, path := range []string{"/t/busy", "/t/busy", "/t/busy", "/t/mid", "/t/mid", "/t/once"} {
		require.NoError(t, store.RecordLoad(ctx, &storage.TraceLoad{Path: path}))
	}

	cmd := &StatusCommand{globals: &GlobalFlags{}, version: "dev"}
	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWithStore(ctx, e.cfg, store))
	})

	busy := strings.Index(output, "/t/busy")
	mid := strings.Index(output, "/t/mid")
	once := strings.Index(output, "/t/once")
	assert.Greater(t, busy, 0)
	assert.Less(t, busy, mid, "/t/busy (3) should appear before /t/mid (2)")
	assert.Less(t, mid, once, "/t/mid (2) should appear before /t/once (1)")
	assert.Contains(t, output, "Last load:")
}

func TestStatus_JSONOutput(t *testing.T) {
	e := testEnv(t)
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveProfile(ctx, &storage.Profile{
		Name:  "quiet",
		Rules: filter.Rules{Classes: []string{"a.B"}, Packages: []string{"java.util"}},
	}))
	require.NoError(t, store.RecordLoad(ctx, &storage.TraceLoad{Path: "/t/run"}))

	cmd := &StatusCommand{
		globals: &GlobalFlags{JSON: true},
		version: "dev",
	}

	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWithStore(ctx, e.cfg, store))
	})

	var result statusJSON
	err := json.Unmarshal([]byte(output), &result)
	require.NoError(t, err, "output should be valid JSON")

	assert.Equal(t, "dev", result.Version)
	assert.Equal(t, int64(1), result.TotalProfiles)
	assert.Equal(t, int64(2), result.TotalRules)
	assert.Equal(t, int64(1), result.TotalLoads)
	assert.NotEmpty(t, result.LastLoad)
	assert.Equal(t, []pathCountJSON{{Path: "/t/run", Count: 1}}, result.TopTraces)
	assert.Equal(t, "defining_class", result.CallAttribution)
	assert.True(t, result.MergeInnerClasses)
	assert.True(t, strings.HasPrefix(result.DatabasePath, e.cfg.Storage.Path))
	assert.GreaterOrEqual(t, result.DatabaseSizeBytes, int64(0))
}
