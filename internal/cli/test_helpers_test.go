package cli

import (
	"bytes"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-kit/log"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tracescope/internal/config"
	"github.com/runnerr0/tracescope/internal/storage"
	"github.com/runnerr0/tracescope/internal/trace"
)

// scenario is one thread where a.A.m calls a.B.n.
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

// captureOutput captures stdout during fn execution and returns it as a string.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

// testEnv returns the default config with a temporary store directory and
// a silent logger.
func testEnv(t *testing.T) *env {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.Path = t.TempDir()
	return &env{cfg: cfg, logger: log.NewNopLogger()}
}

// setupStore creates a migrated in-memory store.
func setupStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	runner := storage.NewMigrationRunner(db)
	require.NoError(t, runner.Run())

	store, err := storage.NewSQLiteStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

// writeTrace writes lines as a trace archive and returns its path.
func writeTrace(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.trace.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, trace.WriteArchiveText(f, strings.NewReader(strings.Join(lines, "\n"))))
	require.NoError(t, f.Close())
	return path
}

func ptr[T any](v T) *T { return &v }
