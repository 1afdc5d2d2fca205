package trace

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(ls ...string) *strings.Reader {
	return strings.NewReader(strings.Join(ls, "\n") + "\n")
}

func TestParse_AllRecordShapes(t *testing.T) {
	log, err := Parse(lines(
		"VS:0",
		"VI:1",
		"CL:1:a/b/A",
		"TB:1:7",
		"OA:2:a/b/A:42",
		"MN:3:7:a/b/A:run:42",
		"FP:4:7:a/b/A:run",
		"MN:5:7:a/b/A:<init>:0",
		"MX:6:7:a/b/A:<init>",
		"OF:7:a/b/A:42",
		"TE:8:7",
		"VD:9",
	))
	require.NoError(t, err)
	require.Equal(t, 12, log.Len())

	assert.Equal(t, int64(1), log.Start)
	assert.Equal(t, int64(9), log.End)

	assert.Equal(t, Event{Kind: KindVMStart, Time: 0, Line: 1}, log.Events[0])
	assert.Equal(t, Event{Kind: KindClassLoad, Time: 1, Class: "a.b.A", Line: 3}, log.Events[2])
	assert.Equal(t, Event{Kind: KindThreadStart, Time: 1, Thread: 7, Line: 4}, log.Events[3])
	assert.Equal(t, Event{Kind: KindObjectAlloc, Time: 2, Class: "a.b.A", Object: 42, Line: 5}, log.Events[4])
	assert.Equal(t, Event{Kind: KindMethodEntry, Time: 3, Thread: 7, Class: "a.b.A", Method: "run", Object: 42, Line: 6}, log.Events[5])
	assert.Equal(t, Event{Kind: KindFramePop, Time: 4, Thread: 7, Class: "a.b.A", Method: "run", Line: 7}, log.Events[6])
	assert.Equal(t, KindMethodExit, log.Events[8].Kind)
	assert.Equal(t, KindObjectFree, log.Events[9].Kind)
	assert.Equal(t, KindThreadEnd, log.Events[10].Kind)
}

func TestParse_InternsNames(t *testing.T) {
	p := NewParser(nil)
	log, err := p.Parse(lines(
		"CL:0:x/Y",
		"MN:1:1:x/Y:go:0",
		"MX:2:1:x/Y:go",
	))
	require.NoError(t, err)

	assert.Equal(t, 2, p.Pool().Len())
	assert.Equal(t, "x.Y", log.Events[1].Class)
	assert.Equal(t, log.Events[1].Method, log.Events[2].Method)
}

func TestParse_BoundsWithoutVMEvents(t *testing.T) {
	log, err := Parse(lines("CL:3:A", "CL:8:B"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), log.Start)
	assert.Equal(t, int64(8), log.End)
}

func TestParse_SkipsBlankLines(t *testing.T) {
	log, err := Parse(strings.NewReader("VI:0\n\n  \nVD:1\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, log.Len())
	assert.Equal(t, 4, log.Events[1].Line)
}

func TestParse_MalformedLinesFail(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		line   int
		reason string
	}{
		{"unknown tag", "VI:0\nXX:1", 2, "unknown record tag"},
		{"bad timestamp", "VI:zero", 1, "invalid timestamp"},
		{"too few fields", "VI:0\nMN:1:1:A:m", 2, "needs 6 fields"},
		{"too many fields", "CL:1:A:B", 1, "needs 3 fields"},
		{"bad thread", "TB:1:main", 1, "invalid thread id"},
		{"bad object", "OA:1:A:obj", 1, "invalid object id"},
		{"empty class", "CL:1:", 1, "empty class name"},
		{"empty method", "MX:1:1:A:", 1, "empty method name"},
		{"decreasing time", "VI:5\nCL:4:A", 2, "precedes"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))

			var ferr *FormatError
			require.True(t, errors.As(err, &ferr))
			assert.Equal(t, tc.line, ferr.Line)
			assert.Contains(t, ferr.Reason, tc.reason)
			assert.Contains(t, err.Error(), "line")
		})
	}
}

func TestEvent_RecordRoundTrip(t *testing.T) {
	src := []string{
		"VI:0",
		"CL:0:a/A",
		"TB:0:1",
		"MN:1:1:a/A:m:9",
		"MX:2:1:a/A:m",
		"OA:3:a/A:9",
		"VD:5",
	}
	log, err := Parse(lines(src...))
	require.NoError(t, err)

	for i, ev := range log.Events {
		assert.Equal(t, src[i], ev.Record())
	}
	assert.Equal(t, "MN:1:1:a.A:m:9", log.Events[3].String())
}

func TestLog_CloneAndAfter(t *testing.T) {
	log, err := Parse(lines("VI:0", "CL:1:A", "CL:1:B", "CL:3:C"))
	require.NoError(t, err)

	clone := log.Clone()
	clone.Events[1].Filtered = true
	assert.False(t, log.Events[1].Filtered)
	assert.Equal(t, 1, clone.FilteredCount())

	assert.Equal(t, 1, log.After(0))
	assert.Equal(t, 3, log.After(1))
	assert.Equal(t, 3, log.After(2))
	assert.Equal(t, 4, log.After(3))
}

func TestArchive_WriteAndRead(t *testing.T) {
	log, err := Parse(lines("VI:0", "CL:0:p/Q", "VD:2"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "run.trace")
	var buf bytes.Buffer
	require.NoError(t, WriteArchive(&buf, log.Events))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	got, err := ReadArchive(path, nil)
	require.NoError(t, err)
	assert.Equal(t, log.Events, got.Events)
	assert.Equal(t, int64(2), got.End)
}

func TestArchive_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadArchive(filepath.Join(dir, "missing.trace"), nil)
	assert.Error(t, err)

	notZip := filepath.Join(dir, "plain.trace")
	require.NoError(t, os.WriteFile(notZip, []byte("VI:0\n"), 0644))
	_, err = ReadArchive(notZip, nil)
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.trace")
	var buf bytes.Buffer
	require.NoError(t, WriteArchiveText(&buf, strings.NewReader("VI:0\nZZ:1\n")))
	require.NoError(t, os.WriteFile(bad, buf.Bytes(), 0644))
	_, err = ReadArchive(bad, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}
