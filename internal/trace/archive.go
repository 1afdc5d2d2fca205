package trace

import (
	"bufio"
	"io"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
)

// ArchiveEntry is the name of the zip entry holding the trace text.
const ArchiveEntry = "trace"

// ReadArchive opens the zip container at path and parses its trace entry.
func ReadArchive(path string, p *Parser) (*Log, error) {
	if p == nil {
		p = NewParser(nil)
	}

	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open trace archive %s", path)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if file.Name != ArchiveEntry {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "open %s entry in %s", ArchiveEntry, path)
		}
		defer rc.Close()

		log, err := p.Parse(rc)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
		return log, nil
	}

	return nil, errors.Errorf("trace archive %s has no %q entry", path, ArchiveEntry)
}

// WriteArchive writes events as a zip container with a single trace entry.
func WriteArchive(w io.Writer, events []Event) error {
	zw := zip.NewWriter(w)
	entry, err := zw.Create(ArchiveEntry)
	if err != nil {
		return errors.Wrap(err, "create trace entry")
	}

	bw := bufio.NewWriter(entry)
	for i := range events {
		if _, err := bw.WriteString(events[i].Record()); err != nil {
			return errors.Wrap(err, "write trace record")
		}
		if err := bw.WriteByte('\n'); err != nil {
			return errors.Wrap(err, "write trace record")
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "flush trace entry")
	}

	return zw.Close()
}

// WriteArchiveText wraps an already serialized trace in a zip container.
func WriteArchiveText(w io.Writer, text io.Reader) error {
	zw := zip.NewWriter(w)
	entry, err := zw.Create(ArchiveEntry)
	if err != nil {
		return errors.Wrap(err, "create trace entry")
	}
	if _, err := io.Copy(entry, text); err != nil {
		return errors.Wrap(err, "copy trace text")
	}
	return zw.Close()
}
