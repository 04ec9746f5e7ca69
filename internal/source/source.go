// Package source reads recorded events for replay by the stream command. Event
// files hold one JSON-encoded event per line; blank lines and lines starting
// with '#' are skipped.
package source

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"collectord/internal/common/fsutil"
)

// MaxLineBytes bounds a single event line.
const MaxLineBytes = 16 << 20

var eventExts = []string{".jsonl", ".ndjson"}

// LineError reports a line that is not valid JSON.
type LineError struct {
	Path string
	Line int
}

func (e *LineError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("line %d: invalid json", e.Line)
	}
	return fmt.Sprintf("%s:%d: invalid json", e.Path, e.Line)
}

// IsLineError reports whether err is a LineError.
func IsLineError(err error) bool {
	var le *LineError
	return errors.As(err, &le)
}

// Files resolves path to the event files it names. A directory yields its
// *.jsonl and *.ndjson entries sorted by name; a file yields itself.
func Files(path string) ([]string, error) {
	abs, err := fsutil.Resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	if !info.IsDir() {
		return []string{abs}, nil
	}
	return fsutil.ListByExt(abs, eventExts...)
}

// Reader yields raw event lines from an io.Reader.
type Reader struct {
	sc   *bufio.Scanner
	path string
	line int
}

// NewReader wraps r. path is only used in error messages.
func NewReader(r io.Reader, path string) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
	return &Reader{sc: sc, path: path}
}

// Next returns the next event line, or io.EOF at the end of input. Invalid
// lines return a LineError; the reader can continue past them.
func (r *Reader) Next() ([]byte, error) {
	for r.sc.Scan() {
		r.line++
		b := bytes.TrimSpace(r.sc.Bytes())
		if len(b) == 0 || b[0] == '#' {
			continue
		}
		if !gjson.ValidBytes(b) {
			return nil, &LineError{Path: r.path, Line: r.line}
		}
		return bytes.Clone(b), nil
	}
	if err := r.sc.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// File is a Reader over an opened event file.
type File struct {
	*Reader
	f *os.File
}

// Open opens one event file.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &File{Reader: NewReader(f, path), f: f}, nil
}

// Close closes the underlying file.
func (f *File) Close() error { return f.f.Close() }

// Stamp overwrites the trigger number of a raw event and, when producer is
// non-empty, its producer name. Other fields are left byte-for-byte intact.
func Stamp(raw []byte, trigger uint64, producer string) ([]byte, error) {
	out, err := sjson.SetBytes(raw, "trigger_n", trigger)
	if err != nil {
		return nil, fmt.Errorf("stamp trigger: %w", err)
	}
	if producer == "" {
		return out, nil
	}
	out, err = sjson.SetBytes(out, "producer", producer)
	if err != nil {
		return nil, fmt.Errorf("stamp producer: %w", err)
	}
	return out, nil
}

// Trigger returns the trigger number recorded in raw, if any.
func Trigger(raw []byte) (uint64, bool) {
	v := gjson.GetBytes(raw, "trigger_n")
	if !v.Exists() {
		return 0, false
	}
	return v.Uint(), true
}
