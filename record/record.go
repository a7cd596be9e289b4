// Package record stores the bus transactions of a run for later analysis.
package record

import (
	"fmt"
	"strings"

	"github.com/rs/xid"

	"github.com/sarchlab/snoopsim/timing/bus"
)

// Writer is a bus recorder backed by a file.
type Writer interface {
	bus.Recorder
	Init() error
	Flush() error
	Close() error
	Path() string
}

// Formats accepted by New.
const (
	FormatSQLite = "sqlite"
	FormatCSV    = "csv"
)

// DefaultPath returns a fresh file name for a recording without a given
// path.
func DefaultPath(format string) string {
	ext := ".csv"
	if format == FormatSQLite {
		ext = ".sqlite3"
	}
	return "snoopsim_" + xid.New().String() + ext
}

// New creates a writer for format at path. An empty path picks a fresh
// name.
func New(format, path string) (Writer, error) {
	format = strings.ToLower(format)
	if path == "" {
		path = DefaultPath(format)
	}

	switch format {
	case FormatSQLite:
		return NewSQLiteWriter(path), nil
	case FormatCSV:
		return NewCSVWriter(path), nil
	default:
		return nil, fmt.Errorf("unknown record format %q (valid: %s, %s)",
			format, FormatSQLite, FormatCSV)
	}
}

var header = []string{
	"id", "core", "address", "type", "state", "extra_cycles",
	"issued_at", "costed_at", "delivered_at",
}
