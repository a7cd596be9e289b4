// Package loader provides per-core trace loading.
package loader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sarchlab/snoopsim/insts"
)

// TraceExt is the extension of per-core trace files.
const TraceExt = ".data"

// Trace streams the instructions of one core.
type Trace struct {
	name    string
	scanner *bufio.Scanner
	closer  io.Closer
	decoder *insts.Decoder

	line  int
	read  int
	limit int
}

// NewTrace creates a trace reading from r. A positive limit stops the trace
// after that many instructions.
func NewTrace(name string, r io.Reader, limit int) *Trace {
	t := &Trace{
		name:    name,
		scanner: bufio.NewScanner(r),
		decoder: insts.NewDecoder(),
		limit:   limit,
	}
	if c, ok := r.(io.Closer); ok {
		t.closer = c
	}
	return t
}

// Open opens the trace file at path.
func Open(path string, limit int) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace: %w", err)
	}

	return NewTrace(path, f, limit), nil
}

// Name returns the source of the trace.
func (t *Trace) Name() string {
	return t.name
}

// Read returns the number of instructions decoded so far.
func (t *Trace) Read() int {
	return t.read
}

// Next returns the next instruction. It returns false once the trace is
// exhausted or the limit is reached.
func (t *Trace) Next() (insts.Instruction, bool, error) {
	if t.limit > 0 && t.read >= t.limit {
		return insts.Instruction{}, false, nil
	}

	for t.scanner.Scan() {
		t.line++
		text := t.scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}

		inst, err := t.decoder.Decode(text)
		if err != nil {
			return insts.Instruction{}, false, &insts.ParseError{
				Source: t.name,
				Line:   t.line,
				Text:   text,
				Err:    err,
			}
		}

		t.read++
		return inst, true, nil
	}

	if err := t.scanner.Err(); err != nil {
		return insts.Instruction{}, false, fmt.Errorf("failed to read trace %s: %w", t.name, err)
	}

	return insts.Instruction{}, false, nil
}

// Close releases the underlying file, if any.
func (t *Trace) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}

// TracePath returns the trace file of core for a benchmark.
func TracePath(dir, benchmark string, core int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", benchmark, core, TraceExt))
}

// DefaultTraceDir returns the directory a benchmark's traces live in when
// none is given.
func DefaultTraceDir(benchmark string) string {
	return benchmark + "_four"
}

// OpenBenchmark opens one trace per core. Every file must exist.
func OpenBenchmark(dir, benchmark string, cores, limit int) ([]*Trace, error) {
	var missing []string
	for i := 0; i < cores; i++ {
		path := TracePath(dir, benchmark, i)
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, path)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("benchmark %s needs %d trace files, missing: %s",
			benchmark, cores, strings.Join(missing, ", "))
	}

	traces := make([]*Trace, 0, cores)
	for i := 0; i < cores; i++ {
		t, err := Open(TracePath(dir, benchmark, i), limit)
		if err != nil {
			return nil, errors.Join(err, CloseAll(traces))
		}
		traces = append(traces, t)
	}

	return traces, nil
}

// CloseAll closes every trace and joins the errors.
func CloseAll(traces []*Trace) error {
	var errs []error
	for _, t := range traces {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
