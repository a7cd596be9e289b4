package record

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/snoopsim/timing/bus"
)

// CSVWriter writes bus transactions as comma-separated rows.
type CSVWriter struct {
	path   string
	file   *os.File
	writer *csv.Writer
	err    error
}

// NewCSVWriter creates a writer for the file at path.
func NewCSVWriter(path string) *CSVWriter {
	w := &CSVWriter{path: path}

	atexit.Register(func() { _ = w.Flush() })

	return w
}

// Path returns the output file.
func (w *CSVWriter) Path() string {
	return w.path
}

// Init creates the file and writes the header row.
func (w *CSVWriter) Init() error {
	file, err := os.OpenFile(w.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", w.path, err)
	}

	w.file = file
	w.writer = csv.NewWriter(file)

	return w.writer.Write(header)
}

// Record appends one row.
func (w *CSVWriter) Record(txn bus.Transaction) {
	if w.writer == nil || w.err != nil {
		return
	}

	w.err = w.writer.Write([]string{
		txn.ID,
		strconv.Itoa(txn.Sender),
		fmt.Sprintf("%#x", txn.Address),
		txn.Type,
		txn.State,
		strconv.FormatUint(txn.ExtraCycles, 10),
		strconv.FormatUint(txn.IssuedAt, 10),
		strconv.FormatUint(txn.CostedAt, 10),
		strconv.FormatUint(txn.DeliveredAt, 10),
	})
}

// Flush pushes buffered rows to the file.
func (w *CSVWriter) Flush() error {
	if w.writer == nil {
		return nil
	}
	w.writer.Flush()
	return w.writer.Error()
}

// Close flushes and closes the file.
func (w *CSVWriter) Close() error {
	if w.file == nil {
		return w.err
	}

	err := errors.Join(w.err, w.Flush(), w.file.Close())
	w.file = nil
	w.writer = nil
	return err
}
