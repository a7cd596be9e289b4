package record

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/snoopsim/timing/bus"
)

// SQLiteWriter writes bus transactions to a SQLite database in batches.
type SQLiteWriter struct {
	*sql.DB
	statement *sql.Stmt

	path      string
	pending   []bus.Transaction
	batchSize int
	err       error
}

// NewSQLiteWriter creates a writer for the database at path. Pending
// transactions are flushed when the program exits through atexit.
func NewSQLiteWriter(path string) *SQLiteWriter {
	w := &SQLiteWriter{
		path:      path,
		batchSize: 10000,
	}

	atexit.Register(func() { _ = w.Flush() })

	return w
}

// Path returns the database file.
func (w *SQLiteWriter) Path() string {
	return w.path
}

// Init creates the database. It refuses to overwrite an existing file.
func (w *SQLiteWriter) Init() error {
	if _, err := os.Stat(w.path); err == nil {
		return fmt.Errorf("file %s already exists", w.path)
	}

	db, err := sql.Open("sqlite3", w.path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", w.path, err)
	}
	w.DB = db

	_, err = w.Exec(`
		CREATE TABLE transactions (
			id           VARCHAR(200) NOT NULL PRIMARY KEY,
			core         INT NOT NULL,
			address      INT NOT NULL,
			type         VARCHAR(16) NOT NULL,
			state        VARCHAR(16) NOT NULL,
			extra_cycles INT NOT NULL,
			issued_at    INT NOT NULL,
			costed_at    INT NOT NULL,
			delivered_at INT NOT NULL
		);
		CREATE INDEX transactions_core ON transactions (core);
	`)
	if err != nil {
		return fmt.Errorf("creating table: %w", err)
	}

	w.statement, err = w.Prepare(`INSERT INTO transactions VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}

	return nil
}

// Record buffers a transaction and flushes once the batch is full.
func (w *SQLiteWriter) Record(txn bus.Transaction) {
	w.pending = append(w.pending, txn)
	if len(w.pending) >= w.batchSize {
		if err := w.Flush(); err != nil && w.err == nil {
			w.err = err
		}
	}
}

// Flush writes the buffered transactions in one database transaction.
func (w *SQLiteWriter) Flush() error {
	if len(w.pending) == 0 || w.DB == nil {
		return nil
	}

	tx, err := w.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	stmt := tx.Stmt(w.statement)
	for _, txn := range w.pending {
		_, err := stmt.Exec(
			txn.ID,
			txn.Sender,
			int64(txn.Address),
			txn.Type,
			txn.State,
			int64(txn.ExtraCycles),
			int64(txn.IssuedAt),
			int64(txn.CostedAt),
			int64(txn.DeliveredAt),
		)
		if err != nil {
			return errors.Join(fmt.Errorf("inserting %s: %w", txn.ID, err), tx.Rollback())
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	w.pending = nil
	return nil
}

// Close flushes and closes the database.
func (w *SQLiteWriter) Close() error {
	err := errors.Join(w.err, w.Flush())
	if w.DB != nil {
		err = errors.Join(err, w.statement.Close(), w.DB.Close())
		w.DB = nil
	}
	return err
}
