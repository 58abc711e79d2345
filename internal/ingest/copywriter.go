package ingest

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/vision-digital/cnpj-ingestd/internal/apperrors"
)

// copyWriter batches rows and flushes them through pq.CopyIn every
// batchSize rows, each flush its own COPY statement on a caller-supplied
// transaction so the transaction's eventual COMMIT remains the unit of
// durability for the whole file.
type copyWriter struct {
	tx        *sql.Tx
	table     string
	columns   []string
	batchSize int

	stmt     *sql.Stmt
	count    int
	total    int64
	lastRows [][]interface{}
}

func newCopyWriter(tx *sql.Tx, table string, columns []string, batchSize int) *copyWriter {
	return &copyWriter{tx: tx, table: table, columns: columns, batchSize: batchSize}
}

// WriteRow buffers one row's fields, flushing a full COPY batch once
// batchSize rows have accumulated.
func (w *copyWriter) WriteRow(args []interface{}) error {
	if w.stmt == nil {
		stmt, err := w.tx.Prepare(pq.CopyIn(w.table, w.columns...))
		if err != nil {
			return apperrors.NewCopyFailed("failed to prepare COPY statement", err, nil)
		}
		w.stmt = stmt
	}

	if len(w.lastRows) >= 10 {
		w.lastRows = w.lastRows[1:]
	}
	w.lastRows = append(w.lastRows, args)

	if _, err := w.stmt.Exec(args...); err != nil {
		w.stmt.Close()
		w.stmt = nil
		return apperrors.NewCopyFailed("COPY batch failed", err, w.debugLines())
	}

	w.count++
	w.total++
	if w.count >= w.batchSize {
		return w.flush()
	}
	return nil
}

func (w *copyWriter) flush() error {
	if w.stmt == nil {
		return nil
	}
	if _, err := w.stmt.Exec(); err != nil {
		w.stmt.Close()
		w.stmt = nil
		return apperrors.NewCopyFailed("COPY finalize failed", err, w.debugLines())
	}
	err := w.stmt.Close()
	w.stmt = nil
	w.count = 0
	if err != nil {
		return apperrors.NewCopyFailed("failed to close COPY statement", err, w.debugLines())
	}
	return nil
}

// Close flushes any remaining buffered rows. Call after the last WriteRow.
func (w *copyWriter) Close() error {
	return w.flush()
}

// Total returns the cumulative row count written so far.
func (w *copyWriter) Total() int64 {
	return w.total
}

func (w *copyWriter) debugLines() []string {
	lines := make([]string, 0, len(w.lastRows))
	for _, row := range w.lastRows {
		lines = append(lines, formatDebugRow(row))
	}
	return lines
}

func formatDebugRow(args []interface{}) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprintf("%v", a)
	}
	return strings.Join(parts, " | ")
}
