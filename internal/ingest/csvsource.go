package ingest

import (
	"encoding/csv"
	"io"
	"os"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// openLatin1CSV opens path and returns a csv.Reader decoding it from
// latin-1 (ISO-8859-1), the encoding every Receita Federal CSV export uses.
// The caller must call the returned close func.
func openLatin1CSV(path string) (*csv.Reader, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	decoded := transform.NewReader(f, charmap.ISO8859_1.NewDecoder())
	r := csv.NewReader(decoded)
	r.Comma = ';'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	return r, f.Close, nil
}

// readAll drains a latin1 CSV source, invoking fn for every row. A row that
// fails to parse (malformed quoting) is skipped rather than aborting the
// whole file, mirroring the row-level ParseSkip error kind. fn returning a
// non-nil error aborts the read and propagates that error (used for COPY
// failures, which must abort the file).
func readAll(path string, fn func(row []string) error) error {
	r, closeFn, err := openLatin1CSV(path)
	if err != nil {
		return err
	}
	defer closeFn()

	for {
		row, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			continue
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}
