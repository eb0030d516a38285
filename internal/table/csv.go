package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// CSVOptions — параметры чтения CSV.
type CSVOptions struct {
	// RawText отключает вывод типов: все непустые ячейки остаются строками.
	RawText bool

	// StringColumns — колонки, значения которых всегда остаются строками.
	StringColumns []string
}

// ReadCSV читает dataset из CSV с заголовком.
//
// Типы ячеек выводятся по значению (см. InferValue).
func ReadCSV(r io.Reader) (*Dataset, error) {
	return ReadCSVWith(r, CSVOptions{})
}

// ReadCSVWith читает dataset из CSV с заголовком по заданным параметрам.
func ReadCSVWith(r io.Reader, opts CSVOptions) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read csv header: empty input")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	raw := make([]bool, len(header))
	for i, name := range header {
		raw[i] = opts.RawText || slices.Contains(opts.StringColumns, name)
	}

	var rows [][]any
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		if len(rec) != len(header) {
			return nil, fmt.Errorf("%w: csv line %d has %d fields, expected %d", ErrRowWidth, line, len(rec), len(header))
		}
		row := make([]any, len(rec))
		for i, s := range rec {
			switch {
			case s == "":
				row[i] = nil
			case raw[i]:
				row[i] = s
			default:
				row[i] = InferValue(s)
			}
		}
		rows = append(rows, row)
	}

	return New(header, rows)
}

// ReadCSVFile читает dataset из CSV-файла.
func ReadCSVFile(path string, opts CSVOptions) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	d, err := ReadCSVWith(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// WriteCSV записывает dataset в CSV с заголовком. nil пишется пустой ячейкой.
func (d *Dataset) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(d.columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	rec := make([]string, len(d.columns))
	for _, row := range d.rows {
		for i, v := range row {
			rec[i] = FormatValue(v)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCSVFile записывает dataset в CSV-файл.
func (d *Dataset) WriteCSVFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := d.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
