package results

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

type tsvFile struct {
	f *os.File
	w *csv.Writer
}

// TSVSink writes each table to a tab-separated file in a directory.
type TSVSink struct {
	dir   string
	files map[string]*tsvFile
}

// NewTSVSink creates dir if needed.
func NewTSVSink(dir string) (*TSVSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	return &TSVSink{dir: dir, files: make(map[string]*tsvFile)}, nil
}

// Begin creates the table file and writes the header line.
func (s *TSVSink) Begin(t Table) error {
	if _, ok := s.files[t.Name]; ok {
		return nil
	}
	f, err := os.Create(filepath.Join(s.dir, t.File))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", t.File, err)
	}
	w := csv.NewWriter(f)
	w.Comma = '\t'

	headers := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		headers[i] = c.Name
	}
	if err := w.Write(headers); err != nil {
		f.Close()
		return err
	}
	s.files[t.Name] = &tsvFile{f: f, w: w}
	return nil
}

// Write appends a row and flushes it, so partial results survive a crash.
func (s *TSVSink) Write(t Table, row Row) error {
	tf, ok := s.files[t.Name]
	if !ok {
		return fmt.Errorf("table %s written before Begin", t.Name)
	}
	if err := checkRow(t, row); err != nil {
		return err
	}
	record := make([]string, len(row))
	for i, v := range row {
		record[i] = formatValue(v)
	}
	if err := tf.w.Write(record); err != nil {
		return err
	}
	tf.w.Flush()
	return tf.w.Error()
}

func (s *TSVSink) Close() error {
	var errs []error
	for name, tf := range s.files {
		tf.w.Flush()
		errs = append(errs, tf.w.Error(), tf.f.Close())
		delete(s.files, name)
	}
	return errors.Join(errs...)
}
