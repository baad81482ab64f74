package results

import (
	"errors"
	"fmt"
	"strconv"
)

// Sink receives result rows. Begin is called once per table before any Write
// to it; Close flushes everything.
type Sink interface {
	Begin(t Table) error
	Write(t Table, row Row) error
	Close() error
}

// MultiSink forwards every call to all of its sinks.
type MultiSink []Sink

func (m MultiSink) Begin(t Table) error {
	for _, s := range m {
		if err := s.Begin(t); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) Write(t Table, row Row) error {
	for _, s := range m {
		if err := s.Write(t, row); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all sinks and returns their errors joined.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// WriteAll writes rows to t.
func WriteAll(s Sink, t Table, rows []Row) error {
	for _, r := range rows {
		if err := s.Write(t, r); err != nil {
			return err
		}
	}
	return nil
}

func checkRow(t Table, row Row) error {
	if len(row) != len(t.Columns) {
		return fmt.Errorf("table %s: row has %d values, want %d", t.Name, len(row), len(t.Columns))
	}
	return nil
}

// formatValue renders a value for text output.
func formatValue(v any) string {
	switch x := v.(type) {
	case missing:
		return "NaN"
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
