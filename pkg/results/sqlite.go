package results

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLiteSink stores every table in one SQLite database.
type SQLiteSink struct {
	db      *sql.DB
	inserts map[string]*sql.Stmt
}

// NewSQLiteSink opens (or creates) the database at path.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return &SQLiteSink{db: db, inserts: make(map[string]*sql.Stmt)}, nil
}

func sqlType(k Kind) string {
	switch k {
	case KindInt, KindBool:
		return "INTEGER"
	case KindReal:
		return "REAL"
	}
	return "TEXT"
}

// Begin creates the table if it does not exist and prepares its insert.
func (s *SQLiteSink) Begin(t Table) error {
	if _, ok := s.inserts[t.Name]; ok {
		return nil
	}
	defs := make([]string, len(t.Columns))
	names := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		defs[i] = fmt.Sprintf("%s %s", c.Field, sqlType(c.Kind))
		names[i] = c.Field
		marks[i] = "?"
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.Name, strings.Join(defs, ", "))
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("create %s table: %w", t.Name, err)
	}
	stmt, err := s.db.Prepare(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.Name, strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("prepare %s insert: %w", t.Name, err)
	}
	s.inserts[t.Name] = stmt
	return nil
}

func (s *SQLiteSink) Write(t Table, row Row) error {
	stmt, ok := s.inserts[t.Name]
	if !ok {
		return fmt.Errorf("table %s written before Begin", t.Name)
	}
	if err := checkRow(t, row); err != nil {
		return err
	}
	args := make([]any, len(row))
	for i, v := range row {
		if _, isMissing := v.(missing); isMissing {
			args[i] = nil
			continue
		}
		args[i] = v
	}
	if _, err := stmt.Exec(args...); err != nil {
		return fmt.Errorf("insert into %s: %w", t.Name, err)
	}
	return nil
}

func (s *SQLiteSink) Close() error {
	var errs []error
	for name, stmt := range s.inserts {
		errs = append(errs, stmt.Close())
		delete(s.inserts, name)
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

// DB exposes the underlying database for queries.
func (s *SQLiteSink) DB() *sql.DB {
	return s.db
}
