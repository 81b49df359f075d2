package store

import (
	"context"
	"fmt"
	"strings"
)

// allowed leading keywords for ad-hoc statements. Anything else is
// rejected before the driver sees it.
var readOnlyKeywords = map[string]bool{
	"SELECT":  true,
	"WITH":    true,
	"EXPLAIN": true,
	"VALUES":  true,
}

// EnsureReadOnly rejects statements that are not pure reads. It is
// deliberately conservative: multi-statement input is refused outright,
// even when a semicolon only appears inside a string literal, and leading
// SQL comments are refused rather than skipped.
func EnsureReadOnly(query string) error {
	q := strings.TrimSpace(query)
	if q == "" {
		return fmt.Errorf("empty statement")
	}

	q = strings.TrimSuffix(q, ";")
	if strings.Contains(q, ";") {
		return fmt.Errorf("read-only queries must be a single statement")
	}
	if strings.HasPrefix(q, "--") || strings.HasPrefix(q, "/*") {
		return fmt.Errorf("read-only queries must not start with a comment")
	}

	fields := strings.FieldsFunc(q, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '('
	})
	if len(fields) == 0 {
		return fmt.Errorf("empty statement")
	}
	first := strings.ToUpper(fields[0])
	if !readOnlyKeywords[first] {
		return fmt.Errorf("statement %q is not read-only", first)
	}

	// SQLite allows CTE-prefixed writes (WITH ... DELETE/UPDATE/INSERT),
	// so the leading keyword alone does not make a WITH statement a read.
	if first == "WITH" {
		switch verb := statementVerb(q); verb {
		case "SELECT", "VALUES":
		case "":
			return fmt.Errorf("WITH statement must wrap a SELECT or VALUES")
		default:
			return fmt.Errorf("WITH statement ending in %s is not read-only", verb)
		}
	}

	return nil
}

// statementVerb returns the first top-level statement keyword after a CTE
// prologue. CTE bodies live inside parentheses and string literals may
// contain anything, so both are skipped.
func statementVerb(q string) string {
	depth := 0
	inString := false
	var word strings.Builder

	check := func() string {
		w := strings.ToUpper(word.String())
		word.Reset()
		switch w {
		case "SELECT", "VALUES", "INSERT", "REPLACE", "UPDATE", "DELETE":
			return w
		}
		return ""
	}

	for i := 0; i < len(q); i++ {
		c := q[i]
		if inString {
			if c == '\'' {
				inString = false
			}
			continue
		}
		switch {
		case c == '\'':
			inString = true
			word.Reset()
		case c == '(':
			depth++
			word.Reset()
		case c == ')':
			depth--
			word.Reset()
		case depth == 0 && (c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'):
			word.WriteByte(c)
		default:
			if depth == 0 {
				if v := check(); v != "" {
					return v
				}
			}
			word.Reset()
		}
	}
	return check()
}

// ResultSet is the generic output of an ad-hoc read-only query.
type ResultSet struct {
	Columns []string
	Rows    [][]interface{}
}

// ExecuteReadOnly runs an ad-hoc query after verifying it is a pure read.
func (s *SQLiteStore) ExecuteReadOnly(ctx context.Context, query string, args ...interface{}) (*ResultSet, error) {
	if err := EnsureReadOnly(query); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	rs := &ResultSet{Columns: cols}
	for rows.Next() {
		row, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		rs.Rows = append(rs.Rows, row)
	}

	return rs, rows.Err()
}

// SelectReadOnly runs a canned read query into a slice destination,
// through the same read-only guard as ad-hoc queries.
func (s *SQLiteStore) SelectReadOnly(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if err := EnsureReadOnly(query); err != nil {
		return err
	}
	return s.db.SelectContext(ctx, dest, query, args...)
}

// GetReadOnly runs a canned single-row read query, through the same
// read-only guard as ad-hoc queries.
func (s *SQLiteStore) GetReadOnly(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if err := EnsureReadOnly(query); err != nil {
		return err
	}
	return s.db.GetContext(ctx, dest, query, args...)
}
