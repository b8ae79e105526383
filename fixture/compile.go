package fixture

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/mickamy/testfixtures/internal/naming"
)

// Statement is a compiled SQL statement. SQL uses "?" for every bound param;
// Raw values are already inlined. len(Params) equals the placeholder count.
type Statement struct {
	SQL    string
	Params []Param

	// parts is SQL split around its placeholders, so dialects can render
	// their own placeholders without rescanning inlined RAW text.
	parts []string
}

// Render returns the statement text with the i-th (1-based) placeholder
// produced by placeholder.
func (s Statement) Render(placeholder func(index int) string) string {
	if len(s.parts) == 0 {
		return s.SQL
	}
	var b strings.Builder
	b.WriteString(s.parts[0])
	for i, part := range s.parts[1:] {
		b.WriteString(placeholder(i + 1))
		b.WriteString(part)
	}
	return b.String()
}

// File is a compiled fixture file. It is immutable after Compile.
type File struct {
	Path    string
	Table   string
	Delete  Statement
	Inserts []Statement
}

// Statements returns the DELETE statement followed by the INSERTs in record order.
func (f *File) Statements() []Statement {
	stmts := make([]Statement, 0, len(f.Inserts)+1)
	stmts = append(stmts, f.Delete)
	return append(stmts, f.Inserts...)
}

// CompileOptions control value coercion.
type CompileOptions struct {
	// Location is used to interpret every datetime string.
	Location *time.Location

	// DropUnsupported omits columns whose value cannot be mapped to a Param
	// (nested mappings, sequences) instead of failing compilation.
	DropUnsupported bool
}

// ReadFile reads the fixture file at path once and compiles it.
func ReadFile(path string, opts CompileOptions) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("testfixtures: read %s: %w", path, err)
	}
	return Compile(path, data, opts)
}

// Compile compiles the content of a fixture file. The table name is the
// file stem of path. data must hold a YAML sequence of mappings; an empty
// document compiles to the DELETE statement alone.
func Compile(path string, data []byte, opts CompileOptions) (*File, error) {
	if opts.Location == nil {
		return nil, ErrNoLocation
	}

	records, err := decodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("testfixtures: %s: %w", path, err)
	}

	table := naming.TableName(path)
	f := &File{
		Path:    path,
		Table:   table,
		Delete:  Statement{SQL: "DELETE FROM " + table},
		Inserts: make([]Statement, 0, len(records)),
	}
	for i, record := range records {
		stmt, err := compileInsert(table, record, opts)
		if err != nil {
			return nil, fmt.Errorf("testfixtures: %s: record %d: %w", path, i+1, err)
		}
		f.Inserts = append(f.Inserts, stmt)
	}
	return f, nil
}

func decodeRecords(data []byte) ([]yaml.MapSlice, error) {
	var doc any
	if err := yaml.UnmarshalWithOptions(data, &doc, yaml.UseOrderedMap()); err != nil {
		return nil, err //nolint:wrapcheck // wrapped with the path by the caller
	}
	if doc == nil {
		return nil, nil
	}

	list, ok := doc.([]any)
	if !ok {
		return nil, fmt.Errorf("%w, got %T", ErrNotList, doc)
	}
	records := make([]yaml.MapSlice, 0, len(list))
	for i, item := range list {
		switch item := item.(type) {
		case yaml.MapSlice:
			records = append(records, item)
		default:
			return nil, fmt.Errorf("record %d: %w, got %T", i+1, ErrNotMapping, item)
		}
	}
	return records, nil
}

func compileInsert(table string, record yaml.MapSlice, opts CompileOptions) (Statement, error) {
	columns := make([]string, 0, len(record))
	params := make([]Param, 0, len(record))
	seen := make(map[string]struct{}, len(record))

	// values collects the text since the last bound value; each bound value
	// closes a part.
	var values strings.Builder
	var parts []string
	for _, item := range record {
		column := fmt.Sprint(item.Key)
		if _, dup := seen[column]; dup {
			return Statement{}, fmt.Errorf("duplicate column %q", column)
		}
		seen[column] = struct{}{}

		p, err := Coerce(item.Value, opts.Location)
		if err != nil {
			if opts.DropUnsupported && errors.Is(err, ErrUnsupportedValue) {
				continue
			}
			return Statement{}, fmt.Errorf("column %q: %w", column, err)
		}

		if len(columns) > 0 {
			values.WriteString(", ")
		}
		columns = append(columns, column)
		if p.IsRaw() {
			values.WriteString(p.Expr())
			continue
		}
		parts = append(parts, values.String())
		values.Reset()
		params = append(params, p)
	}
	if len(columns) == 0 {
		return Statement{}, ErrEmptyRecord
	}
	parts = append(parts, values.String()+")")

	parts[0] = "INSERT INTO " + table + " (" + strings.Join(columns, ", ") + ") VALUES (" + parts[0]
	return Statement{
		SQL:    strings.Join(parts, "?"),
		Params: params,
		parts:  parts,
	}, nil
}
