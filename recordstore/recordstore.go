// Package recordstore defines the read-only table access the recovery pipeline
// needs from an Exchange database, plus two implementations that do not depend on
// a native ESE library.
package recordstore

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrTableNotFound  = errors.New("table not found")
	ErrColumnNotFound = errors.New("column not found")
	ErrRecordRange    = errors.New("record index out of range")
	ErrClosed         = errors.New("store closed")
)

// Store gives sequential, read-only access to tables of records. Column values are
// raw bytes exactly as stored; a nil value with a nil error means the column is
// empty for that record.
type Store interface {
	TableNames() ([]string, error)
	Columns(table string) ([]string, error)
	RecordCount(table string) (int, error)
	Value(table string, record int, column string) ([]byte, error)
	// IsLongValue reports whether the column content lives out of line and must
	// be read with LongValue.
	IsLongValue(table string, record int, column string) (bool, error)
	LongValue(table string, record int, column string) ([]byte, error)
	Close() error
}

// Opener opens the store backing a database file.
type Opener func(path string) (Store, error)

// Read returns the content of a column, following long values.
func Read(s Store, table string, record int, column string) ([]byte, error) {
	long, err := s.IsLongValue(table, record, column)
	if err != nil {
		return nil, err
	}
	if long {
		return s.LongValue(table, record, column)
	}
	return s.Value(table, record, column)
}

type cell struct {
	data []byte
	long bool
}

type table struct {
	name    string
	columns []string
	records []map[string]cell
}

// Memory is an in-memory Store. Tables are enumerated in insertion order.
type Memory struct {
	order  []string
	tables map[string]*table
	closed bool
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]*table)}
}

// AddTable creates a table with the given ordered columns, replacing any table of
// the same name.
func (m *Memory) AddTable(name string, columns ...string) {
	if _, ok := m.tables[name]; !ok {
		m.order = append(m.order, name)
	}
	m.tables[name] = &table{name: name, columns: slices.Clone(columns)}
}

// AddRecord appends a record to a table and returns its index. Keys that are not
// columns of the table are rejected.
func (m *Memory) AddRecord(name string, values map[string][]byte) (int, error) {
	t, ok := m.tables[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	rec := make(map[string]cell, len(values))
	for col, v := range values {
		if !slices.Contains(t.columns, col) {
			return 0, fmt.Errorf("%w: %s.%s", ErrColumnNotFound, name, col)
		}
		rec[col] = cell{data: v}
	}
	t.records = append(t.records, rec)
	return len(t.records) - 1, nil
}

// SetLongValue stores data as an out-of-line value of an existing record.
func (m *Memory) SetLongValue(name string, record int, column string, data []byte) error {
	t, err := m.table(name)
	if err != nil {
		return err
	}
	if record < 0 || record >= len(t.records) {
		return fmt.Errorf("%w: %s[%d]", ErrRecordRange, name, record)
	}
	if !slices.Contains(t.columns, column) {
		return fmt.Errorf("%w: %s.%s", ErrColumnNotFound, name, column)
	}
	t.records[record][column] = cell{data: data, long: true}
	return nil
}

func (m *Memory) table(name string) (*table, error) {
	if m.closed {
		return nil, ErrClosed
	}
	t, ok := m.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return t, nil
}

func (m *Memory) cell(name string, record int, column string) (cell, error) {
	t, err := m.table(name)
	if err != nil {
		return cell{}, err
	}
	if record < 0 || record >= len(t.records) {
		return cell{}, fmt.Errorf("%w: %s[%d]", ErrRecordRange, name, record)
	}
	if !slices.Contains(t.columns, column) {
		return cell{}, fmt.Errorf("%w: %s.%s", ErrColumnNotFound, name, column)
	}
	return t.records[record][column], nil
}

func (m *Memory) TableNames() ([]string, error) {
	if m.closed {
		return nil, ErrClosed
	}
	return slices.Clone(m.order), nil
}

func (m *Memory) Columns(name string) ([]string, error) {
	t, err := m.table(name)
	if err != nil {
		return nil, err
	}
	return slices.Clone(t.columns), nil
}

func (m *Memory) RecordCount(name string) (int, error) {
	t, err := m.table(name)
	if err != nil {
		return 0, err
	}
	return len(t.records), nil
}

// Value returns the inline content of a column. Long values read as nil.
func (m *Memory) Value(name string, record int, column string) ([]byte, error) {
	c, err := m.cell(name, record, column)
	if err != nil || c.long {
		return nil, err
	}
	return c.data, nil
}

func (m *Memory) IsLongValue(name string, record int, column string) (bool, error) {
	c, err := m.cell(name, record, column)
	return c.long, err
}

func (m *Memory) LongValue(name string, record int, column string) ([]byte, error) {
	c, err := m.cell(name, record, column)
	if err != nil {
		return nil, err
	}
	if !c.long {
		return nil, nil
	}
	return c.data, nil
}

func (m *Memory) Close() error {
	m.closed = true
	return nil
}
