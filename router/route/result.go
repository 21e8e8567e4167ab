package route

import (
	"github.com/pg-sharding/dsproxy/pkg/conn"
)

// ExecuteResult is the outcome of one ExecutionUnit: *QueryResult or *UpdateResult.
type ExecuteResult interface {
	DataSource() string
	// Handle is the statement handle that produced the result, if any.
	Handle() conn.Stmt
}

type QueryResult struct {
	DataSourceName string
	Columns        []conn.Column
	Rows           conn.Rows
	Stmt           conn.Stmt
}

func (r *QueryResult) DataSource() string {
	return r.DataSourceName
}

func (r *QueryResult) Handle() conn.Stmt {
	return r.Stmt
}

type UpdateResult struct {
	DataSourceName string
	UpdateCount    int64
	GeneratedKeys  []any
	Stmt           conn.Stmt
}

func (r *UpdateResult) DataSource() string {
	return r.DataSourceName
}

func (r *UpdateResult) Handle() conn.Stmt {
	return r.Stmt
}

// MemoryRows is a fully materialized conn.Rows.
type MemoryRows struct {
	columns []conn.Column
	rows    [][]any
	pos     int
}

var _ conn.Rows = &MemoryRows{}

func NewMemoryRows(columns []conn.Column, rows [][]any) *MemoryRows {
	return &MemoryRows{columns: columns, rows: rows, pos: -1}
}

// Materialize drains rows into memory and closes them.
func Materialize(rows conn.Rows) (*MemoryRows, error) {
	defer func() { _ = rows.Close() }()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var data [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		data = append(data, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return NewMemoryRows(cols, data), nil
}

func (m *MemoryRows) Columns() ([]conn.Column, error) {
	return m.columns, nil
}

func (m *MemoryRows) Next() bool {
	if m.pos+1 >= len(m.rows) {
		m.pos = len(m.rows)
		return false
	}
	m.pos++
	return true
}

func (m *MemoryRows) Values() ([]any, error) {
	if m.pos < 0 || m.pos >= len(m.rows) {
		return nil, errNoRow
	}
	return m.rows[m.pos], nil
}

func (m *MemoryRows) Err() error {
	return nil
}

func (m *MemoryRows) Close() error {
	return nil
}
