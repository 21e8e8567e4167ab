package merge

import (
	"github.com/pg-sharding/dsproxy/pkg/conn"
	"github.com/pg-sharding/dsproxy/router/route"
	"go.uber.org/multierr"
)

// MergedResult is a single forward cursor over the rows of one statement.
type MergedResult interface {
	Columns() []conn.Column
	Next() (bool, error)
	Values() ([]any, error)
	Close() error
}

// IteratorMergedResult concatenates query results in the given order.
type IteratorMergedResult struct {
	results []*route.QueryResult
	cur     int
	closed  bool
}

var _ MergedResult = &IteratorMergedResult{}

func NewIteratorMergedResult(results []*route.QueryResult) *IteratorMergedResult {
	return &IteratorMergedResult{results: results}
}

func (m *IteratorMergedResult) Columns() []conn.Column {
	if len(m.results) == 0 {
		return nil
	}
	return m.results[0].Columns
}

func (m *IteratorMergedResult) Next() (bool, error) {
	for m.cur < len(m.results) {
		rows := m.results[m.cur].Rows
		if rows.Next() {
			return true, nil
		}
		if err := rows.Err(); err != nil {
			return false, err
		}
		m.cur++
	}
	return false, nil
}

func (m *IteratorMergedResult) Values() ([]any, error) {
	if m.cur >= len(m.results) {
		return nil, errNoRow
	}
	return m.results[m.cur].Rows.Values()
}

// Close closes every underlying row set. Repeated calls are no-ops.
func (m *IteratorMergedResult) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	var err error
	for _, r := range m.results {
		err = multierr.Append(err, r.Rows.Close())
	}
	return err
}
