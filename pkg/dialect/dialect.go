package dialect

import (
	"fmt"
	"strings"

	"github.com/pg-sharding/dsproxy/pkg/stmt"
)

const (
	PostgreSQL = "PostgreSQL"
	OpenGauss  = "openGauss"
	MySQL      = "MySQL"
)

// SaneResult is a placeholder answer for a statement whose storage unit is
// unreachable. Columns/Rows describe a query result; otherwise UpdateCount applies.
type SaneResult struct {
	Columns     []string
	Rows        [][]any
	UpdateCount int64
	IsQuery     bool
}

// Dialect captures the per-database behaviour the proxy core depends on.
type Dialect interface {
	Name() string
	DefaultSchema() string
	IsSystemSchema(schema string) bool

	// TransactionalDDL is false when DDL inside an explicit transaction is
	// rejected by the proxy.
	TransactionalDDL() bool
	// ImplicitCommitOnDDL is true when the backend commits an open
	// transaction before executing DDL.
	ImplicitCommitOnDDL() bool

	SetVariableSQL(name, value string) string
	IsolationLevelSQL(level string) string
	ReadOnlySQL(readOnly bool) string

	TranslateError(err error) error
	SaneResult(st *stmt.Statement) (*SaneResult, bool)
}

type base struct {
	name          string
	defaultSchema string
	systemSchemas map[string]struct{}
}

func (b *base) Name() string {
	return b.name
}

func (b *base) DefaultSchema() string {
	return b.defaultSchema
}

func (b *base) IsSystemSchema(schema string) bool {
	_, ok := b.systemSchemas[strings.ToLower(schema)]
	return ok
}

func schemaSet(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

// selectOneSaneResult answers a table-less SELECT with one row of "1" per projection.
func selectOneSaneResult(st *stmt.Statement) (*SaneResult, bool) {
	if st == nil || !st.Kind.Has(stmt.Query) || len(st.Tables) != 0 || st.IsCursorControl() {
		return nil, false
	}
	n := 1
	cols := []string{"1"}
	if len(st.Projections) != 0 {
		n = 0
		cols = cols[:0]
		for _, p := range st.Projections {
			if p.Derived {
				continue
			}
			cols = append(cols, p.Name)
			n++
		}
	}
	row := make([]any, n)
	for i := range row {
		row[i] = "1"
	}
	return &SaneResult{
		Columns: cols,
		Rows:    [][]any{row},
		IsQuery: true,
	}, true
}

// Lookup returns the dialect registered under name, case-insensitively.
func Lookup(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "", "postgresql", "postgres":
		return NewPostgreSQL(), nil
	case "opengauss":
		return NewOpenGauss(), nil
	case "mysql":
		return NewMySQL(), nil
	}
	return nil, fmt.Errorf("unknown dialect \"%s\"", name)
}
