package stmt

import (
	"github.com/pg-sharding/dsproxy/pkg/models/datanode"
	"github.com/pg-sharding/lyx/lyx"
)

// Projection is one entry of the client-visible select list.
// Derived columns are appended by rewriting and hidden from the client.
type Projection struct {
	Name    string
	Derived bool
}

type Variable struct {
	Name  string
	Value string
}

type ColumnRef struct {
	Relation string
	Column   string
}

func (c ColumnRef) String() string {
	if c.Relation == "" {
		return c.Column
	}
	return c.Relation + "." + c.Column
}

type Relation struct {
	Table datanode.QualifiedTable
	Alias string
}

// Name is how columns of the relation are qualified.
func (r Relation) Name() string {
	if r.Alias != "" {
		return r.Alias
	}
	return r.Table.TableName
}

type JoinCond struct {
	Left  ColumnRef
	Right ColumnRef
}

type Target struct {
	Column ColumnRef
	Alias  string
}

type SortKey struct {
	Column ColumnRef
	Desc   bool
}

// FederatedQuery is the relational shape a statement takes when it must be
// evaluated in process over per-target row streams.
type FederatedQuery struct {
	Relations []Relation
	Joins     []JoinCond
	Where     lyx.Node
	Targets   []Target
	OrderBy   []SortKey
}

// Statement is a parsed statement with its capability tags.
type Statement struct {
	Kind   Kind
	Tables []datanode.QualifiedTable

	// Schemas is set for schema-level DDL.
	Schemas []string

	CursorName    string
	SavepointName string
	IfNotExists   bool
	Variable      *Variable

	// DataSourceHint comes from a leading comment option and places tables
	// that are not mapped yet.
	DataSourceHint string

	// Projections is nil when the visible projection equals the physical one.
	Projections []Projection
	Federation  *FederatedQuery
}

func (s *Statement) IsDDL() bool {
	return s != nil && s.Kind.Any(DDL)
}

func (s *Statement) IsWriteDML() bool {
	return s != nil && s.Kind.Any(WriteDML)
}

func (s *Statement) IsQuery() bool {
	return s != nil && s.Kind.Any(Query)
}

func (s *Statement) IsCursorControl() bool {
	return s != nil && s.Kind.Any(CursorControl)
}

func (s *Statement) IsCreateTable() bool {
	return s != nil && s.Kind.Has(CreateTable)
}

// IsSchemaDDL is CREATE/ALTER/DROP SCHEMA, which targets every data source.
func (s *Statement) IsSchemaDDL() bool {
	return s != nil && s.Kind.Has(SchemaDDL)
}

// VisibleColumnCount returns how many leading physical columns the client sees,
// or physical when no projection override exists.
func (s *Statement) VisibleColumnCount(physical int) int {
	if s == nil || s.Projections == nil {
		return physical
	}
	n := 0
	for _, p := range s.Projections {
		if !p.Derived {
			n++
		}
	}
	if n > physical {
		return physical
	}
	return n
}
