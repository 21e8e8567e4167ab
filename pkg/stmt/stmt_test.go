package stmt_test

import (
	"testing"

	"github.com/pg-sharding/dsproxy/pkg/stmt"
	"github.com/stretchr/testify/assert"
)

func TestKindTags(t *testing.T) {
	assert := assert.New(t)

	k := stmt.DDL | stmt.CreateTable
	assert.True(k.Has(stmt.CreateTable))
	assert.True(k.Has(stmt.DDL | stmt.CreateTable))
	assert.False(k.Has(stmt.DDL | stmt.DropTable))
	assert.True(k.Any(stmt.DropTable | stmt.CreateTable))
	assert.False(k.Has(0))

	assert.Equal("DDL|CREATE_TABLE", k.String())
	assert.Equal("UNKNOWN", stmt.Kind(0).String())
}

func TestStatementPredicates(t *testing.T) {
	assert := assert.New(t)

	var nilStmt *stmt.Statement
	assert.False(nilStmt.IsDDL())
	assert.False(nilStmt.IsWriteDML())

	upd := &stmt.Statement{Kind: stmt.Update}
	assert.True(upd.IsWriteDML())
	assert.False(upd.IsQuery())

	fetch := &stmt.Statement{Kind: stmt.Query | stmt.CursorFetch, CursorName: "c"}
	assert.True(fetch.IsCursorControl())
	assert.True(fetch.IsQuery())
}

func TestVisibleColumnCount(t *testing.T) {
	assert := assert.New(t)

	plain := &stmt.Statement{Kind: stmt.Query}
	assert.Equal(3, plain.VisibleColumnCount(3))

	derived := &stmt.Statement{
		Kind: stmt.Query,
		Projections: []stmt.Projection{
			{Name: "id"},
			{Name: "name"},
			{Name: "ORDER_BY_DERIVED_0", Derived: true},
		},
	}
	assert.Equal(2, derived.VisibleColumnCount(3))
	assert.Equal(1, derived.VisibleColumnCount(1))
}
