package parser_test

import (
	"testing"

	"github.com/pg-sharding/dsproxy/pkg/models/datanode"
	"github.com/pg-sharding/dsproxy/pkg/stmt"
	"github.com/pg-sharding/dsproxy/router/parser"
	"github.com/stretchr/testify/assert"
)

func TestClassifyControlStatements(t *testing.T) {
	assert := assert.New(t)

	type tcase struct {
		query     string
		kind      stmt.Kind
		cursor    string
		savepoint string
	}
	p := parser.NewQParser()
	for _, tt := range []tcase{
		{query: "", kind: 0},
		{query: "-- ping", kind: 0},
		{query: "BEGIN", kind: stmt.Begin},
		{query: "start transaction;", kind: stmt.Begin},
		{query: "COMMIT", kind: stmt.Commit},
		{query: "ROLLBACK", kind: stmt.Rollback},
		{query: "ROLLBACK TO SAVEPOINT sp1", kind: stmt.Rollback | stmt.Savepoint, savepoint: "sp1"},
		{query: "rollback work to sp2", kind: stmt.Rollback | stmt.Savepoint, savepoint: "sp2"},
		{query: "SAVEPOINT sp1", kind: stmt.Savepoint, savepoint: "sp1"},
		{query: "RELEASE SAVEPOINT sp1", kind: stmt.Commit | stmt.Savepoint, savepoint: "sp1"},
		{query: "SHOW search_path", kind: stmt.Show},
		{query: "RESET ALL", kind: stmt.Set},
		{query: "FETCH FORWARD 10 FROM c1", kind: stmt.Query | stmt.CursorFetch, cursor: "c1"},
		{query: "MOVE NEXT IN c1", kind: stmt.CursorMove, cursor: "c1"},
		{query: "CLOSE c1", kind: stmt.CursorClose, cursor: "c1"},
		{query: "CLOSE ALL", kind: stmt.CursorCloseAll},
		{query: "VACUUM", kind: 0},
	} {
		st, err := p.Parse(tt.query)
		assert.NoError(err, tt.query)
		assert.Equal(tt.kind, st.Kind, tt.query)
		assert.Equal(tt.cursor, st.CursorName, tt.query)
		assert.Equal(tt.savepoint, st.SavepointName, tt.query)
	}
}

func TestClassifySet(t *testing.T) {
	assert := assert.New(t)

	type tcase struct {
		query string
		exp   *stmt.Variable
	}
	p := parser.NewQParser()
	for _, tt := range []tcase{
		{query: "SET search_path TO public", exp: &stmt.Variable{Name: "search_path", Value: "public"}},
		{query: "SET statement_timeout = '5s';", exp: &stmt.Variable{Name: "statement_timeout", Value: "'5s'"}},
		{query: "set autocommit=0", exp: &stmt.Variable{Name: "autocommit", Value: "0"}},
		{query: "SET @@session.autocommit = 1", exp: &stmt.Variable{Name: "autocommit", Value: "1"}},
		{query: "SET SESSION sql_mode = 'ANSI'", exp: &stmt.Variable{Name: "sql_mode", Value: "'ANSI'"}},
		{query: "SET TIME ZONE 'UTC'", exp: &stmt.Variable{Name: "timezone", Value: "'UTC'"}},
		{query: "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE", exp: nil},
	} {
		st, err := p.Parse(tt.query)
		assert.NoError(err, tt.query)
		assert.Equal(stmt.Set, st.Kind, tt.query)
		assert.Equal(tt.exp, st.Variable, tt.query)
	}
}

func TestClassifyDDL(t *testing.T) {
	assert := assert.New(t)

	type tcase struct {
		query       string
		kind        stmt.Kind
		tables      []datanode.QualifiedTable
		schemas     []string
		ifNotExists bool
	}
	p := parser.NewQParser()
	for _, tt := range []tcase{
		{
			query:  "CREATE TABLE t_order (id int, uid int)",
			kind:   stmt.DDL | stmt.CreateTable,
			tables: []datanode.QualifiedTable{datanode.NewQualifiedTable("", "t_order")},
		},
		{
			query:       "create table if not exists sales.t_order (id int)",
			kind:        stmt.DDL | stmt.CreateTable,
			tables:      []datanode.QualifiedTable{datanode.NewQualifiedTable("sales", "t_order")},
			ifNotExists: true,
		},
		{
			query: "DROP TABLE IF EXISTS t_order, t_user CASCADE",
			kind:  stmt.DDL | stmt.DropTable,
			tables: []datanode.QualifiedTable{
				datanode.NewQualifiedTable("", "t_order"),
				datanode.NewQualifiedTable("", "t_user"),
			},
		},
		{
			query:  "TRUNCATE TABLE ONLY t_order",
			kind:   stmt.DDL | stmt.Truncate,
			tables: []datanode.QualifiedTable{datanode.NewQualifiedTable("", "t_order")},
		},
		{
			query:  "ALTER TABLE t_order ADD COLUMN note text",
			kind:   stmt.DDL,
			tables: []datanode.QualifiedTable{datanode.NewQualifiedTable("", "t_order")},
		},
		{
			query:  "CREATE UNIQUE INDEX t_order_idx ON t_order (id)",
			kind:   stmt.DDL,
			tables: []datanode.QualifiedTable{datanode.NewQualifiedTable("", "t_order")},
		},
		{
			query:       "CREATE SCHEMA IF NOT EXISTS sales",
			kind:        stmt.DDL | stmt.SchemaDDL,
			schemas:     []string{"sales"},
			ifNotExists: true,
		},
		{
			query:   "DROP SCHEMA a, b",
			kind:    stmt.DDL | stmt.SchemaDDL,
			schemas: []string{"a", "b"},
		},
	} {
		st, err := p.Parse(tt.query)
		assert.NoError(err, tt.query)
		assert.Equal(tt.kind, st.Kind, tt.query)
		assert.Equal(tt.tables, st.Tables, tt.query)
		assert.Equal(tt.schemas, st.Schemas, tt.query)
		assert.Equal(tt.ifNotExists, st.IfNotExists, tt.query)
	}
}

func TestClassifyDML(t *testing.T) {
	assert := assert.New(t)

	type tcase struct {
		query  string
		kind   stmt.Kind
		tables []string
	}
	p := parser.NewQParser()
	for _, tt := range []tcase{
		{query: "SELECT * FROM t_order WHERE id = 1", kind: stmt.Query, tables: []string{"t_order"}},
		{query: "SELECT 1", kind: stmt.Query},
		{query: "INSERT INTO t_order (id, uid) VALUES (1, 2)", kind: stmt.Insert, tables: []string{"t_order"}},
		{query: "UPDATE t_order SET uid = 3 WHERE id = 1", kind: stmt.Update, tables: []string{"t_order"}},
		{query: "DELETE FROM t_order WHERE id = 1", kind: stmt.Delete, tables: []string{"t_order"}},
		{
			query:  "WITH recent AS (SELECT * FROM t_order) SELECT * FROM recent",
			kind:   stmt.Query,
			tables: []string{"t_order"},
		},
		{
			query:  "SELECT * FROM t_order WHERE uid IN (SELECT id FROM t_user)",
			kind:   stmt.Query,
			tables: []string{"t_order", "t_user"},
		},
		{
			query:  "INSERT INTO `t_order` (id) VALUES (1) ON DUPLICATE KEY UPDATE id = id",
			kind:   stmt.Insert,
			tables: []string{"t_order"},
		},
		{
			query:  "REPLACE INTO t_user VALUES (1, 'bob')",
			kind:   stmt.Insert,
			tables: []string{"t_user"},
		},
	} {
		st, err := p.Parse(tt.query)
		assert.NoError(err, tt.query)
		assert.Equal(tt.kind, st.Kind, tt.query)

		var names []string
		for _, qt := range st.Tables {
			names = append(names, qt.TableName)
		}
		assert.ElementsMatch(tt.tables, names, tt.query)
	}
}

func TestClassifyCursorDeclare(t *testing.T) {
	assert := assert.New(t)

	st, err := parser.NewQParser().Parse("DECLARE c1 NO SCROLL CURSOR WITH HOLD FOR SELECT * FROM t_order ORDER BY id")
	assert.NoError(err)

	assert.Equal(stmt.CursorDeclare, st.Kind)
	assert.Equal("c1", st.CursorName)
	assert.Equal([]datanode.QualifiedTable{datanode.NewQualifiedTable("", "t_order")}, st.Tables)
}

func TestFederatedShape(t *testing.T) {
	assert := assert.New(t)
	p := parser.NewQParser()

	st, err := p.Parse("SELECT o.id, u.name AS uname FROM t_order o, t_user AS u WHERE o.uid = u.id AND o.id > 10 ORDER BY o.id DESC")
	assert.NoError(err)
	assert.NotNil(st.Federation)

	fq := st.Federation
	assert.Equal([]stmt.Relation{
		{Table: datanode.NewQualifiedTable("", "t_order"), Alias: "o"},
		{Table: datanode.NewQualifiedTable("", "t_user"), Alias: "u"},
	}, fq.Relations)
	assert.Equal([]stmt.Target{
		{Column: stmt.ColumnRef{Relation: "o", Column: "id"}},
		{Column: stmt.ColumnRef{Relation: "u", Column: "name"}, Alias: "uname"},
	}, fq.Targets)
	assert.Equal([]stmt.JoinCond{{
		Left:  stmt.ColumnRef{Relation: "o", Column: "uid"},
		Right: stmt.ColumnRef{Relation: "u", Column: "id"},
	}}, fq.Joins)
	assert.Equal([]stmt.SortKey{{Column: stmt.ColumnRef{Relation: "o", Column: "id"}, Desc: true}}, fq.OrderBy)
	assert.NotNil(fq.Where)

	for _, q := range []string{
		"SELECT * FROM t_order",
		"SELECT count(*) FROM t_order o, t_user u",
		"SELECT o.id FROM t_order o, t_user u LIMIT 1",
		"SELECT o.id FROM t_order o JOIN t_user u ON o.uid = u.id",
	} {
		st, err := p.Parse(q)
		assert.NoError(err, q)
		assert.Nil(st.Federation, q)
	}

	st, err = p.Parse("SELECT * FROM t_order, t_user")
	assert.NoError(err)
	assert.NotNil(st.Federation)
	assert.Nil(st.Federation.Targets)
	assert.Nil(st.Federation.Where)
}

func TestCommentHint(t *testing.T) {
	assert := assert.New(t)
	p := parser.NewQParser()

	st, err := p.Parse("/* ds: ds_1 */ CREATE TABLE t_new (id int)")
	assert.NoError(err)
	assert.Equal("ds_1", st.DataSourceHint)
	assert.True(st.IsCreateTable())

	st, err = p.Parse("SELECT 1 /* just a note */")
	assert.NoError(err)
	assert.Empty(st.DataSourceHint)
}

func TestSharedParserCaches(t *testing.T) {
	assert := assert.New(t)
	p := parser.NewSharedParser()

	first, err := p.Parse("SELECT * FROM t_order")
	assert.NoError(err)
	second, err := p.Parse("SELECT * FROM t_order")
	assert.NoError(err)
	assert.Same(first, second)
}
