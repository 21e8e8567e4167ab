package qdb_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pg-sharding/dsproxy/pkg/config"
	"github.com/pg-sharding/dsproxy/qdb"
	"github.com/stretchr/testify/assert"
)

func reg(ds, schema, table string) qdb.NodeRegistration {
	return qdb.NodeRegistration{
		Schema: schema,
		Table:  table,
		Node:   &qdb.DataNode{DataSource: ds, Schema: schema, Table: table},
	}
}

func TestMemQDBAddGetDrop(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()

	memqdb, err := qdb.NewMemQDB("")
	assert.NoError(err)

	assert.NoError(memqdb.AddDataNodes(ctx,
		reg("ds_0", "public", "t_order"),
		reg("ds_1", "public", "t_order"),
		reg("ds_0", "public", "t_order"),
		reg("ds_1", "public", "t_user"),
	))

	tbl, err := memqdb.GetLogicalTable(ctx, "PUBLIC", "T_ORDER")
	assert.NoError(err)
	assert.Len(tbl.DataNodes, 2)

	all, err := memqdb.ListLogicalTables(ctx)
	assert.NoError(err)
	assert.Len(all, 2)
	assert.Equal("t_order", all[0].Name)

	assert.NoError(memqdb.DropLogicalTable(ctx, "public", "t_order"))
	_, err = memqdb.GetLogicalTable(ctx, "public", "t_order")
	assert.Error(err)
}

func TestMemQDBDumpRestore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()

	backup := filepath.Join(t.TempDir(), "memqdb.json")

	memqdb, err := qdb.RestoreQDB(backup)
	assert.NoError(err)
	assert.NoError(memqdb.AddDataNodes(ctx, reg("ds_0", "", "t_order")))

	restored, err := qdb.RestoreQDB(backup)
	assert.NoError(err)

	tbl, err := restored.GetLogicalTable(ctx, "", "t_order")
	assert.NoError(err)
	assert.Equal([]*qdb.DataNode{{DataSource: "ds_0", Table: "t_order"}}, tbl.DataNodes)
}

func TestMemQDBReturnsCopies(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()

	memqdb, _ := qdb.NewMemQDB("")
	assert.NoError(memqdb.AddDataNodes(ctx, reg("ds_0", "", "t")))

	tbl, _ := memqdb.GetLogicalTable(ctx, "", "t")
	tbl.DataNodes[0].DataSource = "mutated"

	again, _ := memqdb.GetLogicalTable(ctx, "", "t")
	assert.Equal("ds_0", again.DataNodes[0].DataSource)
}

// must run with -race
func TestMemqdbRacing(t *testing.T) {
	assert := assert.New(t)

	memqdb, err := qdb.NewMemQDB("")
	assert.NoError(err)

	var wg sync.WaitGroup
	ctx := context.TODO()

	methods := []func(){
		func() { _ = memqdb.AddDataNodes(ctx, reg("ds_0", "", "t")) },
		func() { _, _ = memqdb.GetLogicalTable(ctx, "", "t") },
		func() { _, _ = memqdb.ListLogicalTables(ctx) },
		func() { _ = memqdb.DropLogicalTable(ctx, "", "t") },
	}
	for i := 0; i < 10; i++ {
		for _, m := range methods {
			wg.Add(1)
			go func(m func()) {
				m()
				wg.Done()
			}(m)
		}
		wg.Wait()
	}
}

func TestNewQDB(t *testing.T) {
	assert := assert.New(t)

	_, err := qdb.NewQDB(configQdb("bogus"))
	assert.Error(err)

	db, err := qdb.NewQDB(configQdb("mem"))
	assert.NoError(err)
	assert.IsType(&qdb.MemQDB{}, db)
}

func configQdb(tp string) config.QdbCfg {
	return config.QdbCfg{Type: tp}
}
