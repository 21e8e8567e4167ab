package federation_test

import (
	"context"
	"testing"

	"github.com/pg-sharding/dsproxy/pkg/config"
	"github.com/pg-sharding/dsproxy/pkg/conn"
	"github.com/pg-sharding/dsproxy/pkg/models/datanode"
	"github.com/pg-sharding/dsproxy/pkg/stmt"
	"github.com/pg-sharding/dsproxy/qdb"
	"github.com/pg-sharding/dsproxy/router/federation"
	"github.com/pg-sharding/dsproxy/router/qrouter"
	"github.com/pg-sharding/dsproxy/router/registry"
	"github.com/pg-sharding/dsproxy/router/route"
	"github.com/pg-sharding/dsproxy/router/rule"
	"github.com/pg-sharding/lyx/lyx"
	"github.com/stretchr/testify/assert"
)

type fakeExecutor struct {
	data map[string]*route.QueryResult
}

func (f *fakeExecutor) Execute(_ context.Context, _ *route.RouteContext, units []route.ExecutionUnit, _ *stmt.Statement) ([]route.ExecuteResult, error) {
	var ret []route.ExecuteResult
	for _, u := range units {
		ret = append(ret, f.data[u.DataSourceName+":"+u.SQL])
	}
	return ret, nil
}

func result(cols []conn.Column, rows ...[]any) *route.QueryResult {
	return &route.QueryResult{Columns: cols, Rows: route.NewMemoryRows(cols, rows)}
}

func prepare(t *testing.T, federation bool) (*rule.Rules, *qrouter.Chain) {
	t.Helper()
	rules, err := rule.NewRules(&config.Proxy{
		DataSources: []config.DataSourceCfg{{Name: "ds_0"}, {Name: "ds_1"}},
		StaticTables: []config.StaticTableCfg{
			{Name: "t_order", DataNodes: []string{"ds_0.t_order_0", "ds_1.t_order_1"}, Accumulate: true},
		},
		Props: config.PropsCfg{SQLFederationEnabled: federation},
	}, "public")
	assert.NoError(t, err)

	db, err := qdb.NewMemQDB("")
	assert.NoError(t, err)
	reg := registry.New(db, rules.DataSourceNames(), "public")
	reg.RegisterIfAbsent(datanode.NewQualifiedTable("", "t_user"), datanode.NewDataNode("ds_1", "", "t_user"))
	reg.RegisterIfAbsent(datanode.NewQualifiedTable("", "t_item"), datanode.NewDataNode("ds_1", "", "t_item"))

	return rules, qrouter.NewChain(qrouter.NewStaticRouter(rules), qrouter.NewTableRouter(reg, rules))
}

func joinQuery(left, right string) *stmt.Statement {
	return &stmt.Statement{
		Kind: stmt.Query,
		Federation: &stmt.FederatedQuery{
			Relations: []stmt.Relation{
				{Table: datanode.NewQualifiedTable("", left), Alias: "o"},
				{Table: datanode.NewQualifiedTable("", right), Alias: "u"},
			},
			Joins: []stmt.JoinCond{{
				Left:  stmt.ColumnRef{Relation: "o", Column: "user_id"},
				Right: stmt.ColumnRef{Relation: "u", Column: "id"},
			}},
			Where: &lyx.AExprOp{Op: ">", Left: &lyx.ColumnRef{TableAlias: "o", ColName: "id"}, Right: &lyx.AExprIConst{Value: 100}},
			Targets: []stmt.Target{
				{Column: stmt.ColumnRef{Relation: "o", Column: "id"}},
				{Column: stmt.ColumnRef{Relation: "u", Column: "name"}},
			},
			OrderBy: []stmt.SortKey{{Column: stmt.ColumnRef{Relation: "o", Column: "id"}}},
		},
	}
}

func TestDecide(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()

	type tcase struct {
		name      string
		enabled   bool
		st        *stmt.Statement
		federated bool
	}

	for _, tt := range []tcase{
		{name: "disabled", enabled: false, st: joinQuery("t_order", "t_user")},
		{name: "static join", enabled: true, st: joinQuery("t_order", "t_user"), federated: true},
		{name: "same data source", enabled: true, st: joinQuery("t_item", "t_user")},
		{name: "no federation shape", enabled: true, st: &stmt.Statement{Kind: stmt.Query}},
	} {
		rules, chain := prepare(t, tt.enabled)
		_, federated, err := federation.Decide(ctx, tt.st, rules, chain)
		assert.NoError(err, tt.name)
		assert.Equal(tt.federated, federated, tt.name)
	}
}

func TestEngineExecute(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()

	rules, chain := prepare(t, true)
	st := joinQuery("t_order", "t_user")
	plan, federated, err := federation.Decide(ctx, st, rules, chain)
	assert.NoError(err)
	assert.True(federated)

	orderCols := []conn.Column{{Name: "id", TypeName: "INT8"}, {Name: "user_id", TypeName: "INT8"}}
	userCols := []conn.Column{{Name: "id", TypeName: "INT8"}, {Name: "name", TypeName: "TEXT"}}
	ex := &fakeExecutor{data: map[string]*route.QueryResult{
		"ds_0:SELECT * FROM t_order_0": result(orderCols, []any{int64(104), int64(1)}, []any{int64(100), int64(2)}),
		"ds_1:SELECT * FROM t_order_1": result(orderCols, []any{int64(101), int64(2)}, []any{int64(103), int64(9)}),
		"ds_1:SELECT * FROM t_user":    result(userCols, []any{int64(1), "alice"}, []any{int64(2), "bob"}),
	}}

	fe := federation.NewEngine(ex)
	qr, err := fe.Execute(ctx, plan)
	assert.NoError(err)
	assert.Equal([]conn.Column{{Name: "id", TypeName: "INT8"}, {Name: "name", TypeName: "TEXT"}}, qr.Columns)

	var got [][]any
	for qr.Rows.Next() {
		vals, err := qr.Rows.Values()
		assert.NoError(err)
		got = append(got, vals)
	}
	assert.Equal([][]any{
		{int64(101), "bob"},
		{int64(104), "alice"},
	}, got)

	assert.NoError(fe.Close())
	assert.NoError(fe.Close())
}
