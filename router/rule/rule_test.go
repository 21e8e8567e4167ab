package rule_test

import (
	"testing"

	"github.com/pg-sharding/dsproxy/pkg/config"
	"github.com/pg-sharding/dsproxy/pkg/models/datanode"
	"github.com/pg-sharding/dsproxy/router/rule"
	"github.com/stretchr/testify/assert"
)

func testConfig() *config.Proxy {
	return &config.Proxy{
		DatabaseName: "sharding_db",
		DataSources: []config.DataSourceCfg{
			{Name: "ds_0"},
			{Name: "ds_1"},
		},
		DefaultDataSource: "ds_1",
		StaticTables: []config.StaticTableCfg{
			{Name: "t_order", DataNodes: []string{"ds_0.t_order_0", "ds_1.t_order_1"}, Accumulate: true},
			{Schema: "public", Name: "t_dict", DataNodes: []string{"ds_0.t_dict"}, Accumulate: true},
		},
		Props: config.PropsCfg{MaxConnectionsSizePerQuery: 3},
	}
}

func TestNewRules(t *testing.T) {
	assert := assert.New(t)

	r, err := rule.NewRules(testConfig(), "public")
	assert.NoError(err)

	assert.Equal("sharding_db", r.DatabaseName())
	assert.Equal([]string{"ds_0", "ds_1"}, r.DataSourceNames())
	assert.Equal("ds_1", r.DefaultDataSource())
	assert.Equal(3, r.MaxConnectionsSizePerQuery())

	st, ok := r.StaticTable(datanode.NewQualifiedTable("", "T_ORDER"))
	assert.True(ok)
	assert.Len(st.Nodes, 2)
	assert.True(r.IsStatic(datanode.NewQualifiedTable("public", "t_dict")))
	assert.False(r.IsStatic(datanode.NewQualifiedTable("", "t_user")))

	_, ok = r.RawExecutor()
	assert.False(ok)
}

func TestNeedAccumulate(t *testing.T) {
	assert := assert.New(t)

	r, err := rule.NewRules(testConfig(), "public")
	assert.NoError(err)

	assert.True(r.NeedAccumulate([]datanode.QualifiedTable{datanode.NewQualifiedTable("", "t_order")}))
	// single node tables never need accumulation
	assert.False(r.NeedAccumulate([]datanode.QualifiedTable{datanode.NewQualifiedTable("", "t_dict")}))
	assert.False(r.NeedAccumulate([]datanode.QualifiedTable{datanode.NewQualifiedTable("", "t_user")}))
}

func TestIsComplete(t *testing.T) {
	assert := assert.New(t)

	r, err := rule.NewRules(testConfig(), "public")
	assert.NoError(err)

	assert.True(r.IsComplete([]string{"ds_0", "ds_1"}))
	assert.False(r.IsComplete([]string{"ds_0"}))
}

func TestNewRulesBadNode(t *testing.T) {
	cfg := testConfig()
	cfg.StaticTables[0].DataNodes = []string{"broken"}

	_, err := rule.NewRules(cfg, "public")
	assert.Error(t, err)
}
