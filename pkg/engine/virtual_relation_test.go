package engine_test

import (
	"testing"
	"time"

	"github.com/pg-sharding/dsproxy/pkg/engine"
	"github.com/pg-sharding/dsproxy/pkg/models/datanode"
	"github.com/pg-sharding/dsproxy/qdb"
	"github.com/pg-sharding/dsproxy/router/route"
	"github.com/pg-sharding/dsproxy/router/statistics"
	"github.com/stretchr/testify/assert"
)

func rowsOf(raw [][][]byte) [][]string {
	ret := make([][]string, 0, len(raw))
	for _, r := range raw {
		row := make([]string, 0, len(r))
		for _, v := range r {
			row = append(row, string(v))
		}
		ret = append(ret, row)
	}
	return ret
}

func TestRoutePlanVirtualRelationScan(t *testing.T) {
	assert := assert.New(t)

	rc := route.NewRouteContext()
	rc.AddTable("t_order", datanode.NewDataNode("ds_0", "", "t_order_0"))
	rc.AddDataSource("ds_1")

	tts := engine.RoutePlanVirtualRelationScan(rc)
	assert.Equal([]string{"data source", "logical table", "actual table"}, tts.ColumnNames())
	assert.Equal([][]string{
		{"ds_0", "t_order", "t_order_0"},
		{"ds_1", "", ""},
	}, rowsOf(tts.Raw))

	units := engine.ExecutionUnitsVirtualRelationScan([]route.ExecutionUnit{{DataSourceName: "ds_0", SQL: "SELECT 1"}})
	assert.Equal([][]string{{"ds_0", "SELECT 1"}}, rowsOf(units.Raw))
}

func TestLogicalTablesVirtualRelationScan(t *testing.T) {
	assert := assert.New(t)

	tts := engine.LogicalTablesVirtualRelationScan([]*qdb.LogicalTable{
		{
			Schema: "public",
			Name:   "t_user",
			DataNodes: []*qdb.DataNode{
				{DataSource: "ds_0", Schema: "public", Table: "t_user"},
			},
		},
	})
	assert.Equal([][]string{{"public", "t_user", "ds_0.public.t_user"}}, rowsOf(tts.Raw))
}

func TestStatisticsVirtualRelationScan(t *testing.T) {
	assert := assert.New(t)

	h := statistics.NewStatHolder([]float64{0.5})
	h.Record(statistics.DataSource, "ds_0", 2*time.Millisecond)

	tts := engine.StatisticsVirtualRelationScan(h)
	assert.Equal([]string{"data source", "count", "quantile_0.50"}, tts.ColumnNames())
	assert.Equal([][]string{{"ds_0", "1", "2.00ms"}}, rowsOf(tts.Raw))
}
