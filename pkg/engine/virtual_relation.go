package engine

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/pg-sharding/dsproxy/pkg/dslog"
	"github.com/pg-sharding/dsproxy/pkg/tupleslot"
	"github.com/pg-sharding/dsproxy/qdb"
	"github.com/pg-sharding/dsproxy/router/route"
	"github.com/pg-sharding/dsproxy/router/statistics"
)

func GetVPHeader(stmts ...string) []pgproto3.FieldDescription {
	var desc []pgproto3.FieldDescription
	for _, stmt := range stmts {
		desc = append(desc, TextOidFD(stmt))
	}
	return desc
}

// RoutePlanVirtualRelationScan lists every table mapping of a routing plan.
// Units without tables are listed with empty table names.
func RoutePlanVirtualRelationScan(rc *route.RouteContext) *tupleslot.TupleTableSlot {
	tts := &tupleslot.TupleTableSlot{
		Desc: GetVPHeader("data source", "logical table", "actual table"),
	}

	for _, u := range rc.Units() {
		if len(u.TableMappers) == 0 {
			tts.WriteDataRow(u.DataSourceMapper.ActualName, "", "")
			continue
		}
		for _, m := range u.TableMappers {
			tts.WriteDataRow(u.DataSourceMapper.ActualName, m.LogicName, m.ActualName)
		}
	}
	return tts
}

func ExecutionUnitsVirtualRelationScan(units []route.ExecutionUnit) *tupleslot.TupleTableSlot {
	tts := &tupleslot.TupleTableSlot{
		Desc: GetVPHeader("data source", "sql"),
	}
	for _, u := range units {
		tts.WriteDataRow(u.DataSourceName, u.SQL)
	}
	return tts
}

func LogicalTablesVirtualRelationScan(tables []*qdb.LogicalTable) *tupleslot.TupleTableSlot {
	tts := &tupleslot.TupleTableSlot{
		Desc: GetVPHeader("schema", "table", "data nodes"),
	}

	dslog.Zero.Debug().Int("tables", len(tables)).Msg("listing logical tables")

	for _, t := range tables {
		nodes := make([]string, 0, len(t.DataNodes))
		for _, dn := range t.DataNodes {
			nodes = append(nodes, fmt.Sprintf("%s.%s.%s", dn.DataSource, dn.Schema, dn.Table))
		}
		tts.WriteDataRow(t.Schema, t.Name, strings.Join(nodes, ","))
	}
	return tts
}

// StatisticsVirtualRelationScan reports execution time quantiles per data source.
func StatisticsVirtualRelationScan(h *statistics.StatHolder) *tupleslot.TupleTableSlot {
	header := []string{"data source", "count"}
	for _, q := range h.Quantiles() {
		header = append(header, fmt.Sprintf("quantile_%.2f", q))
	}
	tts := &tupleslot.TupleTableSlot{
		Desc: GetVPHeader(header...),
	}

	for _, ds := range h.Keys(statistics.DataSource) {
		row := []string{ds, fmt.Sprintf("%d", h.Count(statistics.DataSource, ds))}
		for _, q := range h.Quantiles() {
			row = append(row, fmt.Sprintf("%.2fms", h.GetTimeQuantile(statistics.DataSource, ds, q)))
		}
		tts.WriteDataRow(row...)
	}
	return tts
}
