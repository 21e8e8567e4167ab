package main

import (
	"context"
	"os"

	"github.com/pg-sharding/dsproxy/pkg/engine"
	"github.com/pg-sharding/dsproxy/router/parser"
	"github.com/pg-sharding/dsproxy/router/qrouter"
	"github.com/pg-sharding/dsproxy/router/rewrite"
	"github.com/spf13/cobra"
)

var routeCmd = &cobra.Command{
	Use:   "route \"SQL\"",
	Short: "print the routing plan and rewritten statements without executing them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		inst, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = inst.Close() }()

		sql := args[0]
		st, err := parser.NewQParser().Parse(sql)
		if err != nil {
			return err
		}

		rc, err := inst.Router().Route(ctx, st.Tables, st, qrouter.Hints{DataSource: st.DataSourceHint})
		if err != nil {
			return err
		}
		defer inst.Registry().Discard(rc.Registered()...)

		if err := printSlot(os.Stdout, engine.RoutePlanVirtualRelationScan(rc)); err != nil {
			return err
		}
		return printSlot(os.Stdout, engine.ExecutionUnitsVirtualRelationScan(rewrite.Rewrite(rc, sql, nil)))
	},
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "list logical tables stored in the metadata database",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		inst, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = inst.Close() }()

		tables, err := inst.QDB().ListLogicalTables(ctx)
		if err != nil {
			return err
		}
		return printSlot(os.Stdout, engine.LogicalTablesVirtualRelationScan(tables))
	},
}
