package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pg-sharding/dsproxy/pkg/dslog"
	"github.com/pg-sharding/dsproxy/router/connector"
	"github.com/pg-sharding/dsproxy/router/instance"
	"github.com/pg-sharding/dsproxy/router/parser"
	"github.com/pg-sharding/dsproxy/router/session"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var execCmd = &cobra.Command{
	Use:   "exec \"SQL\" [\"SQL\"...]",
	Short: "execute statements in one session and print their results",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := context.Background()
		inst, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		sess := inst.NewSession()
		defer func() {
			err = multierr.Append(err, sess.Close())
			err = multierr.Append(err, inst.Close())
		}()

		p := parser.NewSharedParser()
		for _, sql := range args {
			if err := execStatement(ctx, os.Stdout, inst, sess, p, sql); err != nil {
				return err
			}
		}
		return nil
	},
}

func execStatement(ctx context.Context, w io.Writer, inst *instance.Instance, sess *session.ConnectionSession, p parser.Parser, sql string) (err error) {
	st, err := p.Parse(sql)
	if err != nil {
		return err
	}
	c, err := connector.NewConnector(inst, sess, st, sql, nil)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, c.Close())
	}()

	header, err := c.Execute(ctx)
	if err != nil {
		return err
	}
	dslog.Zero.Debug().Str("state", c.State().String()).Msg("statement executed")

	switch h := header.(type) {
	case *connector.UpdateHeader:
		_, err := fmt.Fprintf(w, "OK, %d rows affected\n", h.UpdateCount)
		return err
	case *connector.QueryHeader:
		names := make([]string, 0, len(h.Columns))
		for _, col := range h.Columns {
			names = append(names, col.Name)
		}
		var rows [][]string
		for {
			ok, err := c.Next()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			cells, err := c.RowData()
			if err != nil {
				return err
			}
			row := make([]string, len(cells))
			for i, cell := range cells {
				row[i] = formatCell(cell.Data)
			}
			rows = append(rows, row)
		}
		return printTable(w, names, rows)
	}
	return nil
}
