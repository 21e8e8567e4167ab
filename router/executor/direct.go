package executor

import (
	"context"
	"fmt"

	"github.com/pg-sharding/dsproxy/pkg/dslog"
	"github.com/pg-sharding/dsproxy/pkg/models/dserror"
	"github.com/pg-sharding/dsproxy/pkg/stmt"
	"github.com/pg-sharding/dsproxy/router/poolmgr"
	"github.com/pg-sharding/dsproxy/router/route"
	"github.com/pg-sharding/dsproxy/router/rule"
	"go.uber.org/multierr"
)

// DirectExecutor runs every unit on a dedicated connection that is closed
// right after the unit completes. Row sets are materialized.
type DirectExecutor struct {
	sources poolmgr.DataSourceProvider
}

var _ rule.RawExecutor = &DirectExecutor{}

func NewDirectExecutor(sources poolmgr.DataSourceProvider) *DirectExecutor {
	return &DirectExecutor{sources: sources}
}

func (d *DirectExecutor) Execute(ctx context.Context, units []route.ExecutionUnit, st *stmt.Statement) ([]route.ExecuteResult, error) {
	results := make([]route.ExecuteResult, 0, len(units))
	for _, unit := range units {
		res, err := d.executeUnit(ctx, unit, st)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (d *DirectExecutor) executeUnit(ctx context.Context, unit route.ExecutionUnit, st *stmt.Statement) (ret route.ExecuteResult, err error) {
	src, ok := d.sources.DataSource(unit.DataSourceName)
	if !ok {
		return nil, dserror.ConnectionAcquisition(unit.DataSourceName, fmt.Errorf("data source is not registered"))
	}
	c, err := src.Connect(ctx)
	if err != nil {
		return nil, dserror.ConnectionAcquisition(unit.DataSourceName, err)
	}
	defer func() {
		err = multierr.Append(err, c.Close())
	}()

	dslog.Zero.Debug().
		Str("ds", unit.DataSourceName).
		Str("query", unit.SQL).
		Msg("direct executor: executing unit")

	s, err := c.Prepare(ctx, unit.SQL)
	if err != nil {
		return nil, &prepareError{dataSource: unit.DataSourceName, err: err}
	}
	defer func() {
		err = multierr.Append(err, s.Close())
	}()

	res, err := executeStmt(ctx, s, unit, st, true)
	if err != nil {
		return nil, err
	}
	switch r := res.(type) {
	case *route.QueryResult:
		r.Stmt = nil
	case *route.UpdateResult:
		r.Stmt = nil
	}
	return res, nil
}
