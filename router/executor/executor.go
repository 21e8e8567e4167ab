package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pg-sharding/dsproxy/pkg/conn"
	"github.com/pg-sharding/dsproxy/pkg/dslog"
	"github.com/pg-sharding/dsproxy/pkg/models/dserror"
	"github.com/pg-sharding/dsproxy/pkg/stmt"
	"github.com/pg-sharding/dsproxy/pkg/txstatus"
	"github.com/pg-sharding/dsproxy/router/poolmgr"
	"github.com/pg-sharding/dsproxy/router/route"
	"github.com/pg-sharding/dsproxy/router/rule"
	"github.com/pg-sharding/dsproxy/router/session"
	"github.com/pg-sharding/dsproxy/router/statistics"
	"golang.org/x/sync/errgroup"
)

// prepareError marks a failure to create a statement handle.
type prepareError struct {
	dataSource string
	err        error
}

func (e *prepareError) Error() string {
	return fmt.Sprintf("failed to prepare statement on data source \"%s\": %v", e.dataSource, e.err)
}

func (e *prepareError) Unwrap() error {
	return e.err
}

// ProducesRows reports whether the statement returns a row set.
func ProducesRows(st *stmt.Statement) bool {
	return st != nil && st.Kind.Any(stmt.Query|stmt.CursorFetch|stmt.Show)
}

// Executor dispatches execution units of one session.
type Executor struct {
	sess  *session.ConnectionSession
	rules *rule.Rules
	stats *statistics.StatHolder
}

func NewExecutor(sess *session.ConnectionSession, rules *rule.Rules, stats *statistics.StatHolder) *Executor {
	return &Executor{
		sess:  sess,
		rules: rules,
		stats: stats,
	}
}

// Execute runs units and returns their results in submission order.
func (e *Executor) Execute(ctx context.Context, rc *route.RouteContext, units []route.ExecutionUnit, st *stmt.Statement) ([]route.ExecuteResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "execute")
	defer span.Finish()
	span.SetTag("session", e.sess.ID())
	span.SetTag("units", len(units))
	span.SetTag("kind", st.Kind.String())

	if err := e.CheckPrerequisites(st); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		if e.stats != nil {
			e.stats.RecordSince(statistics.Statement, e.sess.DatabaseName(), start)
		}
	}()

	if raw, ok := e.rules.RawExecutor(); ok && !e.sess.TransactionStatus().InTransaction() {
		dslog.Zero.Debug().
			Str("session", e.sess.ID()).
			Int("units", len(units)).
			Msg("executor: using raw execution")
		return raw.Execute(ctx, units, st)
	}

	results, err := e.executePooled(ctx, units, st)
	if err != nil {
		if sane, ok := e.saneResult(err, rc, st); ok {
			dslog.Zero.Debug().
				Str("session", e.sess.ID()).
				Err(err).
				Msg("executor: storage unit unavailable, answering with sane result")
			return sane, nil
		}
		span.SetTag("error", true)
		return nil, err
	}
	return results, nil
}

// CheckPrerequisites rejects DDL where the running transaction cannot hold it.
func (e *Executor) CheckPrerequisites(st *stmt.Statement) error {
	ts := e.sess.TransactionStatus()
	if !st.IsDDL() || !ts.InTransaction() {
		return nil
	}
	if ts.TransactionType() == txstatus.XA {
		return dserror.UnsupportedInTransaction("DDL in XA transaction")
	}
	if !e.sess.Dialect().TransactionalDDL() && !st.Kind.Any(stmt.CursorDeclare|stmt.CursorFetch|stmt.CursorMove|stmt.CursorClose|stmt.Truncate) {
		return dserror.UnsupportedInTransaction("DDL")
	}
	return nil
}

type group struct {
	dataSource string
	// unit indexes in submission order
	units []int
}

func groupUnits(units []route.ExecutionUnit) []*group {
	var groups []*group
	byDS := map[string]*group{}
	for i, u := range units {
		g, ok := byDS[u.DataSourceName]
		if !ok {
			g = &group{dataSource: u.DataSourceName}
			byDS[u.DataSourceName] = g
			groups = append(groups, g)
		}
		g.units = append(g.units, i)
	}
	return groups
}

func (e *Executor) executePooled(ctx context.Context, units []route.ExecutionUnit, st *stmt.Statement) ([]route.ExecuteResult, error) {
	results := make([]route.ExecuteResult, len(units))
	errs := make([]error, len(units))

	maxConn := e.rules.MaxConnectionsSizePerQuery()
	cm := e.sess.ConnectionManager()

	var eg errgroup.Group
	if limit := e.rules.ExecutorSize(); limit > 0 {
		eg.SetLimit(limit)
	}

	for _, g := range groupUnits(units) {
		n := min(len(g.units), maxConn)
		mode := poolmgr.MemoryStrictly
		if len(g.units) > maxConn {
			mode = poolmgr.ConnectionStrictly
		}

		conns, err := cm.Acquire(ctx, g.dataSource, 0, n, mode)
		if err != nil {
			for _, i := range g.units {
				errs[i] = err
			}
			continue
		}

		for k, c := range conns {
			var chunk []int
			for j := k; j < len(g.units); j += n {
				chunk = append(chunk, g.units[j])
			}
			eg.Go(func() error {
				for _, i := range chunk {
					results[i], errs[i] = e.executeUnit(ctx, c, units[i], st, mode)
				}
				return nil
			})
		}
	}
	_ = eg.Wait()

	for i, err := range errs {
		if err != nil {
			dslog.Zero.Error().
				Str("session", e.sess.ID()).
				Str("ds", units[i].DataSourceName).
				Err(err).
				Msg("executor: unit failed")
			return nil, err
		}
	}
	return results, nil
}

func (e *Executor) executeUnit(ctx context.Context, c conn.Conn, unit route.ExecutionUnit, st *stmt.Statement, mode poolmgr.ConnectionMode) (route.ExecuteResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "execute unit")
	defer span.Finish()
	span.SetTag("ds", unit.DataSourceName)

	start := time.Now()
	defer func() {
		if e.stats != nil {
			e.stats.RecordSince(statistics.DataSource, unit.DataSourceName, start)
		}
	}()

	dslog.Zero.Debug().
		Str("session", e.sess.ID()).
		Str("ds", unit.DataSourceName).
		Str("query", unit.SQL).
		Str("mode", mode.String()).
		Msg("executor: executing unit")

	s, err := c.Prepare(ctx, unit.SQL)
	if err != nil {
		return nil, &prepareError{dataSource: unit.DataSourceName, err: err}
	}
	e.sess.ConnectionManager().Add(s)

	return executeStmt(ctx, s, unit, st, mode == poolmgr.ConnectionStrictly)
}

// executeStmt runs a prepared statement. Rows are materialized when the
// connection is needed again before the caller consumes them.
func executeStmt(ctx context.Context, s conn.Stmt, unit route.ExecutionUnit, st *stmt.Statement, materialize bool) (route.ExecuteResult, error) {
	if ProducesRows(st) {
		rows, err := s.Query(ctx, unit.Params...)
		if err != nil {
			return nil, dserror.BackendDatabase(unit.DataSourceName, err)
		}
		if materialize {
			mr, err := route.Materialize(rows)
			if err != nil {
				return nil, dserror.BackendDatabase(unit.DataSourceName, err)
			}
			rows = mr
		}
		cols, err := rows.Columns()
		if err != nil {
			_ = rows.Close()
			return nil, dserror.BackendDatabase(unit.DataSourceName, err)
		}
		return &route.QueryResult{
			DataSourceName: unit.DataSourceName,
			Columns:        cols,
			Rows:           rows,
			Stmt:           s,
		}, nil
	}

	res, err := s.Exec(ctx, unit.Params...)
	if err != nil {
		return nil, dserror.BackendDatabase(unit.DataSourceName, err)
	}
	return &route.UpdateResult{
		DataSourceName: unit.DataSourceName,
		UpdateCount:    res.RowsAffected,
		GeneratedKeys:  res.GeneratedKeys,
		Stmt:           s,
	}, nil
}

// saneResult answers introspection statements with a placeholder when the
// storage unit could not be reached at all.
func (e *Executor) saneResult(err error, rc *route.RouteContext, st *stmt.Statement) ([]route.ExecuteResult, bool) {
	var pe *prepareError
	if !dserror.IsCode(err, dserror.DS_CONNECTION_ERROR) && !errors.As(err, &pe) {
		return nil, false
	}
	sane, ok := e.sess.Dialect().SaneResult(st)
	if !ok {
		return nil, false
	}

	ds := ""
	if rc != nil && !rc.IsEmpty() {
		ds = rc.Units()[0].DataSourceMapper.ActualName
	}

	if !sane.IsQuery {
		return []route.ExecuteResult{&route.UpdateResult{DataSourceName: ds, UpdateCount: sane.UpdateCount}}, true
	}
	cols := make([]conn.Column, 0, len(sane.Columns))
	for _, name := range sane.Columns {
		cols = append(cols, conn.Column{Name: name, TypeName: "TEXT"})
	}
	return []route.ExecuteResult{&route.QueryResult{
		DataSourceName: ds,
		Columns:        cols,
		Rows:           route.NewMemoryRows(cols, sane.Rows),
	}}, true
}
