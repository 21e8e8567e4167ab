package connector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pg-sharding/dsproxy/pkg/conn"
	"github.com/pg-sharding/dsproxy/pkg/dslog"
	"github.com/pg-sharding/dsproxy/pkg/models/datanode"
	"github.com/pg-sharding/dsproxy/pkg/models/dserror"
	"github.com/pg-sharding/dsproxy/pkg/stmt"
	"github.com/pg-sharding/dsproxy/router/executor"
	"github.com/pg-sharding/dsproxy/router/federation"
	"github.com/pg-sharding/dsproxy/router/instance"
	"github.com/pg-sharding/dsproxy/router/merge"
	"github.com/pg-sharding/dsproxy/router/poolmgr"
	"github.com/pg-sharding/dsproxy/router/qrouter"
	"github.com/pg-sharding/dsproxy/router/rewrite"
	"github.com/pg-sharding/dsproxy/router/route"
	"github.com/pg-sharding/dsproxy/router/session"
	"github.com/pg-sharding/dsproxy/router/txn"
	"go.uber.org/multierr"
)

// Connector runs one statement of a session: it routes, executes and
// reconciles the physical results into a single response.
type Connector struct {
	inst   *instance.Instance
	sess   *session.ConnectionSession
	st     *stmt.Statement
	sql    string
	params []any

	// statement the cursor of st was declared with
	cursorSt *stmt.Statement

	ex  *executor.Executor
	txm *txn.Manager

	state   State
	// data sources the statement was routed to
	targets []string
	results []route.ExecuteResult
	merged  merge.MergedResult
	fed     *federation.Engine
	visible int
	// results back a declared cursor and outlive the statement
	held    bool
	closed  bool
}

// NewConnector checks that the logical database can serve st and binds
// cursor statements to their declaration.
func NewConnector(inst *instance.Instance, sess *session.ConnectionSession, st *stmt.Statement, sql string, params []any) (*Connector, error) {
	if !systemSchemasOnly(inst, st) {
		available := inst.AvailableDataSources()
		if len(available) == 0 {
			return nil, dserror.EmptyStorageUnit(sess.DatabaseName())
		}
		if !inst.Rules().IsComplete(available) {
			return nil, dserror.IncompleteRule(sess.DatabaseName())
		}
	}

	c := &Connector{
		inst:   inst,
		sess:   sess,
		st:     st,
		sql:    sql,
		params: params,
		ex:     executor.NewExecutor(sess, inst.Rules(), inst.Stats()),
		txm:    txn.NewManager(sess),
		state:  Created,
	}
	if err := c.prepareCursor(); err != nil {
		return nil, err
	}
	return c, nil
}

func systemSchemasOnly(inst *instance.Instance, st *stmt.Statement) bool {
	d := inst.Dialect()
	if len(st.Tables) == 0 && len(st.Schemas) == 0 {
		return false
	}
	for _, t := range st.Tables {
		if t.SchemaName == "" || !d.IsSystemSchema(t.SchemaName) {
			return false
		}
	}
	for _, s := range st.Schemas {
		if !d.IsSystemSchema(s) {
			return false
		}
	}
	return true
}

func (c *Connector) prepareCursor() error {
	switch {
	case c.st.Kind.Any(stmt.CursorCloseAll):
		c.sess.CloseAllCursors()
	case c.st.Kind.Any(stmt.CursorDeclare):
		c.sess.DeclareCursor(c.st.CursorName, c.st)
		c.cursorSt = c.st
	case c.st.Kind.Any(stmt.CursorFetch | stmt.CursorMove | stmt.CursorClose):
		declared, ok := c.sess.Cursor(c.st.CursorName)
		if !ok {
			return dserror.CursorNotFound(c.st.CursorName)
		}
		c.cursorSt = declared
		if c.st.Kind.Any(stmt.CursorClose) {
			c.sess.CloseCursor(c.st.CursorName)
		}
	}
	return nil
}

func (c *Connector) State() State {
	return c.state
}

// tables returns what the statement is routed by. Cursor statements follow
// the query they were declared for.
func (c *Connector) tables() []datanode.QualifiedTable {
	if len(c.st.Tables) == 0 && c.cursorSt != nil {
		return c.cursorSt.Tables
	}
	return c.st.Tables
}

// Execute runs the statement and returns its response header.
func (c *Connector) Execute(ctx context.Context) (ResponseHeader, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "connector execute")
	defer span.Finish()
	span.SetTag("session", c.sess.ID())
	span.SetTag("kind", c.st.Kind.String())

	c.inst.StatementRate().OnRequest()
	start := time.Now()
	header, err := c.execute(ctx)
	c.inst.StmtLogger().ReportStatement(strings.Join(c.targets, ","), c.sql, time.Since(start))
	if err != nil {
		span.SetTag("error", true)
		c.inst.Errors().ReportError(dserror.Code(err))
		dslog.Zero.Error().
			Str("session", c.sess.ID()).
			Str("state", c.state.String()).
			Err(err).
			Msg("connector: statement failed")
		return nil, c.sess.Dialect().TranslateError(err)
	}
	return header, nil
}

func (c *Connector) execute(ctx context.Context) (ResponseHeader, error) {
	switch {
	case c.st.Kind.Any(stmt.TCL):
		c.state = Completed
		return &UpdateHeader{}, c.executeTCL(ctx)
	case c.st.Kind.Any(stmt.Set) && c.st.Variable != nil:
		c.state = Completed
		return &UpdateHeader{}, c.executeSet(ctx)
	}

	if !c.sess.AutoCommit() && !c.sess.TransactionStatus().InTransaction() {
		if err := c.txm.Begin(ctx); err != nil {
			return nil, err
		}
	}

	c.state = FederationCheck
	plan, federated, err := federation.Decide(ctx, c.st, c.inst.Rules(), c.inst.Router())
	if err != nil {
		c.inst.Registry().Discard(plan.Registered()...)
		return nil, err
	}
	if federated {
		c.state = Federated
		return c.executeFederated(ctx, plan)
	}

	c.state = PushedDown
	h, err := c.executePushedDown(ctx)
	if err != nil {
		// tables mapped while deciding are routed as known by the push down
		c.inst.Registry().Discard(plan.Registered()...)
		return nil, err
	}
	return h, nil
}

func (c *Connector) executeTCL(ctx context.Context) error {
	switch {
	case c.st.Kind.Has(stmt.Savepoint | stmt.Rollback):
		return c.txm.RollbackToSavepoint(ctx, c.st.SavepointName)
	case c.st.Kind.Has(stmt.Savepoint | stmt.Commit):
		return c.txm.ReleaseSavepoint(ctx, c.st.SavepointName)
	case c.st.Kind.Any(stmt.Savepoint):
		return c.txm.Savepoint(ctx, c.st.SavepointName)
	case c.st.Kind.Any(stmt.Begin):
		return c.txm.Begin(ctx)
	case c.st.Kind.Any(stmt.Commit):
		c.sess.CloseAllCursors()
		return c.txm.Commit(ctx)
	case c.st.Kind.Any(stmt.Rollback):
		c.sess.CloseAllCursors()
		return c.txm.Rollback(ctx)
	}
	return nil
}

// executeSet applies a variable to open connections and records it for
// connections opened later.
func (c *Connector) executeSet(ctx context.Context) error {
	v := *c.st.Variable
	if strings.EqualFold(v.Name, "autocommit") {
		on := isTrue(v.Value)
		if on && !c.sess.AutoCommit() {
			if err := c.txm.Commit(ctx); err != nil {
				return err
			}
		}
		c.sess.SetAutoCommit(on)
		return nil
	}

	q := c.sess.Dialect().SetVariableSQL(v.Name, v.Value)
	if err := c.sess.ConnectionManager().ForEachCached(func(ds string, cn conn.Conn) error {
		if _, err := cn.Exec(ctx, q); err != nil {
			return dserror.BackendDatabase(ds, err)
		}
		return nil
	}); err != nil {
		return err
	}
	c.sess.SetVariable(v)
	return nil
}

func isTrue(v string) bool {
	switch strings.ToLower(strings.Trim(v, "'\" ")) {
	case "1", "on", "true":
		return true
	}
	return false
}

func (c *Connector) executeFederated(ctx context.Context, plan *federation.Plan) (ResponseHeader, error) {
	c.fed = federation.NewEngine(c.ex)
	qr, err := c.fed.Execute(ctx, plan)
	if err != nil {
		c.inst.Registry().Discard(plan.Registered()...)
		return nil, err
	}
	c.state = Completed
	return c.buildHeader([]route.ExecuteResult{qr})
}

func (c *Connector) executePushedDown(ctx context.Context) (ResponseHeader, error) {
	tables := c.tables()

	hints := qrouter.Hints{DataSource: c.st.DataSourceHint}
	if hints.DataSource == "" && len(tables) == 0 && !c.st.IsSchemaDDL() {
		hints.DataSource = c.sess.ConnectionManager().RandomDataSourceName(c.inst.AvailableDataSources())
	}

	rc, err := c.inst.Router().Route(ctx, tables, c.routedStatement(), hints)
	if err != nil {
		if dserror.IsCode(err, dserror.DS_NO_DATASOURCE) {
			if h, ok := c.saneHeader(); ok {
				c.state = Completed
				return h, nil
			}
		}
		return nil, err
	}

	c.targets = rc.DataSourceNames()
	units := rewrite.Rewrite(rc, c.sql, c.params)
	if len(units) == 0 {
		c.state = Completed
		return &UpdateHeader{}, nil
	}

	results, err := c.executeUnits(ctx, rc, units)
	if err != nil {
		c.inst.Registry().Discard(rc.Registered()...)
		return nil, err
	}
	c.results = results
	if c.st.Kind.Any(stmt.CursorDeclare) {
		c.holdCursor()
	}

	if err := c.refreshMetadata(ctx, rc); err != nil {
		return nil, err
	}

	if c.st.IsDDL() && !c.sess.AutoCommit() && c.sess.Dialect().ImplicitCommitOnDDL() {
		if err := c.txm.Commit(ctx); err != nil {
			return nil, err
		}
	}

	c.state = Completed
	return c.buildHeader(results)
}

// holdCursor keeps the declaring handles open past this statement. They are
// released when the cursor is closed or its transaction ends.
func (c *Connector) holdCursor() {
	hs := make([]poolmgr.Handler, 0, len(c.results))
	for _, r := range c.results {
		if s := r.Handle(); s != nil {
			hs = append(hs, s)
		}
	}
	c.sess.HoldCursor(c.st.CursorName, hs...)
	c.held = len(hs) > 0
}

// routedStatement is the statement the resolver sees. A cursor declaration
// routes like its query.
func (c *Connector) routedStatement() *stmt.Statement {
	if c.cursorSt != nil && len(c.st.Tables) == 0 {
		return c.cursorSt
	}
	return c.st
}

func (c *Connector) needImplicitTransaction(units []route.ExecutionUnit) bool {
	ts := c.sess.TransactionStatus()
	return c.st.IsWriteDML() &&
		len(units) > 1 &&
		c.sess.AutoCommit() &&
		ts.TransactionType().Distributed() &&
		c.inst.Rules().ImplicitDistributedTx() &&
		!ts.InTransaction()
}

// executeUnits runs units, wrapping multi-target writes into one
// transaction when the session asks for distributed atomicity.
func (c *Connector) executeUnits(ctx context.Context, rc *route.RouteContext, units []route.ExecutionUnit) ([]route.ExecuteResult, error) {
	if !c.needImplicitTransaction(units) {
		return c.ex.Execute(ctx, rc, units, c.st)
	}

	dslog.Zero.Debug().
		Str("session", c.sess.ID()).
		Int("units", len(units)).
		Msg("connector: wrapping statement into implicit transaction")

	if err := c.txm.Begin(ctx); err != nil {
		return nil, err
	}
	results, err := c.ex.Execute(ctx, rc, units, c.st)
	if err != nil {
		return nil, multierr.Append(err, c.txm.Rollback(ctx))
	}
	if err := c.txm.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

// refreshMetadata publishes table mapping changes of a successful DDL.
func (c *Connector) refreshMetadata(ctx context.Context, rc *route.RouteContext) error {
	reg := c.inst.Registry()
	switch {
	case c.st.Kind.Any(stmt.CreateTable):
		if err := reg.Persist(ctx, rc.Registered()...); err != nil {
			reg.Discard(rc.Registered()...)
			return err
		}
	case c.st.Kind.Any(stmt.DropTable):
		for _, qt := range c.st.Tables {
			if err := reg.Drop(ctx, qt); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Connector) saneHeader() (ResponseHeader, bool) {
	sane, ok := c.sess.Dialect().SaneResult(c.st)
	if !ok {
		return nil, false
	}
	if !sane.IsQuery {
		return &UpdateHeader{UpdateCount: sane.UpdateCount}, true
	}
	cols := make([]conn.Column, 0, len(sane.Columns))
	for _, name := range sane.Columns {
		cols = append(cols, conn.Column{Name: name, TypeName: "TEXT"})
	}
	h, err := c.buildHeader([]route.ExecuteResult{&route.QueryResult{
		Columns: cols,
		Rows:    route.NewMemoryRows(cols, sane.Rows),
	}})
	return h, err == nil
}

func (c *Connector) buildHeader(results []route.ExecuteResult) (ResponseHeader, error) {
	if len(results) == 0 {
		return &UpdateHeader{}, nil
	}

	if _, ok := results[0].(*route.QueryResult); ok {
		qrs := make([]*route.QueryResult, 0, len(results))
		for _, r := range results {
			qr, ok := r.(*route.QueryResult)
			if !ok {
				return nil, dserror.Newf(dserror.DS_UNEXPECTED, "mixed result kinds from data source %s", r.DataSource())
			}
			qrs = append(qrs, qr)
		}
		c.merged = merge.NewIteratorMergedResult(qrs)
		cols := c.merged.Columns()
		c.visible = c.st.VisibleColumnCount(len(cols))
		return &QueryHeader{Columns: cols[:c.visible]}, nil
	}

	accumulate := c.inst.Rules().NeedAccumulate(c.tables())
	h := &UpdateHeader{}
	for _, r := range results {
		ur, ok := r.(*route.UpdateResult)
		if !ok {
			return nil, dserror.Newf(dserror.DS_UNEXPECTED, "mixed result kinds from data source %s", r.DataSource())
		}
		if accumulate {
			h.UpdateCount += ur.UpdateCount
		} else {
			h.UpdateCount = ur.UpdateCount
		}
		h.GeneratedKeys = append(h.GeneratedKeys, ur.GeneratedKeys...)
	}
	return h, nil
}

// Next advances the merged result. It is false for update responses.
func (c *Connector) Next() (bool, error) {
	if c.merged == nil {
		return false, nil
	}
	return c.merged.Next()
}

// RowData returns the visible cells of the current row.
func (c *Connector) RowData() ([]QueryResponseCell, error) {
	if c.merged == nil {
		return nil, fmt.Errorf("statement produced no rows")
	}
	values, err := c.merged.Values()
	if err != nil {
		return nil, err
	}
	n := min(c.visible, len(values))
	cells := make([]QueryResponseCell, 0, n)
	for i := 0; i < n; i++ {
		cells = append(cells, QueryResponseCell{ColumnIndex: i + 1, Data: values[i]})
	}
	return cells, nil
}

// Close cancels running statement handles and releases every resource held
// for this statement. All failures are returned together.
func (c *Connector) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var err error
	for _, r := range c.results {
		if s := r.Handle(); s != nil && !c.held {
			err = multierr.Append(err, s.Cancel())
		}
	}
	if c.merged != nil {
		err = multierr.Append(err, c.merged.Close())
	}
	if c.fed != nil {
		err = multierr.Append(err, c.fed.Close())
	}
	err = multierr.Append(err, c.sess.ConnectionManager().CloseStatementScoped())

	dslog.Zero.Debug().
		Str("session", c.sess.ID()).
		Err(err).
		Msg("connector: closed")
	return err
}
