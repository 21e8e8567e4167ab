package federation

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/pg-sharding/dsproxy/pkg/catalog"
	"github.com/pg-sharding/dsproxy/pkg/conn"
	"github.com/pg-sharding/dsproxy/pkg/dslog"
	"github.com/pg-sharding/dsproxy/pkg/engine"
	"github.com/pg-sharding/dsproxy/pkg/models/datanode"
	"github.com/pg-sharding/dsproxy/pkg/stmt"
	"github.com/pg-sharding/dsproxy/pkg/tupleslot"
	"github.com/pg-sharding/dsproxy/router/rewrite"
	"github.com/pg-sharding/dsproxy/router/route"
	"go.uber.org/multierr"
)

type Executor interface {
	Execute(ctx context.Context, rc *route.RouteContext, units []route.ExecutionUnit, st *stmt.Statement) ([]route.ExecuteResult, error)
}

// Engine evaluates a federated query in process over full scans of each
// relation.
type Engine struct {
	ex Executor

	// open physical row sets, released by Close
	open   []conn.Rows
	closed bool
}

func NewEngine(ex Executor) *Engine {
	return &Engine{ex: ex}
}

func scanSQL(t datanode.QualifiedTable) string {
	if t.SchemaName == "" {
		return fmt.Sprintf("SELECT * FROM %s", t.TableName)
	}
	return fmt.Sprintf("SELECT * FROM %s.%s", t.SchemaName, t.TableName)
}

func toText(v any) []byte {
	switch v := v.(type) {
	case nil:
		return nil
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return []byte(fmt.Sprint(v))
	}
}

func fromText(b []byte, oid uint32) any {
	if b == nil {
		return nil
	}
	if catalog.IsNumeric(oid) {
		if i, err := strconv.ParseInt(string(b), 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			return f
		}
	}
	return string(b)
}

func (e *Engine) scan(ctx context.Context, rp relationPlan) (*tupleslot.TupleTableSlot, error) {
	st := &stmt.Statement{
		Kind:   stmt.Query,
		Tables: []datanode.QualifiedTable{rp.relation.Table},
	}
	units := rewrite.Rewrite(rp.rc, scanSQL(rp.relation.Table), nil)

	results, err := e.ex.Execute(ctx, rp.rc, units, st)
	if err != nil {
		return nil, err
	}

	var tts *tupleslot.TupleTableSlot
	for _, res := range results {
		qr, ok := res.(*route.QueryResult)
		if !ok {
			continue
		}
		e.open = append(e.open, qr.Rows)

		if tts == nil {
			tts = &tupleslot.TupleTableSlot{}
			for _, c := range qr.Columns {
				tts.Desc = append(tts.Desc, engine.ColumnFD(rp.relation.Name()+"."+c.Name, c.TypeName))
			}
		}
		for qr.Rows.Next() {
			vals, err := qr.Rows.Values()
			if err != nil {
				return nil, err
			}
			row := make([][]byte, 0, len(vals))
			for _, v := range vals {
				row = append(row, toText(v))
			}
			tts.Raw = append(tts.Raw, row)
		}
		if err := qr.Rows.Err(); err != nil {
			return nil, err
		}
	}
	if tts == nil {
		return &tupleslot.TupleTableSlot{}, nil
	}
	return tts, nil
}

// Execute scans every relation of plan, joins, filters, sorts and projects.
func (e *Engine) Execute(ctx context.Context, plan *Plan) (*route.QueryResult, error) {
	q := plan.Query

	var acc *tupleslot.TupleTableSlot
	pending := q.Joins
	for _, rp := range plan.relations {
		tts, err := e.scan(ctx, rp)
		if err != nil {
			return nil, err
		}
		if acc == nil {
			acc = tts
			continue
		}
		var conds []stmt.JoinCond
		conds, pending = engine.SplitJoinConds(acc, tts, pending)
		if acc, err = engine.HashJoin(acc, tts, conds); err != nil {
			return nil, err
		}
	}

	acc, err := engine.FilterRows(acc, q.Where)
	if err != nil {
		return nil, err
	}
	if err := engine.ProcessOrderBy(acc, q.OrderBy); err != nil {
		return nil, err
	}
	out, err := engine.Project(acc, q.Targets)
	if err != nil {
		return nil, err
	}

	dslog.Zero.Debug().
		Int("rows", len(out.Raw)).
		Strs("columns", out.ColumnNames()).
		Msg("federation: query evaluated")

	return toQueryResult(out), nil
}

func typeName(d pgproto3.FieldDescription) string {
	switch d.DataTypeOID {
	case catalog.INTOID, catalog.INT4OID:
		return "INT8"
	case catalog.DOUBLEOID, catalog.NUMERICOID:
		return "FLOAT8"
	case catalog.BOOLOID:
		return "BOOL"
	}
	return "TEXT"
}

func toQueryResult(tts *tupleslot.TupleTableSlot) *route.QueryResult {
	cols := make([]conn.Column, 0, len(tts.Desc))
	for _, d := range tts.Desc {
		cols = append(cols, conn.Column{Name: string(d.Name), TypeName: typeName(d)})
	}
	rows := make([][]any, 0, len(tts.Raw))
	for _, r := range tts.Raw {
		row := make([]any, 0, len(r))
		for i, v := range r {
			row = append(row, fromText(v, tts.Desc[i].DataTypeOID))
		}
		rows = append(rows, row)
	}
	return &route.QueryResult{
		Columns: cols,
		Rows:    route.NewMemoryRows(cols, rows),
	}
}

// Close releases physical row sets. Repeated calls are no-ops.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	var err error
	for _, r := range e.open {
		err = multierr.Append(err, r.Close())
	}
	e.open = nil
	return err
}
