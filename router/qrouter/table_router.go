package qrouter

import (
	"context"
	"strings"

	"github.com/pg-sharding/dsproxy/pkg/dslog"
	"github.com/pg-sharding/dsproxy/pkg/models/datanode"
	"github.com/pg-sharding/dsproxy/pkg/models/dserror"
	"github.com/pg-sharding/dsproxy/pkg/stmt"
	"github.com/pg-sharding/dsproxy/router/registry"
	"github.com/pg-sharding/dsproxy/router/route"
	"github.com/pg-sharding/dsproxy/router/rule"
)

type resolutionKind int

const (
	resolvedOK = resolutionKind(iota)
	resolvedDuplicate
	resolvedNoDataSource
)

// resolution is the internal outcome of routing; errors are produced only at the API edge.
type resolution struct {
	kind  resolutionKind
	rc    *route.RouteContext
	table datanode.QualifiedTable
}

// TableRouter routes tables whose location is tracked by the registry.
// Unknown tables are placed on a single data source and registered.
type TableRouter struct {
	reg   *registry.Registry
	rules *rule.Rules
}

var _ QueryRouter = &TableRouter{}

func NewTableRouter(reg *registry.Registry, rules *rule.Rules) *TableRouter {
	return &TableRouter{
		reg:   reg,
		rules: rules,
	}
}

// TryResolve routes only statements with tables or schema-level DDL; other
// statements report false so the caller can fall through.
func (r *TableRouter) TryResolve(ctx context.Context, tables []datanode.QualifiedTable, st *stmt.Statement, hints Hints) (*route.RouteContext, bool, error) {
	if len(tables) == 0 && !st.IsSchemaDDL() {
		return nil, false, nil
	}
	rc, err := r.Resolve(ctx, tables, st, hints)
	if err != nil {
		return nil, true, err
	}
	return rc, true, nil
}

func (r *TableRouter) Route(ctx context.Context, tables []datanode.QualifiedTable, st *stmt.Statement, hints Hints) (*route.RouteContext, error) {
	return r.Resolve(ctx, tables, st, hints)
}

func (r *TableRouter) Resolve(_ context.Context, tables []datanode.QualifiedTable, st *stmt.Statement, hints Hints) (*route.RouteContext, error) {
	res := r.resolve(tables, st, hints)
	if res.kind != resolvedOK {
		// drop what this attempt put into the cache
		r.reg.Discard(res.rc.Registered()...)
	}
	switch res.kind {
	case resolvedDuplicate:
		return nil, dserror.TableAlreadyExists(res.table.String())
	case resolvedNoDataSource:
		return nil, dserror.NewByCode(dserror.DS_NO_DATASOURCE)
	}
	dslog.Zero.Debug().
		Str("plan", res.rc.String()).
		Int("tables", len(tables)).
		Msg("table router: resolved")
	return res.rc, nil
}

func (r *TableRouter) resolve(tables []datanode.QualifiedTable, st *stmt.Statement, hints Hints) resolution {
	rc := route.NewRouteContext()
	if len(tables) == 0 {
		for _, ds := range r.reg.DataSourceNames() {
			rc.AddDataSource(ds)
		}
		return resolution{kind: resolvedOK, rc: rc}
	}

	checkDuplicate := !hints.SkipDuplicateCheck && st != nil && st.IsCreateTable() && !st.IfNotExists

	for _, qt := range tables {
		if nodes, ok := r.reg.Find(qt); ok {
			if checkDuplicate {
				return resolution{kind: resolvedDuplicate, rc: rc, table: qt}
			}
			for _, dn := range nodes {
				rc.AddTable(qt.TableName, dn)
			}
			continue
		}

		if checkDuplicate && r.reg.ContainsTableName(qt.TableName) {
			return resolution{kind: resolvedDuplicate, rc: rc, table: qt}
		}

		target := r.target(hints)
		if target == "" {
			return resolution{kind: resolvedNoDataSource, rc: rc, table: qt}
		}
		nodes, registered := r.reg.RegisterIfAbsent(qt, datanode.NewDataNode(target, qt.SchemaName, qt.TableName))
		if registered {
			rc.RecordRegistered(nodes[0])
		} else if checkDuplicate {
			// lost a race with a concurrent CREATE TABLE
			return resolution{kind: resolvedDuplicate, rc: rc, table: qt}
		}
		for _, dn := range nodes {
			rc.AddTable(qt.TableName, dn)
		}
	}
	return resolution{kind: resolvedOK, rc: rc}
}

// target picks the data source for a table that is not mapped yet.
func (r *TableRouter) target(hints Hints) string {
	all := r.reg.DataSourceNames()
	if hints.DataSource != "" {
		for _, ds := range all {
			if strings.EqualFold(ds, hints.DataSource) {
				return ds
			}
		}
	}
	if def := r.rules.DefaultDataSource(); def != "" {
		return def
	}
	if len(all) == 0 {
		return ""
	}
	return all[0]
}
