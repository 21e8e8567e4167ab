package qrouter

import (
	"context"
	"math/rand"
	"strings"

	"github.com/pg-sharding/dsproxy/pkg/dslog"
	"github.com/pg-sharding/dsproxy/pkg/models/datanode"
	"github.com/pg-sharding/dsproxy/pkg/models/dserror"
	"github.com/pg-sharding/dsproxy/pkg/stmt"
	"github.com/pg-sharding/dsproxy/router/route"
)

// Chain combines the static rule with the table router. Units of both are
// merged by data source.
type Chain struct {
	static *StaticRouter
	table  *TableRouter
}

var _ QueryRouter = &Chain{}

func NewChain(static *StaticRouter, table *TableRouter) *Chain {
	return &Chain{
		static: static,
		table:  table,
	}
}

// NonPushable reports whether tables mix static tables with other tables,
// which a single physical statement cannot join.
func (c *Chain) NonPushable(tables []datanode.QualifiedTable) bool {
	static, other := c.split(tables)
	return len(static) > 0 && len(other) > 0
}

func (c *Chain) split(tables []datanode.QualifiedTable) (static, other []datanode.QualifiedTable) {
	for _, qt := range tables {
		if c.static.Owns(qt) {
			static = append(static, qt)
		} else {
			other = append(other, qt)
		}
	}
	return static, other
}

func (c *Chain) Route(ctx context.Context, tables []datanode.QualifiedTable, st *stmt.Statement, hints Hints) (*route.RouteContext, error) {
	static, other := c.split(tables)

	rc := route.NewRouteContext()
	if len(static) > 0 {
		src, err := c.static.Route(ctx, static, st, hints)
		if err != nil {
			return nil, err
		}
		rc.Merge(src)
	}
	if len(other) > 0 || len(tables) == 0 {
		trc, ok, err := c.table.TryResolve(ctx, other, st, hints)
		if err != nil {
			return nil, err
		}
		if ok {
			rc.Merge(trc)
		}
	}

	if rc.IsEmpty() && len(tables) == 0 && !st.IsSchemaDDL() {
		ds, err := c.pickDataSource(hints.DataSource)
		if err != nil {
			return nil, err
		}
		rc.AddDataSource(ds)
	}

	dslog.Zero.Debug().
		Str("plan", rc.String()).
		Msg("chain router: routed statement")
	return rc, nil
}

// pickDataSource resolves a hinted data source case-insensitively or picks a
// random one when there is no hint.
func (c *Chain) pickDataSource(hint string) (string, error) {
	all := c.table.reg.DataSourceNames()
	if len(all) == 0 {
		return "", dserror.NewByCode(dserror.DS_NO_DATASOURCE)
	}
	if hint == "" {
		return all[rand.Intn(len(all))], nil
	}
	for _, ds := range all {
		if strings.EqualFold(ds, hint) {
			return ds, nil
		}
	}
	return "", dserror.Newf(dserror.DS_ROUTING_ERROR, "data source %s is not configured", hint)
}
