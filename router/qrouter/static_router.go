package qrouter

import (
	"context"

	"github.com/pg-sharding/dsproxy/pkg/models/datanode"
	"github.com/pg-sharding/dsproxy/pkg/stmt"
	"github.com/pg-sharding/dsproxy/router/route"
	"github.com/pg-sharding/dsproxy/router/rule"
)

// StaticRouter routes tables declared with a fixed data node list.
type StaticRouter struct {
	rules *rule.Rules
}

var _ QueryRouter = &StaticRouter{}

func NewStaticRouter(rules *rule.Rules) *StaticRouter {
	return &StaticRouter{rules: rules}
}

func (s *StaticRouter) Owns(qt datanode.QualifiedTable) bool {
	return s.rules.IsStatic(qt)
}

func (s *StaticRouter) Route(_ context.Context, tables []datanode.QualifiedTable, _ *stmt.Statement, _ Hints) (*route.RouteContext, error) {
	rc := route.NewRouteContext()
	for _, qt := range tables {
		t, ok := s.rules.StaticTable(qt)
		if !ok {
			continue
		}
		for _, dn := range t.Nodes {
			rc.AddTable(qt.TableName, dn)
		}
	}
	return rc, nil
}
