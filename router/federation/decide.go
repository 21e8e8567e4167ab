package federation

import (
	"context"

	"github.com/pg-sharding/dsproxy/pkg/dslog"
	"github.com/pg-sharding/dsproxy/pkg/models/datanode"
	"github.com/pg-sharding/dsproxy/pkg/stmt"
	"github.com/pg-sharding/dsproxy/router/qrouter"
	"github.com/pg-sharding/dsproxy/router/route"
	"github.com/pg-sharding/dsproxy/router/rule"
)

// Planner routes tables and knows which of them cannot be joined remotely.
type Planner interface {
	Route(ctx context.Context, tables []datanode.QualifiedTable, st *stmt.Statement, hints qrouter.Hints) (*route.RouteContext, error)
	NonPushable(tables []datanode.QualifiedTable) bool
}

type relationPlan struct {
	relation stmt.Relation
	rc       *route.RouteContext
}

// Plan is the per-relation routing of a federated query.
type Plan struct {
	Query     *stmt.FederatedQuery
	relations []relationPlan
}

// Registered returns data nodes put into the registry cache while planning.
func (p *Plan) Registered() []datanode.DataNode {
	if p == nil {
		return nil
	}
	var ret []datanode.DataNode
	for _, r := range p.relations {
		ret = append(ret, r.rc.Registered()...)
	}
	return ret
}

// Decide reports whether st must be evaluated in process: federation is
// enabled, the query joins several relations and they cannot be pushed down
// to a single data source. The plan is returned whenever relations were
// routed, so the caller can discard what planning registered.
func Decide(ctx context.Context, st *stmt.Statement, rules *rule.Rules, planner Planner) (*Plan, bool, error) {
	if !rules.SQLFederationEnabled() || !st.IsQuery() || st.Federation == nil || len(st.Federation.Relations) < 2 {
		return nil, false, nil
	}

	plan := &Plan{Query: st.Federation}
	tables := make([]datanode.QualifiedTable, 0, len(st.Federation.Relations))
	dataSources := map[string]struct{}{}

	for _, rel := range st.Federation.Relations {
		rc, err := planner.Route(ctx, []datanode.QualifiedTable{rel.Table}, st, qrouter.Hints{SkipDuplicateCheck: true})
		if err != nil {
			return plan, false, err
		}
		plan.relations = append(plan.relations, relationPlan{relation: rel, rc: rc})
		tables = append(tables, rel.Table)
		for _, ds := range rc.DataSourceNames() {
			dataSources[ds] = struct{}{}
		}
	}

	federated := planner.NonPushable(tables) || len(dataSources) > 1
	dslog.Zero.Debug().
		Int("relations", len(plan.relations)).
		Int("data sources", len(dataSources)).
		Bool("federated", federated).
		Msg("federation decision")
	return plan, federated, nil
}
