package qrouter

import (
	"context"

	"github.com/pg-sharding/dsproxy/pkg/models/datanode"
	"github.com/pg-sharding/dsproxy/pkg/stmt"
	"github.com/pg-sharding/dsproxy/router/route"
)

// Hints steer resolution of a single statement.
type Hints struct {
	// DataSource is the preferred target for tables that are not mapped yet
	// and for statements without tables.
	DataSource string
	// SkipDuplicateCheck disables TableAlreadyExists detection, e.g. when
	// resolving only to probe where a table lives.
	SkipDuplicateCheck bool
}

type QueryRouter interface {
	Route(ctx context.Context, tables []datanode.QualifiedTable, st *stmt.Statement, hints Hints) (*route.RouteContext, error)
}
