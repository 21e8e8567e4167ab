package rule

import (
	"context"
	"strings"
	"sync"

	"github.com/pg-sharding/dsproxy/pkg/config"
	"github.com/pg-sharding/dsproxy/pkg/models/datanode"
	"github.com/pg-sharding/dsproxy/pkg/stmt"
	"github.com/pg-sharding/dsproxy/router/route"
)

// RawExecutor runs execution units outside the pooled per-session path.
type RawExecutor interface {
	Execute(ctx context.Context, units []route.ExecutionUnit, st *stmt.Statement) ([]route.ExecuteResult, error)
}

// StaticTable is a logical table with a configured node list.
type StaticTable struct {
	Table      datanode.QualifiedTable
	Nodes      []datanode.DataNode
	Accumulate bool
}

// Rules is the rule metadata of one logical database.
type Rules struct {
	mu sync.RWMutex

	database          string
	dataSources       []string
	defaultDataSource string
	defaultSchema     string
	staticTables      map[string]*StaticTable
	props             config.PropsCfg
	raw               RawExecutor
}

func NewRules(cfg *config.Proxy, defaultSchema string) (*Rules, error) {
	r := &Rules{
		database:          cfg.DatabaseName,
		defaultDataSource: cfg.DefaultDataSource,
		defaultSchema:     defaultSchema,
		staticTables:      map[string]*StaticTable{},
		props:             cfg.Props,
	}
	for _, ds := range cfg.DataSources {
		r.dataSources = append(r.dataSources, ds.Name)
	}
	for _, st := range cfg.StaticTables {
		t := &StaticTable{
			Table:      r.normalize(datanode.NewQualifiedTable(st.Schema, st.Name)),
			Accumulate: st.Accumulate,
		}
		for _, raw := range st.DataNodes {
			dn, err := datanode.ParseDataNode(raw)
			if err != nil {
				return nil, err
			}
			t.Nodes = append(t.Nodes, dn)
		}
		r.staticTables[t.Table.Key()] = t
	}
	return r, nil
}

func (r *Rules) normalize(qt datanode.QualifiedTable) datanode.QualifiedTable {
	if qt.SchemaName == "" {
		qt.SchemaName = r.defaultSchema
	}
	return qt
}

func (r *Rules) DatabaseName() string {
	return r.database
}

func (r *Rules) DataSourceNames() []string {
	return append([]string(nil), r.dataSources...)
}

func (r *Rules) DefaultDataSource() string {
	return r.defaultDataSource
}

func (r *Rules) StaticTable(qt datanode.QualifiedTable) (*StaticTable, bool) {
	t, ok := r.staticTables[r.normalize(qt).Key()]
	return t, ok
}

// IsStatic reports whether qt is owned by the static table rule.
func (r *Rules) IsStatic(qt datanode.QualifiedTable) bool {
	_, ok := r.StaticTable(qt)
	return ok
}

// NeedAccumulate is true when a DML on these tables fans out to nodes that
// together hold one logical row set.
func (r *Rules) NeedAccumulate(tables []datanode.QualifiedTable) bool {
	for _, qt := range tables {
		if t, ok := r.StaticTable(qt); ok && t.Accumulate && len(t.Nodes) > 1 {
			return true
		}
	}
	return false
}

// IsComplete reports whether every data source referenced by rules exists in available.
func (r *Rules) IsComplete(available []string) bool {
	known := make(map[string]struct{}, len(available))
	for _, ds := range available {
		known[strings.ToLower(ds)] = struct{}{}
	}
	if r.defaultDataSource != "" {
		if _, ok := known[strings.ToLower(r.defaultDataSource)]; !ok {
			return false
		}
	}
	for _, t := range r.staticTables {
		for _, n := range t.Nodes {
			if _, ok := known[strings.ToLower(n.DataSourceName)]; !ok {
				return false
			}
		}
	}
	return true
}

func (r *Rules) MaxConnectionsSizePerQuery() int {
	if r.props.MaxConnectionsSizePerQuery <= 0 {
		return config.DefaultMaxConnectionsSizePerQuery
	}
	return r.props.MaxConnectionsSizePerQuery
}

func (r *Rules) ExecutorSize() int {
	return r.props.ExecutorSize
}

func (r *Rules) SQLFederationEnabled() bool {
	return r.props.SQLFederationEnabled
}

func (r *Rules) ImplicitDistributedTx() bool {
	return r.props.ImplicitDistributedTx
}

func (r *Rules) SetRawExecutor(raw RawExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.raw = raw
}

func (r *Rules) RawExecutor() (RawExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.raw, r.raw != nil
}
