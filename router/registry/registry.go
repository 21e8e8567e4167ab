package registry

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pg-sharding/dsproxy/pkg/dslog"
	"github.com/pg-sharding/dsproxy/pkg/models/datanode"
	"github.com/pg-sharding/dsproxy/qdb"
	"go.uber.org/atomic"
)

// snapshot is immutable once published.
type snapshot struct {
	// qualified table key -> nodes
	tables map[string][]datanode.DataNode
	// lower-cased table name -> qualified table keys
	byName map[string][]string
	names  map[string]datanode.QualifiedTable
}

func emptySnapshot() *snapshot {
	return &snapshot{
		tables: map[string][]datanode.DataNode{},
		byName: map[string][]string{},
		names:  map[string]datanode.QualifiedTable{},
	}
}

func (s *snapshot) clone() *snapshot {
	cp := &snapshot{
		tables: make(map[string][]datanode.DataNode, len(s.tables)),
		byName: make(map[string][]string, len(s.byName)),
		names:  make(map[string]datanode.QualifiedTable, len(s.names)),
	}
	for k, v := range s.tables {
		cp.tables[k] = append([]datanode.DataNode(nil), v...)
	}
	for k, v := range s.byName {
		cp.byName[k] = append([]string(nil), v...)
	}
	for k, v := range s.names {
		cp.names[k] = v
	}
	return cp
}

func (s *snapshot) add(qt datanode.QualifiedTable, dn datanode.DataNode) bool {
	key := qt.Key()
	for _, cur := range s.tables[key] {
		if cur.Key() == dn.Key() {
			return false
		}
	}
	if _, ok := s.tables[key]; !ok {
		name := strings.ToLower(qt.TableName)
		s.byName[name] = append(s.byName[name], key)
		s.names[key] = qt
	}
	s.tables[key] = append(s.tables[key], dn)
	return true
}

func (s *snapshot) remove(qt datanode.QualifiedTable, dn *datanode.DataNode) {
	key := qt.Key()
	nodes, ok := s.tables[key]
	if !ok {
		return
	}
	if dn != nil {
		kept := nodes[:0]
		for _, cur := range nodes {
			if cur.Key() != dn.Key() {
				kept = append(kept, cur)
			}
		}
		if len(kept) != 0 {
			s.tables[key] = kept
			return
		}
	}
	delete(s.tables, key)
	delete(s.names, key)
	name := strings.ToLower(qt.TableName)
	keys := s.byName[name]
	for i, k := range keys {
		if k == key {
			keys = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	if len(keys) == 0 {
		delete(s.byName, name)
	} else {
		s.byName[name] = keys
	}
}

// Registry maps logical tables to data nodes. Reads are lock-free over an
// immutable snapshot; writers serialize on mu and publish a fresh copy.
type Registry struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]

	db            qdb.QDB
	dataSources   []string
	defaultSchema string
}

func New(db qdb.QDB, dataSources []string, defaultSchema string) *Registry {
	r := &Registry{
		db:            db,
		dataSources:   append([]string(nil), dataSources...),
		defaultSchema: defaultSchema,
	}
	r.snap.Store(emptySnapshot())
	return r
}

// normalize fills the default schema in for unqualified names.
func (r *Registry) normalize(qt datanode.QualifiedTable) datanode.QualifiedTable {
	if qt.SchemaName == "" {
		qt.SchemaName = r.defaultSchema
	}
	return qt
}

func (r *Registry) normalizeNode(dn datanode.DataNode) datanode.DataNode {
	if dn.SchemaName == "" {
		dn.SchemaName = r.defaultSchema
	}
	return dn
}

// Load replaces the cache with the persisted mapping.
func (r *Registry) Load(ctx context.Context) error {
	tables, err := r.db.ListLogicalTables(ctx)
	if err != nil {
		return err
	}
	s := emptySnapshot()
	for _, t := range tables {
		qt := r.normalize(datanode.NewQualifiedTable(t.Schema, t.Name))
		for _, n := range t.DataNodes {
			s.add(qt, r.normalizeNode(datanode.NewDataNode(n.DataSource, n.Schema, n.Table)))
		}
	}

	r.mu.Lock()
	r.snap.Store(s)
	r.mu.Unlock()

	dslog.Zero.Info().Int("tables", len(tables)).Msg("registry: loaded table mapping")
	return nil
}

// DataSourceNames returns the configured data sources in registration order.
func (r *Registry) DataSourceNames() []string {
	return append([]string(nil), r.dataSources...)
}

func (r *Registry) DefaultSchema() string {
	return r.defaultSchema
}

// Find returns the data nodes of qt, if any.
func (r *Registry) Find(qt datanode.QualifiedTable) ([]datanode.DataNode, bool) {
	nodes, ok := r.snap.Load().tables[r.normalize(qt).Key()]
	if !ok {
		return nil, false
	}
	return append([]datanode.DataNode(nil), nodes...), true
}

// ContainsTableName reports whether a table with this name is mapped under any schema.
func (r *Registry) ContainsTableName(table string) bool {
	_, ok := r.snap.Load().byName[strings.ToLower(table)]
	return ok
}

func (r *Registry) Tables() []datanode.QualifiedTable {
	s := r.snap.Load()
	ret := make([]datanode.QualifiedTable, 0, len(s.names))
	for _, qt := range s.names {
		ret = append(ret, qt)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Key() < ret[j].Key()
	})
	return ret
}

// RegisterIfAbsent maps qt to dn in the cache unless qt is already mapped,
// in which case the existing nodes are returned.
func (r *Registry) RegisterIfAbsent(qt datanode.QualifiedTable, dn datanode.DataNode) ([]datanode.DataNode, bool) {
	qt = r.normalize(qt)
	dn = r.normalizeNode(dn)

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	if nodes, ok := cur.tables[qt.Key()]; ok {
		return append([]datanode.DataNode(nil), nodes...), false
	}
	next := cur.clone()
	next.add(qt, dn)
	r.snap.Store(next)

	dslog.Zero.Debug().
		Str("table", qt.String()).
		Str("node", dn.String()).
		Msg("registry: registered data node")
	return []datanode.DataNode{dn}, true
}

// Discard removes nodes from the cache without touching persistent storage.
func (r *Registry) Discard(nodes ...datanode.DataNode) {
	if len(nodes) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.snap.Load().clone()
	for _, dn := range nodes {
		dn = r.normalizeNode(dn)
		next.remove(dn.Table(), &dn)
	}
	r.snap.Store(next)

	dslog.Zero.Debug().Int("nodes", len(nodes)).Msg("registry: discarded data nodes")
}

// Persist writes nodes to the metadata store and makes sure the cache holds them.
func (r *Registry) Persist(ctx context.Context, nodes ...datanode.DataNode) error {
	if len(nodes) == 0 {
		return nil
	}
	regs := make([]qdb.NodeRegistration, 0, len(nodes))
	for _, dn := range nodes {
		dn = r.normalizeNode(dn)
		regs = append(regs, qdb.NodeRegistration{
			Schema: dn.SchemaName,
			Table:  dn.TableName,
			Node: &qdb.DataNode{
				DataSource: dn.DataSourceName,
				Schema:     dn.SchemaName,
				Table:      dn.TableName,
			},
		})
	}
	if err := r.db.AddDataNodes(ctx, regs...); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.snap.Load().clone()
	for _, dn := range nodes {
		dn = r.normalizeNode(dn)
		next.add(dn.Table(), dn)
	}
	r.snap.Store(next)
	return nil
}

// Drop forgets qt in both the metadata store and the cache.
func (r *Registry) Drop(ctx context.Context, qt datanode.QualifiedTable) error {
	qt = r.normalize(qt)
	if err := r.db.DropLogicalTable(ctx, qt.SchemaName, qt.TableName); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.snap.Load().clone()
	next.remove(qt, nil)
	r.snap.Store(next)

	dslog.Zero.Debug().Str("table", qt.String()).Msg("registry: dropped table")
	return nil
}
