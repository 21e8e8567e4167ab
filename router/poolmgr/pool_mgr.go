package poolmgr

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/pg-sharding/dsproxy/pkg/conn"
	"github.com/pg-sharding/dsproxy/pkg/dialect"
	"github.com/pg-sharding/dsproxy/pkg/dslog"
	"github.com/pg-sharding/dsproxy/pkg/models/dserror"
	"github.com/pg-sharding/dsproxy/pkg/stmt"
	"github.com/pg-sharding/dsproxy/pkg/txstatus"
	"go.uber.org/multierr"
)

type ConnectionMode int

const (
	// MemoryStrictly gives every unit its own connection.
	MemoryStrictly = ConnectionMode(iota)
	// ConnectionStrictly lets units share connections sequentially.
	ConnectionStrictly
)

func (m ConnectionMode) String() string {
	switch m {
	case MemoryStrictly:
		return "MEMORY_STRICTLY"
	case ConnectionStrictly:
		return "CONNECTION_STRICTLY"
	}
	return "UNKNOWN"
}

// SessionState is what the manager needs to know about its session in order
// to bring new physical connections to the session's state.
type SessionState interface {
	DatabaseName() string
	Variables() []stmt.Variable
	ReadOnly() bool
	IsolationLevel() string
	TransactionStatus() *txstatus.TransactionStatus
}

type DataSourceProvider interface {
	DataSource(name string) (conn.DataSource, bool)
}

// DataSources is a provider over a fixed set of data sources.
type DataSources map[string]conn.DataSource

func (d DataSources) DataSource(name string) (conn.DataSource, bool) {
	ds, ok := d[name]
	return ds, ok
}

// PostProcessor brings a connection that joins a running transaction to the
// state of the other connections of the session.
type PostProcessor func(ctx context.Context, c conn.Conn) error

// ExecProcessor replays a single statement.
func ExecProcessor(sql string) PostProcessor {
	return func(ctx context.Context, c conn.Conn) error {
		_, err := c.Exec(ctx, sql)
		return err
	}
}

// Handler is a statement or result cursor bound to cached connections.
type Handler interface {
	Close() error
}

type cached struct {
	dataSource string
	conns      []conn.Conn
}

// Manager owns the physical connections of one client session.
type Manager struct {
	mu sync.Mutex

	state   SessionState
	dialect dialect.Dialect
	sources DataSourceProvider

	cache map[string]*cached
	// cache keys in first-use order
	keys []string

	postProcessors []PostProcessor

	handlers []Handler
	inUse    map[Handler]struct{}
}

func NewManager(state SessionState, d dialect.Dialect, sources DataSourceProvider) *Manager {
	return &Manager{
		state:   state,
		dialect: d,
		sources: sources,
		cache:   map[string]*cached{},
		inUse:   map[Handler]struct{}{},
	}
}

func (m *Manager) cacheKey(dataSource string) string {
	return m.state.DatabaseName() + "." + strings.ToLower(dataSource)
}

// Acquire returns connections [offset, offset+count) of the data source,
// creating only the missing ones.
func (m *Manager) Acquire(ctx context.Context, dataSource string, offset, count int, mode ConnectionMode) ([]conn.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := m.cacheKey(dataSource)
	entry, exists := m.cache[key]
	if !exists {
		entry = &cached{dataSource: dataSource}
	}

	need := offset + count
	if len(entry.conns) >= need {
		return append([]conn.Conn{}, entry.conns[offset:need]...), nil
	}

	src, ok := m.sources.DataSource(dataSource)
	if !ok {
		return nil, dserror.ConnectionAcquisition(dataSource, fmt.Errorf("data source is not registered"))
	}

	dslog.Zero.Debug().
		Str("ds", dataSource).
		Int("cached", len(entry.conns)).
		Int("create", need-len(entry.conns)).
		Str("mode", mode.String()).
		Msg("pool manager: creating connections")

	created := make([]conn.Conn, 0, need-len(entry.conns))
	for len(entry.conns)+len(created) < need {
		c, err := src.Connect(ctx)
		if err != nil {
			return nil, dserror.ConnectionAcquisition(dataSource, multierr.Append(err, closeAll(created)))
		}
		created = append(created, c)
	}

	for _, c := range created {
		if err := m.replay(ctx, c); err != nil {
			dslog.Zero.Error().
				Err(err).
				Str("ds", dataSource).
				Msg("pool manager: failed to replay session state")
			return nil, dserror.ConnectionAcquisition(dataSource, multierr.Append(err, closeAll(created)))
		}
	}

	entry.conns = append(entry.conns, created...)
	if !exists {
		m.cache[key] = entry
		m.keys = append(m.keys, key)
	}
	return append([]conn.Conn{}, entry.conns[offset:need]...), nil
}

func (m *Manager) replay(ctx context.Context, c conn.Conn) error {
	for _, v := range m.state.Variables() {
		if _, err := c.Exec(ctx, m.dialect.SetVariableSQL(v.Name, v.Value)); err != nil {
			return err
		}
	}
	if m.state.ReadOnly() {
		if _, err := c.Exec(ctx, m.dialect.ReadOnlySQL(true)); err != nil {
			return err
		}
	}
	if level := m.state.IsolationLevel(); level != "" {
		if _, err := c.Exec(ctx, m.dialect.IsolationLevelSQL(level)); err != nil {
			return err
		}
	}
	if m.state.TransactionStatus().InTransaction() {
		for _, pp := range m.postProcessors {
			if err := pp(ctx, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func closeAll(conns []conn.Conn) error {
	var err error
	for _, c := range conns {
		err = multierr.Append(err, c.Close())
	}
	return err
}

// ForEachCached calls fn for every cached connection in first-use order.
// Errors of all calls are collected.
func (m *Manager) ForEachCached(fn func(dataSource string, c conn.Conn) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	for _, key := range m.keys {
		entry := m.cache[key]
		for _, c := range entry.conns {
			err = multierr.Append(err, fn(entry.dataSource, c))
		}
	}
	return err
}

func (m *Manager) ConnectionSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, entry := range m.cache {
		n += len(entry.conns)
	}
	return n
}

// RandomDataSourceName picks one of candidates, preferring data sources the
// session already holds connections to.
func (m *Manager) RandomDataSourceName(candidates []string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var preferred []string
	for _, ds := range candidates {
		if entry, ok := m.cache[m.cacheKey(ds)]; ok && len(entry.conns) > 0 {
			preferred = append(preferred, ds)
		}
	}
	if len(preferred) == 0 {
		preferred = candidates
	}
	if len(preferred) == 0 {
		return ""
	}
	return preferred[rand.Intn(len(preferred))]
}

func (m *Manager) AddPostProcessor(pp PostProcessor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.postProcessors = append(m.postProcessors, pp)
}

func (m *Manager) ClearPostProcessors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.postProcessors = nil
}

func (m *Manager) Add(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

func (m *Manager) MarkResourceInUse(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inUse[h] = struct{}{}
}

func (m *Manager) UnmarkResourceInUse(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inUse, h)
}

// CloseHandlers closes tracked handlers. Handlers marked in use survive
// unless includeInUse is set.
func (m *Manager) CloseHandlers(includeInUse bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	kept := m.handlers[:0]
	for _, h := range m.handlers {
		if _, used := m.inUse[h]; used && !includeInUse {
			kept = append(kept, h)
			continue
		}
		err = multierr.Append(err, h.Close())
		delete(m.inUse, h)
	}
	m.handlers = kept
	return err
}

// CloseStatementScoped releases resources at the end of a statement.
// Connections survive while a transaction or an open cursor holds them.
func (m *Manager) CloseStatementScoped() error {
	ts := m.state.TransactionStatus()
	if ts.InTransaction() || ts.InConnectionHeldTransaction() {
		return m.CloseHandlers(false)
	}
	return multierr.Append(m.CloseHandlers(false), m.CloseConnections(false))
}

// CloseSessionScoped releases everything, rolling back an open transaction.
func (m *Manager) CloseSessionScoped() error {
	rollback := m.state.TransactionStatus().InTransaction()
	return multierr.Append(m.CloseHandlers(true), m.CloseConnections(rollback))
}

// CloseConnections closes all cached connections and returns every failure.
func (m *Manager) CloseConnections(forceRollback bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	for _, key := range m.keys {
		entry := m.cache[key]
		for _, c := range entry.conns {
			if forceRollback {
				if _, rerr := c.Exec(context.Background(), "ROLLBACK"); rerr != nil {
					err = multierr.Append(err, dserror.BackendDatabase(entry.dataSource, rerr))
				}
			}
			if cerr := c.Close(); cerr != nil {
				err = multierr.Append(err, dserror.BackendDatabase(entry.dataSource, cerr))
			}
		}
	}
	if err != nil {
		dslog.Zero.Error().Err(err).Msg("pool manager: errors while closing connections")
	}

	m.cache = map[string]*cached{}
	m.keys = nil
	m.postProcessors = nil
	return err
}
