package qdb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/pg-sharding/dsproxy/pkg/dslog"
)

type MemQDB struct {
	mu sync.RWMutex

	Tables map[string]*LogicalTable `json:"tables"`

	backupPath string
}

var _ QDB = &MemQDB{}

func NewMemQDB(backupPath string) (*MemQDB, error) {
	return &MemQDB{
		Tables:     map[string]*LogicalTable{},
		backupPath: backupPath,
	}, nil
}

// RestoreQDB loads the state dumped at backupPath, creating the file if absent.
func RestoreQDB(backupPath string) (*MemQDB, error) {
	qdb, err := NewMemQDB(backupPath)
	if err != nil {
		return nil, err
	}
	if backupPath == "" {
		return qdb, nil
	}
	if _, err := os.Stat(backupPath); err != nil {
		dslog.Zero.Info().Err(err).Msg("memqdb backup file not exists. Creating new one.")
		f, err := os.Create(backupPath)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		return qdb, nil
	}
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return qdb, nil
	}
	if err := json.Unmarshal(data, qdb); err != nil {
		return nil, err
	}
	if qdb.Tables == nil {
		qdb.Tables = map[string]*LogicalTable{}
	}
	return qdb, nil
}

// DumpState writes the state to a temporary file and renames it over the backup.
func (q *MemQDB) DumpState() error {
	if q.backupPath == "" {
		return nil
	}
	tmpPath := q.backupPath + ".tmp"

	state, err := json.MarshalIndent(q, "", "	")
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmpPath, state, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, q.backupPath)
}

func (q *MemQDB) AddDataNodes(_ context.Context, regs ...NodeRegistration) error {
	dslog.Zero.Debug().Int("nodes", len(regs)).Msg("memqdb: add data nodes")
	q.mu.Lock()
	defer q.mu.Unlock()

	// nodes of one table are folded into a single update
	pending := map[string]*LogicalTable{}
	var order []string
	for _, r := range regs {
		key := TableKey(r.Schema, r.Table)
		t, ok := pending[key]
		if !ok {
			if cur, ok := q.Tables[key]; ok {
				t = cur.clone()
			} else {
				t = &LogicalTable{Schema: r.Schema, Name: r.Table}
			}
			pending[key] = t
			order = append(order, key)
		}
		if !t.HasNode(r.Node) {
			n := *r.Node
			t.DataNodes = append(t.DataNodes, &n)
		}
	}

	cmds := make([]Command, 0, len(order))
	for _, key := range order {
		cmds = append(cmds, NewUpdateCommand(q.Tables, key, pending[key]))
	}
	return ExecuteCommands(q.DumpState, cmds...)
}

func (q *MemQDB) GetLogicalTable(_ context.Context, schema, name string) (*LogicalTable, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	t, ok := q.Tables[TableKey(schema, name)]
	if !ok {
		return nil, fmt.Errorf("logical table \"%s.%s\" not found", schema, name)
	}
	return t.clone(), nil
}

func (q *MemQDB) ListLogicalTables(_ context.Context) ([]*LogicalTable, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	ret := make([]*LogicalTable, 0, len(q.Tables))
	for _, t := range q.Tables {
		ret = append(ret, t.clone())
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Key() < ret[j].Key()
	})
	return ret, nil
}

func (q *MemQDB) DropLogicalTable(_ context.Context, schema, name string) error {
	dslog.Zero.Debug().Str("schema", schema).Str("table", name).Msg("memqdb: drop logical table")
	q.mu.Lock()
	defer q.mu.Unlock()

	return ExecuteCommands(q.DumpState, NewDeleteCommand(q.Tables, TableKey(schema, name)))
}
