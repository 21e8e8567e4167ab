package qdb

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/pg-sharding/dsproxy/pkg/dslog"
	retry "github.com/sethvargo/go-retry"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"google.golang.org/grpc"
)

type EtcdQDB struct {
	cli  *clientv3.Client
	addr string
}

var _ QDB = &EtcdQDB{}

const (
	logicalTablesNamespace = "/logical_tables/"
	tablesLockKey          = "/lock/logical_tables"

	bootstrapMaxRetries = 7
)

func logicalTableNodePath(key string) string {
	return path.Join(logicalTablesNamespace, key)
}

func NewEtcdQDB(addr string) (*EtcdQDB, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{addr},
		DialTimeout: 5 * time.Second,
		DialOptions: []grpc.DialOption{
			grpc.WithInsecure(), //nolint:all
		},
	})
	if err != nil {
		return nil, err
	}

	dslog.Zero.Debug().
		Str("address", addr).
		Uint("client", dslog.GetPointer(cli)).
		Msg("etcdqdb: NewEtcdQDB")

	return &EtcdQDB{
		cli:  cli,
		addr: addr,
	}, nil
}

// WaitReady blocks until the etcd endpoint answers a status request.
func (q *EtcdQDB) WaitReady(ctx context.Context) error {
	return retry.Do(ctx, retry.WithMaxRetries(bootstrapMaxRetries, retry.NewFibonacci(500*time.Millisecond)), func(ctx context.Context) error {
		if _, err := q.cli.Status(ctx, q.addr); err != nil {
			dslog.Zero.Debug().Err(err).Str("address", q.addr).Msg("etcdqdb: endpoint is not ready")
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (q *EtcdQDB) Client() *clientv3.Client {
	return q.cli
}

func (q *EtcdQDB) Close() error {
	return q.cli.Close()
}

func (q *EtcdQDB) getLogicalTable(ctx context.Context, key string) (*LogicalTable, error) {
	resp, err := q.cli.Get(ctx, logicalTableNodePath(key))
	if err != nil {
		return nil, err
	}
	switch len(resp.Kvs) {
	case 0:
		return nil, nil
	case 1:
		var t *LogicalTable
		if err := json.Unmarshal(resp.Kvs[0].Value, &t); err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("too much logical tables matched: %d", len(resp.Kvs))
	}
}

// AddDataNodes merges regs into stored tables under a cluster-wide lock and
// writes all touched tables in one etcd transaction.
func (q *EtcdQDB) AddDataNodes(ctx context.Context, regs ...NodeRegistration) error {
	dslog.Zero.Debug().
		Int("nodes", len(regs)).
		Msg("etcdqdb: add data nodes")

	sess, err := concurrency.NewSession(q.cli)
	if err != nil {
		return err
	}
	defer closeSession(sess)

	mu := concurrency.NewMutex(sess, tablesLockKey)
	if err := mu.Lock(ctx); err != nil {
		return err
	}
	defer unlockMutex(mu, ctx)

	pending := map[string]*LogicalTable{}
	var order []string
	for _, r := range regs {
		key := TableKey(r.Schema, r.Table)
		t, ok := pending[key]
		if !ok {
			t, err = q.getLogicalTable(ctx, key)
			if err != nil {
				return err
			}
			if t == nil {
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

	stmts := make([]QdbStatement, 0, len(order))
	for _, key := range order {
		raw, err := json.Marshal(pending[key])
		if err != nil {
			return err
		}
		stmts = append(stmts, QdbStatement{CmdType: CMD_PUT, Key: logicalTableNodePath(key), Value: string(raw)})
	}
	ops, err := packEtcdCommands(stmts)
	if err != nil {
		return err
	}
	resp, err := q.cli.Txn(ctx).Then(ops...).Commit()
	if err != nil {
		return err
	}
	dslog.Zero.Debug().
		Bool("succeeded", resp.Succeeded).
		Msg("etcdqdb: add data nodes")
	return nil
}

func (q *EtcdQDB) GetLogicalTable(ctx context.Context, schema, name string) (*LogicalTable, error) {
	dslog.Zero.Debug().
		Str("schema", schema).
		Str("table", name).
		Msg("etcdqdb: get logical table")

	t, err := q.getLogicalTable(ctx, TableKey(schema, name))
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("logical table \"%s.%s\" not found", schema, name)
	}
	return t, nil
}

func (q *EtcdQDB) ListLogicalTables(ctx context.Context) ([]*LogicalTable, error) {
	dslog.Zero.Debug().Msg("etcdqdb: list logical tables")

	resp, err := q.cli.Get(ctx, logicalTablesNamespace, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	ret := make([]*LogicalTable, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var t *LogicalTable
		if err := json.Unmarshal(kv.Value, &t); err != nil {
			return nil, err
		}
		ret = append(ret, t)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Key() < ret[j].Key()
	})
	return ret, nil
}

func (q *EtcdQDB) DropLogicalTable(ctx context.Context, schema, name string) error {
	dslog.Zero.Debug().
		Str("schema", schema).
		Str("table", name).
		Msg("etcdqdb: drop logical table")

	resp, err := q.cli.Delete(ctx, logicalTableNodePath(TableKey(schema, name)))
	if err != nil {
		return err
	}
	dslog.Zero.Debug().
		Int64("deleted", resp.Deleted).
		Msg("etcdqdb: drop logical table")
	return nil
}
