package txn

import (
	"context"
	"fmt"

	"github.com/pg-sharding/dsproxy/pkg/conn"
	"github.com/pg-sharding/dsproxy/pkg/dslog"
	"github.com/pg-sharding/dsproxy/pkg/models/dserror"
	"github.com/pg-sharding/dsproxy/pkg/txstatus"
	"github.com/pg-sharding/dsproxy/router/poolmgr"
	"github.com/pg-sharding/dsproxy/router/session"
	"github.com/pg-sharding/dsproxy/router/twopc"
	"go.uber.org/multierr"
)

// Manager drives transactions of one session across its physical connections.
// Connections joining later replay the recorded post-processors.
type Manager struct {
	sess *session.ConnectionSession
}

func NewManager(sess *session.ConnectionSession) *Manager {
	return &Manager{sess: sess}
}

func (m *Manager) dialectName() string {
	return m.sess.Dialect().Name()
}

func (m *Manager) distributed() bool {
	return m.sess.TransactionStatus().TransactionType() == txstatus.XA
}

func execAll(ctx context.Context, cm *poolmgr.Manager, queries ...string) error {
	return cm.ForEachCached(func(_ string, c conn.Conn) error {
		for _, q := range queries {
			if _, err := c.Exec(ctx, q); err != nil {
				return err
			}
		}
		return nil
	})
}

// beginProcessor starts the transaction on one connection. Branches of a
// distributed transaction get their own id.
func (m *Manager) beginProcessor(tx *twopc.Transaction) poolmgr.PostProcessor {
	if tx == nil {
		return poolmgr.ExecProcessor("BEGIN")
	}
	dialectName := m.dialectName()
	return func(ctx context.Context, c conn.Conn) error {
		_, err := c.Exec(ctx, twopc.BeginSQL(dialectName, tx.BranchID(c)))
		return err
	}
}

func (m *Manager) Begin(ctx context.Context) error {
	ts := m.sess.TransactionStatus()
	if ts.InTransaction() {
		dslog.Zero.Debug().Str("session", m.sess.ID()).Msg("transaction already in progress")
		return nil
	}

	var tx *twopc.Transaction
	if m.distributed() {
		var err error
		if tx, err = twopc.NewTransaction(); err != nil {
			return err
		}
	}
	begin := m.beginProcessor(tx)

	cm := m.sess.ConnectionManager()
	cm.ClearPostProcessors()
	cm.AddPostProcessor(begin)

	if err := cm.ForEachCached(func(_ string, c conn.Conn) error {
		return begin(ctx, c)
	}); err != nil {
		cm.ClearPostProcessors()
		return err
	}
	m.sess.SetXA(tx)
	ts.SetTxStatus(txstatus.TXACT)

	dslog.Zero.Debug().
		Str("session", m.sess.ID()).
		Str("type", string(ts.TransactionType())).
		Str("txid", m.sess.XID()).
		Msg("transaction started")
	return nil
}

func (m *Manager) finish() {
	ts := m.sess.TransactionStatus()
	ts.SetTxStatus(txstatus.TXIDLE)
	// cursors end with the transaction
	m.sess.CloseAllCursors()
	m.sess.ConnectionManager().ClearPostProcessors()
	m.sess.SetXA(nil)
}

func (m *Manager) Commit(ctx context.Context) error {
	if !m.sess.TransactionStatus().InTransaction() {
		return nil
	}
	defer m.finish()

	cm := m.sess.ConnectionManager()
	if tx := m.sess.XA(); tx != nil {
		return twopc.ExecuteTwoPhaseCommit(ctx, m.sess.ID(), m.dialectName(), tx, cm)
	}
	return execAll(ctx, cm, "COMMIT")
}

// Rollback aborts the transaction on every connection, collecting failures.
func (m *Manager) Rollback(ctx context.Context) error {
	if !m.sess.TransactionStatus().InTransaction() {
		return nil
	}
	defer m.finish()

	tx := m.sess.XA()
	var err error
	_ = m.sess.ConnectionManager().ForEachCached(func(ds string, c conn.Conn) error {
		queries := []string{"ROLLBACK"}
		if tx != nil {
			queries = twopc.RollbackSQL(m.dialectName(), tx.BranchID(c))
		}
		for _, q := range queries {
			if _, rerr := c.Exec(ctx, q); rerr != nil {
				err = multierr.Append(err, dserror.BackendDatabase(ds, rerr))
				break
			}
		}
		return nil
	})
	return err
}

// Savepoint is recorded so that connections opened later in the
// transaction also know it.
func (m *Manager) Savepoint(ctx context.Context, name string) error {
	q := fmt.Sprintf("SAVEPOINT %s", name)
	cm := m.sess.ConnectionManager()
	if err := execAll(ctx, cm, q); err != nil {
		return err
	}
	cm.AddPostProcessor(poolmgr.ExecProcessor(q))
	return nil
}

func (m *Manager) RollbackToSavepoint(ctx context.Context, name string) error {
	return execAll(ctx, m.sess.ConnectionManager(), fmt.Sprintf("ROLLBACK TO SAVEPOINT %s", name))
}

func (m *Manager) ReleaseSavepoint(ctx context.Context, name string) error {
	return execAll(ctx, m.sess.ConnectionManager(), fmt.Sprintf("RELEASE SAVEPOINT %s", name))
}
