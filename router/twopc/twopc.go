package twopc

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pg-sharding/dsproxy/pkg/conn"
	"github.com/pg-sharding/dsproxy/pkg/dialect"
	"github.com/pg-sharding/dsproxy/pkg/dslog"
	"github.com/pg-sharding/dsproxy/pkg/icp"
	"github.com/pg-sharding/dsproxy/pkg/models/dserror"
	"go.uber.org/multierr"
)

// Participants enumerates the physical connections of a transaction.
type Participants interface {
	ForEachCached(fn func(dataSource string, c conn.Conn) error) error
}

// NewGID returns a global transaction id.
func NewGID() (string, error) {
	uid7, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return uid7.String(), nil
}

// Transaction is a global transaction. Every physical connection taking part
// in it is a branch with its own id, so that two branches on the same server
// never share a prepared transaction name.
type Transaction struct {
	mu       sync.Mutex
	gid      string
	branches map[conn.Conn]string
}

func NewTransaction() (*Transaction, error) {
	gid, err := NewGID()
	if err != nil {
		return nil, err
	}
	return &Transaction{gid: gid, branches: map[conn.Conn]string{}}, nil
}

func (t *Transaction) GID() string {
	return t.gid
}

// BranchID returns the id of the branch running on c, assigning the next one
// on first use.
func (t *Transaction) BranchID(c conn.Conn) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id, ok := t.branches[c]; ok {
		return id
	}
	id := fmt.Sprintf("%s-%d", t.gid, len(t.branches))
	t.branches[c] = id
	return id
}

// BeginSQL starts the branch xid of a global transaction.
func BeginSQL(dialectName, xid string) string {
	if dialectName == dialect.MySQL {
		return fmt.Sprintf(`XA START '%s'`, xid)
	}
	return "BEGIN"
}

func prepareSQL(dialectName, xid string) []string {
	if dialectName == dialect.MySQL {
		return []string{
			fmt.Sprintf(`XA END '%s'`, xid),
			fmt.Sprintf(`XA PREPARE '%s'`, xid),
		}
	}
	return []string{fmt.Sprintf(`PREPARE TRANSACTION '%s'`, xid)}
}

func commitPreparedSQL(dialectName, xid string) string {
	if dialectName == dialect.MySQL {
		return fmt.Sprintf(`XA COMMIT '%s'`, xid)
	}
	return fmt.Sprintf(`COMMIT PREPARED '%s'`, xid)
}

func rollbackPreparedSQL(dialectName, xid string) string {
	if dialectName == dialect.MySQL {
		return fmt.Sprintf(`XA ROLLBACK '%s'`, xid)
	}
	return fmt.Sprintf(`ROLLBACK PREPARED '%s'`, xid)
}

// RollbackSQL aborts a branch that was not prepared yet.
func RollbackSQL(dialectName, xid string) []string {
	if dialectName == dialect.MySQL {
		return []string{
			fmt.Sprintf(`XA END '%s'`, xid),
			fmt.Sprintf(`XA ROLLBACK '%s'`, xid),
		}
	}
	return []string{"ROLLBACK"}
}

type branch struct {
	dataSource string
	c          conn.Conn
}

// ExecuteTwoPhaseCommit prepares every branch of tx and commits them once all
// of them succeeded. A failed first phase rolls back every branch.
func ExecuteTwoPhaseCommit(ctx context.Context, clid string, dialectName string, tx *Transaction, p Participants) error {
	gid := tx.GID()
	var branches []branch
	_ = p.ForEachCached(func(ds string, c conn.Conn) error {
		branches = append(branches, branch{dataSource: ds, c: c})
		return nil
	})

	/*
	* go along first phase
	 */
	prepared := make([]branch, 0, len(branches))
	for _, b := range branches {
		var err error
		for _, q := range prepareSQL(dialectName, tx.BranchID(b.c)) {
			if _, err = b.c.Exec(ctx, q); err != nil {
				break
			}
		}
		if err != nil {
			dslog.Zero.Error().
				Str("session", clid).
				Str("txid", gid).
				Str("ds", b.dataSource).
				Err(err).
				Msg("first phase failed, rolling back")
			return multierr.Append(dserror.BackendDatabase(b.dataSource, err), abort(ctx, dialectName, tx, branches, prepared))
		}
		prepared = append(prepared, b)
	}

	dslog.Zero.Info().Str("session", clid).Str("txid", gid).Msg("first phase succeeded")

	if err := icp.CheckControlPoint(icp.TwoPhaseDecisionCP); err != nil {
		dslog.Zero.Info().Str("session", clid).Str("txid", gid).Err(err).Msg("aborting prepared transaction")
		return multierr.Append(err, abort(ctx, dialectName, tx, branches, prepared))
	}

	var err error
	for _, b := range prepared {
		if _, cerr := b.c.Exec(ctx, commitPreparedSQL(dialectName, tx.BranchID(b.c))); cerr != nil {
			/* XXX: prepared branch is left for recovery */
			err = multierr.Append(err, dserror.BackendDatabase(b.dataSource, cerr))
			continue
		}
		dslog.Zero.Info().Str("session", clid).Str("ds", b.dataSource).Str("txid", gid).Msg("committed on data source")
	}
	return err
}

func abort(ctx context.Context, dialectName string, tx *Transaction, all, prepared []branch) error {
	isPrepared := map[conn.Conn]bool{}
	for _, b := range prepared {
		isPrepared[b.c] = true
	}

	var err error
	for _, b := range all {
		if isPrepared[b.c] {
			if _, rerr := b.c.Exec(ctx, rollbackPreparedSQL(dialectName, tx.BranchID(b.c))); rerr != nil {
				err = multierr.Append(err, dserror.BackendDatabase(b.dataSource, rerr))
			}
			continue
		}
		for _, q := range RollbackSQL(dialectName, tx.BranchID(b.c)) {
			if _, rerr := b.c.Exec(ctx, q); rerr != nil {
				err = multierr.Append(err, dserror.BackendDatabase(b.dataSource, rerr))
				break
			}
		}
	}
	return err
}
