package txn_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/pg-sharding/dsproxy/pkg/conn"
	"github.com/pg-sharding/dsproxy/pkg/dialect"
	mockconn "github.com/pg-sharding/dsproxy/pkg/mock/conn"
	"github.com/pg-sharding/dsproxy/pkg/models/dserror"
	"github.com/pg-sharding/dsproxy/pkg/txstatus"
	"github.com/pg-sharding/dsproxy/router/poolmgr"
	"github.com/pg-sharding/dsproxy/router/session"
	"github.com/pg-sharding/dsproxy/router/txn"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestLocalTransaction(t *testing.T) {
	assert := assert.New(t)
	ctrl := gomock.NewController(t)
	ctx := context.TODO()

	ds := mockconn.NewMockDataSource(ctrl)
	c0 := mockconn.NewMockConn(ctrl)

	s := session.NewConnectionSession("db", dialect.NewPostgreSQL(), txstatus.LOCAL, poolmgr.DataSources{"ds_0": ds})
	tm := txn.NewManager(s)

	assert.NoError(tm.Begin(ctx))
	assert.True(s.TransactionStatus().InTransaction())

	// a connection acquired inside the transaction replays BEGIN and the savepoint
	ds.EXPECT().Connect(gomock.Any()).Return(c0, nil)
	gomock.InOrder(
		c0.EXPECT().Exec(gomock.Any(), "BEGIN").Return(conn.Result{}, nil),
		c0.EXPECT().Exec(gomock.Any(), "SAVEPOINT sp1").Return(conn.Result{}, nil),
		c0.EXPECT().Exec(gomock.Any(), "COMMIT").Return(conn.Result{}, nil),
	)

	assert.NoError(tm.Savepoint(ctx, "sp1"))
	_, err := s.ConnectionManager().Acquire(ctx, "ds_0", 0, 1, poolmgr.MemoryStrictly)
	assert.NoError(err)

	assert.NoError(tm.Commit(ctx))
	assert.False(s.TransactionStatus().InTransaction())

	// nothing to do outside a transaction
	assert.NoError(tm.Commit(ctx))
	assert.NoError(tm.Rollback(ctx))
}

func TestRollbackCollectsErrors(t *testing.T) {
	assert := assert.New(t)
	ctrl := gomock.NewController(t)
	ctx := context.TODO()

	d0 := mockconn.NewMockDataSource(ctrl)
	d1 := mockconn.NewMockDataSource(ctrl)
	c0 := mockconn.NewMockConn(ctrl)
	c1 := mockconn.NewMockConn(ctrl)

	s := session.NewConnectionSession("db", dialect.NewPostgreSQL(), txstatus.LOCAL, poolmgr.DataSources{"ds_0": d0, "ds_1": d1})
	tm := txn.NewManager(s)
	assert.NoError(tm.Begin(ctx))

	d0.EXPECT().Connect(gomock.Any()).Return(c0, nil)
	d1.EXPECT().Connect(gomock.Any()).Return(c1, nil)
	c0.EXPECT().Exec(gomock.Any(), "BEGIN").Return(conn.Result{}, nil)
	c1.EXPECT().Exec(gomock.Any(), "BEGIN").Return(conn.Result{}, nil)
	_, err := s.ConnectionManager().Acquire(ctx, "ds_0", 0, 1, poolmgr.MemoryStrictly)
	assert.NoError(err)
	_, err = s.ConnectionManager().Acquire(ctx, "ds_1", 0, 1, poolmgr.MemoryStrictly)
	assert.NoError(err)

	c0.EXPECT().Exec(gomock.Any(), "ROLLBACK").Return(conn.Result{}, errors.New("gone"))
	c1.EXPECT().Exec(gomock.Any(), "ROLLBACK").Return(conn.Result{}, nil)

	err = tm.Rollback(ctx)
	assert.Error(err)
	assert.True(dserror.IsCode(err, dserror.DS_BACKEND_ERROR))
	assert.False(s.TransactionStatus().InTransaction())
}

func TestDistributedCommit(t *testing.T) {
	assert := assert.New(t)
	ctrl := gomock.NewController(t)
	ctx := context.TODO()

	ds := mockconn.NewMockDataSource(ctrl)
	c0 := mockconn.NewMockConn(ctrl)

	s := session.NewConnectionSession("db", dialect.NewPostgreSQL(), txstatus.XA, poolmgr.DataSources{"ds_0": ds})
	tm := txn.NewManager(s)
	assert.NoError(tm.Begin(ctx))

	ds.EXPECT().Connect(gomock.Any()).Return(c0, nil)
	c0.EXPECT().Exec(gomock.Any(), "BEGIN").Return(conn.Result{}, nil)
	_, err := s.ConnectionManager().Acquire(ctx, "ds_0", 0, 1, poolmgr.MemoryStrictly)
	assert.NoError(err)

	c0.EXPECT().Exec(gomock.Any(), gomock.Cond(func(q any) bool {
		return strings.HasPrefix(q.(string), "PREPARE TRANSACTION '")
	})).Return(conn.Result{}, nil)
	c0.EXPECT().Exec(gomock.Any(), gomock.Cond(func(q any) bool {
		return strings.HasPrefix(q.(string), "COMMIT PREPARED '")
	})).Return(conn.Result{}, nil)

	assert.NoError(tm.Commit(ctx))
	assert.False(s.TransactionStatus().InTransaction())
}

func TestDistributedBranchesOnOneDataSource(t *testing.T) {
	assert := assert.New(t)
	ctrl := gomock.NewController(t)
	ctx := context.TODO()

	ds := mockconn.NewMockDataSource(ctrl)
	c0 := mockconn.NewMockConn(ctrl)
	c1 := mockconn.NewMockConn(ctrl)

	s := session.NewConnectionSession("db", dialect.NewMySQL(), txstatus.XA, poolmgr.DataSources{"ds_0": ds})
	tm := txn.NewManager(s)
	assert.NoError(tm.Begin(ctx))
	gid := s.XID()
	assert.NotEmpty(gid)

	ds.EXPECT().Connect(gomock.Any()).Return(c0, nil)
	ds.EXPECT().Connect(gomock.Any()).Return(c1, nil)
	for i, c := range []*mockconn.MockConn{c0, c1} {
		xid := fmt.Sprintf("'%s-%d'", gid, i)
		gomock.InOrder(
			c.EXPECT().Exec(gomock.Any(), "XA START "+xid).Return(conn.Result{}, nil),
			c.EXPECT().Exec(gomock.Any(), "XA END "+xid).Return(conn.Result{}, nil),
			c.EXPECT().Exec(gomock.Any(), "XA PREPARE "+xid).Return(conn.Result{}, nil),
			c.EXPECT().Exec(gomock.Any(), "XA COMMIT "+xid).Return(conn.Result{}, nil),
		)
	}
	_, err := s.ConnectionManager().Acquire(ctx, "ds_0", 0, 2, poolmgr.MemoryStrictly)
	assert.NoError(err)

	assert.NoError(tm.Commit(ctx))
	assert.Empty(s.XID())
}

func TestCommitReleasesCursors(t *testing.T) {
	assert := assert.New(t)
	ctrl := gomock.NewController(t)
	ctx := context.TODO()

	ds := mockconn.NewMockDataSource(ctrl)
	c0 := mockconn.NewMockConn(ctrl)
	s0 := mockconn.NewMockStmt(ctrl)

	s := session.NewConnectionSession("db", dialect.NewPostgreSQL(), txstatus.LOCAL, poolmgr.DataSources{"ds_0": ds})
	tm := txn.NewManager(s)
	cm := s.ConnectionManager()
	assert.NoError(tm.Begin(ctx))

	ds.EXPECT().Connect(gomock.Any()).Return(c0, nil)
	c0.EXPECT().Exec(gomock.Any(), "BEGIN").Return(conn.Result{}, nil)
	_, err := cm.Acquire(ctx, "ds_0", 0, 1, poolmgr.MemoryStrictly)
	assert.NoError(err)

	s.DeclareCursor("c1", nil)
	cm.Add(s0)
	s.HoldCursor("c1", s0)
	assert.True(s.TransactionStatus().InConnectionHeldTransaction())
	assert.NoError(cm.CloseHandlers(false))

	c0.EXPECT().Exec(gomock.Any(), "COMMIT").Return(conn.Result{}, nil)
	assert.NoError(tm.Commit(ctx))
	assert.Equal(0, s.CursorCount())
	assert.False(s.TransactionStatus().InConnectionHeldTransaction())

	s0.EXPECT().Close().Return(nil)
	assert.NoError(cm.CloseHandlers(false))
}
