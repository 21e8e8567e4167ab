package poolmgr_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pg-sharding/dsproxy/pkg/conn"
	"github.com/pg-sharding/dsproxy/pkg/dialect"
	"github.com/pg-sharding/dsproxy/pkg/models/dserror"
	mockconn "github.com/pg-sharding/dsproxy/pkg/mock/conn"
	"github.com/pg-sharding/dsproxy/pkg/stmt"
	"github.com/pg-sharding/dsproxy/pkg/txstatus"
	"github.com/pg-sharding/dsproxy/router/poolmgr"
	"github.com/pg-sharding/dsproxy/router/session"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestAcquireReuse(t *testing.T) {
	assert := assert.New(t)
	ctrl := gomock.NewController(t)
	ctx := context.TODO()

	ds := mockconn.NewMockDataSource(ctrl)
	c0 := mockconn.NewMockConn(ctrl)
	c1 := mockconn.NewMockConn(ctrl)

	ds.EXPECT().Connect(gomock.Any()).Return(c0, nil).Times(1)
	ds.EXPECT().Connect(gomock.Any()).Return(c1, nil).Times(1)

	s := session.NewConnectionSession("db", dialect.NewPostgreSQL(), txstatus.LOCAL, poolmgr.DataSources{"ds_0": ds})
	mgr := s.ConnectionManager()

	conns, err := mgr.Acquire(ctx, "ds_0", 0, 1, poolmgr.MemoryStrictly)
	assert.NoError(err)
	assert.Equal([]conn.Conn{c0}, conns)

	// already cached, no new connection
	conns, err = mgr.Acquire(ctx, "ds_0", 0, 1, poolmgr.MemoryStrictly)
	assert.NoError(err)
	assert.Equal([]conn.Conn{c0}, conns)

	// only the shortfall is created
	conns, err = mgr.Acquire(ctx, "ds_0", 0, 2, poolmgr.MemoryStrictly)
	assert.NoError(err)
	assert.Equal([]conn.Conn{c0, c1}, conns)

	conns, err = mgr.Acquire(ctx, "ds_0", 1, 1, poolmgr.ConnectionStrictly)
	assert.NoError(err)
	assert.Equal([]conn.Conn{c1}, conns)
	assert.Equal(2, mgr.ConnectionSize())
	assert.Equal("ds_0", mgr.RandomDataSourceName([]string{"ds_0", "ds_1"}))

	c0.EXPECT().Close().Return(nil)
	c1.EXPECT().Close().Return(nil)
	assert.NoError(mgr.CloseStatementScoped())
	assert.Equal(0, mgr.ConnectionSize())
}

func TestAcquireReplaysSessionState(t *testing.T) {
	assert := assert.New(t)
	ctrl := gomock.NewController(t)
	ctx := context.TODO()

	ds := mockconn.NewMockDataSource(ctrl)
	c0 := mockconn.NewMockConn(ctrl)

	s := session.NewConnectionSession("db", dialect.NewPostgreSQL(), txstatus.LOCAL, poolmgr.DataSources{"ds_0": ds})
	s.SetVariable(stmt.Variable{Name: "search_path", Value: "s1"})
	s.SetReadOnly(true)
	s.TransactionStatus().SetTxStatus(txstatus.TXACT)

	mgr := s.ConnectionManager()
	mgr.AddPostProcessor(poolmgr.ExecProcessor("BEGIN"))

	ds.EXPECT().Connect(gomock.Any()).Return(c0, nil)
	gomock.InOrder(
		c0.EXPECT().Exec(gomock.Any(), "SET search_path = s1").Return(conn.Result{}, nil),
		c0.EXPECT().Exec(gomock.Any(), s.Dialect().ReadOnlySQL(true)).Return(conn.Result{}, nil),
		c0.EXPECT().Exec(gomock.Any(), "BEGIN").Return(conn.Result{}, nil),
	)

	_, err := mgr.Acquire(ctx, "ds_0", 0, 1, poolmgr.MemoryStrictly)
	assert.NoError(err)

	// inside a transaction connections survive statement end
	assert.NoError(mgr.CloseStatementScoped())
	assert.Equal(1, mgr.ConnectionSize())

	c0.EXPECT().Exec(gomock.Any(), "ROLLBACK").Return(conn.Result{}, nil)
	c0.EXPECT().Close().Return(nil)
	assert.NoError(mgr.CloseSessionScoped())
}

func TestReplayFailureClosesNewConnections(t *testing.T) {
	assert := assert.New(t)
	ctrl := gomock.NewController(t)
	ctx := context.TODO()

	ds := mockconn.NewMockDataSource(ctrl)
	c0 := mockconn.NewMockConn(ctrl)
	c1 := mockconn.NewMockConn(ctrl)

	s := session.NewConnectionSession("db", dialect.NewPostgreSQL(), txstatus.LOCAL, poolmgr.DataSources{"ds_0": ds})
	s.SetVariable(stmt.Variable{Name: "a", Value: "1"})

	closeErr := errors.New("close failed")
	ds.EXPECT().Connect(gomock.Any()).Return(c0, nil)
	ds.EXPECT().Connect(gomock.Any()).Return(c1, nil)
	c0.EXPECT().Exec(gomock.Any(), "SET a = 1").Return(conn.Result{}, errors.New("bad variable"))
	c0.EXPECT().Close().Return(nil)
	c1.EXPECT().Close().Return(closeErr)

	_, err := s.ConnectionManager().Acquire(ctx, "ds_0", 0, 2, poolmgr.MemoryStrictly)
	assert.Error(err)
	assert.True(dserror.IsCode(err, dserror.DS_CONNECTION_ERROR))
	assert.ErrorIs(err, closeErr)
	assert.Equal(0, s.ConnectionManager().ConnectionSize())
}

func TestAcquireUnknownDataSource(t *testing.T) {
	assert := assert.New(t)

	s := session.NewConnectionSession("db", dialect.NewPostgreSQL(), txstatus.LOCAL, poolmgr.DataSources{})
	_, err := s.ConnectionManager().Acquire(context.TODO(), "ds_9", 0, 1, poolmgr.MemoryStrictly)
	assert.True(dserror.IsCode(err, dserror.DS_CONNECTION_ERROR))
}

func TestHandlers(t *testing.T) {
	assert := assert.New(t)
	ctrl := gomock.NewController(t)

	s := session.NewConnectionSession("db", dialect.NewPostgreSQL(), txstatus.LOCAL, poolmgr.DataSources{})
	mgr := s.ConnectionManager()

	used := mockconn.NewMockStmt(ctrl)
	free := mockconn.NewMockStmt(ctrl)
	mgr.Add(used)
	mgr.Add(free)
	mgr.MarkResourceInUse(used)

	free.EXPECT().Close().Return(nil)
	assert.NoError(mgr.CloseHandlers(false))

	used.EXPECT().Close().Return(errors.New("boom"))
	assert.Error(mgr.CloseHandlers(true))

	// nothing left to close
	assert.NoError(mgr.CloseHandlers(true))
}

func TestCloseConnectionsCollectsErrors(t *testing.T) {
	assert := assert.New(t)
	ctrl := gomock.NewController(t)
	ctx := context.TODO()

	d0 := mockconn.NewMockDataSource(ctrl)
	d1 := mockconn.NewMockDataSource(ctrl)
	c0 := mockconn.NewMockConn(ctrl)
	c1 := mockconn.NewMockConn(ctrl)
	d0.EXPECT().Connect(gomock.Any()).Return(c0, nil)
	d1.EXPECT().Connect(gomock.Any()).Return(c1, nil)

	s := session.NewConnectionSession("db", dialect.NewPostgreSQL(), txstatus.LOCAL, poolmgr.DataSources{"ds_0": d0, "ds_1": d1})
	mgr := s.ConnectionManager()
	_, err := mgr.Acquire(ctx, "ds_0", 0, 1, poolmgr.MemoryStrictly)
	assert.NoError(err)
	_, err = mgr.Acquire(ctx, "ds_1", 0, 1, poolmgr.MemoryStrictly)
	assert.NoError(err)

	var seen []string
	assert.NoError(mgr.ForEachCached(func(ds string, _ conn.Conn) error {
		seen = append(seen, ds)
		return nil
	}))
	assert.Equal([]string{"ds_0", "ds_1"}, seen)

	e0 := errors.New("e0")
	e1 := errors.New("e1")
	c0.EXPECT().Close().Return(e0)
	c1.EXPECT().Close().Return(e1)

	err = mgr.CloseConnections(false)
	assert.ErrorIs(err, e0)
	assert.ErrorIs(err, e1)
}

func TestAcquireCachesEveryDataSource(t *testing.T) {
	assert := assert.New(t)
	ctrl := gomock.NewController(t)
	ctx := context.TODO()

	ds0 := mockconn.NewMockDataSource(ctrl)
	ds1 := mockconn.NewMockDataSource(ctrl)
	c0 := mockconn.NewMockConn(ctrl)
	c1 := mockconn.NewMockConn(ctrl)
	c2 := mockconn.NewMockConn(ctrl)

	connects := 0
	ds0.EXPECT().Connect(gomock.Any()).DoAndReturn(func(context.Context) (conn.Conn, error) {
		connects++
		if connects == 1 {
			return c0, nil
		}
		return c1, nil
	}).Times(2)
	ds1.EXPECT().Connect(gomock.Any()).Return(c2, nil).Times(1)

	s := session.NewConnectionSession("db", dialect.NewPostgreSQL(), txstatus.LOCAL, poolmgr.DataSources{"ds_0": ds0, "ds_1": ds1})
	mgr := s.ConnectionManager()

	for range 2 {
		conns, err := mgr.Acquire(ctx, "ds_0", 0, 2, poolmgr.MemoryStrictly)
		assert.NoError(err)
		assert.Equal([]conn.Conn{c0, c1}, conns)

		conns, err = mgr.Acquire(ctx, "ds_1", 0, 1, poolmgr.MemoryStrictly)
		assert.NoError(err)
		assert.Equal([]conn.Conn{c2}, conns)
	}
	assert.Equal(2, connects)
	assert.Equal(3, mgr.ConnectionSize())

	var visited []string
	assert.NoError(mgr.ForEachCached(func(dataSource string, _ conn.Conn) error {
		visited = append(visited, dataSource)
		return nil
	}))
	assert.Equal([]string{"ds_0", "ds_0", "ds_1"}, visited)

	c0.EXPECT().Close().Return(nil)
	c1.EXPECT().Close().Return(nil)
	c2.EXPECT().Close().Return(nil)
	assert.NoError(mgr.CloseSessionScoped())
}
