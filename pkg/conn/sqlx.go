package conn

import (
	"context"
	"database/sql"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pg-sharding/dsproxy/pkg/config"
	"github.com/pg-sharding/dsproxy/pkg/dslog"
	"github.com/pkg/errors"
)

// SQLDataSource is a DataSource over a database/sql pool.
type SQLDataSource struct {
	name string
	db   *sqlx.DB
}

var _ DataSource = &SQLDataSource{}

// OpenDataSource opens a pool for cfg. The pool is lazy: no connection is
// made until the first Connect.
func OpenDataSource(cfg config.DataSourceCfg) (*SQLDataSource, error) {
	var db *sqlx.DB
	switch cfg.Driver {
	case config.DriverPgx, "":
		connCfg, err := pgx.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, errors.Wrapf(err, "parse dsn of data source \"%s\"", cfg.Name)
		}
		connCfg.Tracer = &tracelog.TraceLog{
			Logger:   &dslog.ZeroTraceLogger{},
			LogLevel: tracelog.LogLevelDebug,
		}
		connStr := stdlib.RegisterConnConfig(connCfg)
		db, err = sqlx.Open("pgx", connStr)
		if err != nil {
			return nil, err
		}
	case config.DriverPostgres:
		var err error
		db, err = sqlx.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("unknown driver \"%s\"", cfg.Driver)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return NewSQLDataSource(cfg.Name, db), nil
}

func NewSQLDataSource(name string, db *sqlx.DB) *SQLDataSource {
	return &SQLDataSource{name: name, db: db}
}

func (ds *SQLDataSource) Name() string {
	return ds.name
}

func (ds *SQLDataSource) Connect(ctx context.Context) (Conn, error) {
	c, err := ds.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	dslog.Zero.Debug().
		Str("ds", ds.name).
		Uint("conn", dslog.GetPointer(c)).
		Msg("acquired physical connection")
	return &sqlConn{ds: ds.name, c: c}, nil
}

func (ds *SQLDataSource) Close() error {
	return ds.db.Close()
}

// sqlConn pins one pool connection so session state survives between statements.
type sqlConn struct {
	ds string
	c  *sqlx.Conn
}

func (c *sqlConn) DataSourceName() string {
	return c.ds
}

func (c *sqlConn) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	res, err := c.c.ExecContext(ctx, query, args...)
	if err != nil {
		return Result{}, err
	}
	return toResult(res), nil
}

func (c *sqlConn) Prepare(ctx context.Context, query string) (Stmt, error) {
	st, err := c.c.PreparexContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &sqlStmt{st: st}, nil
}

func (c *sqlConn) Close() error {
	return c.c.Close()
}

type sqlStmt struct {
	st *sqlx.Stmt

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (s *sqlStmt) begin(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	return ctx
}

func (s *sqlStmt) Query(ctx context.Context, args ...any) (Rows, error) {
	ctx = s.begin(ctx)
	rows, err := s.st.QueryxContext(ctx, args...)
	if err != nil {
		_ = s.Cancel()
		return nil, err
	}
	return &sqlRows{rows: rows}, nil
}

func (s *sqlStmt) Exec(ctx context.Context, args ...any) (Result, error) {
	ctx = s.begin(ctx)
	defer func() { _ = s.Cancel() }()
	res, err := s.st.ExecContext(ctx, args...)
	if err != nil {
		return Result{}, err
	}
	return toResult(res), nil
}

func (s *sqlStmt) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}

func (s *sqlStmt) Close() error {
	_ = s.Cancel()
	return s.st.Close()
}

type sqlRows struct {
	rows *sqlx.Rows
}

func (r *sqlRows) Columns() ([]Column, error) {
	types, err := r.rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	cols := make([]Column, 0, len(types))
	for _, t := range types {
		cols = append(cols, Column{Name: t.Name(), TypeName: t.DatabaseTypeName()})
	}
	return cols, nil
}

func (r *sqlRows) Next() bool {
	return r.rows.Next()
}

func (r *sqlRows) Values() ([]any, error) {
	vals, err := r.rows.SliceScan()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if b, ok := v.([]byte); ok {
			vals[i] = string(b)
		}
	}
	return vals, nil
}

func (r *sqlRows) Err() error {
	return r.rows.Err()
}

func (r *sqlRows) Close() error {
	return r.rows.Close()
}

func toResult(res sql.Result) Result {
	out := Result{}
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if id, err := res.LastInsertId(); err == nil && id > 0 {
		out.GeneratedKeys = []any{id}
	}
	return out
}
