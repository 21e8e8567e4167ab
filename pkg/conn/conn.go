package conn

//go:generate -command mockgen -source=pkg/conn/conn.go -destination=pkg/mock/conn/conn_mock.go -package=mock_conn

import (
	"context"
)

// Column describes one column of a physical result set.
type Column struct {
	Name     string
	TypeName string
}

// Result is the outcome of a non-row-producing statement.
type Result struct {
	RowsAffected  int64
	GeneratedKeys []any
}

type Rows interface {
	Columns() ([]Column, error)
	Next() bool
	// Values returns the current row. Text values are returned as string.
	Values() ([]any, error)
	Err() error
	Close() error
}

// Stmt is a statement handle bound to one physical connection.
type Stmt interface {
	Query(ctx context.Context, args ...any) (Rows, error)
	Exec(ctx context.Context, args ...any) (Result, error)
	// Cancel aborts an in-flight Query or Exec. It is safe to call concurrently.
	Cancel() error
	Close() error
}

// Conn is one physical connection to a data source.
type Conn interface {
	DataSourceName() string
	Exec(ctx context.Context, sql string, args ...any) (Result, error)
	Prepare(ctx context.Context, sql string) (Stmt, error)
	Close() error
}

// DataSource produces physical connections.
type DataSource interface {
	Name() string
	Connect(ctx context.Context) (Conn, error)
	Close() error
}
