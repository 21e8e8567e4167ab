package dialect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pg-sharding/dsproxy/pkg/models/dserror"
	"github.com/pg-sharding/dsproxy/pkg/stmt"
)

type postgres struct {
	base
}

var _ Dialect = &postgres{}

func NewPostgreSQL() Dialect {
	return &postgres{
		base: base{
			name:          PostgreSQL,
			defaultSchema: "public",
			systemSchemas: schemaSet("information_schema", "pg_catalog", "dsproxy"),
		},
	}
}

func NewOpenGauss() Dialect {
	return &postgres{
		base: base{
			name:          OpenGauss,
			defaultSchema: "public",
			systemSchemas: schemaSet("information_schema", "pg_catalog", "dsproxy",
				"blockchain", "cstore", "db4ai", "dbe_perf", "dbe_pldebugger", "gaussdb"),
		},
	}
}

func (p *postgres) TransactionalDDL() bool {
	return false
}

func (p *postgres) ImplicitCommitOnDDL() bool {
	return false
}

func (p *postgres) SetVariableSQL(name, value string) string {
	return fmt.Sprintf("SET %s = %s", name, value)
}

func (p *postgres) IsolationLevelSQL(level string) string {
	return fmt.Sprintf("SET SESSION CHARACTERISTICS AS TRANSACTION ISOLATION LEVEL %s", strings.ToUpper(level))
}

func (p *postgres) ReadOnlySQL(readOnly bool) string {
	if readOnly {
		return "SET SESSION CHARACTERISTICS AS TRANSACTION READ ONLY"
	}
	return "SET SESSION CHARACTERISTICS AS TRANSACTION READ WRITE"
}

var sqlStateByCode = map[string]string{
	dserror.DS_TABLE_EXISTS:       "42P07",
	dserror.DS_CONNECTION_ERROR:   "08006",
	dserror.DS_UNSUPPORTED_IN_TX:  "25001",
	dserror.DS_EMPTY_STORAGE_UNIT: "3D000",
	dserror.DS_INCOMPLETE_RULE:    "3D000",
	dserror.DS_CURSOR_NOT_FOUND:   "34000",
	dserror.DS_NOT_IMPLEMENTED:    "0A000",
}

// TranslateError renders err as a PostgreSQL error. Backend errors that
// already carry a PostgreSQL shape pass through unchanged.
func (p *postgres) TranslateError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr
	}
	code := "XX000"
	var de *dserror.DsError
	if errors.As(err, &de) {
		if c, ok := sqlStateByCode[de.ErrorCode]; ok {
			code = c
		}
	}
	return &pgconn.PgError{
		Severity: "ERROR",
		Code:     code,
		Message:  err.Error(),
	}
}

func (p *postgres) SaneResult(st *stmt.Statement) (*SaneResult, bool) {
	return selectOneSaneResult(st)
}
