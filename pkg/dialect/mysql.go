package dialect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pg-sharding/dsproxy/pkg/models/dserror"
	"github.com/pg-sharding/dsproxy/pkg/stmt"
)

// SQLError is the MySQL client-facing error shape.
type SQLError struct {
	Num      uint16
	SQLState string
	Message  string
}

func (e *SQLError) Error() string {
	return fmt.Sprintf("ERROR %d (%s): %s", e.Num, e.SQLState, e.Message)
}

type mysql struct {
	base
}

var _ Dialect = &mysql{}

func NewMySQL() Dialect {
	return &mysql{
		base: base{
			name:          MySQL,
			systemSchemas: schemaSet("information_schema", "mysql", "performance_schema", "sys", "dsproxy"),
		},
	}
}

func (m *mysql) TransactionalDDL() bool {
	return true
}

func (m *mysql) ImplicitCommitOnDDL() bool {
	return true
}

func (m *mysql) SetVariableSQL(name, value string) string {
	return fmt.Sprintf("SET %s=%s", name, value)
}

func (m *mysql) IsolationLevelSQL(level string) string {
	return fmt.Sprintf("SET SESSION TRANSACTION ISOLATION LEVEL %s", strings.ToUpper(level))
}

func (m *mysql) ReadOnlySQL(readOnly bool) string {
	if readOnly {
		return "SET SESSION TRANSACTION READ ONLY"
	}
	return "SET SESSION TRANSACTION READ WRITE"
}

var mysqlErrByCode = map[string]SQLError{
	dserror.DS_TABLE_EXISTS:       {Num: 1050, SQLState: "42S01"},
	dserror.DS_CONNECTION_ERROR:   {Num: 2013, SQLState: "HY000"},
	dserror.DS_UNSUPPORTED_IN_TX:  {Num: 1568, SQLState: "25001"},
	dserror.DS_EMPTY_STORAGE_UNIT: {Num: 1049, SQLState: "42000"},
	dserror.DS_INCOMPLETE_RULE:    {Num: 1049, SQLState: "42000"},
	dserror.DS_CURSOR_NOT_FOUND:   {Num: 1324, SQLState: "42000"},
	dserror.DS_NOT_IMPLEMENTED:    {Num: 1235, SQLState: "42000"},
}

func (m *mysql) TranslateError(err error) error {
	if err == nil {
		return nil
	}
	var se *SQLError
	if errors.As(err, &se) {
		return se
	}
	out := SQLError{Num: 1815, SQLState: "HY000"}
	var de *dserror.DsError
	if errors.As(err, &de) {
		if e, ok := mysqlErrByCode[de.ErrorCode]; ok {
			out = e
		}
	}
	out.Message = err.Error()
	return &out
}

// SaneResult also turns a failed SET into a zero update count.
func (m *mysql) SaneResult(st *stmt.Statement) (*SaneResult, bool) {
	if st != nil && st.Kind.Has(stmt.Set) {
		return &SaneResult{}, true
	}
	return selectOneSaneResult(st)
}
