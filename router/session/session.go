package session

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pg-sharding/dsproxy/pkg/dialect"
	"github.com/pg-sharding/dsproxy/pkg/dslog"
	"github.com/pg-sharding/dsproxy/pkg/stmt"
	"github.com/pg-sharding/dsproxy/pkg/txstatus"
	"github.com/pg-sharding/dsproxy/router/poolmgr"
	"github.com/pg-sharding/dsproxy/router/twopc"
)

// ConnectionSession is the proxy-side state of one client connection.
// It is used by a single goroutine at a time.
type ConnectionSession struct {
	id       string
	database string
	dialect  dialect.Dialect

	autoCommit bool
	isolation  string
	readOnly   bool

	txStatus *txstatus.TransactionStatus
	// running XA transaction
	xa *twopc.Transaction

	// declared cursors by lowercased name
	cursors map[string]*stmt.Statement
	// statement handles backing each cursor, kept open until it closes
	cursorHandles map[string][]poolmgr.Handler

	// variables replayed on every new physical connection, in SET order
	variables []stmt.Variable

	connMgr *poolmgr.Manager
}

var _ poolmgr.SessionState = &ConnectionSession{}

func NewConnectionSession(database string, d dialect.Dialect, txType txstatus.TransactionType, sources poolmgr.DataSourceProvider) *ConnectionSession {
	s := &ConnectionSession{
		id:         uuid.Must(uuid.NewV7()).String(),
		database:   database,
		dialect:    d,
		autoCommit: true,
		txStatus:   txstatus.NewTransactionStatus(txType),
		cursors:    map[string]*stmt.Statement{},

		cursorHandles: map[string][]poolmgr.Handler{},
	}
	s.connMgr = poolmgr.NewManager(s, d, sources)
	return s
}

func (s *ConnectionSession) ID() string {
	return s.id
}

func (s *ConnectionSession) DatabaseName() string {
	return s.database
}

func (s *ConnectionSession) Dialect() dialect.Dialect {
	return s.dialect
}

func (s *ConnectionSession) AutoCommit() bool {
	return s.autoCommit
}

func (s *ConnectionSession) SetAutoCommit(v bool) {
	s.autoCommit = v
}

func (s *ConnectionSession) IsolationLevel() string {
	return s.isolation
}

func (s *ConnectionSession) SetIsolationLevel(level string) {
	s.isolation = level
}

func (s *ConnectionSession) ReadOnly() bool {
	return s.readOnly
}

func (s *ConnectionSession) SetReadOnly(v bool) {
	s.readOnly = v
}

func (s *ConnectionSession) TransactionStatus() *txstatus.TransactionStatus {
	return s.txStatus
}

// XID returns the global id of the running XA transaction, if any.
func (s *ConnectionSession) XID() string {
	if s.xa == nil {
		return ""
	}
	return s.xa.GID()
}

func (s *ConnectionSession) XA() *twopc.Transaction {
	return s.xa
}

func (s *ConnectionSession) SetXA(tx *twopc.Transaction) {
	s.xa = tx
}

func (s *ConnectionSession) ConnectionManager() *poolmgr.Manager {
	return s.connMgr
}

func (s *ConnectionSession) Variables() []stmt.Variable {
	return append([]stmt.Variable{}, s.variables...)
}

// SetVariable records a session variable; setting it again replaces the value.
func (s *ConnectionSession) SetVariable(v stmt.Variable) {
	for i := range s.variables {
		if strings.EqualFold(s.variables[i].Name, v.Name) {
			s.variables[i].Value = v.Value
			return
		}
	}
	s.variables = append(s.variables, v)
}

func (s *ConnectionSession) ResetVariable(name string) {
	for i := range s.variables {
		if strings.EqualFold(s.variables[i].Name, name) {
			s.variables = append(s.variables[:i], s.variables[i+1:]...)
			return
		}
	}
}

/* cursor context */

// DeclareCursor stores the declaring statement. Inside a transaction the
// cursor pins the session's connections.
func (s *ConnectionSession) DeclareCursor(name string, st *stmt.Statement) {
	key := strings.ToLower(name)
	s.releaseCursor(key)
	s.cursors[key] = st
	if s.txStatus.InTransaction() {
		s.txStatus.SetConnectionHeld(true)
	}
	dslog.Zero.Debug().
		Str("session", s.id).
		Str("cursor", name).
		Msg("cursor declared")
}

// HoldCursor marks the handles that declared a cursor in use so that
// closing later statements leaves them open.
func (s *ConnectionSession) HoldCursor(name string, hs ...poolmgr.Handler) {
	key := strings.ToLower(name)
	if _, ok := s.cursors[key]; !ok {
		return
	}
	for _, h := range hs {
		s.connMgr.MarkResourceInUse(h)
	}
	s.cursorHandles[key] = append(s.cursorHandles[key], hs...)
	if s.txStatus.InTransaction() {
		s.txStatus.SetConnectionHeld(true)
	}
}

func (s *ConnectionSession) releaseCursor(key string) {
	for _, h := range s.cursorHandles[key] {
		s.connMgr.UnmarkResourceInUse(h)
	}
	delete(s.cursorHandles, key)
}

func (s *ConnectionSession) Cursor(name string) (*stmt.Statement, bool) {
	st, ok := s.cursors[strings.ToLower(name)]
	return st, ok
}

// CloseCursor forgets the cursor. Its handles are released with the
// current statement.
func (s *ConnectionSession) CloseCursor(name string) {
	key := strings.ToLower(name)
	s.releaseCursor(key)
	delete(s.cursors, key)
	if len(s.cursors) == 0 {
		s.txStatus.SetConnectionHeld(false)
	}
}

func (s *ConnectionSession) CloseAllCursors() {
	for key := range s.cursorHandles {
		s.releaseCursor(key)
	}
	s.cursors = map[string]*stmt.Statement{}
	s.txStatus.SetConnectionHeld(false)
}

func (s *ConnectionSession) CursorCount() int {
	return len(s.cursors)
}

// Close releases every physical resource of the session.
func (s *ConnectionSession) Close() error {
	err := s.connMgr.CloseSessionScoped()
	s.CloseAllCursors()
	s.txStatus.SetTxStatus(txstatus.TXIDLE)
	dslog.Zero.Debug().
		Str("session", s.id).
		Err(err).
		Msg("session closed")
	return err
}
