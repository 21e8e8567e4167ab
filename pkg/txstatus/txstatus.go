package txstatus

import (
	"fmt"
	"strings"
)

type TXStatus byte

const (
	TXIDLE = TXStatus(73)
	TXERR  = TXStatus(69)
	TXACT  = TXStatus(84)
)

type TxStatusMgr interface {
	SetTxStatus(status TXStatus)
	TxStatus() TXStatus
}

func (s TXStatus) String() string {
	switch s {
	case TXIDLE:
		return "IDLE"
	case TXERR:
		return "ERROR"
	case TXACT:
		return "ACTIVE"
	}
	return "invalid"
}

// TransactionType selects how a multi-data-source transaction is committed.
type TransactionType string

const (
	LOCAL = TransactionType("LOCAL")
	XA    = TransactionType("XA")
	BASE  = TransactionType("BASE")
)

func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.ToUpper(s) {
	case "", "LOCAL":
		return LOCAL, nil
	case "XA":
		return XA, nil
	case "BASE":
		return BASE, nil
	}
	return "", fmt.Errorf("unknown transaction type \"%s\"", s)
}

// Distributed reports whether the type coordinates commit across data sources.
func (t TransactionType) Distributed() bool {
	return t == XA || t == BASE
}

// TransactionStatus is the per-session transaction state.
type TransactionStatus struct {
	txType         TransactionType
	status         TXStatus
	connectionHeld bool
}

func NewTransactionStatus(txType TransactionType) *TransactionStatus {
	return &TransactionStatus{
		txType: txType,
		status: TXIDLE,
	}
}

var _ TxStatusMgr = &TransactionStatus{}

func (ts *TransactionStatus) SetTxStatus(status TXStatus) {
	ts.status = status
}

func (ts *TransactionStatus) TxStatus() TXStatus {
	return ts.status
}

func (ts *TransactionStatus) TransactionType() TransactionType {
	return ts.txType
}

// SetTransactionType may only switch type outside a transaction.
func (ts *TransactionStatus) SetTransactionType(t TransactionType) error {
	if ts.InTransaction() {
		return fmt.Errorf("cannot switch transaction type to %s inside a transaction", t)
	}
	ts.txType = t
	return nil
}

func (ts *TransactionStatus) InTransaction() bool {
	return ts.status != TXIDLE
}

// InConnectionHeldTransaction reports a transaction whose connections must
// survive statement end, e.g. because a cursor is open.
func (ts *TransactionStatus) InConnectionHeldTransaction() bool {
	return ts.InTransaction() && ts.connectionHeld
}

func (ts *TransactionStatus) SetConnectionHeld(v bool) {
	ts.connectionHeld = v
}

func (ts *TransactionStatus) ConnectionHeld() bool {
	return ts.connectionHeld
}
