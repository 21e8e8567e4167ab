package connector

import "github.com/pg-sharding/dsproxy/pkg/conn"

// ResponseHeader is either *QueryHeader or *UpdateHeader.
type ResponseHeader interface {
	isResponseHeader()
}

// QueryHeader describes the client-visible columns of a row-producing statement.
type QueryHeader struct {
	Columns []conn.Column
}

func (*QueryHeader) isResponseHeader() {}

type UpdateHeader struct {
	UpdateCount   int64
	GeneratedKeys []any
}

func (*UpdateHeader) isResponseHeader() {}

// QueryResponseCell is one value of a result row. ColumnIndex starts at 1.
type QueryResponseCell struct {
	ColumnIndex int
	Data        any
}

type State int

const (
	Created State = iota
	FederationCheck
	Federated
	PushedDown
	Completed
)

func (s State) String() string {
	switch s {
	case Created:
		return "CREATED"
	case FederationCheck:
		return "FEDERATION_CHECK"
	case Federated:
		return "FEDERATED"
	case PushedDown:
		return "PUSHED_DOWN"
	case Completed:
		return "COMPLETED"
	}
	return "UNKNOWN"
}
