package qdb

import (
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	CMD_PUT = iota
	CMD_DELETE
)

// QdbStatement is one key operation of a batched etcd transaction.
type QdbStatement struct {
	CmdType int32
	Key     string
	Value   string
}

func NewQdbStatement(cmdType int32, key string, value string) (*QdbStatement, error) {
	if cmdType != CMD_PUT && cmdType != CMD_DELETE {
		return nil, fmt.Errorf("unknown type of QdbStatement: %d", cmdType)
	}
	return &QdbStatement{CmdType: cmdType, Key: key, Value: value}, nil
}

func packEtcdCommands(stmts []QdbStatement) ([]clientv3.Op, error) {
	ops := make([]clientv3.Op, 0, len(stmts))
	for _, s := range stmts {
		switch s.CmdType {
		case CMD_PUT:
			ops = append(ops, clientv3.OpPut(s.Key, s.Value))
		case CMD_DELETE:
			ops = append(ops, clientv3.OpDelete(s.Key))
		default:
			return nil, fmt.Errorf("not found operation type: %d", s.CmdType)
		}
	}
	return ops, nil
}
