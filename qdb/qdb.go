package qdb

import (
	"context"
	"fmt"

	"github.com/pg-sharding/dsproxy/pkg/config"
)

// QDB persists the logical table to data node mapping.
type QDB interface {
	// AddDataNodes registers all nodes atomically. Already known nodes are skipped.
	AddDataNodes(ctx context.Context, regs ...NodeRegistration) error
	GetLogicalTable(ctx context.Context, schema, name string) (*LogicalTable, error)
	ListLogicalTables(ctx context.Context) ([]*LogicalTable, error)
	DropLogicalTable(ctx context.Context, schema, name string) error
}

func NewQDB(cfg config.QdbCfg) (QDB, error) {
	switch cfg.Type {
	case config.QdbEtcd:
		return NewEtcdQDB(cfg.Addr)
	case config.QdbMem, "":
		return RestoreQDB(cfg.BackupPath)
	default:
		return nil, fmt.Errorf("qdb implementation %s is invalid", cfg.Type)
	}
}
