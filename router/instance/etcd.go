package instance

import (
	"context"

	"github.com/pg-sharding/dsproxy/pkg/dslog"
	"github.com/pg-sharding/dsproxy/qdb"
)

type EtcdMetadataBootstrapper struct {
	db *qdb.EtcdQDB
}

// InitializeMetadata implements MetadataBootstrapper.
func (e *EtcdMetadataBootstrapper) InitializeMetadata(ctx context.Context, inst *Instance) error {
	/* etcd may still be starting next to us */
	if err := e.db.WaitReady(ctx); err != nil {
		dslog.Zero.Error().Err(err).Msg("failed to reach metadata store")
		return err
	}

	if err := inst.Registry().Load(ctx); err != nil {
		dslog.Zero.Error().Err(err).Msg("failed to initialize instance")
		return err
	}

	inst.Initialize()
	return nil
}

func NewEtcdMetadataBootstrapper(db *qdb.EtcdQDB) MetadataBootstrapper {
	return &EtcdMetadataBootstrapper{db: db}
}
