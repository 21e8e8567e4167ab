package instance

import (
	"context"

	"github.com/pg-sharding/dsproxy/qdb"
)

// MetadataBootstrapper fills the table registry of a fresh instance.
type MetadataBootstrapper interface {
	InitializeMetadata(ctx context.Context, inst *Instance) error
}

// NewMetadataBootstrapper picks the bootstrapper matching the configured
// metadata store.
func NewMetadataBootstrapper(inst *Instance) MetadataBootstrapper {
	if db, ok := inst.QDB().(*qdb.EtcdQDB); ok {
		return NewEtcdMetadataBootstrapper(db)
	}
	return &LocalMetadataBootstrapper{}
}

// LocalMetadataBootstrapper loads the mapping from an in-process store.
type LocalMetadataBootstrapper struct{}

// InitializeMetadata implements MetadataBootstrapper.
func (l *LocalMetadataBootstrapper) InitializeMetadata(ctx context.Context, inst *Instance) error {
	if err := inst.Registry().Load(ctx); err != nil {
		return err
	}
	inst.Initialize()
	return nil
}
