package qdb

import (
	"context"

	"github.com/pg-sharding/dsproxy/pkg/dslog"
	"go.etcd.io/etcd/client/v3/concurrency"
)

func unlockMutex(mu *concurrency.Mutex, ctx context.Context) {
	if err := mu.Unlock(ctx); err != nil {
		dslog.Zero.Error().Err(err).Msg("etcdqdb: failed to release lock")
	}
}

func closeSession(sess *concurrency.Session) {
	if err := sess.Close(); err != nil {
		dslog.Zero.Error().Err(err).Msg("etcdqdb: failed to close session")
	}
}
