package storage

import (
	"context"
	"fmt"

	"cryptostats/config"
	"cryptostats/internal/market"
	"cryptostats/internal/market/memorystore"
	"cryptostats/pkg/storage/mongostore"
	"cryptostats/pkg/storage/postgres"

	"go.uber.org/zap"
)

// SnapshotStore is the append-only snapshot persistence contract shared by all backends.
type SnapshotStore interface {
	// Append validates and writes one snapshot, returning the stored record.
	Append(ctx context.Context, s market.Snapshot) (market.Snapshot, error)
	// Latest returns the newest snapshot for asset; ok is false when none exists.
	Latest(ctx context.Context, asset string) (s market.Snapshot, ok bool, err error)
	// Recent returns up to limit snapshots for asset, newest first.
	Recent(ctx context.Context, asset string, limit int) ([]market.Snapshot, error)
	Close() error
}

var (
	_ SnapshotStore = (*postgres.PostgresClient)(nil)
	_ SnapshotStore = (*mongostore.MongoClient)(nil)
	_ SnapshotStore = (*memorystore.SnapshotStore)(nil)
)

// Open connects the backend selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config, catalog market.Catalog, logger *zap.Logger) (SnapshotStore, error) {
	switch cfg.Store.Driver {
	case "postgres", "":
		client, err := postgres.InitializeAndMigrateSnapshotRecord(cfg.Postgres, cfg.App.Environment, catalog)
		if err != nil {
			return nil, err
		}
		logger.Info("snapshot store ready", zap.String("driver", "postgres"), zap.String("dbname", cfg.Postgres.DBName))
		return client, nil
	case "mongo":
		client, err := mongostore.Connect(ctx, cfg.Mongo, catalog)
		if err != nil {
			return nil, err
		}
		logger.Info("snapshot store ready", zap.String("driver", "mongo"), zap.String("collection", cfg.Mongo.Collection))
		return client, nil
	case "memory":
		logger.Warn("snapshot store is in-memory; data is lost on restart")
		return memorystore.NewSnapshotStore(catalog), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
