package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

var (
	_ BookStorage = (*sqlBookStorage)(nil)
	_ BookStorage = (*redisBookStorage)(nil)
	_ BookStorage = (*boltBookStorage)(nil)
)

// GetBookStorage connects to the configured backend and returns the book storage on top of it.
func GetBookStorage(ctx context.Context, logger *zap.Logger, config *Config) (BookStorage, error) {
	switch config.Storage.Driver {
	case StorageDriverPostgres:
		db, err := GetPostgresClient(ctx, config)
		if err != nil {
			return nil, err
		}
		storage, err := NewPostgresBookStorage(ctx, logger, db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return storage, nil

	case StorageDriverSQLite:
		if err := os.MkdirAll(filepath.Dir(config.SQLite.FilePath), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create sqlite folder: %w", err)
		}
		db, err := GetSQLiteClient(ctx, config)
		if err != nil {
			return nil, err
		}
		storage, err := NewSQLiteBookStorage(ctx, logger, db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return storage, nil

	case StorageDriverRedis:
		client, err := GetRedisClient(ctx, config)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis server: %w", err)
		}
		return NewRedisBookStorage(logger, client, config.Redis.KeyPrefix), nil

	case StorageDriverBoltDB:
		if err := os.MkdirAll(filepath.Dir(config.BoltDB.FilePath), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create boltdb folder: %w", err)
		}
		client, err := GetBoltDBClient(config)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to boltDB server: %w", err)
		}
		return NewBoltBookStorage(logger, &config.BoltDB, client), nil
	}
	return nil, fmt.Errorf("unsupported storage driver %q", config.Storage.Driver)
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func sameISBN(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
