package bootstrap

import (
	"context"
	"fmt"
	"os"

	"formdesk/config"
	"formdesk/storage"

	"go.uber.org/zap"
)

// StorageComponents holds the initialized stores.
type StorageComponents struct {
	KV          storage.KVStore
	SQLite      *storage.SQLite
	Submissions *storage.SQLiteSubmissionStorage
}

// Close releases every store that was opened.
func (s *StorageComponents) Close(sugar *zap.SugaredLogger) {
	if s.KV != nil {
		if err := s.KV.Close(); err != nil {
			sugar.Errorw("Failed to close key-value store", "error", err)
		}
	}
	if s.SQLite != nil {
		if err := s.SQLite.Close(); err != nil {
			sugar.Errorw("Failed to close SQLite", "error", err)
		}
	}
}

func printFatal(title, msg string) {
	fmt.Fprintf(os.Stderr, "\n========================================\n")
	fmt.Fprintf(os.Stderr, "FATAL: %s\n", title)
	fmt.Fprintf(os.Stderr, "========================================\n")
	fmt.Fprintf(os.Stderr, "%s\n", msg)
	fmt.Fprintf(os.Stderr, "========================================\n\n")
}

// InitKVStore connects the session and counter store.
func InitKVStore(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (storage.KVStore, error) {
	kv, err := storage.NewKVStore(ctx, cfg.KVConfig(), sugar)
	if err != nil {
		addr := cfg.Store.Redis.Addr
		if cfg.Store.Redis.URL != "" {
			addr = RedactURL(cfg.Store.Redis.URL)
		}
		printFatal("Key-Value Store Initialization Failed", ClassifyConnectionError(err, addr))
		return nil, fmt.Errorf("failed to initialize key-value store: %w", err)
	}

	sugar.Infow("Key-value store initialized successfully", "driver", kv.Driver())
	return kv, nil
}

// InitSQLite initializes SQLite connection.
func InitSQLite(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (*storage.SQLite, error) {
	if err := EnsureDataDirectory(cfg.Database.Path, sugar); err != nil {
		printFatal("Data Directory Check Failed", err.Error())
		return nil, err
	}

	sqlite, err := storage.NewSQLite(ctx, cfg.Database.Path, sugar)
	if err != nil {
		printFatal("SQLite Initialization Failed", ClassifySQLiteError(err, cfg.Database.Path))
		return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
	}

	sugar.Info("SQLite initialized successfully")
	return sqlite, nil
}

// InitStorage opens both stores, closing the first if the second fails.
func InitStorage(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (*StorageComponents, error) {
	kv, err := InitKVStore(ctx, cfg, sugar)
	if err != nil {
		return nil, err
	}

	sqlite, err := InitSQLite(ctx, cfg, sugar)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	return &StorageComponents{
		KV:          kv,
		SQLite:      sqlite,
		Submissions: storage.NewSQLiteSubmissionStorage(sqlite),
	}, nil
}
