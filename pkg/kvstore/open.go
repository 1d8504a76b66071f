package kvstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/redis"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the store selected by cfg.Storage.Driver, wrapping it in a
// SealedStore when a seal key is configured. The returned closer releases the
// backing connection.
func Open(ctx context.Context, cfg *config.Config, logg *logger.Logger) (Store, io.Closer, error) {
	secret, err := cfg.Storage.SealKeyBytes()
	if err != nil {
		return nil, nil, err
	}

	var (
		store  Store
		closer io.Closer = nopCloser{}
	)
	switch strings.ToLower(cfg.Storage.Driver) {
	case config.StorageDriverMemory:
		store = NewMemoryStore()
	case config.StorageDriverSQLite, config.StorageDriverPostgres:
		client, err := db.New(ctx, cfg.Storage, cfg.DB, logg)
		if err != nil {
			return nil, nil, err
		}
		sqlStore, err := NewSQLStore(ctx, client)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		store, closer = sqlStore, client
	case config.StorageDriverRedis:
		client, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return nil, nil, err
		}
		store, closer = NewRedisStore(client), client
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}

	if secret != nil {
		sealed, err := NewSealedStore(store, secret, SensitiveKeys()...)
		if err != nil {
			_ = closer.Close()
			return nil, nil, err
		}
		store = sealed
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"driver": cfg.Storage.Driver,
			"sealed": secret != nil,
		}), "durable store ready")
	}
	return store, closer, nil
}
