package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/migrate"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type kvEntry struct {
	Key       string    `gorm:"column:entry_key;primaryKey"`
	Value     string    `gorm:"column:entry_value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (kvEntry) TableName() string { return "kv_entries" }

// SQLStore persists entries in the kv_entries table through GORM. SQLite is
// the on-device default; Postgres serves shared test rigs.
type SQLStore struct {
	client *db.Client
	now    func() time.Time
}

// NewSQLStore applies pending migrations and returns a store over client.
func NewSQLStore(ctx context.Context, client *db.Client) (*SQLStore, error) {
	if client == nil {
		return nil, fmt.Errorf("db client is required")
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return nil, fmt.Errorf("extracting sql.DB: %w", err)
	}
	if err := migrate.Up(ctx, sqlDB, client.Dialect()); err != nil {
		return nil, err
	}
	return &SQLStore{client: client, now: time.Now}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entry kvEntry
	err := s.client.DB().WithContext(ctx).Where("entry_key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageError("get", key, err)
	}
	return entry.Value, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	if err := upsert(s.client.DB().WithContext(ctx), key, value, s.now().UTC()); err != nil {
		return storageError("set", key, err)
	}
	return nil
}

func (s *SQLStore) Remove(ctx context.Context, key string) error {
	if err := s.client.DB().WithContext(ctx).Where("entry_key = ?", key).Delete(&kvEntry{}).Error; err != nil {
		return storageError("remove", key, err)
	}
	return nil
}

// Apply commits every write of batch in one transaction.
func (s *SQLStore) Apply(ctx context.Context, batch Batch) error {
	now := s.now().UTC()
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		for _, key := range sortedKeys(batch.Sets) {
			if err := upsert(tx, key, batch.Sets[key], now); err != nil {
				return err
			}
		}
		if len(batch.Removes) > 0 {
			if err := tx.Where("entry_key IN ?", batch.Removes).Delete(&kvEntry{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storageError("apply", "", err)
	}
	return nil
}

func upsert(tx *gorm.DB, key, value string, now time.Time) error {
	entry := kvEntry{Key: key, Value: value, UpdatedAt: now}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"entry_value", "updated_at"}),
	}).Create(&entry).Error
}
