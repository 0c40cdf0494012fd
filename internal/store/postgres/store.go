// Package postgres keeps arena sessions in a Postgres table through gorm.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/arena-sessions/internal/store"
)

type entry struct {
	Namespace string `gorm:"column:ns;primaryKey"`
	Name      string `gorm:"column:name;primaryKey;index"`
	Value     []byte `gorm:"column:value;not null"`
	UpdatedAt time.Time
}

func (entry) TableName() string { return "arena_kv" }

type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Open connects with dsn and migrates the table.
func Open(dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	return New(postgres.Open(dsn))
}

// New is Open over an arbitrary gorm dialector.
func New(dialector gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&entry{}); err != nil {
		return nil, fmt.Errorf("migrate arena_kv: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Get(ctx context.Context, ns, key string) ([]byte, error) {
	var e entry
	err := s.db.WithContext(ctx).Where("ns = ? AND name = ?", ns, key).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", ns, key, err)
	}
	return e.Value, nil
}

func (s *Store) Put(ctx context.Context, ns, key string, value []byte) error {
	e := entry{Namespace: ns, Name: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ns"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", ns, key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, ns, key string) error {
	if err := s.db.WithContext(ctx).Where("ns = ? AND name = ?", ns, key).Delete(&entry{}).Error; err != nil {
		return fmt.Errorf("delete %s/%s: %w", ns, key, err)
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context, ns string) error {
	if err := s.db.WithContext(ctx).Where("ns = ?", ns).Delete(&entry{}).Error; err != nil {
		return fmt.Errorf("delete all %s: %w", ns, err)
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, key string) (map[string][]byte, error) {
	var rows []entry
	if err := s.db.WithContext(ctx).Where("name = ?", key).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("scan %s: %w", key, err)
	}
	out := make(map[string][]byte, len(rows))
	for _, r := range rows {
		out[r.Namespace] = r.Value
	}
	return out, nil
}
