package kv

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sujalbistaa/confessions/internal/common"
)

// Entry is one row of the kv_entries table.
type Entry struct {
	Key   string `gorm:"primaryKey;size:191"`
	Value string `gorm:"type:text;not null"`
}

func (Entry) TableName() string {
	return "kv_entries"
}

// Gorm is a Store persisted in a relational table.
type Gorm struct {
	db *gorm.DB
}

// NewGorm migrates the kv_entries table and returns a Store over it.
func NewGorm(db *gorm.DB) (*Gorm, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate kv_entries: %w", err)
	}
	return &Gorm{db: db}, nil
}

func (g *Gorm) Get(ctx context.Context, key string) (string, error) {
	var e Entry
	err := g.db.WithContext(ctx).Where("key = ?", key).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", common.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %q: %w", key, err)
	}
	return e.Value, nil
}

func (g *Gorm) Set(ctx context.Context, key, value string) error {
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&Entry{Key: key, Value: value}).Error
	if err != nil {
		return fmt.Errorf("%w: set %q: %v", common.ErrStorage, key, err)
	}
	return nil
}
