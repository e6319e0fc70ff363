// Package docstore is the remote confession store: one "confessions"
// collection in a gorm-managed database (Postgres in production).
package docstore

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sujalbistaa/confessions/internal/common"
	"github.com/sujalbistaa/confessions/internal/models"
)

// reactionColumns is embedded with the "reactions_" prefix, so the dotted
// path reactions.fire maps to column reactions_fire.
type reactionColumns struct {
	Love  int64 `gorm:"not null;default:0"`
	Laugh int64 `gorm:"not null;default:0"`
	Shock int64 `gorm:"not null;default:0"`
	Fire  int64 `gorm:"not null;default:0"`
}

// document is one row of the confessions collection.
type document struct {
	ID        string          `gorm:"primaryKey;size:36"`
	Text      string          `gorm:"type:text;not null"`
	AuthorID  string          `gorm:"size:64;not null;index"`
	Category  string          `gorm:"size:32;not null"`
	CreatedAt time.Time       `gorm:"not null;index;default:CURRENT_TIMESTAMP;autoCreateTime:false"`
	Reactions reactionColumns `gorm:"embedded;embeddedPrefix:reactions_"`
	Views     int64           `gorm:"not null;default:0;index"`
	Shares    int64           `gorm:"not null;default:0;index"`
	MaskID    *int
}

func (document) TableName() string {
	return "confessions"
}

// BeforeCreate assigns the document id.
func (d *document) BeforeCreate(*gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// Store wraps the confessions collection.
type Store struct {
	db  *gorm.DB
	now func() time.Time

	// last stamp handed out by stamp, in epoch milliseconds
	mu   sync.Mutex
	last int64
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Migrate creates or updates the collection schema.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&document{}); err != nil {
		return fmt.Errorf("migrate confessions: %w", err)
	}
	return nil
}

// Insert writes c as a new document. The id and creation instant are
// assigned by the store and written back into c.
func (s *Store) Insert(ctx context.Context, c *models.Confession) error {
	mask := c.MaskID
	doc := document{
		Text:     c.Text,
		AuthorID: c.AuthorID,
		Category: string(c.Category.OrDefault()),
		Reactions: reactionColumns{
			Love:  c.Reactions.Love,
			Laugh: c.Reactions.Laugh,
			Shock: c.Reactions.Shock,
			Fire:  c.Reactions.Fire,
		},
		Views:  c.Views,
		Shares: c.Shares,
		MaskID: &mask,
	}
	// sqlite's CURRENT_TIMESTAMP has one-second resolution.
	if s.db.Dialector.Name() == "sqlite" {
		doc.CreatedAt = s.stamp()
	}
	if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
		return fmt.Errorf("insert confession: %w", err)
	}
	c.ID = doc.ID
	c.CreatedAt = s.resolveTimestamp(doc.CreatedAt)
	return nil
}

// Query runs one of the fixed listing shapes.
func (s *Store) Query(ctx context.Context, q models.Query) ([]models.Confession, error) {
	tx := s.db.WithContext(ctx).Model(&document{})
	if q.AuthorID != "" {
		tx = tx.Where("author_id = ?", q.AuthorID)
	}
	switch q.Order {
	case models.ByTrendingScore:
		tx = tx.Order("shares * 10 + reactions_fire DESC").Order("created_at DESC")
	default:
		tx = tx.Order("created_at DESC")
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var docs []document
	if err := tx.Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("query confessions: %w", err)
	}

	out := make([]models.Confession, len(docs))
	for i, d := range docs {
		out[i] = s.toModel(d)
	}
	return out, nil
}

// Increment adds one to exactly the column behind field in a single UPDATE.
func (s *Store) Increment(ctx context.Context, id string, field models.Field) error {
	col, err := column(field)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&document{}).
		Where("id = ?", id).
		UpdateColumn(col, gorm.Expr(col+" + ?", 1))
	if res.Error != nil {
		return fmt.Errorf("increment %s: %w", field, res.Error)
	}
	if res.RowsAffected == 0 {
		return common.ErrNotFound
	}
	return nil
}

func column(field models.Field) (string, error) {
	if !field.Valid() {
		return "", fmt.Errorf("%w: %q", common.ErrInvalidField, field)
	}
	return strings.ReplaceAll(string(field), ".", "_"), nil
}

// stamp returns the store clock in milliseconds, strictly increasing across
// calls so inserts in the same millisecond still order by write time.
func (s *Store) stamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms := max(s.now().UnixMilli(), s.last+1)
	s.last = ms
	return time.UnixMilli(ms).UTC()
}

// resolveTimestamp converts a stored creation instant to epoch milliseconds.
// An unset instant (not yet round-tripped) resolves to now.
func (s *Store) resolveTimestamp(t time.Time) int64 {
	if t.IsZero() {
		return s.now().UnixMilli()
	}
	return t.UnixMilli()
}

func (s *Store) toModel(d document) models.Confession {
	c := models.Confession{
		ID:        d.ID,
		Text:      d.Text,
		AuthorID:  d.AuthorID,
		Category:  models.Category(d.Category).OrDefault(),
		CreatedAt: s.resolveTimestamp(d.CreatedAt),
		Reactions: models.Reactions{
			Love:  d.Reactions.Love,
			Laugh: d.Reactions.Laugh,
			Shock: d.Reactions.Shock,
			Fire:  d.Reactions.Fire,
		},
		Views:  d.Views,
		Shares: d.Shares,
	}
	if d.MaskID != nil {
		c.MaskID = *d.MaskID
	} else {
		c.MaskID = rand.IntN(models.MaskPaletteSize)
	}
	return c
}
