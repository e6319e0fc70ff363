// Package localstore keeps the confession list as a JSON array under a single
// key-value key. It serves the board when the remote store is unreachable.
package localstore

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sujalbistaa/confessions/internal/common"
	"github.com/sujalbistaa/confessions/internal/kv"
	"github.com/sujalbistaa/confessions/internal/models"
)

// StorageKey holds the JSON array of confessions, newest insert first.
const StorageKey = "confessions_local_mock_v4"

// WelcomeID is the id of the placeholder served from an empty store.
const WelcomeID = "welcome_tutorial"

// AnonymousAuthor fills records stored without an author.
const AnonymousAuthor = "anon"

// Store is the local fallback backend.
type Store struct {
	kv  kv.Store
	log *zap.Logger
	now func() time.Time

	// serializes read-modify-write cycles on StorageKey
	mu sync.Mutex
}

type Option func(*Store)

// WithClock overrides the time source used for createdAt defaults.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(store kv.Store, log *zap.Logger, opts ...Option) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{kv: store, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// record is the stored shape. Every field is decoded loosely and coerced on
// its own, so one drifted field does not cost the whole record.
type record struct {
	ID        any `json:"id"`
	Text      any `json:"text"`
	AuthorID  any `json:"authorId"`
	Category  any `json:"category"`
	CreatedAt any `json:"createdAt"`
	Reactions any `json:"reactions"`
	Views     any `json:"views"`
	Shares    any `json:"shares"`
	MaskID    any `json:"maskId"`
}

// ListAll returns every stored confession in storage order. An empty,
// unreadable or corrupt store yields the welcome placeholder.
func (s *Store) ListAll(ctx context.Context) []models.Confession {
	snap, err := s.load(ctx)
	if err != nil {
		s.log.Warn("local store unreadable, serving placeholder", zap.Error(err))
	}
	if len(snap.items) == 0 {
		return []models.Confession{s.welcome()}
	}
	return snap.items
}

// Append inserts c at the head of the stored list, assigning an id and a
// creation time when c has none. It fails only when the write fails.
func (s *Store) Append(ctx context.Context, c models.Confession) (models.Confession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load(ctx)
	if err != nil {
		s.log.Warn("overwriting unreadable local store", zap.Error(err))
	}
	now := s.now().UnixMilli()
	if c.ID == "" {
		c.ID = "id_" + strconv.FormatInt(now, 10) + "_" + uuid.NewString()[:8]
	}
	if c.CreatedAt == 0 {
		c.CreatedAt = now
	}
	snap.items = append([]models.Confession{c}, snap.items...)
	if err := s.save(ctx, snap); err != nil {
		return models.Confession{}, err
	}
	return c, nil
}

// IncrementCounter adds one to field of the confession with id.
// It returns common.ErrNotFound when no such confession is stored.
func (s *Store) IncrementCounter(ctx context.Context, id string, field models.Field) error {
	if !field.Valid() {
		return common.ErrInvalidField
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load(ctx)
	if err != nil {
		return err
	}
	for i := range snap.items {
		if snap.items[i].ID == id {
			snap.items[i].Bump(field)
			return s.save(ctx, snap)
		}
	}
	return common.ErrNotFound
}

// Insert implements the repository backend contract.
func (s *Store) Insert(ctx context.Context, c *models.Confession) error {
	stored, err := s.Append(ctx, *c)
	if err != nil {
		return err
	}
	*c = stored
	return nil
}

// Query filters ListAll by author and orders it in memory.
func (s *Store) Query(ctx context.Context, q models.Query) ([]models.Confession, error) {
	all := s.ListAll(ctx)
	out := make([]models.Confession, 0, len(all))
	for _, c := range all {
		if q.AuthorID != "" && c.AuthorID != q.AuthorID {
			continue
		}
		out = append(out, c)
	}
	models.Sort(out, q.Order)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Increment implements the repository backend contract.
func (s *Store) Increment(ctx context.Context, id string, field models.Field) error {
	return s.IncrementCounter(ctx, id, field)
}

// snapshot is the decoded stored list. Elements that are not records at all
// are carried in skipped and written back untouched.
type snapshot struct {
	items   []models.Confession
	skipped []json.RawMessage
}

func (s *Store) load(ctx context.Context) (snapshot, error) {
	raw, err := s.kv.Get(ctx, StorageKey)
	if errors.Is(err, common.ErrNotFound) {
		return snapshot{}, nil
	}
	if err != nil {
		return snapshot{}, err
	}

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elems); err != nil {
		return snapshot{}, err
	}

	snap := snapshot{items: make([]models.Confession, 0, len(elems))}
	for _, elem := range elems {
		var r record
		if err := json.Unmarshal(elem, &r); err != nil {
			s.log.Warn("skipping non-object local record", zap.Error(err))
			snap.skipped = append(snap.skipped, elem)
			continue
		}
		snap.items = append(snap.items, s.normalize(r))
	}
	return snap, nil
}

func (s *Store) save(ctx context.Context, snap snapshot) error {
	elems := make([]json.RawMessage, 0, len(snap.items)+len(snap.skipped))
	for _, c := range snap.items {
		raw, err := json.Marshal(c)
		if err != nil {
			return err
		}
		elems = append(elems, raw)
	}
	elems = append(elems, snap.skipped...)

	raw, err := json.Marshal(elems)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, StorageKey, string(raw))
}

// normalize coerces a stored record into the canonical shape. Missing or
// mistyped fields fall back to their defaults one by one.
func (s *Store) normalize(r record) models.Confession {
	c := models.Confession{
		ID:       stringOr(r.ID, ""),
		Text:     stringOr(r.Text, ""),
		AuthorID: stringOr(r.AuthorID, AnonymousAuthor),
		Category: models.Category(stringOr(r.Category, "")).OrDefault(),
		Views:    count(r.Views),
		Shares:   count(r.Shares),
	}
	if c.ID == "" {
		c.ID = "unknown_" + uuid.NewString()
	}
	if c.AuthorID == "" {
		c.AuthorID = AnonymousAuthor
	}
	if ms, ok := r.CreatedAt.(float64); ok {
		c.CreatedAt = int64(ms)
	} else {
		c.CreatedAt = s.now().UnixMilli()
	}
	if m, ok := r.Reactions.(map[string]any); ok {
		c.Reactions = models.Reactions{
			Love:  count(m["love"]),
			Laugh: count(m["laugh"]),
			Shock: count(m["shock"]),
			Fire:  count(m["fire"]),
		}
	}
	if n, ok := r.MaskID.(float64); ok && n == math.Trunc(n) && n >= 0 && n < models.MaskPaletteSize {
		c.MaskID = int(n)
	} else {
		c.MaskID = rand.IntN(models.MaskPaletteSize)
	}
	return c
}

func (s *Store) welcome() models.Confession {
	return models.Confession{
		ID:        WelcomeID,
		Text:      "Welcome to Confession Stories! 🤫",
		AuthorID:  "system",
		Category:  models.CategoryLifeLesson,
		CreatedAt: s.now().UnixMilli(),
		Reactions: models.Reactions{Love: 120, Laugh: 45, Shock: 12, Fire: 89},
		Views:     1337,
		Shares:    42,
		MaskID:    2,
	}
}

func stringOr(v any, def string) string {
	if str, ok := v.(string); ok {
		return str
	}
	return def
}

// count reads a stored counter. Anything but a positive number is zero.
func count(v any) int64 {
	if n, ok := v.(float64); ok && n > 0 {
		return int64(n)
	}
	return 0
}
