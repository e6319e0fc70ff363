// Package confessions is the single entry point the board uses to read and
// write confessions. It routes every call to the remote store while that is
// healthy and to the local fallback store afterwards, and it never returns
// backend errors to its callers.
package confessions

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sujalbistaa/confessions/internal/common"
	"github.com/sujalbistaa/confessions/internal/models"
)

// DefaultLimit caps every listing query.
const DefaultLimit = 50

// Daily pick display floors.
const (
	DailyPickFireFloor = 400
	DailyPickLoveFloor = 200
)

// Backend is the contract shared by the remote and local stores.
type Backend interface {
	Insert(ctx context.Context, c *models.Confession) error
	Query(ctx context.Context, q models.Query) ([]models.Confession, error)
	Increment(ctx context.Context, id string, field models.Field) error
}

// ShareTally counts the shares made by one client.
type ShareTally interface {
	Increment(ctx context.Context) int
}

// Breaker is a one-way switch: once tripped, the remote store is not used
// again for the lifetime of the Breaker.
type Breaker struct {
	tripped atomic.Bool
}

// Trip opens the breaker and reports whether this call was the one that did it.
func (b *Breaker) Trip() bool {
	return b.tripped.CompareAndSwap(false, true)
}

func (b *Breaker) Tripped() bool {
	return b.tripped.Load()
}

// Repository unifies the remote and local stores.
type Repository struct {
	remote  Backend
	local   Backend
	breaker *Breaker
	limit   int
	log     *zap.Logger
	events  func(Event)
}

type Option func(*Repository)

// WithBreaker shares breaker state between repositories.
func WithBreaker(b *Breaker) Option {
	return func(r *Repository) { r.breaker = b }
}

func WithLimit(n int) Option {
	return func(r *Repository) { r.limit = n }
}

func WithLogger(log *zap.Logger) Option {
	return func(r *Repository) { r.log = log }
}

// WithEvents registers a callback invoked after each successful write.
func WithEvents(fn func(Event)) Option {
	return func(r *Repository) { r.events = fn }
}

// New builds a Repository. A nil remote means the remote store failed to
// initialize and the breaker starts tripped.
func New(remote, local Backend, opts ...Option) *Repository {
	r := &Repository{
		remote:  remote,
		local:   local,
		breaker: &Breaker{},
		limit:   DefaultLimit,
		log:     zap.NewNop(),
		events:  func(Event) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	if remote == nil {
		r.trip(errors.New("remote store not initialized"), "init")
	}
	return r
}

// RemoteAvailable reports whether calls are still routed to the remote store.
func (r *Repository) RemoteAvailable() bool {
	return !r.breaker.Tripped()
}

func (r *Repository) active() (Backend, string) {
	if r.RemoteAvailable() {
		return r.remote, "remote"
	}
	return r.local, "local"
}

func (r *Repository) trip(err error, op string) {
	if r.breaker.Trip() {
		r.log.Warn("remote store unavailable, switching to local fallback",
			zap.String("op", op), zap.Error(err))
	}
}

// Post stores a new confession and reports whether it was written.
func (r *Repository) Post(ctx context.Context, text, authorID string, category models.Category) bool {
	c := models.Confession{
		Text:     text,
		AuthorID: authorID,
		Category: category.OrDefault(),
		MaskID:   rand.IntN(models.MaskPaletteSize),
	}

	backend, name := r.active()
	if err := backend.Insert(ctx, &c); err != nil {
		r.log.Warn("post failed", zap.String("backend", name), zap.Error(err))
		return false
	}
	r.events(Event{Type: EventNewPost, ID: c.ID, Confession: &c})
	return true
}

// List returns the confessions of tab, filtered by a case-insensitive text
// search and by category (models.CategoryAll or "" disables it).
func (r *Repository) List(ctx context.Context, tab models.Tab, userID, search string, category models.Category) []models.Confession {
	if !tab.Valid() {
		tab = models.TabNew
	}
	if tab == models.TabMine && userID == "" {
		return []models.Confession{}
	}
	q := models.QueryFor(tab, userID, r.limit)

	if r.RemoteAvailable() {
		items, err := r.remote.Query(ctx, q)
		switch {
		case err == nil:
			return present(items, q, search, category)
		case errors.Is(err, context.Canceled):
			// caller went away; the backend is not at fault
			return []models.Confession{}
		default:
			r.trip(err, "list")
		}
	}

	items, err := r.local.Query(ctx, q)
	if err != nil {
		r.log.Warn("local list failed", zap.Error(err))
		return []models.Confession{}
	}
	return present(items, q, search, category)
}

// DailyPick returns the top trending confession with its fire and love
// counts raised to display floors. Stored counters are not touched.
func (r *Repository) DailyPick(ctx context.Context) (models.Confession, bool) {
	trending := r.List(ctx, models.TabTrending, "system", "", models.CategoryAll)
	if len(trending) == 0 {
		return models.Confession{}, false
	}
	pick := trending[0]
	pick.Reactions.Fire = max(pick.Reactions.Fire, DailyPickFireFloor)
	pick.Reactions.Love = max(pick.Reactions.Love, DailyPickLoveFloor)
	return pick, true
}

// React adds one reaction of kind to the confession with id.
func (r *Repository) React(ctx context.Context, id string, kind models.ReactionKind) {
	if !kind.Valid() {
		r.log.Debug("ignoring unknown reaction", zap.String("kind", string(kind)))
		return
	}
	if r.increment(ctx, id, kind.Field()) {
		r.events(Event{Type: EventReaction, ID: id, Reaction: kind})
	}
}

// RecordView adds one view to the confession with id.
func (r *Repository) RecordView(ctx context.Context, id string) {
	if r.increment(ctx, id, models.FieldViews) {
		r.events(Event{Type: EventView, ID: id})
	}
}

// RecordShare adds one share to the confession with id and one to the
// sharing client's lifetime tally. The tally is bumped even when the
// confession does not exist.
func (r *Repository) RecordShare(ctx context.Context, id string, tally ShareTally) {
	if tally != nil {
		tally.Increment(ctx)
	}
	if r.increment(ctx, id, models.FieldShares) {
		r.events(Event{Type: EventShare, ID: id})
	}
}

// increment never trips the breaker; failed writes are dropped.
func (r *Repository) increment(ctx context.Context, id string, field models.Field) bool {
	backend, name := r.active()
	err := backend.Increment(ctx, id, field)
	switch {
	case err == nil:
		return true
	case errors.Is(err, common.ErrNotFound):
		r.log.Debug("increment on unknown confession", zap.String("id", id), zap.String("field", string(field)))
	default:
		r.log.Warn("increment failed", zap.String("backend", name),
			zap.String("id", id), zap.String("field", string(field)), zap.Error(err))
	}
	return false
}

// present applies the in-memory filters and the tab's ordering.
func present(items []models.Confession, q models.Query, search string, category models.Category) []models.Confession {
	needle := strings.ToLower(search)
	out := make([]models.Confession, 0, len(items))
	for _, c := range items {
		if needle != "" && !strings.Contains(strings.ToLower(c.Text), needle) {
			continue
		}
		if category != "" && category != models.CategoryAll && c.Category != category {
			continue
		}
		out = append(out, c)
	}
	models.Sort(out, q.Order)
	return out
}
