// Package rank maps a client's lifetime share count to a display tier.
package rank

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/sujalbistaa/confessions/internal/common"
	"github.com/sujalbistaa/confessions/internal/kv"
)

// StorageKey is where the lifetime share count is persisted, as a decimal string.
const StorageKey = "user_total_shares"

type Rank struct {
	Title       string `json:"title"`
	Icon        string `json:"icon"`
	TotalShares int    `json:"totalShares"`
}

var tiers = []struct {
	min   int
	title string
	icon  string
}{
	{50, "Icon", "👑"},
	{20, "Influencer", "💅"},
	{10, "Trendsetter", "🔥"},
	{5, "Agent", "🕶️"},
	{1, "Scout", "🕵️"},
}

// For returns the rank earned by shares lifetime shares.
func For(shares int) Rank {
	for _, t := range tiers {
		if shares >= t.min {
			return Rank{Title: t.title, Icon: t.icon, TotalShares: shares}
		}
	}
	return Rank{Title: "Ghost", Icon: "👻", TotalShares: shares}
}

// Tally is the running count of shares made by one client.
type Tally struct {
	store kv.Store
	log   *zap.Logger
	mu    sync.Mutex
}

func NewTally(store kv.Store, log *zap.Logger) *Tally {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tally{store: store, log: log}
}

// Count reads the stored count. Missing or unparsable values count as zero.
func (t *Tally) Count(ctx context.Context) int {
	v, err := t.store.Get(ctx, StorageKey)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			t.log.Warn("share tally unreadable", zap.Error(err))
		}
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Increment adds one share and returns the new count. A failed write is
// logged and the incremented value is still returned.
func (t *Tally) Increment(ctx context.Context) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.Count(ctx) + 1
	if err := t.store.Set(ctx, StorageKey, strconv.Itoa(n)); err != nil {
		t.log.Warn("share tally not persisted", zap.Error(err))
	}
	return n
}

// Rank returns the rank for the current count.
func (t *Tally) Rank(ctx context.Context) Rank {
	return For(t.Count(ctx))
}
