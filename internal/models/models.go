package models

import (
	"cmp"
	"slices"
)

// MaskPaletteSize is the number of anonymous avatars a confession can be drawn with.
const MaskPaletteSize = 10

// Category classifies a confession.
type Category string

const (
	CategoryConfession Category = "confession"
	CategoryLifeLesson Category = "life-lesson"
	CategoryOther      Category = "other"

	// CategoryAll is the wildcard accepted by list filters; it is never stored.
	CategoryAll Category = "all"
)

// Valid reports whether c is one of the storable categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryConfession, CategoryLifeLesson, CategoryOther:
		return true
	}
	return false
}

// OrDefault returns c, or CategoryConfession when c is empty.
func (c Category) OrDefault() Category {
	if c == "" {
		return CategoryConfession
	}
	return c
}

// ReactionKind names one of the four emoji counters.
type ReactionKind string

const (
	ReactionLove  ReactionKind = "love"
	ReactionLaugh ReactionKind = "laugh"
	ReactionShock ReactionKind = "shock"
	ReactionFire  ReactionKind = "fire"
)

// Valid reports whether k is a known reaction.
func (k ReactionKind) Valid() bool {
	switch k {
	case ReactionLove, ReactionLaugh, ReactionShock, ReactionFire:
		return true
	}
	return false
}

// Field returns the counter path incremented by a reaction of kind k.
func (k ReactionKind) Field() Field {
	return Field("reactions." + string(k))
}

// Reactions holds the emoji counters of a confession.
type Reactions struct {
	Love  int64 `json:"love"`
	Laugh int64 `json:"laugh"`
	Shock int64 `json:"shock"`
	Fire  int64 `json:"fire"`
}

// Confession represents a single anonymous post and its engagement counters.
type Confession struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"authorId"`
	Category  Category  `json:"category"`
	CreatedAt int64     `json:"createdAt"` // epoch milliseconds
	Reactions Reactions `json:"reactions"`
	Views     int64     `json:"views"`
	Shares    int64     `json:"shares"`
	MaskID    int       `json:"maskId"`
}

// TrendingScore ranks confessions on the trending tab.
func (c Confession) TrendingScore() int64 {
	return c.Shares*10 + c.Reactions.Fire
}

// Field is a dotted path naming one counter of a confession.
type Field string

const (
	FieldViews  Field = "views"
	FieldShares Field = "shares"
)

// Valid reports whether f names a counter that may be incremented.
func (f Field) Valid() bool {
	switch f {
	case FieldViews, FieldShares,
		ReactionLove.Field(), ReactionLaugh.Field(), ReactionShock.Field(), ReactionFire.Field():
		return true
	}
	return false
}

// Bump increments the counter named by f on c. Unknown fields are ignored.
func (c *Confession) Bump(f Field) {
	switch f {
	case FieldViews:
		c.Views++
	case FieldShares:
		c.Shares++
	case ReactionLove.Field():
		c.Reactions.Love++
	case ReactionLaugh.Field():
		c.Reactions.Laugh++
	case ReactionShock.Field():
		c.Reactions.Shock++
	case ReactionFire.Field():
		c.Reactions.Fire++
	}
}

// Tab selects one of the listing views.
type Tab string

const (
	TabTrending Tab = "trending"
	TabNew      Tab = "new"
	TabMine     Tab = "mine"
)

// Valid reports whether t is a known tab.
func (t Tab) Valid() bool {
	return t == TabTrending || t == TabNew || t == TabMine
}

// Ordering is the sort applied by a backend query. Every ordering is descending.
type Ordering int

const (
	ByRecency Ordering = iota
	ByTrendingScore
)

// Query is one of the fixed listing shapes a backend answers.
type Query struct {
	AuthorID string // exact match when non-empty
	Order    Ordering
	Limit    int // no limit when <= 0
}

// QueryFor returns the backend query behind a tab.
func QueryFor(tab Tab, userID string, limit int) Query {
	switch tab {
	case TabMine:
		return Query{AuthorID: userID, Order: ByRecency, Limit: limit}
	case TabTrending:
		return Query{Order: ByTrendingScore, Limit: limit}
	default:
		return Query{Order: ByRecency, Limit: limit}
	}
}

// Sort orders items in place by o, descending. Equal keys keep their order.
func Sort(items []Confession, o Ordering) {
	slices.SortStableFunc(items, func(a, b Confession) int {
		if o == ByTrendingScore {
			return cmp.Compare(b.TrendingScore(), a.TrendingScore())
		}
		return cmp.Compare(b.CreatedAt, a.CreatedAt)
	})
}
