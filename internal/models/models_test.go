package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategory_OrDefault(t *testing.T) {
	assert.Equal(t, CategoryConfession, Category("").OrDefault())
	assert.Equal(t, CategoryOther, CategoryOther.OrDefault())
	assert.False(t, CategoryAll.Valid())
	assert.True(t, CategoryLifeLesson.Valid())
}

func TestField_Valid(t *testing.T) {
	tests := []struct {
		field Field
		want  bool
	}{
		{FieldViews, true},
		{FieldShares, true},
		{"reactions.fire", true},
		{"reactions.love", true},
		{"reactions.anger", false},
		{"maskId", false},
		{"views; DROP TABLE confessions", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.field.Valid(), string(tc.field))
	}
}

func TestConfession_Bump(t *testing.T) {
	var c Confession
	c.Bump(ReactionFire.Field())
	c.Bump(ReactionFire.Field())
	c.Bump(ReactionLaugh.Field())
	c.Bump(FieldViews)
	c.Bump(FieldShares)
	c.Bump("unknown")

	assert.Equal(t, Reactions{Laugh: 1, Fire: 2}, c.Reactions)
	assert.Equal(t, int64(1), c.Views)
	assert.Equal(t, int64(1), c.Shares)
	assert.Equal(t, int64(12), c.TrendingScore())
}

func TestSort(t *testing.T) {
	items := []Confession{
		{ID: "a", CreatedAt: 1, Shares: 1},
		{ID: "b", CreatedAt: 3, Reactions: Reactions{Fire: 10}},
		{ID: "c", CreatedAt: 2, Reactions: Reactions{Fire: 10}},
		{ID: "d", CreatedAt: 4, Shares: 2},
	}

	Sort(items, ByRecency)
	assert.Equal(t, []string{"d", "b", "c", "a"}, ids(items))

	// b and c tie on score and keep their relative order
	Sort(items, ByTrendingScore)
	assert.Equal(t, []string{"d", "b", "c", "a"}, ids(items))
}

func TestQueryFor(t *testing.T) {
	assert.Equal(t, Query{AuthorID: "anon_1", Order: ByRecency, Limit: 50}, QueryFor(TabMine, "anon_1", 50))
	assert.Equal(t, Query{Order: ByTrendingScore, Limit: 50}, QueryFor(TabTrending, "anon_1", 50))
	assert.Equal(t, Query{Order: ByRecency, Limit: 50}, QueryFor(TabNew, "anon_1", 50))
}

func ids(items []Confession) []string {
	out := make([]string, len(items))
	for i, c := range items {
		out[i] = c.ID
	}
	return out
}
