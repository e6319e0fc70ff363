package confessions

import "github.com/sujalbistaa/confessions/internal/models"

type EventType string

const (
	EventNewPost  EventType = "new_post"
	EventReaction EventType = "reaction"
	EventView     EventType = "view"
	EventShare    EventType = "share"
)

// Event describes a successful write, for fan-out to connected clients.
type Event struct {
	Type       EventType           `json:"type"`
	ID         string              `json:"id"`
	Reaction   models.ReactionKind `json:"reaction,omitempty"`
	Confession *models.Confession  `json:"confession,omitempty"`
}
