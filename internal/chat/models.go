package chat

import "time"

const (
	MessageTypeUser   = "user"
	MessageTypeSystem = "system"
)

type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	AuthorID  string    `json:"author_id,omitempty"`
	Body      string    `json:"body"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}
