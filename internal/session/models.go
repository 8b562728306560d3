package session

import (
	"time"

	"backend-sessionmaps/internal/chat"
	"backend-sessionmaps/internal/poi"
)

const (
	RoleOwner       = "owner"
	RoleParticipant = "participant"
)

const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusExpired  = "expired"
)

type Session struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	ShareCode string    `json:"share_code"`
	Active    bool      `json:"active"`
	CenterLat *float64  `json:"center_lat,omitempty"`
	CenterLng *float64  `json:"center_lng,omitempty"`
	Zoom      *float64  `json:"zoom,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Member struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Latest    *Sample   `json:"latest,omitempty"`
	JoinedAt  time.Time `json:"joined_at"`
}

// Sample is one location fix. Samples are ephemeral: they update the
// member's latest position and feed the path accumulator, nothing is stored
// per sample.
type Sample struct {
	Lat        float64   `json:"lat" validate:"latitude"`
	Lng        float64   `json:"lng" validate:"longitude"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	Heading    *float64  `json:"heading,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

type Invite struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	SessionName string    `json:"session_name,omitempty"`
	InviterID   string    `json:"inviter_id"`
	InviteeID   string    `json:"invitee_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Snapshot is the full session picture a client fetches after connect or
// reconnect: the source of truth behind the invalidation pushes.
type Snapshot struct {
	Session  Session        `json:"session"`
	Members  []Member       `json:"members"`
	Pois     []poi.Poi      `json:"pois"`
	Messages []chat.Message `json:"messages"`
}
