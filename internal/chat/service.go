package chat

import (
	"context"
	"errors"

	"backend-sessionmaps/internal/db"
	"backend-sessionmaps/internal/stream"

	"github.com/google/uuid"
)

var ErrNotMember = errors.New("not a session member")

const defaultMessageLimit = 50

type Service struct {
	db  db.Querier
	hub *stream.Hub
}

func NewService(db db.Querier, hub *stream.Hub) *Service {
	return &Service{db: db, hub: hub}
}

// Post appends a user message and pushes a message:new invalidation to the
// other members. Clients refetch the message list; the push itself carries
// no body.
func (s *Service) Post(ctx context.Context, sessionID, authorID, body string) (Message, error) {
	member, err := s.isMember(ctx, sessionID, authorID)
	if err != nil {
		return Message{}, err
	}
	if !member {
		return Message{}, ErrNotMember
	}

	msg := Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		AuthorID:  authorID,
		Body:      body,
		Type:      MessageTypeUser,
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO session_messages (id, session_id, author_id, body, type)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, msg.ID, msg.SessionID, msg.AuthorID, msg.Body, msg.Type)
	if err := row.Scan(&msg.CreatedAt); err != nil {
		return Message{}, err
	}

	if s.hub != nil {
		s.hub.BroadcastExcept(sessionID, authorID, stream.Push(stream.TypeMessageNew, map[string]string{
			"messageId": msg.ID,
		}))
	}
	return msg, nil
}

// System appends a synthesized message (join/leave/end) and pushes the
// invalidation to every member.
func (s *Service) System(ctx context.Context, sessionID, body string) (Message, error) {
	msg := Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Body:      body,
		Type:      MessageTypeSystem,
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO session_messages (id, session_id, author_id, body, type)
		VALUES ($1,$2,NULL,$3,$4)
		RETURNING created_at
	`, msg.ID, msg.SessionID, msg.Body, msg.Type)
	if err := row.Scan(&msg.CreatedAt); err != nil {
		return Message{}, err
	}

	if s.hub != nil {
		s.hub.Broadcast(sessionID, stream.Push(stream.TypeMessageNew, map[string]string{
			"messageId": msg.ID,
		}))
	}
	return msg, nil
}

// Recent returns the newest messages, oldest first, capped at limit
// (defaults to 50).
func (s *Service) Recent(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, COALESCE(author_id,''), body, type, created_at
		FROM session_messages
		WHERE session_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.AuthorID, &m.Body, &m.Type, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	// reverse to chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *Service) isMember(ctx context.Context, sessionID, userID string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM session_members WHERE session_id=$1 AND user_id=$2)
	`, sessionID, userID).Scan(&ok)
	return ok, err
}
