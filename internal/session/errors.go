package session

import "errors"

var (
	// ErrNotFound covers bad share codes and already-ended sessions.
	ErrNotFound = errors.New("session not found")
	// ErrForbidden covers owner-only operations invoked by others.
	ErrForbidden = errors.New("not allowed")
	// ErrCodeExhausted is returned when share code generation keeps
	// colliding after the bounded number of attempts.
	ErrCodeExhausted = errors.New("share code generation exhausted")
	// ErrSessionEnded rejects mutations once termination has begun.
	ErrSessionEnded = errors.New("session ended")
	// ErrNotMember rejects channel traffic and invites from non-members.
	ErrNotMember = errors.New("not a session member")
)
