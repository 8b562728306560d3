package session

import (
	"sync"
	"time"

	"backend-sessionmaps/internal/shared/geo"
)

// liveState holds the ephemeral per-session registry: latest samples and
// accumulated paths per member, plus the termination fence. Everything here
// is lost on restart; durable state lives in postgres.
type liveState struct {
	mu       sync.RWMutex
	sessions map[string]*liveSession
}

type liveSession struct {
	mu          sync.Mutex
	members     map[string]*liveMember
	terminating bool
}

type liveMember struct {
	latest *Sample
	path   []geo.Point
}

func newLiveState() *liveState {
	return &liveState{sessions: map[string]*liveSession{}}
}

func (l *liveState) ensure(sessionID string) *liveSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	ls, ok := l.sessions[sessionID]
	if !ok {
		ls = &liveSession{members: map[string]*liveMember{}}
		l.sessions[sessionID] = ls
	}
	return ls
}

func (l *liveState) get(sessionID string) *liveSession {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sessions[sessionID]
}

func (l *liveState) drop(sessionID string) {
	l.mu.Lock()
	delete(l.sessions, sessionID)
	l.mu.Unlock()
}

// ensureMember makes room for a member's live record. Fails once the
// session is terminating.
func (l *liveState) ensureMember(sessionID, userID string) error {
	ls := l.ensure(sessionID)
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.terminating {
		return ErrSessionEnded
	}
	if ls.members[userID] == nil {
		ls.members[userID] = &liveMember{}
	}
	return nil
}

// record updates the member's latest sample and appends to the path unless
// the fix is within the jitter threshold of the last recorded point.
func (l *liveState) record(sessionID, userID string, sample Sample) (appended bool, err error) {
	ls := l.get(sessionID)
	if ls == nil {
		return false, ErrNotMember
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.terminating {
		return false, ErrSessionEnded
	}
	m := ls.members[userID]
	if m == nil {
		return false, ErrNotMember
	}

	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = time.Now()
	}
	m.latest = &sample

	next := geo.Point{Lng: sample.Lng, Lat: sample.Lat}
	if len(m.path) == 0 || geo.Moved(m.path[len(m.path)-1], next) {
		m.path = append(m.path, next)
		return true, nil
	}
	return false, nil
}

// pathOf returns a copy of the member's accumulated path.
func (l *liveState) pathOf(sessionID, userID string) []geo.Point {
	ls := l.get(sessionID)
	if ls == nil {
		return nil
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	m := ls.members[userID]
	if m == nil {
		return nil
	}
	out := make([]geo.Point, len(m.path))
	copy(out, m.path)
	return out
}

func (l *liveState) latestOf(sessionID string) map[string]Sample {
	ls := l.get(sessionID)
	if ls == nil {
		return nil
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	out := make(map[string]Sample, len(ls.members))
	for userID, m := range ls.members {
		if m.latest != nil {
			out[userID] = *m.latest
		}
	}
	return out
}

func (l *liveState) hasMember(sessionID, userID string) bool {
	ls := l.get(sessionID)
	if ls == nil {
		return false
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.members[userID] != nil && !ls.terminating
}

func (l *liveState) dropMember(sessionID, userID string) {
	ls := l.get(sessionID)
	if ls == nil {
		return
	}
	ls.mu.Lock()
	delete(ls.members, userID)
	ls.mu.Unlock()
}

func (l *liveState) isTerminating(sessionID string) bool {
	ls := l.get(sessionID)
	if ls == nil {
		return false
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.terminating
}

// beginTermination raises the fence and drains every member's path into the
// returned snapshot. After it returns, no join, location or annotation
// mutation touches the session, so archival works on frozen paths. Draining
// makes archival exactly-once per member: a terminate retried after a
// partial failure finds empty paths and creates no duplicate routes.
func (l *liveState) beginTermination(sessionID string) map[string][]geo.Point {
	ls := l.ensure(sessionID)
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.terminating = true
	paths := make(map[string][]geo.Point, len(ls.members))
	for userID, m := range ls.members {
		paths[userID] = m.path
		m.path = nil
	}
	return paths
}
