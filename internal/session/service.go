package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"backend-sessionmaps/internal/chat"
	"backend-sessionmaps/internal/db"
	"backend-sessionmaps/internal/poi"
	"backend-sessionmaps/internal/route"
	"backend-sessionmaps/internal/shared/geo"
	"backend-sessionmaps/internal/stream"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

var validate = validator.New()

// Service owns sessions, membership and the live registry, and runs the
// lifecycle: share-code joins, leaves, invites and the terminate barrier
// that archives every member's path before channels close.
type Service struct {
	db     db.Querier
	hub    *stream.Hub
	routes *route.Service
	chat   *chat.Service
	pois   *poi.Service
	live   *liveState
	log    zerolog.Logger
}

func NewService(db db.Querier, hub *stream.Hub, routes *route.Service, chatSvc *chat.Service, pois *poi.Service, log zerolog.Logger) *Service {
	return &Service{
		db:     db,
		hub:    hub,
		routes: routes,
		chat:   chatSvc,
		pois:   pois,
		live:   newLiveState(),
		log:    log,
	}
}

func (s *Service) Create(ctx context.Context, ownerID, name string) (Session, error) {
	sess := Session{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Name:    name,
		Active:  true,
	}

	for attempt := 0; ; attempt++ {
		if attempt == maxCodeAttempts {
			return Session{}, ErrCodeExhausted
		}
		code := newShareCode()

		var taken bool
		err := s.db.QueryRow(ctx, `
			SELECT EXISTS(SELECT 1 FROM map_sessions WHERE share_code=$1 AND is_active)
		`, code).Scan(&taken)
		if err != nil {
			return Session{}, err
		}
		if taken {
			continue
		}
		sess.ShareCode = code
		break
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO map_sessions (id, owner_id, name, share_code, is_active)
		VALUES ($1,$2,$3,$4,true)
		RETURNING created_at
	`, sess.ID, sess.OwnerID, sess.Name, sess.ShareCode)
	if err := row.Scan(&sess.CreatedAt); err != nil {
		return Session{}, err
	}

	if _, err := s.db.Exec(ctx, `
		INSERT INTO session_members (session_id, user_id, role)
		VALUES ($1,$2,$3)
	`, sess.ID, ownerID, RoleOwner); err != nil {
		return Session{}, err
	}

	_ = s.live.ensureMember(sess.ID, ownerID)
	s.log.Info().Str("session_id", sess.ID).Str("owner_id", ownerID).
		Str("share_code", sess.ShareCode).Msg("session created")
	return sess, nil
}

func (s *Service) Get(ctx context.Context, id string) (Session, error) {
	return s.scanSession(s.db.QueryRow(ctx, `
		SELECT id, owner_id, name, share_code, is_active,
		       ST_Y(center::geometry), ST_X(center::geometry), zoom, created_at
		FROM map_sessions WHERE id=$1
	`, id))
}

// JoinByCode attaches userID to the active session matching code. Rejoining
// is idempotent: the member row is kept, no duplicate is created.
func (s *Service) JoinByCode(ctx context.Context, code, userID string) (Session, error) {
	sess, err := s.scanSession(s.db.QueryRow(ctx, `
		SELECT id, owner_id, name, share_code, is_active,
		       ST_Y(center::geometry), ST_X(center::geometry), zoom, created_at
		FROM map_sessions WHERE share_code=$1 AND is_active
	`, strings.ToUpper(strings.TrimSpace(code))))
	if err != nil {
		return Session{}, err
	}

	if err := s.join(ctx, sess, userID); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *Service) join(ctx context.Context, sess Session, userID string) error {
	if s.live.isTerminating(sess.ID) {
		return ErrSessionEnded
	}

	tag, err := s.db.Exec(ctx, `
		INSERT INTO session_members (session_id, user_id, role)
		VALUES ($1,$2,$3)
		ON CONFLICT (session_id, user_id) DO NOTHING
	`, sess.ID, userID, RoleParticipant)
	if err != nil {
		return err
	}
	if err := s.live.ensureMember(sess.ID, userID); err != nil {
		return err
	}

	if tag.RowsAffected() > 0 {
		if _, err := s.chat.System(ctx, sess.ID, fmt.Sprintf("%s joined the session", userID)); err != nil {
			s.log.Warn().Err(err).Str("session_id", sess.ID).Msg("join system message failed")
		}
		s.log.Info().Str("session_id", sess.ID).Str("user_id", userID).Msg("member joined")
	}
	return nil
}

// Leave removes the member, archiving their accumulated path first when it
// has at least two points. The owner cannot leave, only terminate.
func (s *Service) Leave(ctx context.Context, sessionID, userID string) error {
	var role string
	err := s.db.QueryRow(ctx, `
		SELECT role FROM session_members WHERE session_id=$1 AND user_id=$2
	`, sessionID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotMember
	}
	if err != nil {
		return err
	}
	if role == RoleOwner {
		return ErrForbidden
	}

	s.archivePath(ctx, sessionID, userID, s.live.pathOf(sessionID, userID))

	if _, err := s.db.Exec(ctx, `
		DELETE FROM session_members WHERE session_id=$1 AND user_id=$2
	`, sessionID, userID); err != nil {
		return err
	}

	s.live.dropMember(sessionID, userID)
	s.hub.CloseUser(sessionID, userID)

	if _, err := s.chat.System(ctx, sessionID, fmt.Sprintf("%s left the session", userID)); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("leave system message failed")
	}
	s.hub.Broadcast(sessionID, stream.Push(stream.TypeMemberLeft, map[string]string{"userId": userID}))
	s.log.Info().Str("session_id", sessionID).Str("user_id", userID).Msg("member left")
	return nil
}

// Kick removes another member on the owner's behalf. The target's path is
// archived the same way a voluntary leave archives it.
func (s *Service) Kick(ctx context.Context, sessionID, callerID, targetID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.OwnerID != callerID {
		return ErrForbidden
	}
	if targetID == sess.OwnerID {
		return ErrForbidden
	}

	member, err := s.isMember(ctx, sessionID, targetID)
	if err != nil {
		return err
	}
	if !member {
		return ErrNotMember
	}

	s.archivePath(ctx, sessionID, targetID, s.live.pathOf(sessionID, targetID))

	if _, err := s.db.Exec(ctx, `
		DELETE FROM session_members WHERE session_id=$1 AND user_id=$2
	`, sessionID, targetID); err != nil {
		return err
	}

	s.live.dropMember(sessionID, targetID)
	s.hub.CloseUser(sessionID, targetID)

	if _, err := s.chat.System(ctx, sessionID, fmt.Sprintf("%s was removed from the session", targetID)); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("kick system message failed")
	}
	s.hub.Broadcast(sessionID, stream.Push(stream.TypeMemberLeft, map[string]string{"userId": targetID}))
	s.log.Info().Str("session_id", sessionID).Str("user_id", targetID).Msg("member kicked")
	return nil
}

// Terminate is owner-only. It runs a two-phase teardown: raise the fence,
// archive every member's frozen path, persist the ended state, then deliver
// session:ended and close the channels. Archival strictly precedes the
// ended broadcast.
func (s *Service) Terminate(ctx context.Context, sessionID, callerID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !sess.Active {
		return ErrNotFound
	}
	if sess.OwnerID != callerID {
		return ErrForbidden
	}

	paths := s.live.beginTermination(sessionID)
	for userID, path := range paths {
		s.archivePath(ctx, sessionID, userID, path)
	}

	if _, err := s.chat.System(ctx, sessionID, "session ended"); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("end system message failed")
	}

	if _, err := s.db.Exec(ctx, `
		UPDATE map_sessions SET is_active=false WHERE id=$1
	`, sessionID); err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `
		UPDATE session_invites SET status=$2 WHERE session_id=$1 AND status=$3
	`, sessionID, InviteStatusExpired, InviteStatusPending); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("invite expiry failed")
	}
	if _, err := s.db.Exec(ctx, `
		DELETE FROM session_members WHERE session_id=$1
	`, sessionID); err != nil {
		return err
	}

	s.hub.CloseSession(sessionID, stream.Push(stream.TypeSessionEnded, nil))
	s.live.drop(sessionID)
	s.log.Info().Str("session_id", sessionID).Int("archived_paths", len(paths)).Msg("session terminated")
	return nil
}

// archivePath persists one member's path as a recorded route. Best effort:
// a failure is logged and never blocks the rest of the teardown.
func (s *Service) archivePath(ctx context.Context, sessionID, userID string, path []geo.Point) {
	if len(path) < 2 {
		return
	}
	name := "recorded path"
	if sess, err := s.Get(ctx, sessionID); err == nil && sess.Name != "" {
		name = sess.Name + " (recorded)"
	}

	archived, err := s.routes.Create(ctx, route.Route{
		OwnerID:     userID,
		Name:        name,
		Description: "recorded during a shared map session",
		Path:        path,
		RoutingMode: route.RoutingModeRecorded,
	}, sessionID)
	if err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID).Str("user_id", userID).
			Msg("path archival failed")
		return
	}
	s.log.Info().Str("session_id", sessionID).Str("user_id", userID).
		Str("route_id", archived.ID).Float64("distance_m", archived.DistanceM).
		Msg("path archived")
}

// Members returns the durable membership merged with the live registry's
// latest samples.
func (s *Service) Members(ctx context.Context, sessionID string) ([]Member, error) {
	rows, err := s.db.Query(ctx, `
		SELECT session_id, user_id, role, joined_at
		FROM session_members WHERE session_id=$1
		ORDER BY joined_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.SessionID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	latest := s.live.latestOf(sessionID)
	for i := range members {
		if sample, ok := latest[members[i].UserID]; ok {
			members[i].Latest = &sample
		}
	}
	return members, nil
}

// UpdateView stores the session's last-known map center and zoom.
func (s *Service) UpdateView(ctx context.Context, sessionID, userID string, lat, lng, zoom float64) error {
	member, err := s.isMember(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if !member {
		return ErrNotMember
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE map_sessions
		SET center=ST_SetSRID(ST_MakePoint($2,$3), 4326)::geography, zoom=$4
		WHERE id=$1 AND is_active
	`, sessionID, lng, lat, zoom)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SendInvite creates a pending invite. Duplicate invites to the same
// invitee collapse onto the existing row, so the call is idempotent.
func (s *Service) SendInvite(ctx context.Context, sessionID, inviterID, inviteeID string) (Invite, error) {
	member, err := s.isMember(ctx, sessionID, inviterID)
	if err != nil {
		return Invite{}, err
	}
	if !member {
		return Invite{}, ErrNotMember
	}

	inv := Invite{SessionID: sessionID, InviterID: inviterID, InviteeID: inviteeID}
	row := s.db.QueryRow(ctx, `
		INSERT INTO session_invites (id, session_id, inviter_id, invitee_id, status)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (session_id, invitee_id)
		DO UPDATE SET invitee_id = EXCLUDED.invitee_id
		RETURNING id, status, created_at
	`, uuid.NewString(), sessionID, inviterID, inviteeID, InviteStatusPending)
	if err := row.Scan(&inv.ID, &inv.Status, &inv.CreatedAt); err != nil {
		return Invite{}, err
	}
	return inv, nil
}

// InvitesFor lists the invitee's pending invites. Invites are visible
// whether or not the invitee is connected anywhere.
func (s *Service) InvitesFor(ctx context.Context, inviteeID string) ([]Invite, error) {
	rows, err := s.db.Query(ctx, `
		SELECT i.id, i.session_id, s.name, i.inviter_id, i.invitee_id, i.status, i.created_at
		FROM session_invites i
		JOIN map_sessions s ON s.id = i.session_id
		WHERE i.invitee_id=$1 AND i.status=$2 AND s.is_active
		ORDER BY i.created_at DESC
	`, inviteeID, InviteStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invites []Invite
	for rows.Next() {
		var inv Invite
		if err := rows.Scan(&inv.ID, &inv.SessionID, &inv.SessionName, &inv.InviterID, &inv.InviteeID, &inv.Status, &inv.CreatedAt); err != nil {
			return nil, err
		}
		invites = append(invites, inv)
	}
	return invites, nil
}

// AcceptInvite marks the invite accepted and performs the normal join.
func (s *Service) AcceptInvite(ctx context.Context, inviteID, userID string) (Session, error) {
	var sessionID, inviteeID, status string
	err := s.db.QueryRow(ctx, `
		SELECT session_id, invitee_id, status FROM session_invites WHERE id=$1
	`, inviteID).Scan(&sessionID, &inviteeID, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	if inviteeID != userID {
		return Session{}, ErrForbidden
	}
	if status == InviteStatusExpired {
		return Session{}, ErrSessionEnded
	}

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if !sess.Active {
		return Session{}, ErrNotFound
	}

	if _, err := s.db.Exec(ctx, `
		UPDATE session_invites SET status=$2 WHERE id=$1
	`, inviteID, InviteStatusAccepted); err != nil {
		return Session{}, err
	}
	if err := s.join(ctx, sess, userID); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Snapshot is the client's re-sync source of truth after connect or
// reconnect.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (Snapshot, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	members, err := s.Members(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	pois, err := s.pois.List(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	messages, err := s.chat.Recent(ctx, sessionID, 0)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Session: sess, Members: members, Pois: pois, Messages: messages}, nil
}

// AttachMember verifies the caller may bind a channel to the session:
// active session, existing membership, no termination in flight. It also
// recreates the member's live record after a node restart.
func (s *Service) AttachMember(ctx context.Context, sessionID, userID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !sess.Active {
		return ErrNotFound
	}
	member, err := s.isMember(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if !member {
		return ErrNotMember
	}
	return s.live.ensureMember(sessionID, userID)
}

// RecordLocation validates and records one sample, returning whether it
// extended the member's path.
func (s *Service) RecordLocation(sessionID, userID string, sample Sample) (bool, error) {
	if err := validate.Struct(sample); err != nil {
		return false, err
	}
	return s.live.record(sessionID, userID, sample)
}

// PathOf exposes a copy of a member's accumulated path.
func (s *Service) PathOf(sessionID, userID string) []geo.Point {
	return s.live.pathOf(sessionID, userID)
}

// FenceMiddleware rejects session-scoped mutations once termination has
// begun. Mounted in front of the annotation endpoints.
func (s *Service) FenceMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if s.live.isTerminating(c.Params("id")) {
			return fiber.NewError(fiber.StatusConflict, ErrSessionEnded.Error())
		}
		return c.Next()
	}
}

func (s *Service) isMember(ctx context.Context, sessionID, userID string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM session_members WHERE session_id=$1 AND user_id=$2)
	`, sessionID, userID).Scan(&ok)
	return ok, err
}

func (s *Service) scanSession(row pgx.Row) (Session, error) {
	var sess Session
	var centerLat, centerLng, zoom *float64
	err := row.Scan(&sess.ID, &sess.OwnerID, &sess.Name, &sess.ShareCode, &sess.Active,
		&centerLat, &centerLng, &zoom, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	sess.CenterLat = centerLat
	sess.CenterLng = centerLng
	sess.Zoom = zoom
	return sess, nil
}
