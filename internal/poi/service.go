package poi

import (
	"context"
	"errors"

	"backend-sessionmaps/internal/db"
	"backend-sessionmaps/internal/stream"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound  = errors.New("poi not found")
	ErrNotMember = errors.New("not a session member")
	ErrForbidden = errors.New("only the creator may delete this poi")
)

var validate = validator.New()

type Service struct {
	db           db.Querier
	hub          *stream.Hub
	deletePolicy string
}

func NewService(db db.Querier, hub *stream.Hub, deletePolicy string) *Service {
	if deletePolicy == "" {
		deletePolicy = DeletePolicyAny
	}
	return &Service{db: db, hub: hub, deletePolicy: deletePolicy}
}

// Create stores a POI and pushes a poi:created invalidation to the other
// members, who refetch the session's POI list.
func (s *Service) Create(ctx context.Context, input Poi) (Poi, error) {
	if err := validate.Struct(input); err != nil {
		return Poi{}, err
	}
	member, err := s.isMember(ctx, input.SessionID, input.CreatorID)
	if err != nil {
		return Poi{}, err
	}
	if !member {
		return Poi{}, ErrNotMember
	}

	input.ID = uuid.NewString()
	row := s.db.QueryRow(ctx, `
		INSERT INTO session_pois (id, session_id, creator_id, name, note, location)
		VALUES ($1,$2,$3,$4,$5, ST_SetSRID(ST_MakePoint($6,$7), 4326)::geography)
		RETURNING created_at
	`, input.ID, input.SessionID, input.CreatorID, input.Name, input.Note, input.Lng, input.Lat)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Poi{}, err
	}

	if s.hub != nil {
		s.hub.BroadcastExcept(input.SessionID, input.CreatorID, stream.Push(stream.TypePoiCreated, map[string]string{
			"poiId": input.ID,
		}))
	}
	return input, nil
}

// Delete removes a POI subject to the configured policy and pushes
// poi:deleted to the other members.
func (s *Service) Delete(ctx context.Context, sessionID, poiID, userID string) error {
	member, err := s.isMember(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if !member {
		return ErrNotMember
	}

	var creatorID string
	err = s.db.QueryRow(ctx, `
		SELECT creator_id FROM session_pois WHERE id=$1 AND session_id=$2
	`, poiID, sessionID).Scan(&creatorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if s.deletePolicy == DeletePolicyCreator && creatorID != userID {
		return ErrForbidden
	}

	if _, err := s.db.Exec(ctx, `DELETE FROM session_pois WHERE id=$1 AND session_id=$2`, poiID, sessionID); err != nil {
		return err
	}

	if s.hub != nil {
		s.hub.BroadcastExcept(sessionID, userID, stream.Push(stream.TypePoiDeleted, map[string]string{
			"poiId": poiID,
		}))
	}
	return nil
}

func (s *Service) List(ctx context.Context, sessionID string) ([]Poi, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, creator_id, name, COALESCE(note,''),
		       ST_Y(location::geometry), ST_X(location::geometry), created_at
		FROM session_pois WHERE session_id=$1
		ORDER BY created_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pois []Poi
	for rows.Next() {
		var p Poi
		if err := rows.Scan(&p.ID, &p.SessionID, &p.CreatorID, &p.Name, &p.Note, &p.Lat, &p.Lng, &p.CreatedAt); err != nil {
			return nil, err
		}
		pois = append(pois, p)
	}
	return pois, nil
}

func (s *Service) isMember(ctx context.Context, sessionID, userID string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM session_members WHERE session_id=$1 AND user_id=$2)
	`, sessionID, userID).Scan(&ok)
	return ok, err
}
