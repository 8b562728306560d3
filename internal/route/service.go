package route

import (
	"context"
	"errors"

	"backend-sessionmaps/internal/db"
	"backend-sessionmaps/internal/shared/geo"
	"backend-sessionmaps/internal/stream"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("route not found")
var ErrForbidden = errors.New("not the route owner")
var ErrTooShort = errors.New("route needs at least two points")

type Service struct {
	db  db.Querier
	hub *stream.Hub
}

func NewService(db db.Querier, hub *stream.Hub) *Service {
	return &Service{db: db, hub: hub}
}

// Create persists a route. Distance is computed from the path when the
// caller does not supply one. When notifySessionID is set, the members of
// that session get a route:created push.
func (s *Service) Create(ctx context.Context, input Route, notifySessionID string) (Route, error) {
	if len(input.Path) < 2 {
		return Route{}, ErrTooShort
	}
	if input.ID == "" {
		input.ID = uuid.NewString()
	}
	if input.RoutingMode == "" {
		input.RoutingMode = RoutingModeRecorded
	}
	if input.DistanceM == 0 {
		input.DistanceM = geo.PathDistanceM(input.Path)
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO routes (id, owner_id, name, description, route, distance_m, routing_mode)
		VALUES ($1,$2,$3,$4, ST_GeogFromText($5), $6, $7)
		RETURNING created_at
	`, input.ID, input.OwnerID, input.Name, input.Description, geo.LineStringWKT(input.Path), input.DistanceM, input.RoutingMode)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Route{}, err
	}

	if s.hub != nil && notifySessionID != "" {
		s.hub.Broadcast(notifySessionID, stream.Push(stream.TypeRouteCreated, map[string]string{
			"routeId": input.ID,
			"ownerId": input.OwnerID,
		}))
	}
	return input, nil
}

func (s *Service) Get(ctx context.Context, id string) (Route, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, owner_id, name, description, ST_AsText(route::geometry), distance_m, routing_mode, created_at
		FROM routes WHERE id=$1
	`, id)

	var r Route
	var wkt string
	if err := row.Scan(&r.ID, &r.OwnerID, &r.Name, &r.Description, &wkt, &r.DistanceM, &r.RoutingMode, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Route{}, ErrNotFound
		}
		return Route{}, err
	}
	path, err := geo.ParseLineStringWKT(wkt)
	if err != nil {
		return Route{}, err
	}
	r.Path = path
	return r, nil
}

func (s *Service) ByOwner(ctx context.Context, ownerID string) ([]Route, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, owner_id, name, description, ST_AsText(route::geometry), distance_m, routing_mode, created_at
		FROM routes WHERE owner_id=$1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []Route
	for rows.Next() {
		var r Route
		var wkt string
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Name, &r.Description, &wkt, &r.DistanceM, &r.RoutingMode, &r.CreatedAt); err != nil {
			return nil, err
		}
		if r.Path, err = geo.ParseLineStringWKT(wkt); err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	return routes, nil
}

// Delete removes an owned route. When notifySessionID is set, the session
// members get a route:deleted push so their route lists refetch.
func (s *Service) Delete(ctx context.Context, id, ownerID, notifySessionID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM routes WHERE id=$1 AND owner_id=$2`, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if s.hub != nil && notifySessionID != "" {
		s.hub.Broadcast(notifySessionID, stream.Push(stream.TypeRouteDeleted, map[string]string{
			"routeId": id,
		}))
	}
	return nil
}
