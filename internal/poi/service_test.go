package poi

import (
	"context"
	"errors"
	"testing"
	"time"

	"backend-sessionmaps/internal/stream"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/rs/zerolog"
)

func newMockService(t *testing.T, policy string) (*Service, pgxmock.PgxPoolIface, *stream.Hub) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	hub := stream.NewHub(nil, zerolog.Nop())
	return NewService(mock, hub, policy), mock, hub
}

func TestCreatePoi(t *testing.T) {
	svc, mock, hub := newMockService(t, DeletePolicyAny)

	other := hub.Attach("s1", "user-2")
	creator := hub.Attach("s1", "user-1")

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("s1", "user-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`INSERT INTO session_pois`).
		WithArgs(pgxmock.AnyArg(), "s1", "user-1", "Water source", "filtered", -110.76, 43.48).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	created, err := svc.Create(context.Background(), Poi{
		SessionID: "s1",
		CreatorID: "user-1",
		Name:      "Water source",
		Note:      "filtered",
		Lat:       43.48,
		Lng:       -110.76,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}

	// the other member gets the invalidation, the creator does not
	select {
	case msg := <-other.Send:
		if string(msg) == "" {
			t.Fatalf("empty push")
		}
	default:
		t.Fatalf("expected poi:created push to the other member")
	}
	select {
	case <-creator.Send:
		t.Fatalf("creator must not receive their own poi push")
	default:
	}
}

func TestCreatePoiValidatesCoordinates(t *testing.T) {
	svc, _, _ := newMockService(t, DeletePolicyAny)

	_, err := svc.Create(context.Background(), Poi{
		SessionID: "s1", CreatorID: "user-1", Name: "Bad", Lat: 123, Lng: 0,
	})
	if err == nil {
		t.Fatalf("expected validation error for latitude 123")
	}
}

func TestCreatePoiRequiresMembership(t *testing.T) {
	svc, mock, _ := newMockService(t, DeletePolicyAny)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("s1", "outsider").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := svc.Create(context.Background(), Poi{
		SessionID: "s1", CreatorID: "outsider", Name: "Nope", Lat: 1, Lng: 1,
	})
	if !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
}

func TestDeletePoiAnyPolicy(t *testing.T) {
	svc, mock, _ := newMockService(t, DeletePolicyAny)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("s1", "user-2").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT creator_id FROM session_pois`).
		WithArgs("p1", "s1").
		WillReturnRows(pgxmock.NewRows([]string{"creator_id"}).AddRow("user-1"))
	mock.ExpectExec(`DELETE FROM session_pois`).
		WithArgs("p1", "s1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	// any member may delete, not just the creator
	if err := svc.Delete(context.Background(), "s1", "p1", "user-2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeletePoiCreatorPolicy(t *testing.T) {
	svc, mock, _ := newMockService(t, DeletePolicyCreator)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("s1", "user-2").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT creator_id FROM session_pois`).
		WithArgs("p1", "s1").
		WillReturnRows(pgxmock.NewRows([]string{"creator_id"}).AddRow("user-1"))

	if err := svc.Delete(context.Background(), "s1", "p1", "user-2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("s1", "user-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT creator_id FROM session_pois`).
		WithArgs("p1", "s1").
		WillReturnRows(pgxmock.NewRows([]string{"creator_id"}).AddRow("user-1"))
	mock.ExpectExec(`DELETE FROM session_pois`).
		WithArgs("p1", "s1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	if err := svc.Delete(context.Background(), "s1", "p1", "user-1"); err != nil {
		t.Fatalf("creator delete: %v", err)
	}
}

func TestDeletePoiNotFound(t *testing.T) {
	svc, mock, _ := newMockService(t, DeletePolicyAny)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("s1", "user-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT creator_id FROM session_pois`).
		WithArgs("missing", "s1").
		WillReturnError(pgx.ErrNoRows)

	if err := svc.Delete(context.Background(), "s1", "missing", "user-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListPois(t *testing.T) {
	svc, mock, _ := newMockService(t, DeletePolicyAny)

	mock.ExpectQuery(`FROM session_pois WHERE session_id`).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "session_id", "creator_id", "name", "note", "lat", "lng", "created_at"}).
			AddRow("p1", "s1", "user-1", "Water source", "", 43.48, -110.76, time.Now()).
			AddRow("p2", "s1", "user-2", "Campsite", "flat ground", 43.49, -110.75, time.Now()))

	pois, err := svc.List(context.Background(), "s1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pois) != 2 || pois[1].Note != "flat ground" {
		t.Fatalf("unexpected pois: %+v", pois)
	}
}
