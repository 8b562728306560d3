package session

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

func testAuth(userID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		return c.Next()
	}
}

func TestCreateSessionEndpoint(t *testing.T) {
	svc, mock, _ := newMockService(t)
	app := fiber.New()
	RegisterRoutes(app.Group("/sessions"), svc, testAuth("owner-1"))

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO map_sessions`).
		WithArgs(pgxmock.AnyArg(), "owner-1", "Trailhead", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec(`INSERT INTO session_members`).
		WithArgs(pgxmock.AnyArg(), "owner-1", RoleOwner).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	body, _ := json.Marshal(map[string]string{"name": "Trailhead"})
	req := httptest.NewRequest("POST", "/sessions/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var sess Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sess.ShareCode) != codeLength {
		t.Fatalf("expected share code in response, got %+v", sess)
	}
}

func TestCreateSessionEndpointRequiresName(t *testing.T) {
	svc, _, _ := newMockService(t)
	app := fiber.New()
	RegisterRoutes(app.Group("/sessions"), svc, testAuth("owner-1"))

	req := httptest.NewRequest("POST", "/sessions/", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestJoinEndpointNotFound(t *testing.T) {
	svc, mock, _ := newMockService(t)
	app := fiber.New()
	RegisterRoutes(app.Group("/sessions"), svc, testAuth("user-2"))

	mock.ExpectQuery(`FROM map_sessions WHERE share_code`).
		WithArgs("NOPE22").
		WillReturnError(pgx.ErrNoRows)

	body, _ := json.Marshal(map[string]string{"code": "NOPE22"})
	req := httptest.NewRequest("POST", "/sessions/join", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestTerminateEndpointForbidden(t *testing.T) {
	svc, mock, _ := newMockService(t)
	app := fiber.New()
	RegisterRoutes(app.Group("/sessions"), svc, testAuth("user-2"))

	mock.ExpectQuery(`FROM map_sessions WHERE id`).
		WithArgs("s1").
		WillReturnRows(sessionRows("s1", "owner-1", "Trailhead", "ABC234", true))

	req := httptest.NewRequest("POST", "/sessions/s1/terminate", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestCreateEndpointCodeExhausted(t *testing.T) {
	svc, mock, _ := newMockService(t)
	app := fiber.New()
	RegisterRoutes(app.Group("/sessions"), svc, testAuth("owner-1"))

	for i := 0; i < maxCodeAttempts; i++ {
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	}

	body, _ := json.Marshal(map[string]string{"name": "Trailhead"})
	req := httptest.NewRequest("POST", "/sessions/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestFenceMiddlewareRejectsDuringTermination(t *testing.T) {
	svc, _, _ := newMockService(t)
	app := fiber.New()
	app.Post("/sessions/:id/thing", svc.FenceMiddleware(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("POST", "/sessions/s1/thing", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected pass-through before termination, got %d", resp.StatusCode)
	}

	svc.live.beginTermination("s1")
	resp, err = app.Test(httptest.NewRequest("POST", "/sessions/s1/thing", nil))
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("expected 409 behind the fence, got %d", resp.StatusCode)
	}
}

func TestInviteEndpoints(t *testing.T) {
	svc, mock, _ := newMockService(t)
	app := fiber.New()
	RegisterRoutes(app.Group("/sessions"), svc, testAuth("owner-1"))
	RegisterInviteRoutes(app.Group("/invites"), svc, testAuth("friend-1"))

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("s1", "owner-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`INSERT INTO session_invites`).
		WithArgs(pgxmock.AnyArg(), "s1", "owner-1", "friend-1", InviteStatusPending).
		WillReturnRows(pgxmock.NewRows([]string{"id", "status", "created_at"}).
			AddRow("inv-1", InviteStatusPending, time.Now()))

	body, _ := json.Marshal(map[string]string{"invitee_id": "friend-1"})
	req := httptest.NewRequest("POST", "/sessions/s1/invites", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	mock.ExpectQuery(`FROM session_invites i`).
		WithArgs("friend-1", InviteStatusPending).
		WillReturnRows(pgxmock.NewRows([]string{"id", "session_id", "name", "inviter_id", "invitee_id", "status", "created_at"}).
			AddRow("inv-1", "s1", "Trailhead", "owner-1", "friend-1", InviteStatusPending, time.Now()))

	resp, err = app.Test(httptest.NewRequest("GET", "/invites/", nil))
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var invites []Invite
	if err := json.NewDecoder(resp.Body).Decode(&invites); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(invites) != 1 || invites[0].SessionName != "Trailhead" {
		t.Fatalf("unexpected invites: %+v", invites)
	}
}
