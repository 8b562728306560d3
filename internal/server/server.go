package server

import (
	"os"

	"backend-sessionmaps/internal/auth"
	"backend-sessionmaps/internal/chat"
	"backend-sessionmaps/internal/config"
	"backend-sessionmaps/internal/poi"
	"backend-sessionmaps/internal/route"
	"backend-sessionmaps/internal/session"
	"backend-sessionmaps/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Hub      *stream.Hub
	Sessions *session.Service
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	hub := stream.NewHub(redisClient, log)

	routeSvc := route.NewService(db, hub)
	chatSvc := chat.NewService(db, hub)
	poiSvc := poi.NewService(db, hub, cfg.PoiDeletePolicy)
	sessionSvc := session.NewService(db, hub, routeSvc, chatSvc, poiSvc, log)

	s := &Server{
		App:      app,
		Cfg:      cfg,
		DB:       db,
		Redis:    redisClient,
		Hub:      hub,
		Sessions: sessionSvc,
	}

	registerRoutes(s, routeSvc, chatSvc, poiSvc)
	return s
}

func registerRoutes(s *Server, routeSvc *route.Service, chatSvc *chat.Service, poiSvc *poi.Service) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)
	fence := s.Sessions.FenceMiddleware()
	tokens := auth.NewService(s.Cfg.JWTSecret)

	session.RegisterRoutes(s.App.Group("/sessions"), s.Sessions, jwtMiddleware)
	session.RegisterInviteRoutes(s.App.Group("/invites"), s.Sessions, jwtMiddleware)
	session.RegisterChannelRoutes(s.App.Group("/stream"), s.Sessions, s.Hub, tokens)
	poi.RegisterRoutes(s.App.Group("/sessions/:id/pois"), poiSvc, jwtMiddleware, fence)
	chat.RegisterRoutes(s.App.Group("/sessions/:id/messages"), chatSvc, jwtMiddleware, fence)
	route.RegisterRoutes(s.App.Group("/routes"), routeSvc, jwtMiddleware)
}
