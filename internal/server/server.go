package server

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Zyptonix/Traffic-Rewards/internal/account"
	"github.com/Zyptonix/Traffic-Rewards/internal/auth"
	"github.com/Zyptonix/Traffic-Rewards/internal/award"
	"github.com/Zyptonix/Traffic-Rewards/internal/config"
	"github.com/Zyptonix/Traffic-Rewards/internal/location"
	"github.com/Zyptonix/Traffic-Rewards/internal/oracle"
	"github.com/Zyptonix/Traffic-Rewards/internal/sampler"
	"github.com/Zyptonix/Traffic-Rewards/internal/session"
	"github.com/Zyptonix/Traffic-Rewards/internal/status"
	"github.com/Zyptonix/Traffic-Rewards/internal/stream"
	"github.com/Zyptonix/Traffic-Rewards/internal/stuck"
)

type Server struct {
	App       *fiber.App
	Cfg       config.Config
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Stream    *stream.Hub
	Status    *status.Service
	Manager   *sampler.Manager
	Scheduler *sampler.TickerScheduler
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	sessions := session.NewStore(redisClient)
	accounts := account.NewStore(db)

	var oracleHTTP *http.Client
	if cfg.OracleTimeout > 0 {
		oracleHTTP = &http.Client{Timeout: cfg.OracleTimeout}
	}
	oracleClient := &oracle.Client{
		Sessions:        sessions,
		HTTPClient:      oracleHTTP,
		TrafficURL:      cfg.TrafficOracleURL,
		RoadURL:         cfg.RoadOracleURL,
		APIKey:          cfg.OracleAPIKey,
		TrafficInterval: cfg.TrafficCheckInterval,
		RoadInterval:    cfg.RoadCheckInterval,
		CheckDistanceM:  cfg.CheckDistanceM,
		OnRoadWithinM:   cfg.OnRoadWithinM,
		HeavyRatio:      cfg.HeavyRatio,
		ModerateRatio:   cfg.ModerateRatio,
	}

	policy := &award.Policy{
		Accounts:       accounts,
		Sessions:       sessions,
		Cooldown:       cfg.AwardCooldown,
		HeavyPoints:    cfg.HeavyPoints,
		ModeratePoints: cfg.ModeratePoints,
	}

	statusSvc := &status.Service{
		Sessions: sessions,
		Accounts: accounts,
		Cooldown: cfg.AwardCooldown,
	}

	hub := stream.NewHub(redisClient)

	pipeline := &sampler.Pipeline{
		Sessions: sessions,
		Oracle:   oracleClient,
		Policy:   policy,
		Status:   statusSvc,
		Hub:      hub,
		Thresholds: stuck.Thresholds{
			DistanceM:     cfg.StuckDistanceM,
			StationaryFor: cfg.StuckAfter,
		},
	}

	scheduler := sampler.NewTickerScheduler(cfg.SampleInterval)

	s := &Server{
		App:       app,
		Cfg:       cfg,
		DB:        db,
		Redis:     redisClient,
		Stream:    hub,
		Status:    statusSvc,
		Scheduler: scheduler,
		Manager: &sampler.Manager{
			Provider:          location.NewPushProvider(),
			Scheduler:         scheduler,
			Pipeline:          pipeline,
			BackgroundEnabled: cfg.BackgroundEnabled,
		},
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	sampler.RegisterRoutes(s.App.Group("/traffic"), s.Manager, jwtMiddleware)
	status.RegisterRoutes(s.App.Group("/status"), s.Status, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
