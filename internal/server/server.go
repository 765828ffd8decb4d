package server

import (
	"strings"

	"anoa.com/notifhub/internal/config"
	"anoa.com/notifhub/internal/handler"
	"anoa.com/notifhub/internal/jobs"
	"anoa.com/notifhub/internal/middleware"
	"anoa.com/notifhub/internal/model"
	"anoa.com/notifhub/internal/repository"
	"anoa.com/notifhub/internal/service"
	"anoa.com/notifhub/pkg/mailer"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server wires the repositories, services, handlers and background jobs.
type Server struct {
	Router    *gin.Engine
	Scheduler *jobs.Scheduler
	cfg       *config.Config
}

func New(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) *Server {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(cfg.AllowedOrigins, ","),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Webhook-Secret"},
		AllowCredentials: true,
	}))

	registry := model.DefaultTypeRegistry()

	userRepo := repository.NewUserRepository(db)
	notifRepo := repository.NewNotificationRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	sender := mailer.FromEnv()
	analytics := service.NewAnalyticsRecorder(redisClient)
	content := service.NewContentGenerator()

	var oracle service.TimingOracle
	if cfg.OracleURL != "" {
		oracle = service.NewHTTPOracle(cfg.OracleURL)
	} else {
		oracle = service.NewImmediateOracle()
	}

	dispatchSvc := service.NewDispatchService(notifRepo, userRepo, sender, redisClient, analytics)
	batchSvc := service.NewBatchService(batchRepo, notifRepo, userRepo, dispatchSvc, content, analytics, cfg.Pipeline)
	eventSvc := service.NewEventService(
		registry, userRepo, settingsRepo, notifRepo,
		batchSvc, dispatchSvc, oracle, content,
		service.NewNoopContentResolver(), analytics, cfg.Pipeline,
	)
	notifSvc := service.NewNotificationService(notifRepo)
	settingsSvc := service.NewSettingsService(settingsRepo, registry)
	sweepSvc := service.NewSweepService(notifRepo, batchRepo, batchSvc, dispatchSvc, cfg.Pipeline)

	eventHandler := handler.NewEventHandler(eventSvc)
	notifHandler := handler.NewNotificationHandler(notifSvc, redisClient)
	settingsHandler := handler.NewSettingsHandler(settingsSvc)
	webhookHandler := handler.NewWebhookHandler(dispatchSvc, cfg.WebhookSecret)
	opsHandler := handler.NewOpsHandler(sweepSvc)

	authMiddleware := middleware.NewAuthMiddleware(userRepo)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		// Provider callbacks authenticate with the shared secret header,
		// not a user token.
		api.POST("/webhooks/email", webhookHandler.HandleEmailEvent)

		authed := api.Group("")
		authed.Use(authMiddleware.RequireAuth())
		{
			authed.POST("/events", eventHandler.ProcessEvent)
			authed.POST("/events/bulk", eventHandler.ProcessBulk)

			authed.GET("/notifications", notifHandler.List)
			authed.GET("/notifications/unread-count", notifHandler.UnreadCount)
			authed.GET("/notifications/stats", authMiddleware.RequireAdmin(), notifHandler.Stats)
			authed.GET("/notifications/ws", notifHandler.HandleWebSocket)
			authed.PUT("/notifications/:id/read", notifHandler.MarkAsRead)
			authed.PUT("/notifications/read-all", notifHandler.MarkAllAsRead)
			authed.DELETE("/notifications/:id", notifHandler.Delete)

			authed.GET("/settings", settingsHandler.List)
			authed.PUT("/settings/:type", settingsHandler.Update)
			authed.POST("/settings/reset", settingsHandler.Reset)
		}

		admin := api.Group("/admin")
		admin.Use(authMiddleware.RequireAuth(), authMiddleware.RequireAdmin())
		{
			admin.POST("/sweep/scheduled", opsHandler.SweepScheduled)
			admin.POST("/sweep/batches", opsHandler.SweepBatches)
			admin.POST("/sweep/retries", opsHandler.RetryFailedEmails)
			admin.POST("/cleanup", opsHandler.Cleanup)
		}
	}

	scheduler := jobs.NewScheduler()
	scheduler.Register(&jobs.ScheduledSweepJob{Sweeps: sweepSvc, Cron: cfg.ScheduledSweepCron})
	scheduler.Register(&jobs.BatchSweepJob{Sweeps: sweepSvc, Cron: cfg.BatchSweepCron})
	scheduler.Register(&jobs.RetryJob{Sweeps: sweepSvc, Cron: cfg.RetryCron})
	scheduler.Register(&jobs.CleanupJob{Sweeps: sweepSvc, Cron: cfg.CleanupCron})

	return &Server{
		Router:    router,
		Scheduler: scheduler,
		cfg:       cfg,
	}
}

func (s *Server) Run() error {
	s.Scheduler.Start()
	defer s.Scheduler.Stop()

	return s.Router.Run(":" + s.cfg.Port)
}
