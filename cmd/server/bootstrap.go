package main

import (
	"io"

	"github.com/huangang/projecthub/internal/config"
	"github.com/huangang/projecthub/internal/handlers"
	"github.com/huangang/projecthub/internal/middleware"
	"github.com/huangang/projecthub/internal/models"
	"github.com/huangang/projecthub/internal/services"
	"github.com/huangang/projecthub/internal/utils"
	"github.com/huangang/projecthub/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	cfg       *config.Config
	taskQueue services.TaskQueue
	worker    *services.Worker
	scheduler *services.Scheduler
	tagCache  services.TagCache
	limiter   *middleware.RateLimiter

	authHandler       *handlers.AuthHandler
	projectHandler    *handlers.ProjectHandler
	membershipHandler *handlers.MembershipHandler
	tagHandler        *handlers.TagHandler
	profileHandler    *handlers.ProfileHandler
	messageHandler    *handlers.MessageHandler
	systemLogHandler  *handlers.SystemLogHandler
	healthHandler     *handlers.HealthHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	db := models.GetDB()

	services.InitSystemLogger(db)
	systemLogService := services.NewSystemLogService(db)

	// Membership activity goes through Redis when enabled, otherwise in-process
	taskQueue := services.InitTaskQueue(cfg)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(systemLogService.ProcessMembershipTask)
	}

	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.InitWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(systemLogService.ProcessMembershipTask)
			if err := worker.Start(); err != nil {
				logger.Error().Err(err).Msg("Failed to start worker")
			}
		}
	}

	tagCache := services.InitTagCache(&cfg.Redis)
	tagService := services.NewTagService(db, tagCache)
	projectService := services.NewProjectService(db, tagService)
	hub := services.NewMessageHub()

	var scheduler *services.Scheduler
	if cfg.Scheduler.Enabled {
		scheduler = services.NewScheduler(cfg.Scheduler, tagService, systemLogService)
		if err := scheduler.Start(); err != nil {
			logger.Error().Err(err).Msg("Failed to start scheduler")
			scheduler = nil
		}
	}

	return &appServices{
		cfg:       cfg,
		taskQueue: taskQueue,
		worker:    worker,
		scheduler: scheduler,
		tagCache:  tagCache,
		limiter:   middleware.NewRateLimiter(cfg.RateLimit),

		authHandler:    handlers.NewAuthHandler(services.NewAuthService(db, &cfg.JWT)),
		projectHandler: handlers.NewProjectHandler(projectService),
		membershipHandler: handlers.NewMembershipHandler(
			services.NewMembershipService(db, taskQueue),
			services.NewRequestService(db, taskQueue),
		),
		tagHandler:       handlers.NewTagHandler(tagService, projectService),
		profileHandler:   handlers.NewProfileHandler(services.NewProfileService(db)),
		messageHandler:   handlers.NewMessageHandler(services.NewMessageService(db, hub)),
		systemLogHandler: handlers.NewSystemLogHandler(systemLogService),
		healthHandler:    handlers.NewHealthHandler(db, taskQueue, hub),
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
		logger.Info().Msg("Scheduler stopped")
	}
	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		if err := s.taskQueue.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close task queue")
		}
	}
	if closer, ok := s.tagCache.(io.Closer); ok {
		closer.Close()
	}
	if sqlDB, err := models.GetDB().DB(); err == nil {
		sqlDB.Close()
	}
}
