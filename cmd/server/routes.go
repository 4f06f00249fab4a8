package main

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/projecthub/internal/middleware"
	"github.com/huangang/projecthub/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	r.Use(middleware.RequestID(), logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(svc.cfg.CORS))

	// Shared limiter for credential and membership-request endpoints
	limiter := svc.limiter

	r.GET("/health", svc.healthHandler.CheckHealth)

	api := r.Group("/api")
	{
		auth := api.Group("/auth", limiter.Middleware())
		{
			auth.POST("/register", svc.authHandler.Register)
			auth.POST("/login", svc.authHandler.Login)
		}

		// Public reads; a valid token only adds the caller's relationship
		public := api.Group("", middleware.OptionalAuth())
		{
			public.GET("/projects", svc.projectHandler.List)
			public.GET("/projects/:id", svc.projectHandler.Get)
			public.GET("/tags", svc.tagHandler.Index)
			public.GET("/tags/alphabetical", svc.tagHandler.Alphabetical)
			public.GET("/tags/:name/projects", svc.tagHandler.Projects)
			public.GET("/users/:id/projects", svc.projectHandler.UserProjects)
			public.GET("/users/:id/profile", svc.profileHandler.Get)
			public.GET("/skills", svc.profileHandler.Skills)
			public.GET("/interests", svc.profileHandler.Interests)
		}

		// Event stream (token may come from the query string)
		api.GET("/projects/:id/messages/stream", middleware.StreamAuth(), svc.messageHandler.Stream)

		protected := api.Group("")
		protected.Use(middleware.AuthRequired(), middleware.AuditLog())
		{
			protected.GET("/auth/me", svc.authHandler.Me)
			protected.PUT("/profile", svc.profileHandler.Update)

			protected.POST("/projects", svc.projectHandler.Create)
			protected.PUT("/projects/:id", svc.projectHandler.Update)
			protected.DELETE("/projects/:id", svc.projectHandler.Delete)

			protected.POST("/projects/:id/join", svc.membershipHandler.Join)
			protected.POST("/projects/:id/leave", svc.membershipHandler.Leave)
			protected.GET("/projects/:id/members", svc.membershipHandler.ListMembers)
			protected.POST("/memberships/:id/revoke", svc.membershipHandler.Revoke)

			protected.GET("/projects/:id/membership-requests", svc.membershipHandler.ListRequests)
			protected.POST("/projects/:id/membership-requests", limiter.Middleware(), svc.membershipHandler.SubmitRequest)
			protected.POST("/membership-requests/:id/accept", svc.membershipHandler.AcceptRequest)
			protected.POST("/membership-requests/:id/reject", svc.membershipHandler.RejectRequest)

			protected.GET("/projects/:id/messages", svc.messageHandler.List)
			protected.POST("/projects/:id/messages", svc.messageHandler.Post)

			protected.GET("/system-logs", svc.systemLogHandler.List)
		}
	}
}
