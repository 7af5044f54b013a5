package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/talep-board/internal/api/http/handlers"
	"github.com/spec-kit/talep-board/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Taleps         *handlers.TalepHandler
	Board          *handlers.BoardHandler
	Attachments    *handlers.AttachmentsHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)

	protected := app.Group("", cfg.AuthMiddleware.Handle)

	protected.Post("/attachments", cfg.Attachments.Upload)

	protected.Post("/talepler", cfg.Taleps.Create)
	protected.Get("/talepler", cfg.Taleps.ListMine)

	boardGroup := protected.Group("/board", auth.RequireEditor())
	boardGroup.Get("/assignees", auth.RequireMonitor(), cfg.Board.Assignees)

	sessions := boardGroup.Group("/sessions")
	sessions.Post("", cfg.Board.Mount)
	sessions.Get("/:id", cfg.Board.Snapshot)
	sessions.Delete("/:id", cfg.Board.Unmount)
	sessions.Post("/:id/refresh", cfg.Board.Refresh)
	sessions.Put("/:id/view", cfg.Board.SetView)
	sessions.Post("/:id/move", cfg.Board.Move)
	sessions.Post("/:id/status", cfg.Board.SetStatus)
	sessions.Post("/:id/done", cfg.Board.Done)
	sessions.Post("/:id/queue/reorder", cfg.Board.QueueReorder)
	sessions.Post("/:id/queue/commit", cfg.Board.QueueCommit)
	sessions.Patch("/:id/note", cfg.Board.Note)
	sessions.Get("/:id/detail/:talepID", cfg.Board.OpenDetail)
	sessions.Delete("/:id/detail", cfg.Board.CloseDetail)
}
