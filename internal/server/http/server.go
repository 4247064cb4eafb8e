// Package http exposes the task service over HTTP using Fiber. It owns the
// route table, the session cookie, request validation, and the mapping of
// service errors onto status codes.
package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ivolkov/taskvault/internal/logging"
	"github.com/ivolkov/taskvault/internal/server/config"
	"github.com/ivolkov/taskvault/internal/server/models"
	"github.com/ivolkov/taskvault/internal/server/repositories/tasks"
	"github.com/ivolkov/taskvault/internal/server/services"
)

// UserService is the identity surface consumed by the handlers.
type UserService interface {
	Register(ctx context.Context, name, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*models.User, string, error)
	ResolveIdentity(token string) (string, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// TaskService is the task CRUD surface consumed by the handlers.
type TaskService interface {
	CreateTask(ctx context.Context, ownerID, title, description string, status models.TaskStatus) (*services.TaskView, error)
	ListTasks(ctx context.Context, ownerID string, page, limit int, f tasks.Filter) (*services.ListResult, error)
	UpdateTask(ctx context.Context, ownerID, taskID string, patch services.TaskPatch) (*services.TaskView, error)
	DeleteTask(ctx context.Context, ownerID, taskID string) error
}

// Server hosts the HTTP endpoint.
type Server struct {
	address    string
	logger     logging.Logger
	users      UserService
	tasks      TaskService
	production bool
	cookieTTL  time.Duration
}

func NewServer(cfg *config.Config, l logging.Logger, us UserService, ts TaskService) *Server {
	return &Server{
		address:    cfg.EndpointAddr,
		logger:     l.With("module", "http_server"),
		users:      us,
		tasks:      ts,
		production: cfg.IsProduction(),
		cookieTTL:  cfg.TokenValidityDuration,
	}
}

func (s *Server) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.fiberErrorHandler,
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("API is running")
	})

	authGroup := app.Group("/auth")
	authGroup.Post("/register", s.handleRegister)
	authGroup.Post("/login", s.handleLogin)
	authGroup.Get("/me", s.requireAuth, s.handleMe)
	authGroup.Post("/logout", s.requireAuth, s.handleLogout)

	taskGroup := app.Group("/tasks", s.requireAuth)
	taskGroup.Post("/", s.handleCreateTask)
	taskGroup.Get("/", s.handleListTasks)
	taskGroup.Put("/:id", s.handleUpdateTask)
	taskGroup.Delete("/:id", s.handleDeleteTask)

	return app
}

// fiberErrorHandler catches errors that escape the handlers (routing errors,
// oversized bodies). Internals are hidden in production mode.
func (s *Server) fiberErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if e, ok := err.(*fiber.Error); ok {
		fiberErr = e
		code = e.Code
	}

	if code >= fiber.StatusInternalServerError {
		s.logger.Error(c.Context(), "unhandled error", "path", c.Path(), "error", err.Error())
		return s.serverError(c, err)
	}
	return c.Status(code).JSON(fiber.Map{"message": fiberErr.Message})
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	app := s.newApp()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown error", "error", err.Error())
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := app.Listen(s.address); err != nil {
		return err
	}

	return nil
}
