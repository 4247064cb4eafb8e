package http

import (
	"errors"
	"runtime/debug"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ivolkov/taskvault/internal/common"
	"github.com/ivolkov/taskvault/internal/server/models"
	"github.com/ivolkov/taskvault/internal/server/repositories/tasks"
	"github.com/ivolkov/taskvault/internal/server/services"
)

const (
	titleMaxLen       = 120
	descriptionMaxLen = 2000
)

// userView is the public shape of a user; the credential hash never leaves
// the service.
type userView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func toUserView(u *models.User) userView {
	return userView{ID: u.ID, Name: u.Name, Email: u.Email}
}

// serverError renders a 500. Production responses carry the message only;
// development adds the error text and a stack trace for diagnostics.
func (s *Server) serverError(c *fiber.Ctx, err error) error {
	body := fiber.Map{"message": "Server error"}
	if !s.production {
		body["error"] = err.Error()
		body["stack"] = string(debug.Stack())
	}
	return c.Status(fiber.StatusInternalServerError).JSON(body)
}

func validationError(c *fiber.Ctx, details []string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Validation error",
		"details": details,
	})
}

// ---- auth handlers ----

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return validationError(c, []string{"invalid request body"})
	}

	var details []string
	if strings.TrimSpace(req.Name) == "" {
		details = append(details, `"name" is required`)
	}
	if strings.TrimSpace(req.Email) == "" {
		details = append(details, `"email" is required`)
	}
	if req.Password == "" {
		details = append(details, `"password" is required`)
	}
	if len(details) > 0 {
		return validationError(c, details)
	}

	user, err := s.users.Register(c.Context(), strings.TrimSpace(req.Name), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "User already exists"})
		}
		return s.serverError(c, err)
	}

	s.logger.Info(c.Context(), "user registered", "user_id", user.ID)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User registered successfully",
		"user":    toUserView(user),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return validationError(c, []string{"invalid request body"})
	}

	var details []string
	if strings.TrimSpace(req.Email) == "" {
		details = append(details, `"email" is required`)
	}
	if req.Password == "" {
		details = append(details, `"password" is required`)
	}
	if len(details) > 0 {
		return validationError(c, details)
	}

	user, token, err := s.users.Login(c.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			// same body for unknown email and wrong password
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Invalid credentials"})
		}
		return s.serverError(c, err)
	}

	s.setSessionCookie(c, token)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Logged in successfully",
		"user":    toUserView(user),
	})
}

func (s *Server) handleMe(c *fiber.Ctx) error {
	user, err := s.users.GetByID(c.Context(), callerID(c))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "User not found"})
		}
		return s.serverError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"user": toUserView(user)})
}

func (s *Server) handleLogout(c *fiber.Ctx) error {
	s.clearSessionCookie(c)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Logged out successfully"})
}

// ---- task handlers ----

func validateTitle(title string, details []string) []string {
	if title == "" {
		return append(details, `"title" must be between 1 and 120 characters`)
	}
	if len([]rune(title)) > titleMaxLen {
		return append(details, `"title" must be between 1 and 120 characters`)
	}
	return details
}

func validateDescription(description string, details []string) []string {
	if description == "" {
		return append(details, `"description" must be between 1 and 2000 characters`)
	}
	if len([]rune(description)) > descriptionMaxLen {
		return append(details, `"description" must be between 1 and 2000 characters`)
	}
	return details
}

func validateStatus(status models.TaskStatus, details []string) []string {
	if !status.Valid() {
		return append(details, `"status" must be one of [pending, in-progress, completed]`)
	}
	return details
}

type createTaskRequest struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Status      models.TaskStatus `json:"status"`
}

func (s *Server) handleCreateTask(c *fiber.Ctx) error {
	var req createTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return validationError(c, []string{"invalid request body"})
	}

	title := strings.TrimSpace(req.Title)
	description := strings.TrimSpace(req.Description)

	var details []string
	details = validateTitle(title, details)
	details = validateDescription(description, details)
	details = validateStatus(req.Status, details)
	if len(details) > 0 {
		return validationError(c, details)
	}

	view, err := s.tasks.CreateTask(c.Context(), callerID(c), title, description, req.Status)
	if err != nil {
		return s.serverError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Task created successfully",
		"task":    view,
	})
}

func (s *Server) handleListTasks(c *fiber.Ctx) error {
	// non-numeric values fall back to the defaults; the service clamps
	// non-positive ones
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 10)

	var filter tasks.Filter

	if status := c.Query("status"); status != "" && status != "all" {
		filter.Status = models.TaskStatus(status)
		if !filter.Status.Valid() {
			return validationError(c, []string{`"status" must be one of [pending, in-progress, completed, all]`})
		}
	}
	filter.Search = strings.TrimSpace(c.Query("search"))

	result, err := s.tasks.ListTasks(c.Context(), callerID(c), page, limit, filter)
	if err != nil {
		return s.serverError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

type updateTaskRequest struct {
	Title       *string            `json:"title"`
	Description *string            `json:"description"`
	Status      *models.TaskStatus `json:"status"`
}

func (s *Server) handleUpdateTask(c *fiber.Ctx) error {
	var req updateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return validationError(c, []string{"invalid request body"})
	}

	// A body with none of the fields is a no-op update: the current task is
	// returned unchanged.
	var details []string
	patch := services.TaskPatch{}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		details = validateTitle(title, details)
		patch.Title = &title
	}
	if req.Description != nil {
		description := strings.TrimSpace(*req.Description)
		details = validateDescription(description, details)
		patch.Description = &description
	}
	if req.Status != nil {
		details = validateStatus(*req.Status, details)
		patch.Status = req.Status
	}
	if len(details) > 0 {
		return validationError(c, details)
	}

	view, err := s.tasks.UpdateTask(c.Context(), callerID(c), c.Params("id"), patch)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "Task not found"})
		}
		return s.serverError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Task updated successfully",
		"task":    view,
	})
}

func (s *Server) handleDeleteTask(c *fiber.Ctx) error {
	if err := s.tasks.DeleteTask(c.Context(), callerID(c), c.Params("id")); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "Task not found"})
		}
		return s.serverError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Task deleted successfully"})
}
