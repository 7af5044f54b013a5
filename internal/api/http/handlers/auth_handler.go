package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/talep-board/internal/api/dto"
	"github.com/spec-kit/talep-board/internal/domain"
	"github.com/spec-kit/talep-board/internal/service"
	"github.com/spec-kit/talep-board/pkg/util"
)

// AuthHandler exposes registration and login.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	account, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		OrgUnit:     req.OrgUnit,
		Title:       req.Title,
		Password:    req.Password,
	})
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": fiber.Map{
			"id":           account.ID,
			"email":        account.Email,
			"display_name": account.DisplayName,
		},
	})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return util.NewValidationError("email and password required", nil)
	}

	token, identity, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": dto.AuthResponse{Token: token, Identity: identityResponse(identity)},
	})
}

func identityResponse(identity *domain.Identity) dto.IdentityResponse {
	return dto.IdentityResponse{
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		OrgUnit:     identity.OrgUnit,
		Title:       identity.Title,
		Editor:      identity.Editor,
		Monitor:     identity.Monitor,
	}
}
