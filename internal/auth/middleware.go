package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/talep-board/internal/domain"
	"github.com/spec-kit/talep-board/pkg/util"
)

const identityKey = "auth_identity"

// Middleware validates bearer tokens and stores the acting identity on the
// request. Role flags come from the token; a role change takes effect at
// the next login.
type Middleware struct {
	tokens *TokenManager
}

// NewMiddleware constructs middleware.
func NewMiddleware(tokens *TokenManager) *Middleware {
	return &Middleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	header := c.Get("Authorization")
	if header == "" {
		return util.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return util.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.Parse(parts[1])
	if err != nil {
		return util.NewUnauthorized("invalid token")
	}

	identity := claims.Identity()
	c.Locals(identityKey, &identity)
	return c.Next()
}

// IdentityFromContext retrieves the authenticated identity.
func IdentityFromContext(c *fiber.Ctx) (*domain.Identity, bool) {
	val := c.Locals(identityKey)
	if val == nil {
		return nil, false
	}
	identity, ok := val.(*domain.Identity)
	return identity, ok
}

// RequireEditor limits a route to board editors.
func RequireEditor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFromContext(c)
		if !ok {
			return util.NewUnauthorized("authentication required")
		}
		if !identity.Editor && !identity.Monitor {
			return util.NewAuthorizationError("editor role required")
		}
		return c.Next()
	}
}

// RequireMonitor limits a route to the team monitor.
func RequireMonitor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFromContext(c)
		if !ok {
			return util.NewUnauthorized("authentication required")
		}
		if !identity.Monitor {
			return util.NewAuthorizationError("monitor role required")
		}
		return c.Next()
	}
}
