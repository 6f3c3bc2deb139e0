package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/opsdesk/internal/domain"
	apperrors "github.com/spec-kit/opsdesk/pkg/util/errorutil"
)

const actorKey = "auth_actor"

// tenantOverrideHeader lets super admins act inside another tenant. The
// header is ignored for every other role.
const tenantOverrideHeader = "X-Tenant-ID"

// Middleware validates bearer tokens and places the acting principal in
// the request context. Identity management itself is an upstream concern;
// the engine only needs subject, tenant and role.
type Middleware struct {
	tokens *TokenManager
}

// NewMiddleware constructs middleware.
func NewMiddleware(tokens *TokenManager) *Middleware {
	return &Middleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	actor := domain.Actor{
		ID:       claims.SubjectID,
		TenantID: claims.TenantID,
		Role:     claims.Role,
	}
	if override := c.Get(tenantOverrideHeader); override != "" && actor.Role.CrossTenant() {
		actor.TenantID = override
	}

	c.Locals(actorKey, actor)
	return c.Next()
}

// ActorFromContext retrieves the authenticated actor.
func ActorFromContext(c *fiber.Ctx) (domain.Actor, bool) {
	val := c.Locals(actorKey)
	if val == nil {
		return domain.Actor{}, false
	}
	actor, ok := val.(domain.Actor)
	return actor, ok
}
