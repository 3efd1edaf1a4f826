package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/auth"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/response"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "user_role"
)

// AuthMiddleware requires a valid bearer token and stores the caller in the context.
func AuthMiddleware(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			response.Unauthorized(c, "missing bearer token")
			return
		}

		claims, err := jwtManager.ValidateToken(token)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not in roles.
func RequireRole(roles ...auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := GetUserRole(c)
		if !ok {
			response.Unauthorized(c, "unauthorized")
			return
		}
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "insufficient role")
	}
}

// GetUserID returns the authenticated user id.
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// GetUserRole returns the authenticated user's role.
func GetUserRole(c *gin.Context) (auth.Role, bool) {
	v, ok := c.Get(ctxRole)
	if !ok {
		return "", false
	}
	role, ok := v.(auth.Role)
	return role, ok
}
