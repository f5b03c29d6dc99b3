package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"training-platform/internal/models"
	"training-platform/internal/service"
)

const (
	claimsKey = "claims"
	actorKey  = "actor"
)

// Authenticator resolves a bearer token to the claims of an active user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Claims, error)
}

// AuthMiddleware creates a Gin middleware for JWT authentication.
func AuthMiddleware(auth Authenticator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "Authorization header required")
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c, "Authorization header format must be Bearer <token>")
			return
		}

		claims, err := auth.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			switch {
			case errors.Is(err, service.ErrTokenRevoked):
				abortUnauthorized(c, "Token has been revoked")
			case errors.Is(err, service.ErrUserInactive):
				abortUnauthorized(c, "User is inactive")
			case errors.Is(err, service.ErrInvalidCredentials):
				logger.Debug("Invalid JWT token", zap.Error(err))
				abortUnauthorized(c, "Invalid or expired token")
			default:
				logger.Error("Failed to authenticate request", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "code": "internal"})
			}
			return
		}

		c.Set(claimsKey, claims)
		c.Set(actorKey, models.Actor{ID: claims.UserID, Username: claims.Username, Role: claims.Role})
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Request = c.Request.WithContext(service.WithClientIP(c.Request.Context(), c.ClientIP()))

		c.Next()
	}
}

// RequireRole aborts with 403 unless the authenticated user holds at least min.
func RequireRole(min models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			abortUnauthorized(c, "Authentication required")
			return
		}
		if !actor.Role.AtLeast(min) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient permissions. Required role: " + string(min),
				"code":  "forbidden",
			})
			return
		}
		c.Next()
	}
}

// ActorFrom returns the authenticated user set by AuthMiddleware.
func ActorFrom(c *gin.Context) (models.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}

// ClaimsFrom returns the token claims set by AuthMiddleware.
func ClaimsFrom(c *gin.Context) (*models.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*models.Claims)
	return claims, ok
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "code": "unauthorized"})
}
