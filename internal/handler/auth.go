package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"training-platform/internal/middleware"
	"training-platform/internal/service"
)

// AuthHandler handles authentication requests.
type AuthHandler struct {
	auth   service.AuthService
	logger *zap.Logger
}

func NewAuthHandler(auth service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles user login.
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Username and password are required")
		return
	}

	ctx := service.WithClientIP(c.Request.Context(), c.ClientIP())
	result, err := h.auth.Login(ctx, req.Username, req.Password)
	if err != nil {
		respondError(c, h.logger, err, "Failed to login")
		return
	}
	c.JSON(http.StatusOK, result)
}

// Register creates a user. Admin only.
// POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req service.NewUser
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err.Error())
		return
	}

	user, err := h.auth.Register(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, h.logger, err, "Failed to register user")
		return
	}
	c.JSON(http.StatusCreated, user)
}

// Me returns the authenticated user.
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	user, err := h.auth.Me(c.Request.Context(), actor.ID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to load user")
		return
	}
	c.JSON(http.StatusOK, user)
}

// Logout revokes the bearer token of the request.
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "unauthorized"})
		return
	}
	if err := h.auth.Logout(c.Request.Context(), claims); err != nil {
		respondError(c, h.logger, err, "Failed to logout")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}
