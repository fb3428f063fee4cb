package controllers

import (
	"errors"
	"net/http"

	"portfolio_api/middleware"
	"portfolio_api/models"
	"portfolio_api/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LoginService issues and revokes access tokens
type LoginService interface {
	Login(username, password, ipAddress, userAgent string) (string, *models.User, error)
	Logout(sessionID string) error
}

// AuthController handles token login and logout
type AuthController struct {
	auth    LoginService
	limiter *middleware.RateLimiter
	logger  *zap.Logger
}

// NewAuthController creates a new auth controller. limiter may be nil.
func NewAuthController(auth LoginService, limiter *middleware.RateLimiter, logger *zap.Logger) *AuthController {
	return &AuthController{auth: auth, limiter: limiter, logger: logger}
}

// LoginRequest accepts JSON or form encoded credentials
type LoginRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

// Login exchanges credentials for an access token
// POST /login
func (ac *AuthController) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return
	}

	token, user, err := ac.auth.Login(req.Username, req.Password, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			ac.recordAttempt(c, false)
			ac.logger.Info("Login failed", zap.String("username", req.Username), zap.String("ip", c.ClientIP()))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to log in with provided credentials."})
			return
		}
		ac.logger.Error("Login error", zap.String("username", req.Username), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	ac.recordAttempt(c, true)
	ac.logger.Info("User logged in", zap.String("username", user.Username))

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"id":         user.ID,
		"username":   user.Username,
		"email":      user.Email,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
	})
}

// Logout revokes the session behind the request's token
// POST /logout
func (ac *AuthController) Logout(c *gin.Context) {
	session, err := middleware.CurrentSession(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": err.Error()})
		return
	}

	if err := ac.auth.Logout(session.ID); err != nil {
		ac.logger.Error("Logout error", zap.String("session", session.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log out"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (ac *AuthController) recordAttempt(c *gin.Context, success bool) {
	if ac.limiter != nil {
		ac.limiter.RecordAttempt(c.ClientIP(), success)
	}
}
