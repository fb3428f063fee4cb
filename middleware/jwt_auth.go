package middleware

import (
	"errors"
	"net/http"
	"strings"

	"portfolio_api/models"

	"github.com/gin-gonic/gin"
)

const (
	contextUserKey    = "user"
	contextSessionKey = "session"
)

// Authenticator resolves an access token to its user and session.
type Authenticator interface {
	Authenticate(token string) (*models.User, *models.Session, error)
}

// AuthOption tweaks how AuthRequired finds the token.
type AuthOption func(*authConfig)

type authConfig struct {
	queryParam string
}

// WithQueryToken also accepts the token from the named query parameter.
// Browsers cannot set headers on WebSocket handshakes.
func WithQueryToken(param string) AuthOption {
	return func(c *authConfig) {
		c.queryParam = param
	}
}

// AuthRequired rejects requests without a valid access token and stores the
// authenticated user in the context.
func AuthRequired(auth Authenticator, opts ...AuthOption) gin.HandlerFunc {
	var cfg authConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, ok := extractToken(header)
		if !ok && cfg.queryParam != "" {
			tokenString = c.Query(cfg.queryParam)
			ok = tokenString != ""
		}
		if !ok {
			message := "Authentication credentials were not provided."
			if header != "" {
				message = "Invalid authorization header format. Use: Bearer <token>"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": message,
			})
			return
		}

		user, session, err := auth.Authenticate(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid token.",
			})
			return
		}

		c.Set(contextUserKey, user)
		c.Set(contextSessionKey, session)
		c.Next()
	}
}

// extractToken accepts "Bearer <token>" and "Token <token>".
func extractToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return "", false
	}
	switch strings.ToLower(scheme) {
	case "bearer", "token":
		return token, true
	default:
		return "", false
	}
}

// SetCurrentUser stores user in the context the way AuthRequired does.
func SetCurrentUser(c *gin.Context, user *models.User) {
	c.Set(contextUserKey, user)
}

// CurrentUser returns the authenticated user
func CurrentUser(c *gin.Context) (*models.User, error) {
	value, exists := c.Get(contextUserKey)
	if !exists {
		return nil, errors.New("user not authenticated")
	}
	user, ok := value.(*models.User)
	if !ok || user == nil {
		return nil, errors.New("user not authenticated")
	}
	return user, nil
}

// CurrentSession returns the session behind the request's token
func CurrentSession(c *gin.Context) (*models.Session, error) {
	value, exists := c.Get(contextSessionKey)
	if !exists {
		return nil, errors.New("session not found")
	}
	session, ok := value.(*models.Session)
	if !ok || session == nil {
		return nil, errors.New("session not found")
	}
	return session, nil
}
