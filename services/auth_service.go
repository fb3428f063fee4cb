package services

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"portfolio_api/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("unable to log in with provided credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrSessionNotFound    = errors.New("session not found or expired")
	ErrUserExists         = errors.New("user already exists")
)

const tokenIssuer = "portfolio_api"

// TokenClaims are the claims carried by an access token. The ID (jti) names the session.
type TokenClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// AuthService issues and validates access tokens backed by stored sessions.
type AuthService struct {
	db       *gorm.DB
	secret   []byte
	tokenTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(db *gorm.DB, secret string, tokenTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		db:       db,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateUser registers a user with a bcrypt-hashed password.
func (s *AuthService) CreateUser(username, password, email, firstName, lastName string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}

	var count int64
	if err := s.db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check user %s: %w", username, err)
	}
	if count > 0 {
		return nil, ErrUserExists
	}

	user := &models.User{
		Username:  username,
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		IsActive:  true,
	}
	if err := user.SetPassword(password); err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.db.Create(user).Error; err != nil {
		return nil, fmt.Errorf("create user %s: %w", username, err)
	}
	return user, nil
}

// Login checks credentials, opens a session and returns a signed token for it.
func (s *AuthService) Login(username, password, ipAddress, userAgent string) (string, *models.User, error) {
	var user models.User
	if err := s.db.Where("username = ? AND is_active = ?", username, true).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("load user %s: %w", username, err)
	}

	if !user.CheckPassword(password) {
		return "", nil, ErrInvalidCredentials
	}

	now := s.now()
	session := models.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		ExpiresAt: now.Add(s.tokenTTL),
	}
	if err := s.db.Create(&session).Error; err != nil {
		return "", nil, fmt.Errorf("create session: %w", err)
	}

	token, err := s.signToken(&user, &session, now)
	if err != nil {
		return "", nil, err
	}

	// The token is already valid; a failed bookkeeping write does not fail the login.
	if err := s.db.Model(&user).Update("last_login_at", now).Error; err != nil {
		s.logger.Warn("Failed to update last login", zap.String("username", user.Username), zap.Error(err))
	} else {
		user.LastLoginAt = &now
	}
	return token, &user, nil
}

func (s *AuthService) signToken(user *models.User, session *models.Session, now time.Time) (string, error) {
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID,
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
		Username: user.Username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates the signature and expiry of a token and returns its claims.
func (s *AuthService) ParseToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authenticate resolves a token to its active user and session.
func (s *AuthService) Authenticate(tokenString string) (*models.User, *models.Session, error) {
	claims, err := s.ParseToken(tokenString)
	if err != nil {
		return nil, nil, err
	}

	var session models.Session
	if err := s.db.Preload("User").Where("id = ?", claims.ID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("load session: %w", err)
	}

	if session.IsExpired(s.now()) {
		if err := s.db.Delete(&session).Error; err != nil {
			s.logger.Warn("Failed to delete expired session", zap.String("session", session.ID), zap.Error(err))
		}
		return nil, nil, ErrSessionNotFound
	}
	if !session.User.IsActive {
		return nil, nil, ErrSessionNotFound
	}

	user := session.User
	return &user, &session, nil
}

// Logout revokes the session.
func (s *AuthService) Logout(sessionID string) error {
	if err := s.db.Where("id = ?", sessionID).Delete(&models.Session{}).Error; err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeExpiredSessions deletes sessions past their expiry and returns how many were removed.
func (s *AuthService) PurgeExpiredSessions() (int64, error) {
	result := s.db.Where("expires_at < ?", s.now()).Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("purge sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}
