package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"

	"training-platform/internal/models"
	"training-platform/internal/repository"
	"training-platform/internal/session"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32

	minPasswordLength = 8
)

// NewUser is the input for creating a platform account.
type NewUser struct {
	Username string      `json:"username"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
	FullName string      `json:"full_name"`
	Email    *string     `json:"email"`
}

func (n *NewUser) validate() error {
	var problems []string
	n.Username = strings.TrimSpace(n.Username)
	if l := len(n.Username); l < 3 || l > 50 {
		problems = append(problems, "username must be between 3 and 50 characters")
	}
	if len(n.Password) < minPasswordLength {
		problems = append(problems, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if !n.Role.Valid() {
		problems = append(problems, fmt.Sprintf("unknown role %q", n.Role))
	}
	if strings.TrimSpace(n.FullName) == "" {
		problems = append(problems, "full_name is required")
	}
	if len(problems) > 0 {
		return newValidationError(problems...)
	}
	return nil
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        *models.User `json:"user"`
}

type AuthService interface {
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	// Register creates an account on behalf of an admin.
	Register(ctx context.Context, actor models.Actor, input NewUser) (*models.User, error)
	// CreateUser creates an account without an acting user, for bootstrap tooling.
	CreateUser(ctx context.Context, input NewUser) (*models.User, error)
	Authenticate(ctx context.Context, token string) (*models.Claims, error)
	Me(ctx context.Context, userID int64) (*models.User, error)
	Logout(ctx context.Context, claims *models.Claims) error
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type authService struct {
	users   repository.UserRepository
	revoked session.RevocationStore
	audit   *auditor
	secret  []byte
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

func NewAuthService(users repository.UserRepository, activity repository.ActivityRepository, revoked session.RevocationStore, cfg AuthConfig, logger *zap.Logger) AuthService {
	s := &authService{
		users:   users,
		revoked: revoked,
		secret:  []byte(cfg.JWTSecret),
		ttl:     cfg.TokenTTL,
		logger:  logger,
		now:     utcNow,
	}
	if s.ttl <= 0 {
		s.ttl = 8 * time.Hour
	}
	s.audit = &auditor{repo: activity, logger: logger, now: func() time.Time { return s.now() }}
	return s
}

// utcNow is the service clock. Stored timestamps keep whole seconds so that
// both database drivers round-trip them unchanged.
func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func (s *authService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repository.ErrNotFound) {
		s.audit.record(ctx, auditEntry{username: username, action: models.ActionLogin, entityType: models.EntityTypeUser, err: ErrInvalidCredentials})
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve user: %w", err)
	}

	if !s.verifyPassword(user.PasswordHash, password) {
		s.audit.record(ctx, auditEntry{username: user.Username, action: models.ActionLogin, entityType: models.EntityTypeUser, entityID: int64Ptr(user.ID), err: ErrInvalidCredentials})
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		s.audit.record(ctx, auditEntry{username: user.Username, action: models.ActionLogin, entityType: models.EntityTypeUser, entityID: int64Ptr(user.ID), err: ErrUserInactive})
		return nil, ErrUserInactive
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := &models.Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.Username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		s.logger.Error("Failed to generate JWT token", zap.Error(err))
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("Failed to update last login", zap.Int64("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLogin = &now
	}

	actor := models.Actor{ID: user.ID, Username: user.Username, Role: user.Role}
	s.audit.record(ctx, auditEntry{actor: &actor, action: models.ActionLogin, entityType: models.EntityTypeUser, entityID: int64Ptr(user.ID)})

	return &LoginResult{AccessToken: token, TokenType: "bearer", ExpiresAt: expiresAt, User: user}, nil
}

func (s *authService) Register(ctx context.Context, actor models.Actor, input NewUser) (*models.User, error) {
	if !actor.Role.AtLeast(models.RoleAdmin) {
		err := fmt.Errorf("%w: registering users requires role %s", ErrForbidden, models.RoleAdmin)
		s.audit.record(ctx, auditEntry{actor: &actor, action: models.ActionCreateUser, entityType: models.EntityTypeUser, err: err})
		return nil, err
	}
	user, err := s.createUser(ctx, input)
	entry := auditEntry{actor: &actor, action: models.ActionCreateUser, entityType: models.EntityTypeUser, err: err}
	if user != nil {
		entry.entityID = int64Ptr(user.ID)
		entry.details = map[string]interface{}{"username": user.Username, "role": user.Role}
	}
	s.audit.record(ctx, entry)
	return user, err
}

func (s *authService) CreateUser(ctx context.Context, input NewUser) (*models.User, error) {
	user, err := s.createUser(ctx, input)
	entry := auditEntry{username: "system", action: models.ActionCreateUser, entityType: models.EntityTypeUser, err: err}
	if user != nil {
		entry.entityID = int64Ptr(user.ID)
		entry.details = map[string]interface{}{"username": user.Username, "role": user.Role}
	}
	s.audit.record(ctx, entry)
	return user, err
}

func (s *authService) createUser(ctx context.Context, input NewUser) (*models.User, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	_, err := s.users.GetUserByUsername(ctx, input.Username)
	if err == nil {
		return nil, ErrUserAlreadyExists
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing users: %w", err)
	}

	passwordHash, err := hashPassword(input.Password)
	if err != nil {
		s.logger.Error("Failed to hash password", zap.Error(err))
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     input.Username,
		PasswordHash: passwordHash,
		Role:         input.Role,
		FullName:     strings.TrimSpace(input.FullName),
		Email:        input.Email,
		IsActive:     true,
		CreatedAt:    s.now(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (s *authService) Authenticate(ctx context.Context, tokenString string) (*models.Claims, error) {
	claims := &models.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	if claims.ID != "" {
		revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check token revocation: %w", err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	// The stored role wins over the one signed into the token.
	claims.Role = user.Role
	return claims, nil
}

func (s *authService) Me(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return user, err
}

func (s *authService) Logout(ctx context.Context, claims *models.Claims) error {
	if claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	if err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		s.logger.Error("Failed to revoke token", zap.String("username", claims.Username), zap.Error(err))
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	s.logger.Info("User logged out", zap.String("username", claims.Username))
	return nil
}

// hashPassword derives an argon2id key and encodes it with its parameters:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func hashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

func (s *authService) verifyPassword(encoded, password string) bool {
	sections := strings.Split(strings.TrimPrefix(encoded, "$"), "$")
	if len(sections) != 5 || sections[0] != "argon2id" {
		s.logger.Error("Invalid hash format", zap.Int("sections", len(sections)))
		return false
	}

	var version int
	if _, err := fmt.Sscanf(sections[1], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}
	var m, t uint32
	var p uint8
	if _, err := fmt.Sscanf(sections[2], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(sections[3])
	if err != nil {
		s.logger.Error("Failed to decode salt", zap.Error(err))
		return false
	}
	hash, err := base64.RawStdEncoding.DecodeString(sections[4])
	if err != nil {
		s.logger.Error("Failed to decode hash", zap.Error(err))
		return false
	}

	candidate := argon2.IDKey([]byte(password), salt, t, m, p, uint32(len(hash)))
	return subtle.ConstantTimeCompare(candidate, hash) == 1
}
