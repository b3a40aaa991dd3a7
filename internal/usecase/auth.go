package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/stagepass/marketplace/internal/core/domain"
	"github.com/stagepass/marketplace/internal/core/port"
	"github.com/stagepass/marketplace/internal/infra/config"
	"github.com/stagepass/marketplace/internal/infra/security"
	"github.com/stagepass/marketplace/internal/repository"
)

var (
	// ErrInvalidCredentials indicates the provided email or password are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidRefreshToken indicates the refresh token does not exist or was revoked.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrExpiredRefreshToken indicates the refresh token has expired.
	ErrExpiredRefreshToken = errors.New("refresh token expired")
	// ErrInvalidAccessToken indicates the access token is malformed or signature validation failed.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrExpiredAccessToken indicates the access token has expired.
	ErrExpiredAccessToken = errors.New("access token expired")
	// ErrWeakPassword indicates the password failed the platform policy.
	ErrWeakPassword = errors.New("password does not meet policy")
)

// TokenPair bundles the signed tokens handed to a client after login.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
	ExpiresAt    time.Time
}

// AccessTokenClaims augments registered claims with the account role.
type AccessTokenClaims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// RefreshTokenClaims carries the session binding for rotation.
type RefreshTokenClaims struct {
	UserID    string `json:"uid"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// AuthService coordinates registration, login and the token lifecycle.
type AuthService struct {
	cfg               *config.AppConfig
	users             port.UserRepository
	sessions          port.SessionRepository
	keyProvider       security.KeyProvider
	tokenGenerator    *security.TokenGenerator
	passwordValidator *security.PasswordValidator
	publisher         port.EventPublisher
	now               func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	cfg *config.AppConfig,
	users port.UserRepository,
	sessions port.SessionRepository,
	keyProvider security.KeyProvider,
	tokenGenerator *security.TokenGenerator,
	publisher port.EventPublisher,
) *AuthService {
	return &AuthService{
		cfg:               cfg,
		users:             users,
		sessions:          sessions,
		keyProvider:       keyProvider,
		tokenGenerator:    tokenGenerator,
		passwordValidator: security.DefaultPasswordValidator(),
		publisher:         publisher,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source for deterministic tests.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// WithPasswordValidator overrides the default password policy.
func (s *AuthService) WithPasswordValidator(v *security.PasswordValidator) *AuthService {
	if v != nil {
		s.passwordValidator = v
	}
	return s
}

// Register creates a new account with the buyer role.
func (s *AuthService) Register(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if password == "" {
		return nil, fmt.Errorf("password is required")
	}

	if err := s.passwordValidator.Validate(password); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        &email,
		PasswordHash: hash,
		Role:         domain.RoleBuyer,
		CreatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if s.publisher != nil {
		event := domain.UserRegisteredEvent{
			EventID:      uuid.NewString(),
			UserID:       user.ID,
			Email:        user.Email,
			Role:         string(user.Role),
			RegisteredAt: now,
			Method:       "password",
		}
		if err := s.publisher.PublishUserRegistered(ctx, event); err != nil {
			return nil, fmt.Errorf("publish user registered: %w", err)
		}
	}

	user.PasswordHash = ""
	return &user, nil
}

// Login validates credentials and issues a token pair with a new session
// ledger entry. A missing account and a wrong password are indistinguishable.
func (s *AuthService) Login(ctx context.Context, email, password string, ip, userAgent *string) (*TokenPair, *domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("lookup user: %w", err)
	}

	if user.PasswordHash == "" {
		// Passkey-only account: password login is never valid.
		return nil, nil, ErrInvalidCredentials
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.IssueTokenPair(ctx, *user, ip, userAgent)
	if err != nil {
		return nil, nil, err
	}

	sanitized := *user
	sanitized.PasswordHash = ""

	return pair, &sanitized, nil
}

// IssueTokenPair signs an access and refresh token and records the session.
// The ledger stores only the SHA-256 of the signed refresh token.
func (s *AuthService) IssueTokenPair(ctx context.Context, user domain.User, ip, userAgent *string) (*TokenPair, error) {
	if user.ID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	now := s.now()
	sessionID := uuid.NewString()

	refreshTTL := s.cfg.JWT.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = 168 * time.Hour
	}
	expiresAt := now.Add(refreshTTL)

	refreshToken, err := s.signRefreshToken(user.ID, sessionID, now, expiresAt)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.signAccessToken(user, now)
	if err != nil {
		return nil, err
	}

	session := domain.Session{
		ID:        sessionID,
		UserID:    user.ID,
		TokenHash: security.HashToken(refreshToken),
		IsValid:   true,
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionID:    sessionID,
		ExpiresAt:    expiresAt,
	}, nil
}

// RefreshAccessToken rotates the refresh token. The presented token must
// verify, its ledger entry must still be valid, and the old entry is
// invalidated before the replacement is issued.
func (s *AuthService) RefreshAccessToken(ctx context.Context, refreshToken string, ip, userAgent *string) (*TokenPair, error) {
	claims, err := s.parseRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.GetByTokenHash(ctx, security.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	if !session.IsActive(s.now()) {
		return nil, ErrInvalidRefreshToken
	}
	if session.UserID != claims.UserID {
		return nil, ErrInvalidRefreshToken
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if err := s.sessions.Invalidate(ctx, session.ID); err != nil {
		return nil, fmt.Errorf("invalidate session: %w", err)
	}

	return s.IssueTokenPair(ctx, *user, ip, userAgent)
}

// SessionForRefreshToken returns the ledger entry backing a refresh token.
func (s *AuthService) SessionForRefreshToken(ctx context.Context, refreshToken string) (*domain.Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, ErrInvalidRefreshToken
	}

	session, err := s.sessions.GetByTokenHash(ctx, security.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	return session, nil
}

// ParseAccessToken validates the JWT access token and returns its claims.
func (s *AuthService) ParseAccessToken(token string) (*AccessTokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidAccessToken
	}

	claims := &AccessTokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, s.verificationKey,
		jwt.WithIssuer(s.cfg.App.Name),
		jwt.WithAudience(s.cfg.App.Name),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredAccessToken
		}
		return nil, ErrInvalidAccessToken
	}

	if parsed == nil || !parsed.Valid {
		return nil, ErrInvalidAccessToken
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, ErrInvalidAccessToken
	}

	return claims, nil
}

func (s *AuthService) parseRefreshToken(token string) (*RefreshTokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidRefreshToken
	}

	claims := &RefreshTokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, s.verificationKey,
		jwt.WithIssuer(s.cfg.App.Name),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredRefreshToken
		}
		return nil, ErrInvalidRefreshToken
	}

	if parsed == nil || !parsed.Valid {
		return nil, ErrInvalidRefreshToken
	}
	if claims.UserID == "" || claims.SessionID == "" {
		return nil, ErrInvalidRefreshToken
	}

	return claims, nil
}

func (s *AuthService) verificationKey(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}

	kid, ok := t.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("kid header not found")
	}

	return s.keyProvider.GetVerificationKey(kid)
}

func (s *AuthService) signAccessToken(user domain.User, now time.Time) (string, error) {
	ttl := s.cfg.JWT.AccessTokenTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	claims := AccessTokenClaims{
		UserID: user.ID,
		Role:   string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.cfg.App.Name,
			Audience:  jwt.ClaimStrings{s.cfg.App.Name},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	return s.sign(claims)
}

func (s *AuthService) signRefreshToken(userID, sessionID string, now, expiresAt time.Time) (string, error) {
	claims := RefreshTokenClaims{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.cfg.App.Name,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	return s.sign(claims)
}

func (s *AuthService) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.tokenGenerator.GetKID()

	signingKey, err := s.keyProvider.GetSigningKey()
	if err != nil {
		return "", fmt.Errorf("get signing key: %w", err)
	}

	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}
