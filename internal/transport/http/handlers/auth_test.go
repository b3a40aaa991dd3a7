package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stagepass/marketplace/internal/core/domain"
	"github.com/stagepass/marketplace/internal/infra/config"
	"github.com/stagepass/marketplace/internal/infra/security"
	"github.com/stagepass/marketplace/internal/repository"
	"github.com/stagepass/marketplace/internal/transport/http/middleware"
	"github.com/stagepass/marketplace/internal/usecase"
)

type stubUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func (r *stubUserRepo) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *stubUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[id]; ok {
		copied := user
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email != nil && *user.Email == email {
			copied := user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) GetByResetTokenHash(context.Context, string) (*domain.User, error) {
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) UpdatePassword(context.Context, string, string) error { return nil }

func (r *stubUserRepo) SetResetToken(context.Context, string, *string, *time.Time) error {
	return nil
}

func (r *stubUserRepo) MarkEmailVerified(context.Context, string) error { return nil }

type stubSessionRepo struct {
	mu             sync.Mutex
	sessions       map[string]domain.Session
	failInvalidate bool
}

func (r *stubSessionRepo) Create(_ context.Context, session domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	return nil
}

func (r *stubSessionRepo) GetByTokenHash(_ context.Context, hash string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, session := range r.sessions {
		if session.TokenHash == hash {
			copied := session
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubSessionRepo) GetByID(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[id]; ok {
		copied := session
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubSessionRepo) ListByUser(_ context.Context, userID string) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Session
	for _, session := range r.sessions {
		if session.UserID == userID {
			result = append(result, session)
		}
	}
	return result, nil
}

func (r *stubSessionRepo) Invalidate(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failInvalidate {
		return errors.New("session store unavailable")
	}
	session, ok := r.sessions[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	session.IsValid = false
	r.sessions[sessionID] = session
	return nil
}

func (r *stubSessionRepo) InvalidateAllForUser(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for id, session := range r.sessions {
		if session.UserID == userID && session.IsValid {
			session.IsValid = false
			r.sessions[id] = session
			count++
		}
	}
	return count, nil
}

type authFixture struct {
	cfg      *config.AppConfig
	auth     *usecase.AuthService
	users    *stubUserRepo
	sessions *stubSessionRepo
	router   *gin.Engine
}

func newAuthFixture(t *testing.T, env string) *authFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.AppConfig{
		App: config.AppSettings{Name: "marketplace-test", Env: env},
		JWT: config.JWTSettings{
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 24 * time.Hour,
		},
	}

	keyProvider, err := security.NewEphemeralKeyProvider("test")
	if err != nil {
		t.Fatalf("create key provider: %v", err)
	}
	tokenGenerator, err := security.NewTokenGenerator(keyProvider, "test")
	if err != nil {
		t.Fatalf("create token generator: %v", err)
	}

	users := &stubUserRepo{users: make(map[string]domain.User)}
	sessions := &stubSessionRepo{sessions: make(map[string]domain.Session)}

	auth := usecase.NewAuthService(cfg, users, sessions, keyProvider, tokenGenerator, nil)
	sessionSvc := usecase.NewSessionService(sessions, nil)

	router := gin.New()
	handler := NewAuthHandler(cfg, auth, sessionSvc, zap.NewNop())
	handler.RegisterRoutes(router.Group("/auth"))
	router.GET("/me", middleware.RequireAuth(auth), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	return &authFixture{cfg: cfg, auth: auth, users: users, sessions: sessions, router: router}
}

func (f *authFixture) seedUser(t *testing.T, email, password string) domain.User {
	t.Helper()

	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	user := domain.User{
		ID:           "user-1",
		Email:        &email,
		PasswordHash: hash,
		Role:         domain.RoleBuyer,
		CreatedAt:    time.Now().UTC(),
	}
	if err := f.users.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func findCookie(t *testing.T, cookies []*http.Cookie, name string) *http.Cookie {
	t.Helper()
	for _, cookie := range cookies {
		if cookie.Name == name {
			return cookie
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func TestLoginSetsSessionCookies(t *testing.T) {
	f := newAuthFixture(t, "test")
	f.seedUser(t, "buyer@example.com", "correct-horse-battery-42")

	body, _ := json.Marshal(LoginRequest{Email: "buyer@example.com", Password: "correct-horse-battery-42"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	f.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	cookies := rr.Result().Cookies()
	access := findCookie(t, cookies, middleware.AccessTokenCookie)
	refresh := findCookie(t, cookies, middleware.RefreshTokenCookie)

	for _, cookie := range []*http.Cookie{access, refresh} {
		if cookie.Value == "" {
			t.Fatalf("cookie %q must carry a token", cookie.Name)
		}
		if !cookie.HttpOnly {
			t.Fatalf("cookie %q must be HttpOnly", cookie.Name)
		}
		if cookie.SameSite != http.SameSiteStrictMode {
			t.Fatalf("cookie %q must be SameSite=Strict", cookie.Name)
		}
		if cookie.Secure {
			t.Fatalf("cookie %q must not be Secure outside production", cookie.Name)
		}
	}
}

func TestLoginCookiesSecureInProduction(t *testing.T) {
	f := newAuthFixture(t, "production")
	f.seedUser(t, "buyer@example.com", "correct-horse-battery-42")

	body, _ := json.Marshal(LoginRequest{Email: "buyer@example.com", Password: "correct-horse-battery-42"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	f.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	access := findCookie(t, rr.Result().Cookies(), middleware.AccessTokenCookie)
	if !access.Secure {
		t.Fatal("production cookies must be Secure")
	}
}

func TestAuthFallsBackToAccessCookie(t *testing.T) {
	f := newAuthFixture(t, "test")
	user := f.seedUser(t, "buyer@example.com", "correct-horse-battery-42")

	pair, err := f.auth.IssueTokenPair(context.Background(), user, nil, nil)
	if err != nil {
		t.Fatalf("issue token pair: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: middleware.AccessTokenCookie, Value: pair.AccessToken})
	rr := httptest.NewRecorder()

	f.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("cookie-carried access token must authenticate, got %d", rr.Code)
	}

	// Without header or cookie the request stays anonymous.
	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/me", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", rr.Code)
	}
}

func TestLogoutSwallowsStoreErrors(t *testing.T) {
	f := newAuthFixture(t, "test")
	user := f.seedUser(t, "buyer@example.com", "correct-horse-battery-42")

	pair, err := f.auth.IssueTokenPair(context.Background(), user, nil, nil)
	if err != nil {
		t.Fatalf("issue token pair: %v", err)
	}

	f.sessions.failInvalidate = true

	body, _ := json.Marshal(RefreshRequest{RefreshToken: pair.RefreshToken})
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rr := httptest.NewRecorder()

	f.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("logout must swallow store failures, got %d: %s", rr.Code, rr.Body.String())
	}

	cookies := rr.Result().Cookies()
	if access := findCookie(t, cookies, middleware.AccessTokenCookie); access.MaxAge >= 0 || access.Value != "" {
		t.Fatal("logout must expire the access cookie")
	}
	if refresh := findCookie(t, cookies, middleware.RefreshTokenCookie); refresh.MaxAge >= 0 || refresh.Value != "" {
		t.Fatal("logout must expire the refresh cookie")
	}
}

func TestLogoutWithUnknownTokenSucceeds(t *testing.T) {
	f := newAuthFixture(t, "test")
	user := f.seedUser(t, "buyer@example.com", "correct-horse-battery-42")

	pair, err := f.auth.IssueTokenPair(context.Background(), user, nil, nil)
	if err != nil {
		t.Fatalf("issue token pair: %v", err)
	}

	body, _ := json.Marshal(RefreshRequest{RefreshToken: "no-such-token"})
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rr := httptest.NewRecorder()

	f.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("logout with an unknown token must succeed, got %d", rr.Code)
	}
}
