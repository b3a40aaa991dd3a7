package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"

	"github.com/stagepass/marketplace/internal/core/domain"
	"github.com/stagepass/marketplace/internal/core/port"
	"github.com/stagepass/marketplace/internal/repository"
)

var (
	// ErrSessionNotFound indicates the session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionForbidden indicates the caller does not own the session.
	ErrSessionForbidden = errors.New("session belongs to another user")
)

// SessionService exposes the session ledger to its owner: listing devices,
// revoking one, or revoking all at once.
type SessionService struct {
	sessions  port.SessionRepository
	publisher port.EventPublisher
	now       func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(sessions port.SessionRepository, publisher port.EventPublisher) *SessionService {
	return &SessionService{
		sessions:  sessions,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source for deterministic tests.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	if now != nil {
		s.now = now
	}
	return s
}

// ListSessions returns every ledger entry for the user, revoked rows included.
func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	return sessions, nil
}

// RevokeSession invalidates one session. The caller must own it unless they
// hold the administer capability. Revoking an already invalid session is a
// no-op success.
func (s *SessionService) RevokeSession(ctx context.Context, sessionID, callerID string, callerRole domain.Role, reason string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("fetch session: %w", err)
	}

	if session.UserID != callerID && !callerRole.Can(domain.CapAdministerUsers) {
		return ErrSessionForbidden
	}

	if !session.IsValid {
		return nil
	}

	if err := s.sessions.Invalidate(ctx, sessionID); err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}

	if reason == "" {
		reason = "user requested"
	}

	s.publishRevoked(ctx, session.ID, session.UserID, reason)
	return nil
}

// RevokeAllSessions invalidates every valid session for the user and returns
// how many were flipped.
func (s *SessionService) RevokeAllSessions(ctx context.Context, userID, reason string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("user id is required")
	}

	count, err := s.sessions.InvalidateAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("invalidate sessions: %w", err)
	}

	if count > 0 {
		if reason == "" {
			reason = "revoke all"
		}
		s.publishRevoked(ctx, "", userID, reason)
	}

	return count, nil
}

func (s *SessionService) publishRevoked(ctx context.Context, sessionID, userID, reason string) {
	if s.publisher == nil {
		return
	}

	event := domain.SessionRevokedEvent{
		EventID:   uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Reason:    reason,
		RevokedAt: s.now(),
	}

	// Revocation already happened; a publish failure must not undo it.
	_ = s.publisher.PublishSessionRevoked(ctx, event)
}
