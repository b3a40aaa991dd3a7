package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	uuid "github.com/google/uuid"

	"github.com/stagepass/marketplace/internal/core/domain"
	"github.com/stagepass/marketplace/internal/core/port"
	"github.com/stagepass/marketplace/internal/repository"
)

var (
	// ErrCeremonyExpired indicates the ceremony token is unknown, used or timed out.
	ErrCeremonyExpired = errors.New("ceremony expired or already used")
	// ErrPasskeyAuthFailed is the single error surfaced for any passkey login
	// failure, so callers cannot distinguish unknown accounts from bad
	// assertions.
	ErrPasskeyAuthFailed = errors.New("passkey authentication failed")
)

const defaultChallengeTTL = 2 * time.Minute

// ceremonyState is the payload parked in the challenge store between the
// begin and finish halves of a ceremony.
type ceremonyState struct {
	Kind    domain.CeremonyKind  `json:"kind"`
	UserID  string               `json:"user_id"`
	Session webauthn.SessionData `json:"session"`
}

// PasskeyService drives WebAuthn registration and login ceremonies. Ceremony
// state lives server-side under an opaque single-use token; the browser never
// holds the challenge between round trips.
type PasskeyService struct {
	rp           *webauthn.WebAuthn
	users        port.UserRepository
	passkeys     port.PasskeyRepository
	challenges   port.ChallengeStore
	auth         *AuthService
	publisher    port.EventPublisher
	challengeTTL time.Duration
	now          func() time.Time
}

// NewPasskeyService constructs a PasskeyService.
func NewPasskeyService(
	rp *webauthn.WebAuthn,
	users port.UserRepository,
	passkeys port.PasskeyRepository,
	challenges port.ChallengeStore,
	auth *AuthService,
	publisher port.EventPublisher,
) *PasskeyService {
	return &PasskeyService{
		rp:           rp,
		users:        users,
		passkeys:     passkeys,
		challenges:   challenges,
		auth:         auth,
		publisher:    publisher,
		challengeTTL: defaultChallengeTTL,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source for deterministic tests.
func (s *PasskeyService) WithClock(now func() time.Time) *PasskeyService {
	if now != nil {
		s.now = now
	}
	return s
}

// WithChallengeTTL overrides how long a ceremony may stay open.
func (s *PasskeyService) WithChallengeTTL(ttl time.Duration) *PasskeyService {
	if ttl > 0 {
		s.challengeTTL = ttl
	}
	return s
}

// BeginRegistration opens a credential creation ceremony for the user and
// returns the browser options plus the opaque ceremony token.
func (s *PasskeyService) BeginRegistration(ctx context.Context, userID string) (*protocol.CredentialCreation, string, error) {
	if userID == "" {
		return nil, "", fmt.Errorf("user id is required")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", fmt.Errorf("user not found")
		}
		return nil, "", fmt.Errorf("lookup user: %w", err)
	}

	waUser, err := s.loadWebAuthnUser(ctx, *user)
	if err != nil {
		return nil, "", err
	}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(waUser.credentials))
	for _, cred := range waUser.credentials {
		exclusions = append(exclusions, cred.Descriptor())
	}

	options, session, err := s.rp.BeginRegistration(waUser,
		webauthn.WithExclusions(exclusions),
	)
	if err != nil {
		return nil, "", fmt.Errorf("begin registration: %w", err)
	}

	token, err := s.parkCeremony(ctx, domain.CeremonyRegister, user.ID, session)
	if err != nil {
		return nil, "", err
	}

	return options, token, nil
}

// FinishRegistration verifies the attestation response and persists the new
// credential. The ceremony token is consumed whether or not verification
// succeeds.
func (s *PasskeyService) FinishRegistration(ctx context.Context, ceremonyToken string, response []byte) (*domain.PasskeyCredential, error) {
	state, err := s.consumeCeremony(ctx, ceremonyToken, domain.CeremonyRegister)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, state.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	waUser, err := s.loadWebAuthnUser(ctx, *user)
	if err != nil {
		return nil, err
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(response))
	if err != nil {
		return nil, fmt.Errorf("parse attestation response: %w", err)
	}

	credential, err := s.rp.CreateCredential(waUser, state.Session, parsed)
	if err != nil {
		return nil, fmt.Errorf("verify attestation: %w", err)
	}

	transports := make([]string, 0, len(credential.Transport))
	for _, t := range credential.Transport {
		transports = append(transports, string(t))
	}

	record := domain.PasskeyCredential{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		CredentialID: credential.ID,
		PublicKey:    credential.PublicKey,
		Transports:   transports,
		SignCount:    credential.Authenticator.SignCount,
		Active:       true,
		CreatedAt:    s.now(),
	}

	if err := s.passkeys.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("credential already registered")
		}
		return nil, fmt.Errorf("store credential: %w", err)
	}

	return &record, nil
}

// BeginLogin opens an assertion ceremony for the account behind the email.
// Any failure surfaces as the generic passkey error.
func (s *PasskeyService) BeginLogin(ctx context.Context, email string) (*protocol.CredentialAssertion, string, error) {
	if email == "" {
		return nil, "", ErrPasskeyAuthFailed
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrPasskeyAuthFailed
		}
		return nil, "", fmt.Errorf("lookup user: %w", err)
	}

	waUser, err := s.loadWebAuthnUser(ctx, *user)
	if err != nil {
		return nil, "", err
	}
	if len(waUser.credentials) == 0 {
		return nil, "", ErrPasskeyAuthFailed
	}

	options, session, err := s.rp.BeginLogin(waUser)
	if err != nil {
		return nil, "", fmt.Errorf("begin login: %w", err)
	}

	token, err := s.parkCeremony(ctx, domain.CeremonyAuthenticate, user.ID, session)
	if err != nil {
		return nil, "", err
	}

	return options, token, nil
}

// FinishLogin verifies the assertion and issues a token pair with a session
// ledger entry. The ceremony token is consumed before verification, so a
// failed attempt cannot be retried against the same challenge.
func (s *PasskeyService) FinishLogin(ctx context.Context, ceremonyToken string, response []byte, ip, userAgent *string) (*TokenPair, *domain.User, error) {
	state, err := s.consumeCeremony(ctx, ceremonyToken, domain.CeremonyAuthenticate)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.users.GetByID(ctx, state.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrPasskeyAuthFailed
		}
		return nil, nil, fmt.Errorf("lookup user: %w", err)
	}

	waUser, err := s.loadWebAuthnUser(ctx, *user)
	if err != nil {
		return nil, nil, err
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(response))
	if err != nil {
		return nil, nil, ErrPasskeyAuthFailed
	}

	credential, err := s.rp.ValidateLogin(waUser, state.Session, parsed)
	if err != nil {
		return nil, nil, ErrPasskeyAuthFailed
	}

	if credential.Authenticator.CloneWarning {
		return nil, nil, ErrPasskeyAuthFailed
	}

	if err := s.recordSignCount(ctx, credential.ID, credential.Authenticator.SignCount); err != nil {
		return nil, nil, err
	}

	pair, err := s.auth.IssueTokenPair(ctx, *user, ip, userAgent)
	if err != nil {
		return nil, nil, err
	}

	sanitized := *user
	sanitized.PasswordHash = ""

	return pair, &sanitized, nil
}

// recordSignCount persists the authenticator counter after a verified
// assertion. An unknown credential id is tolerated; any other lookup or
// update failure propagates.
func (s *PasskeyService) recordSignCount(ctx context.Context, credentialID []byte, signCount uint32) error {
	stored, err := s.passkeys.GetByCredentialID(ctx, credentialID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup credential: %w", err)
	}

	if err := s.passkeys.UpdateSignCount(ctx, stored.ID, signCount); err != nil {
		return fmt.Errorf("update sign count: %w", err)
	}

	return nil
}

func (s *PasskeyService) parkCeremony(ctx context.Context, kind domain.CeremonyKind, userID string, session *webauthn.SessionData) (string, error) {
	state := ceremonyState{
		Kind:    kind,
		UserID:  userID,
		Session: *session,
	}

	data, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("encode ceremony state: %w", err)
	}

	token := uuid.NewString()
	if err := s.challenges.Put(ctx, token, data, s.challengeTTL); err != nil {
		return "", fmt.Errorf("store ceremony state: %w", err)
	}

	return token, nil
}

func (s *PasskeyService) consumeCeremony(ctx context.Context, token string, expected domain.CeremonyKind) (*ceremonyState, error) {
	if token == "" {
		return nil, ErrCeremonyExpired
	}

	data, err := s.challenges.Consume(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCeremonyExpired
		}
		return nil, fmt.Errorf("consume ceremony state: %w", err)
	}

	var state ceremonyState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode ceremony state: %w", err)
	}

	if state.Kind != expected {
		return nil, ErrCeremonyExpired
	}

	return &state, nil
}

func (s *PasskeyService) loadWebAuthnUser(ctx context.Context, user domain.User) (*webAuthnUser, error) {
	records, err := s.passkeys.ListActiveByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}

	credentials := make([]webauthn.Credential, 0, len(records))
	for _, record := range records {
		transports := make([]protocol.AuthenticatorTransport, 0, len(record.Transports))
		for _, t := range record.Transports {
			transports = append(transports, protocol.AuthenticatorTransport(t))
		}

		credentials = append(credentials, webauthn.Credential{
			ID:        record.CredentialID,
			PublicKey: record.PublicKey,
			Transport: transports,
			Authenticator: webauthn.Authenticator{
				SignCount: record.SignCount,
			},
		})
	}

	return &webAuthnUser{user: user, credentials: credentials}, nil
}

// webAuthnUser adapts domain.User to the relying party's user contract.
type webAuthnUser struct {
	user        domain.User
	credentials []webauthn.Credential
}

func (u *webAuthnUser) WebAuthnID() []byte {
	return []byte(u.user.ID)
}

func (u *webAuthnUser) WebAuthnName() string {
	if u.user.Email != nil {
		return *u.user.Email
	}
	return u.user.ID
}

func (u *webAuthnUser) WebAuthnDisplayName() string {
	return u.WebAuthnName()
}

func (u *webAuthnUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

func (u *webAuthnUser) WebAuthnIcon() string {
	return ""
}
