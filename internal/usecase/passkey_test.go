package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stagepass/marketplace/internal/core/domain"
	"github.com/stagepass/marketplace/internal/infra/config"
	webauthninfra "github.com/stagepass/marketplace/internal/infra/webauthn"
	"github.com/stagepass/marketplace/internal/repository"
)

func newTestPasskeyService(t *testing.T, users *memUserRepo, passkeys *memPasskeyRepo, challenges *memChallengeStore) *PasskeyService {
	t.Helper()

	rp, err := webauthninfra.New(config.WebAuthnSettings{
		RPID:          "localhost",
		RPDisplayName: "marketplace-test",
		RPOrigins:     []string{"http://localhost:3000"},
	})
	if err != nil {
		t.Fatalf("create relying party: %v", err)
	}

	publisher := newRecordingPublisher()
	auth := newTestAuthService(t, users, newMemSessionRepo(), publisher)

	return NewPasskeyService(rp, users, passkeys, challenges, auth, publisher)
}

func seedPasskeyUser(t *testing.T, users *memUserRepo, email string) *domain.User {
	t.Helper()

	user := domain.User{
		ID:        "user-" + email,
		Email:     &email,
		Role:      domain.RoleBuyer,
		CreatedAt: time.Now().UTC(),
	}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return &user
}

func seedCredential(t *testing.T, passkeys *memPasskeyRepo, userID string) domain.PasskeyCredential {
	t.Helper()

	credential := domain.PasskeyCredential{
		ID:           "credential-1",
		UserID:       userID,
		CredentialID: []byte("authenticator-handle-1"),
		PublicKey:    []byte("public-key-bytes"),
		SignCount:    3,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := passkeys.Create(context.Background(), credential); err != nil {
		t.Fatalf("seed credential: %v", err)
	}
	return credential
}

func TestFinishRegistrationChallengeSingleUse(t *testing.T) {
	users := newMemUserRepo()
	challenges := newMemChallengeStore()
	svc := newTestPasskeyService(t, users, newMemPasskeyRepo(), challenges)
	user := seedPasskeyUser(t, users, "buyer@example.com")

	options, token, err := svc.BeginRegistration(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("begin registration: %v", err)
	}
	if options == nil || token == "" {
		t.Fatal("expected browser options and a ceremony token")
	}
	if challenges.size() != 1 {
		t.Fatalf("expected one parked ceremony, got %d", challenges.size())
	}

	// First attempt fails verification but still consumes the challenge.
	_, err = svc.FinishRegistration(context.Background(), token, []byte("not an attestation"))
	if err == nil {
		t.Fatal("expected verification failure for a garbage response")
	}
	if errors.Is(err, ErrCeremonyExpired) {
		t.Fatalf("first attempt must fail verification, not ceremony lookup: %v", err)
	}
	if challenges.size() != 0 {
		t.Fatal("failed verification must still consume the challenge")
	}

	if _, err := svc.FinishRegistration(context.Background(), token, []byte("not an attestation")); !errors.Is(err, ErrCeremonyExpired) {
		t.Fatalf("expected ErrCeremonyExpired on reuse, got %v", err)
	}
}

func TestFinishLoginChallengeSingleUse(t *testing.T) {
	users := newMemUserRepo()
	passkeys := newMemPasskeyRepo()
	challenges := newMemChallengeStore()
	svc := newTestPasskeyService(t, users, passkeys, challenges)
	user := seedPasskeyUser(t, users, "buyer@example.com")
	seedCredential(t, passkeys, user.ID)

	_, token, err := svc.BeginLogin(context.Background(), "buyer@example.com")
	if err != nil {
		t.Fatalf("begin login: %v", err)
	}

	_, _, err = svc.FinishLogin(context.Background(), token, []byte("not an assertion"), nil, nil)
	if !errors.Is(err, ErrPasskeyAuthFailed) {
		t.Fatalf("expected ErrPasskeyAuthFailed, got %v", err)
	}

	// The failed attempt burned the challenge; a retry cannot reuse it.
	_, _, err = svc.FinishLogin(context.Background(), token, []byte("not an assertion"), nil, nil)
	if !errors.Is(err, ErrCeremonyExpired) {
		t.Fatalf("expected ErrCeremonyExpired on reuse, got %v", err)
	}
}

func TestFinishLoginRejectsRegistrationCeremonyToken(t *testing.T) {
	users := newMemUserRepo()
	challenges := newMemChallengeStore()
	svc := newTestPasskeyService(t, users, newMemPasskeyRepo(), challenges)
	user := seedPasskeyUser(t, users, "buyer@example.com")

	_, token, err := svc.BeginRegistration(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("begin registration: %v", err)
	}

	_, _, err = svc.FinishLogin(context.Background(), token, []byte("{}"), nil, nil)
	if !errors.Is(err, ErrCeremonyExpired) {
		t.Fatalf("expected ErrCeremonyExpired for a kind mismatch, got %v", err)
	}
}

func TestFinishLoginExpiredChallenge(t *testing.T) {
	users := newMemUserRepo()
	passkeys := newMemPasskeyRepo()
	challenges := newMemChallengeStore()
	svc := newTestPasskeyService(t, users, passkeys, challenges)
	user := seedPasskeyUser(t, users, "buyer@example.com")
	seedCredential(t, passkeys, user.ID)

	_, token, err := svc.BeginLogin(context.Background(), "buyer@example.com")
	if err != nil {
		t.Fatalf("begin login: %v", err)
	}

	challenges.now = func() time.Time { return time.Now().UTC().Add(5 * time.Minute) }

	_, _, err = svc.FinishLogin(context.Background(), token, []byte("{}"), nil, nil)
	if !errors.Is(err, ErrCeremonyExpired) {
		t.Fatalf("expected ErrCeremonyExpired after the TTL, got %v", err)
	}
}

func TestBeginLoginUnknownAccountsIndistinguishable(t *testing.T) {
	users := newMemUserRepo()
	svc := newTestPasskeyService(t, users, newMemPasskeyRepo(), newMemChallengeStore())

	// Unknown email.
	if _, _, err := svc.BeginLogin(context.Background(), "nobody@example.com"); !errors.Is(err, ErrPasskeyAuthFailed) {
		t.Fatalf("expected ErrPasskeyAuthFailed for unknown email, got %v", err)
	}

	// Known account without credentials must fail the same way.
	seedPasskeyUser(t, users, "buyer@example.com")
	if _, _, err := svc.BeginLogin(context.Background(), "buyer@example.com"); !errors.Is(err, ErrPasskeyAuthFailed) {
		t.Fatalf("expected ErrPasskeyAuthFailed without credentials, got %v", err)
	}
}

func TestRecordSignCountUpdatesCounter(t *testing.T) {
	users := newMemUserRepo()
	passkeys := newMemPasskeyRepo()
	svc := newTestPasskeyService(t, users, passkeys, newMemChallengeStore())
	user := seedPasskeyUser(t, users, "buyer@example.com")
	credential := seedCredential(t, passkeys, user.ID)

	if err := svc.recordSignCount(context.Background(), credential.CredentialID, 17); err != nil {
		t.Fatalf("record sign count: %v", err)
	}

	stored, err := passkeys.GetByCredentialID(context.Background(), credential.CredentialID)
	if err != nil {
		t.Fatalf("lookup credential: %v", err)
	}
	if stored.SignCount != 17 {
		t.Fatalf("expected sign count 17, got %d", stored.SignCount)
	}
}

func TestRecordSignCountToleratesUnknownCredential(t *testing.T) {
	users := newMemUserRepo()
	svc := newTestPasskeyService(t, users, newMemPasskeyRepo(), newMemChallengeStore())

	if err := svc.recordSignCount(context.Background(), []byte("unknown"), 5); err != nil {
		t.Fatalf("unknown credential must be tolerated, got %v", err)
	}
}

func TestRecordSignCountPropagatesLookupFailure(t *testing.T) {
	users := newMemUserRepo()
	passkeys := newMemPasskeyRepo()
	svc := newTestPasskeyService(t, users, passkeys, newMemChallengeStore())

	passkeys.lookupErr = errors.New("store down")

	err := svc.recordSignCount(context.Background(), []byte("any"), 5)
	if err == nil || errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected the lookup failure to propagate, got %v", err)
	}
}
