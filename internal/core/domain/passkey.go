package domain

import "time"

// PasskeyCredential is a WebAuthn public-key credential registered to a user.
// CredentialID is the authenticator's handle; one user may hold many.
type PasskeyCredential struct {
	ID           string
	UserID       string
	CredentialID []byte
	PublicKey    []byte
	Transports   []string
	SignCount    uint32
	Active       bool
	CreatedAt    time.Time
}

// CeremonyKind distinguishes the two WebAuthn ceremony types.
type CeremonyKind string

const (
	CeremonyRegister     CeremonyKind = "register"
	CeremonyAuthenticate CeremonyKind = "authenticate"
)
