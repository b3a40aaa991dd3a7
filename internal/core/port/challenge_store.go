package port

import (
	"context"
	"time"
)

// ChallengeStore holds in-flight WebAuthn ceremony state keyed by an opaque
// ceremony token. Entries are single-use: Consume removes the entry whether
// or not the subsequent verification succeeds.
type ChallengeStore interface {
	Put(ctx context.Context, token string, data []byte, ttl time.Duration) error
	// Consume returns the stored data and deletes it in one step. A missing
	// or expired entry returns repository.ErrNotFound.
	Consume(ctx context.Context, token string) ([]byte, error)
}
