package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/stagepass/marketplace/internal/core/port"
	"github.com/stagepass/marketplace/internal/repository"
)

const defaultChallengePrefix = "market:webauthn"

// ChallengeRepository stores in-flight WebAuthn ceremony state in Redis.
// Entries expire on their own and are removed on first read, so a ceremony
// token can never be replayed.
type ChallengeRepository struct {
	client *red.Client
	prefix string
}

// NewChallengeRepository wires Redis storage for ceremony challenges.
func NewChallengeRepository(client *red.Client, prefix string) *ChallengeRepository {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		trimmed = defaultChallengePrefix
	}

	return &ChallengeRepository{client: client, prefix: trimmed}
}

// Put stores the ceremony payload under the opaque token with a TTL.
func (r *ChallengeRepository) Put(ctx context.Context, token string, data []byte, ttl time.Duration) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("challenge repository not configured")
	}
	if token == "" {
		return fmt.Errorf("ceremony token required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	if err := r.client.Set(ctx, r.key(token), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set challenge: %w", err)
	}

	return nil
}

// Consume returns the stored payload and deletes it in a single step. A
// missing or expired token yields repository.ErrNotFound.
func (r *ChallengeRepository) Consume(ctx context.Context, token string) ([]byte, error) {
	if r == nil || r.client == nil {
		return nil, fmt.Errorf("challenge repository not configured")
	}

	data, err := r.client.GetDel(ctx, r.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis getdel challenge: %w", err)
	}

	return data, nil
}

func (r *ChallengeRepository) key(token string) string {
	return fmt.Sprintf("%s:%s", r.prefix, token)
}

var _ port.ChallengeStore = (*ChallengeRepository)(nil)
