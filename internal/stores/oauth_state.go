package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrOAuthStateNotFound = errors.New("oauth state not found")
	ErrOAuthStateBackend  = errors.New("oauth state backend unavailable")
)

// OAuthStateStore persists single-use CSRF state tokens for the OAuth
// authorization-code flow. Each entry maps an opaque state token to the
// provider it was issued for, with a hard TTL.
type OAuthStateStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewOAuthStateStore(redisClient redis.UniversalClient, prefix string) *OAuthStateStore {
	if prefix == "" {
		prefix = "aos"
	}
	return &OAuthStateStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *OAuthStateStore) key(state string) string {
	return s.prefix + ":" + state
}

// Save registers a freshly issued state token against its provider.
func (s *OAuthStateStore) Save(ctx context.Context, state, provider string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(state), provider, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOAuthStateBackend, err)
	}
	return nil
}

// Consume removes the state token and returns the provider it was bound to.
// GETDEL makes lookup and deletion one atomic step: when two callbacks race
// on the same state, exactly one sees the provider and the other gets
// ErrOAuthStateNotFound. Deletion happens before any caller-side validation,
// so a state can never be retried regardless of what the callback does next.
func (s *OAuthStateStore) Consume(ctx context.Context, state string) (string, error) {
	provider, err := s.redis.GetDel(ctx, s.key(state)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrOAuthStateNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrOAuthStateBackend, err)
	}
	return provider, nil
}
