package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/heliosuite/authcore/internal"
)

// ErrBackend wraps Redis failures so callers can distinguish an unavailable
// store from a missing session.
var ErrBackend = errors.New("session store backend error")

// Record is the stored shape of an established session. ClientIP and
// UserAgent hold the raw request values on the way in; the store persists
// only their hashes.
type Record struct {
	SessionID string
	UserID    string
	ClientIP  string
	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store records sessions in Redis. Safe for concurrent use.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

func NewStore(client redis.UniversalClient, prefix string) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if prefix == "" {
		return nil, errors.New("key prefix required")
	}
	return &Store{redis: client, prefix: prefix}, nil
}

func (s *Store) sessionKey(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Create writes the session hash and adds it to the owner's index set. The
// hash expires with the session; the index set's TTL is pushed out to at
// least the same horizon.
func (s *Store) Create(ctx context.Context, rec Record) error {
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("%w: session already expired", ErrBackend)
	}

	ipHash := internal.HashBindingValue(rec.ClientIP)
	uaHash := internal.HashBindingValue(rec.UserAgent)

	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, s.sessionKey(rec.SessionID), map[string]interface{}{
		"user":    rec.UserID,
		"ip":      hex.EncodeToString(ipHash[:]),
		"ua":      hex.EncodeToString(uaHash[:]),
		"created": strconv.FormatInt(rec.CreatedAt.Unix(), 10),
		"expires": strconv.FormatInt(rec.ExpiresAt.Unix(), 10),
	})
	pipe.Expire(ctx, s.sessionKey(rec.SessionID), ttl)
	pipe.SAdd(ctx, s.userKey(rec.UserID), rec.SessionID)
	pipe.Expire(ctx, s.userKey(rec.UserID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

// Exists reports whether the session is still live. An expired hash counts
// as gone even if the owner's index still references it.
func (s *Store) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return n > 0, nil
}

// Delete removes one session and its index entry. Returns false when the
// session was not present, which callers treat as an already-ended session
// rather than an error.
func (s *Store) Delete(ctx context.Context, sessionID string) (bool, error) {
	userID, err := s.redis.HGet(ctx, s.sessionKey(sessionID), "user").Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, s.sessionKey(sessionID))
	pipe.SRem(ctx, s.userKey(userID), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return true, nil
}

// DeleteAllForUser removes every live session for a user in one sweep.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) error {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}

	pipe := s.redis.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.sessionKey(id))
	}
	pipe.Del(ctx, s.userKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

// ActiveSessions returns the IDs of the user's live sessions. Entries whose
// hash has already expired are pruned from the index as a side effect.
func (s *Store) ActiveSessions(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	live := ids[:0]
	var stale []interface{}
	for _, id := range ids {
		n, err := s.redis.Exists(ctx, s.sessionKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackend, err)
		}
		if n == 0 {
			stale = append(stale, id)
			continue
		}
		live = append(live, id)
	}
	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, s.userKey(userID), stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackend, err)
		}
	}
	return live, nil
}
