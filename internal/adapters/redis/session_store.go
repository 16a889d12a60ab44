// Package redis provides Redis-backed adapters.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/target/waypoint/internal/domain/auth"
)

const defaultSessionPrefix = "session:"

var (
	// ErrNotFound is returned for unknown, empty or expired session ids.
	ErrNotFound = errors.New("session not found")
	// ErrEmptySessionID is returned when saving a session without an id.
	ErrEmptySessionID = errors.New("session ID cannot be empty")
	// ErrSessionExpired is returned when saving a session whose ExpiresAt has passed.
	ErrSessionExpired = errors.New("session is expired")
)

// SessionStore keeps sessions as JSON values under prefix+ID. The key TTL
// follows ExpiresAt, and the verified claim set travels in Metadata.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// SessionStoreOption customizes a SessionStore.
type SessionStoreOption func(*SessionStore)

// WithKeyPrefix replaces the default "session:" key prefix.
func WithKeyPrefix(prefix string) SessionStoreOption {
	return func(s *SessionStore) { s.prefix = prefix }
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) SessionStoreOption {
	return func(s *SessionStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSessionStore creates a Redis session store.
func NewSessionStore(client redis.UniversalClient, opts ...SessionStoreOption) *SessionStore {
	s := &SessionStore{client: client, prefix: defaultSessionPrefix, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionStore) key(id string) string { return s.prefix + id }

// Save writes sess with a TTL equal to its remaining lifetime.
func (s *SessionStore) Save(ctx context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return ErrEmptySessionID
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return ErrSessionExpired
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sess.ID, err)
	}
	if err = s.client.Set(ctx, s.key(sess.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// Get loads a session. A session past ExpiresAt is deleted and reported as
// ErrNotFound even if Redis has not evicted it yet.
func (s *SessionStore) Get(ctx context.Context, id string) (domainauth.Session, error) {
	if id == "" {
		return domainauth.Session{}, ErrNotFound
	}

	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return domainauth.Session{}, ErrNotFound
	case err != nil:
		return domainauth.Session{}, fmt.Errorf("redis get session: %w", err)
	}

	var sess domainauth.Session
	if err = json.Unmarshal(raw, &sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal session %s: %w", id, err)
	}

	if !s.now().Before(sess.ExpiresAt) {
		if delErr := s.Delete(ctx, id); delErr != nil {
			return domainauth.Session{}, fmt.Errorf("cleanup expired session: %w", delErr)
		}
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

// Delete removes a session. Unknown and empty ids are not an error.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}
