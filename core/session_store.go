package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

// SessionStore holds the authenticated principal for a session id. The
// cookie only ever carries the opaque id; the principal lives server-side.
// Implementations must serialize mutations on the same session id while
// letting distinct sessions proceed in parallel.
type SessionStore interface {
	// CurrentPrincipal returns the bound principal, or nil for an anonymous session.
	CurrentPrincipal(ctx context.Context, sessionID string) (*Principal, error)
	// Establish binds principal to the session, replacing any prior binding.
	Establish(ctx context.Context, sessionID string, principal Principal) error
	// Clear returns the session to anonymous.
	Clear(ctx context.Context, sessionID string) error
}

// RedisSessionStore keeps principals in Redis under session:<id> with a TTL.
// Each operation is a single command, so writes to the same session id
// serialize on the Redis server.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func (s *RedisSessionStore) CurrentPrincipal(ctx context.Context, sessionID string) (*Principal, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, WrapError(KindDependency, "error.internal", err)
	}
	var p Principal
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, WrapError(KindDependency, "error.internal", err)
	}
	return &p, nil
}

func (s *RedisSessionStore) Establish(ctx context.Context, sessionID string, principal Principal) error {
	data, err := json.Marshal(principal)
	if err != nil {
		return WrapError(KindDependency, "error.internal", err)
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+sessionID, data, s.ttl).Err(); err != nil {
		return WrapError(KindDependency, "error.internal", err)
	}
	return nil
}

func (s *RedisSessionStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+sessionID).Err(); err != nil {
		return WrapError(KindDependency, "error.internal", err)
	}
	return nil
}

// MemorySessionStore is an in-process SessionStore for tests and single-node
// runs. A per-session-id mutex serializes Establish/Clear on the same id.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]Principal
	locks    map[string]*sync.Mutex
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: map[string]Principal{},
		locks:    map[string]*sync.Mutex{},
	}
}

func (s *MemorySessionStore) lockFor(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

func (s *MemorySessionStore) CurrentPrincipal(_ context.Context, sessionID string) (*Principal, error) {
	l := s.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()
	s.mu.Lock()
	p, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	copied := p
	return &copied, nil
}

func (s *MemorySessionStore) Establish(_ context.Context, sessionID string, principal Principal) error {
	l := s.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()
	s.mu.Lock()
	s.sessions[sessionID] = principal
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Clear(_ context.Context, sessionID string) error {
	l := s.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}
