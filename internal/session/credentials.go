package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// credentialTTL is how long a stored bearer token stays valid client-side
const credentialTTL = 7 * 24 * time.Hour

// CredentialStore persists the one piece of client state: the bearer token
// per browser session. Cleared on logout and on a 401.
type CredentialStore interface {
	Save(ctx context.Context, sessionID, token string) error
	// Get returns "" without error when no credential is stored
	Get(ctx context.Context, sessionID string) (string, error)
	Delete(ctx context.Context, sessionID string) error
}

// RedisCredentialStore keeps tokens in Redis with the 7-day TTL
type RedisCredentialStore struct {
	client *redis.Client
}

// NewRedisCredentialStore connects to Redis and verifies the connection
func NewRedisCredentialStore(redisURL string) (*RedisCredentialStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisCredentialStore{client: client}, nil
}

func credentialKey(sessionID string) string {
	return "credential:" + sessionID
}

// Save stores the token with the credential TTL
func (s *RedisCredentialStore) Save(ctx context.Context, sessionID, token string) error {
	return s.client.Set(ctx, credentialKey(sessionID), token, credentialTTL).Err()
}

// Get retrieves the token, "" when absent or expired
func (s *RedisCredentialStore) Get(ctx context.Context, sessionID string) (string, error) {
	token, err := s.client.Get(ctx, credentialKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return token, nil
}

// Delete removes the token
func (s *RedisCredentialStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, credentialKey(sessionID)).Err()
}

// Close closes the Redis connection
func (s *RedisCredentialStore) Close() error {
	return s.client.Close()
}

// MemoryCredentialStore is the fallback when Redis is not configured.
// Tokens do not survive a restart.
type MemoryCredentialStore struct {
	mu     sync.Mutex
	tokens map[string]memoryCredential
}

type memoryCredential struct {
	token     string
	expiresAt time.Time
}

// NewMemoryCredentialStore creates an in-process credential store
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{tokens: make(map[string]memoryCredential)}
}

func (s *MemoryCredentialStore) Save(_ context.Context, sessionID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[sessionID] = memoryCredential{token: token, expiresAt: time.Now().Add(credentialTTL)}
	return nil
}

func (s *MemoryCredentialStore) Get(_ context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.tokens[sessionID]
	if !ok || time.Now().After(cred.expiresAt) {
		delete(s.tokens, sessionID)
		return "", nil
	}
	return cred.token, nil
}

func (s *MemoryCredentialStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, sessionID)
	return nil
}
