package agent

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// sessionTTL bounds how long a session-to-provider binding is held; it
// only needs to outlive one logical session, not the agent's lifetime.
const sessionTTL = 30 * time.Minute

// sessionStore resolves "same session id routes to the same provider
// instance while live" (spec §9 Open Questions: "the mechanism is
// implementation-defined"). Grounded on the teacher's domain stack choice
// of Redis with an in-memory fallback when no Redis URL is configured.
type sessionStore interface {
	Get(ctx context.Context, sessionID string) (endpoint string, ok bool)
	Set(ctx context.Context, sessionID, endpoint string)
}

// newSessionStore builds a Redis-backed store when redisURL is set, else
// an in-process map. Either satisfies the same interface so the Proxy
// Factory (C8) doesn't need to know which backend is active.
func newSessionStore(redisURL string) sessionStore {
	if redisURL == "" {
		return newMemorySessionStore()
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		Log.Warning("invalid MCP_MESH_REDIS_URL %q, falling back to in-memory session affinity: %v", redisURL, err)
		return newMemorySessionStore()
	}
	return &redisSessionStore{client: redis.NewClient(opts)}
}

type redisSessionStore struct {
	client *redis.Client
}

func (s *redisSessionStore) Get(ctx context.Context, sessionID string) (string, bool) {
	val, err := s.client.Get(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *redisSessionStore) Set(ctx context.Context, sessionID, endpoint string) {
	if err := s.client.Set(ctx, sessionKey(sessionID), endpoint, sessionTTL).Err(); err != nil {
		Log.Warning("failed to persist session affinity for %s: %v", sessionID, err)
	}
}

func sessionKey(sessionID string) string {
	return "mcp-mesh:session:" + sessionID
}

type memoryEntry struct {
	endpoint string
	expires  time.Time
}

type memorySessionStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{entries: make(map[string]memoryEntry)}
}

func (s *memorySessionStore) Get(_ context.Context, sessionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[sessionID]
	if !ok || time.Now().After(entry.expires) {
		return "", false
	}
	return entry.endpoint, true
}

func (s *memorySessionStore) Set(_ context.Context, sessionID, endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionID] = memoryEntry{endpoint: endpoint, expires: time.Now().Add(sessionTTL)}
}
