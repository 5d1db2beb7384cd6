package diagnostics

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/lessonpipe/internal/cache"
)

// defaultRecentKeep bounds the recent-runs index.
const defaultRecentKeep = 1000

// RedisStore keeps traces as JSON values with a TTL and maintains a sorted
// set of recent run ids. Suitable for distributed deployments.
type RedisStore struct {
	cache     *cache.Manager
	keyPrefix string
	ttl       time.Duration
	keep      int64
}

// NewRedisStore creates a store on top of a cache manager.
func NewRedisStore(m *cache.Manager, keyPrefix string, ttl time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "lessonpipe:trace:"
	}
	return &RedisStore{
		cache:     m,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		keep:      defaultRecentKeep,
	}
}

// Name implements Store.
func (s *RedisStore) Name() string { return string(StoreTypeRedis) }

// traceKey returns the Redis key for a trace
// Ping implements Pinger.
func (s *RedisStore) Ping(ctx context.Context) error { return s.cache.Ping(ctx) }

func (s *RedisStore) traceKey(runID string) string {
	return s.keyPrefix + "data:" + runID
}

// recentKey returns the Redis key for the recent-runs index
func (s *RedisStore) recentKey() string {
	return s.keyPrefix + "recent"
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, trace *Trace) error {
	if err := ValidateRunID(trace.RunID); err != nil {
		return err
	}
	if err := s.cache.SetJSON(ctx, s.traceKey(trace.RunID), trace, s.ttl); err != nil {
		return fmt.Errorf("failed to store trace: %w", err)
	}
	score := float64(trace.StartedAt.UnixNano())
	if err := s.cache.IndexAdd(ctx, s.recentKey(), trace.RunID, score, s.keep); err != nil {
		return fmt.Errorf("failed to index trace: %w", err)
	}
	return nil
}

// Load implements Loader.
func (s *RedisStore) Load(ctx context.Context, runID string) (*Trace, error) {
	var t Trace
	if err := s.cache.GetJSON(ctx, s.traceKey(runID), &t); err != nil {
		if cache.IsCacheMiss(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load trace: %w", err)
	}
	return &t, nil
}

// List implements Lister. Ids whose trace already expired may still appear
// until the index is trimmed.
func (s *RedisStore) List(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = int(s.keep)
	}
	return s.cache.IndexRecent(ctx, s.recentKey(), int64(limit))
}
