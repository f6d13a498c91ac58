package scaling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// redisKeyPrefix namespaces streak keys in a shared Redis.
const redisKeyPrefix = "signal:scaling:"

// probeInterval throttles reconnection pings while Redis is down.
const probeInterval = 30 * time.Second

// RedisStore persists streak state in Redis so multiple engine
// containers can share it. Every write also lands in an in-memory
// fallback; when Redis drops out the store keeps serving from memory
// and periodically probes for recovery.
type RedisStore struct {
	client    *redis.Client
	fallback  *MemoryStore
	available atomic.Bool
	probeMu   sync.Mutex
	lastProbe time.Time
	logger    zerolog.Logger
}

// NewRedisStore wraps client. A nil client yields a memory-only store,
// which is how single-container deployments run.
func NewRedisStore(client *redis.Client, logger zerolog.Logger) *RedisStore {
	s := &RedisStore{
		client:   client,
		fallback: NewMemoryStore(),
		logger:   logger.With().Str("component", "ScalingStore").Logger(),
	}
	if client == nil {
		s.logger.Info().Msg("No Redis client, scaling state is in-memory only")
		return s
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("Redis unavailable at startup, using in-memory fallback")
		return s
	}
	s.available.Store(true)
	s.lastProbe = time.Now()
	s.logger.Info().Msg("Redis connected for scaling state")
	return s
}

// Available reports whether Redis is currently reachable.
func (s *RedisStore) Available() bool {
	return s.available.Load()
}

func (s *RedisStore) redisKey(key string) string {
	return redisKeyPrefix + key
}

func (s *RedisStore) markDown(err error, op string) {
	if s.available.Swap(false) {
		s.logger.Warn().Err(err).Str("op", op).Msg("Redis dropped, falling back to in-memory scaling state")
	}
}

// maybeProbe pings Redis at most once per probeInterval while the
// connection is down.
func (s *RedisStore) maybeProbe() {
	if s.client == nil || s.available.Load() {
		return
	}

	s.probeMu.Lock()
	due := time.Since(s.lastProbe) >= probeInterval
	if due {
		s.lastProbe = time.Now()
	}
	s.probeMu.Unlock()
	if !due {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.client.Ping(ctx).Err(); err == nil {
			s.available.Store(true)
			s.logger.Info().Msg("Redis recovered for scaling state")
		}
	}()
}

// Get reads the streak for key, preferring Redis and falling back to
// memory on outage.
func (s *RedisStore) Get(ctx context.Context, key string) (State, bool) {
	s.maybeProbe()
	if s.client == nil || !s.available.Load() {
		return s.fallback.Get(ctx, key)
	}

	data, err := s.client.Get(ctx, s.redisKey(key)).Result()
	if err != nil {
		if err == redis.Nil {
			return s.fallback.Get(ctx, key)
		}
		s.markDown(err, "get")
		return s.fallback.Get(ctx, key)
	}

	var st State
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Corrupt scaling state in Redis, discarding")
		s.client.Del(ctx, s.redisKey(key))
		return State{}, false
	}
	return st, true
}

// Set writes the streak to the in-memory fallback and then best-effort
// to Redis. A Redis outage is absorbed, not surfaced.
func (s *RedisStore) Set(ctx context.Context, key string, state State, ttl time.Duration) error {
	if err := s.fallback.Set(ctx, key, state, ttl); err != nil {
		return err
	}

	s.maybeProbe()
	if s.client == nil || !s.available.Load() {
		return nil
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal scaling state: %w", err)
	}
	if err := s.client.Set(ctx, s.redisKey(key), data, ttl).Err(); err != nil {
		s.markDown(err, "set")
	}
	return nil
}

// Delete removes the streak from both stores.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.fallback.Delete(ctx, key); err != nil {
		return err
	}

	s.maybeProbe()
	if s.client == nil || !s.available.Load() {
		return nil
	}
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		s.markDown(err, "delete")
	}
	return nil
}
