package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// appendScript writes a checkpoint only when ARGV[1] follows the stored latest step.
// Returns -1 on success, otherwise the current latest step.
var appendScript = backend.NewScript(`
local latest = tonumber(redis.call("GET", KEYS[1]) or "0")
local step = tonumber(ARGV[1])
if step ~= latest + 1 then
	return latest
end
redis.call("HSET", KEYS[2], ARGV[1], ARGV[2])
redis.call("SET", KEYS[1], ARGV[1])
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call("PEXPIRE", KEYS[1], ttl)
	redis.call("PEXPIRE", KEYS[2], ttl)
end
return -1
`)

// RedisStore persists checkpoints in Redis.
// Each session uses a hash of step -> checkpoint and a latest-step counter.
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	owned  bool
	closed atomic.Bool
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisTTL expires a session's checkpoints after ttl of inactivity.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithRedisPrefix sets the key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore connects to Redis at addr.
func NewRedisStore(addr, password string, db int, opts ...RedisOption) *RedisStore {
	client := backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	s := NewRedisStoreFromClient(client, opts...)
	s.owned = true
	return s
}

// NewRedisStoreFromClient creates a store over an existing client.
// The client is not closed by Close.
func NewRedisStoreFromClient(client *backend.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: "taskrouter:checkpoint:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) latestKey(sessionID string) string {
	return s.prefix + sessionID + ":latest"
}

func (s *RedisStore) stepsKey(sessionID string) string {
	return s.prefix + sessionID + ":steps"
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := validate(cp); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrStoreClosed
	}
	data, err := cp.Marshal()
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	keys := []string{s.latestKey(cp.SessionID), s.stepsKey(cp.SessionID)}
	latest, err := appendScript.Run(ctx, s.client, keys, cp.Step, data, s.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if latest >= 0 {
		return conflict(cp.SessionID, latest, cp.Step)
	}
	return nil
}

// LoadLatest implements Store.
func (s *RedisStore) LoadLatest(ctx context.Context, sessionID string) (*Checkpoint, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	step, err := s.client.Get(ctx, s.latestKey(sessionID)).Int()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load latest step: %w", err)
	}
	return s.Load(ctx, sessionID, step)
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, sessionID string, step int) (*Checkpoint, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	data, err := s.client.HGet(ctx, s.stepsKey(sessionID), strconv.Itoa(step)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return Unmarshal(data)
}

// List implements Store.
func (s *RedisStore) List(ctx context.Context, sessionID string) ([]Info, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	entries, err := s.client.HGetAll(ctx, s.stepsKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	infos := make([]Info, 0, len(entries))
	for _, raw := range entries {
		cp, err := Unmarshal([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode checkpoint: %w", err)
		}
		infos = append(infos, cp.Info(int64(len(raw))))
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Step < infos[j].Step
	})
	return infos, nil
}

// DeleteSession implements Store.
func (s *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if err := s.client.Del(ctx, s.latestKey(sessionID), s.stepsKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session checkpoints: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.owned {
		return s.client.Close()
	}
	return nil
}
