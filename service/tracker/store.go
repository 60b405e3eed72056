package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// State is the last progress stage seen for an account.
type State struct {
	Stage     int       `json:"stage"`
	Variant   string    `json:"variant"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store keeps the last progress state per account.
type Store interface {
	// Swap stores next for account and returns the state it replaced.
	// ok is false when the account had no state.
	Swap(ctx context.Context, account uint32, next State) (prev State, ok bool, err error)

	// Get returns the current state of account.
	Get(ctx context.Context, account uint32) (State, bool, error)

	// Clear forgets account.
	Clear(ctx context.Context, account uint32) error
}

// MemoryStore keeps state in process. Entries older than the TTL are treated as absent.
type MemoryStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	states map[uint32]State
	now    func() time.Time
}

// NewMemoryStore creates an in-memory store. A zero ttl keeps entries forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:    ttl,
		states: make(map[uint32]State),
		now:    time.Now,
	}
}

func (s *MemoryStore) Swap(ctx context.Context, account uint32, next State) (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.lookup(account)
	s.states[account] = next
	return prev, ok, nil
}

func (s *MemoryStore) Get(ctx context.Context, account uint32) (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.lookup(account)
	return st, ok, nil
}

func (s *MemoryStore) Clear(ctx context.Context, account uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, account)
	return nil
}

// lookup must be called with mu held.
func (s *MemoryStore) lookup(account uint32) (State, bool) {
	st, ok := s.states[account]
	if !ok {
		return State{}, false
	}
	if s.ttl > 0 && s.now().Sub(st.UpdatedAt) > s.ttl {
		delete(s.states, account)
		return State{}, false
	}
	return st, true
}

// KeyPrefix prefixes every Redis key written by RedisStore.
const KeyPrefix = "ledgerwire:progress:v1:"

// RedisStore keeps state in Redis, one key per account.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient configures a Redis client and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// NewRedisStore wraps client. Keys expire ttl after their last update.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Key returns the Redis key holding the state of account.
func Key(account uint32) string {
	return KeyPrefix + strconv.FormatUint(uint64(account), 10)
}

func (s *RedisStore) Swap(ctx context.Context, account uint32, next State) (State, bool, error) {
	data, err := json.Marshal(next)
	if err != nil {
		return State{}, false, fmt.Errorf("failed to encode progress state: %w", err)
	}

	old, err := s.client.SetArgs(ctx, Key(account), data, redis.SetArgs{TTL: s.ttl, Get: true}).Result()
	if errors.Is(err, redis.Nil) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("failed to swap progress state: %w", err)
	}
	return decodeState(old)
}

func (s *RedisStore) Get(ctx context.Context, account uint32) (State, bool, error) {
	raw, err := s.client.Get(ctx, Key(account)).Result()
	if errors.Is(err, redis.Nil) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("failed to get progress state: %w", err)
	}
	return decodeState(raw)
}

func (s *RedisStore) Clear(ctx context.Context, account uint32) error {
	if err := s.client.Del(ctx, Key(account)).Err(); err != nil {
		return fmt.Errorf("failed to clear progress state: %w", err)
	}
	return nil
}

func decodeState(raw string) (State, bool, error) {
	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return State{}, false, fmt.Errorf("failed to decode progress state: %w", err)
	}
	return st, true, nil
}
