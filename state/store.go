// Package state checkpoints the agent state between process restarts.
package state

import (
	"context"
	"errors"
	"fmt"
	"log"

	backend "github.com/redis/go-redis/v9"

	"github.com/becomeliminal/nim-autopilot/core"
)

// ErrNotFound is returned by Load when no checkpoint exists.
var ErrNotFound = errors.New("state: no checkpoint")

// DefaultPrefix namespaces checkpoint keys.
const DefaultPrefix = "autopilot:"

// Store persists the latest agent state.
type Store interface {
	Save(ctx context.Context, s core.AgentState) error
	Load(ctx context.Context) (core.AgentState, error)
}

// RedisStore keeps the latest checkpoint as JSON under <prefix>state.
type RedisStore struct {
	client *backend.Client
	prefix string
}

type Option func(*RedisStore)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore connects to the Redis server at address.
func NewRedisStore(address string, opts ...Option) *RedisStore {
	return NewFromClient(backend.NewClient(&backend.Options{Addr: address}), opts...)
}

// NewFromClient creates a store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key() string {
	return s.prefix + "state"
}

// Save overwrites the checkpoint.
func (s *RedisStore) Save(ctx context.Context, st core.AgentState) error {
	data, err := marshal(st)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	log.Printf("[REDIS] checkpoint saved at cycle %d", st.CycleCount)
	return nil
}

// Load returns the last checkpoint, or ErrNotFound.
func (s *RedisStore) Load(ctx context.Context) (core.AgentState, error) {
	val, err := s.client.Get(ctx, s.key()).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return core.AgentState{}, ErrNotFound
		}
		return core.AgentState{}, fmt.Errorf("failed to load from redis: %w", err)
	}
	return unmarshal(val)
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
