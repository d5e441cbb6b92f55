// Package dedup provides instruction indexes shared across generation runs so
// that the same instruction is never accepted twice.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jordanhubbard/mmgen/pkg/config"
)

// Index records accepted instructions. Contains satisfies dataset.Seen.
type Index interface {
	Contains(instruction string) bool
	Add(ctx context.Context, instruction string) error
	Close() error
}

// Key hashes an instruction into a fixed-size index key.
func Key(instruction string) string {
	sum := sha256.Sum256([]byte(instruction))
	return hex.EncodeToString(sum[:])
}

// New builds the index selected by cfg.
func New(ctx context.Context, cfg config.DedupConfig) (Index, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("dedup backend redis requires redis_url")
		}
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis_url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Printf("[Dedup] Using redis index %s", cfg.Key)
		return NewRedis(client, cfg.Key), nil
	default:
		return nil, fmt.Errorf("unsupported dedup backend: %s", cfg.Backend)
	}
}

// Memory is a process-local index.
type Memory struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{keys: make(map[string]struct{})}
}

func (m *Memory) Contains(instruction string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.keys[Key(instruction)]
	return ok
}

func (m *Memory) Add(_ context.Context, instruction string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[Key(instruction)] = struct{}{}
	return nil
}

// Len returns the number of distinct instructions recorded.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

func (m *Memory) Close() error { return nil }

// Redis keeps the index in a Redis set so several machines share it.
type Redis struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

// NewRedis wraps an existing client. key names the Redis set.
func NewRedis(client *redis.Client, key string) *Redis {
	if key == "" {
		key = "mmgen:instructions"
	}
	return &Redis{client: client, key: key, timeout: 5 * time.Second}
}

// Contains reports membership. Lookup errors are logged and treated as absent.
func (r *Redis) Contains(instruction string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	ok, err := r.client.SIsMember(ctx, r.key, Key(instruction)).Result()
	if err != nil {
		log.Printf("[Dedup] Warning: redis lookup failed: %v", err)
		return false
	}
	return ok
}

func (r *Redis) Add(ctx context.Context, instruction string) error {
	if err := r.client.SAdd(ctx, r.key, Key(instruction)).Err(); err != nil {
		return fmt.Errorf("failed to add instruction to %s: %w", r.key, err)
	}
	return nil
}

// Len returns the size of the shared set.
func (r *Redis) Len(ctx context.Context) (int64, error) {
	return r.client.SCard(ctx, r.key).Result()
}

func (r *Redis) Close() error { return r.client.Close() }
