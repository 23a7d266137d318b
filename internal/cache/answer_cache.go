package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/annotator/internal/answer"
)

const keyPrefix = "annotator:parsed:"

// AnswerCache stores parsed answers in Redis keyed by a hash of the input
// payload. Parsing is deterministic, so an entry never goes stale; the TTL
// only bounds memory.
type AnswerCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

func New(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *AnswerCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnswerCache{client: client, ttl: ttl, logger: logger}
}

// Dial connects to redisURL and verifies the connection.
func Dial(ctx context.Context, redisURL string, ttl time.Duration, logger *zap.Logger) (*AnswerCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return New(client, ttl, logger), nil
}

// Client exposes the underlying Redis client for health checks.
func (c *AnswerCache) Client() redis.UniversalClient {
	return c.client
}

// Key returns the cache key for payload.
func Key(payload answer.AnswerPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	sum := sha256.Sum256(data)
	return keyPrefix + hex.EncodeToString(sum[:]), nil
}

// Get returns the cached parse of payload. The bool is false on a miss.
func (c *AnswerCache) Get(ctx context.Context, payload answer.AnswerPayload) (answer.ParsedAnswer, bool, error) {
	key, err := Key(payload)
	if err != nil {
		return answer.ParsedAnswer{}, false, err
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return answer.ParsedAnswer{}, false, nil
	}
	if err != nil {
		return answer.ParsedAnswer{}, false, fmt.Errorf("redis get: %w", err)
	}

	var parsed answer.ParsedAnswer
	if err := json.Unmarshal(data, &parsed); err != nil {
		// Drop the bad entry so the next request repopulates it.
		if delErr := c.client.Del(ctx, key).Err(); delErr != nil {
			c.logger.Warn("Failed to delete corrupt cache entry", zap.String("key", key), zap.Error(delErr))
		}
		return answer.ParsedAnswer{}, false, fmt.Errorf("decode cached answer: %w", err)
	}
	return parsed, true, nil
}

// Set stores parsed as the result for payload.
func (c *AnswerCache) Set(ctx context.Context, payload answer.AnswerPayload, parsed answer.ParsedAnswer) error {
	key, err := Key(payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(parsed)
	if err != nil {
		return fmt.Errorf("encode parsed answer: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *AnswerCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *AnswerCache) Close() error {
	return c.client.Close()
}
