package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const responsePrefix = "idempotency:"

// ResponseCache stores replayable HTTP responses keyed by idempotency key.
type ResponseCache struct {
	client *redis.Client
}

// NewResponseCache creates a new ResponseCache.
func NewResponseCache(client *redis.Client) *ResponseCache {
	return &ResponseCache{client: client}
}

// Get returns a stored response. ok is false on a miss.
func (s *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, responsePrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set stores a response for ttl.
func (s *ResponseCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return s.client.Set(ctx, responsePrefix+key, data, ttl).Err()
}
