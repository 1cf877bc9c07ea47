package jwt

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
)

// StaticTokenSource returns a fixed token, typically from ADMIN_TOKEN.
type StaticTokenSource string

func (s StaticTokenSource) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrNoCredential
	}
	return string(s), nil
}

// RedisTokenSource reads the admin token that the app's session refresh flow
// keeps under Key. Every call goes to Redis.
type RedisTokenSource struct {
	Client *redis.Client
	Key    string
}

func NewRedisTokenSource(addr, password, key string) *RedisTokenSource {
	return &RedisTokenSource{
		Client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       0,
		}),
		Key: key,
	}
}

func (s *RedisTokenSource) Token(ctx context.Context) (string, error) {
	val, err := s.Client.Get(ctx, s.Key).Result()
	if err == redis.Nil {
		return "", ErrNoCredential
	} else if err != nil {
		return "", fmt.Errorf("jwt: read admin token: %w", err)
	}
	if strings.TrimSpace(val) == "" {
		return "", ErrNoCredential
	}
	return val, nil
}

func (s *RedisTokenSource) Close() error {
	return s.Client.Close()
}
