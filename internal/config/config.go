// Package config assembles console configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"support-console/internal/env"
)

// Config holds all console configuration.
type Config struct {
	ListenAddr    string
	SupportAPIURL string
	RealtimeURL   string
	WebURL        string

	Auth    AuthConfig
	Events  RedisConfig
	Roster  RosterConfig
	Channel ChannelConfig
	Drafts  DraftsConfig
}

// AuthConfig describes where the admin credential comes from. A static token
// wins over the Redis key when both are set.
type AuthConfig struct {
	StaticToken string
	RedisURL    string
	RedisPass   string
	TokenKey    string
	Secret      string
}

type RedisConfig struct {
	URL  string
	Pass string
}

type RosterConfig struct {
	Interval      time.Duration
	ActiveLimit   int
	ResolvedLimit int
}

type ChannelConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	AckTimeout time.Duration
}

// DraftsConfig enables DynamoDB draft persistence when Table is set.
type DraftsConfig struct {
	Table     string
	Region    string
	AccessKey string
	SecretKey string
	Token     string
	Endpoint  string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:    env.GetOrDefault(env.ListenAddr, ":8090"),
		SupportAPIURL: strings.TrimRight(env.Get(env.SupportAPIURL), "/"),
		RealtimeURL:   strings.TrimRight(env.Get(env.RealtimeURL), "/"),
		WebURL:        env.Get(env.WebUrl),
		Auth: AuthConfig{
			StaticToken: env.Get(env.AdminToken),
			RedisURL:    env.Get(env.AuthRedisURL),
			RedisPass:   env.Get(env.AuthRedisPass),
			TokenKey:    env.GetOrDefault(env.AdminTokenKey, "console:admin-token"),
			Secret:      env.Get(env.AdminSecretKey),
		},
		Events: RedisConfig{
			URL:  env.Get(env.ChatRedisURL),
			Pass: env.Get(env.ChatRedisPass),
		},
		Roster: RosterConfig{
			Interval:      env.GetDuration(env.PollInterval, 30*time.Second),
			ActiveLimit:   env.GetInt(env.ActivePageSize, 50),
			ResolvedLimit: env.GetInt(env.ResolvedPageSize, 20),
		},
		Channel: ChannelConfig{
			MaxRetries: env.GetInt(env.ChannelMaxRetries, 5),
			RetryDelay: env.GetDuration(env.ChannelRetryDelay, time.Second),
			AckTimeout: env.GetDuration(env.ChannelAckTimeout, 10*time.Second),
		},
		Drafts: DraftsConfig{
			Table:     env.Get(env.DraftsTable),
			Region:    env.Get(env.AWSRegion),
			AccessKey: env.Get(env.AWSID),
			SecretKey: env.Get(env.AWSSecret),
			Token:     env.Get(env.AWSToken),
			Endpoint:  env.Get(env.DynamoDBEndpoint),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("%s cannot be empty", env.ListenAddr)
	}
	if err := requireURL(env.SupportAPIURL, c.SupportAPIURL, "http", "https"); err != nil {
		return err
	}
	if err := requireURL(env.RealtimeURL, c.RealtimeURL, "ws", "wss", "http", "https"); err != nil {
		return err
	}
	if c.Auth.StaticToken == "" && c.Auth.RedisURL == "" {
		return fmt.Errorf("one of %s or %s must be set", env.AdminToken, env.AuthRedisURL)
	}
	if c.Roster.Interval <= 0 {
		return fmt.Errorf("%s must be > 0", env.PollInterval)
	}
	if c.Roster.ActiveLimit <= 0 || c.Roster.ResolvedLimit <= 0 {
		return fmt.Errorf("%s and %s must be > 0", env.ActivePageSize, env.ResolvedPageSize)
	}
	if c.Channel.MaxRetries < 0 {
		return fmt.Errorf("%s must be >= 0", env.ChannelMaxRetries)
	}
	if c.Channel.AckTimeout <= 0 {
		return fmt.Errorf("%s must be > 0", env.ChannelAckTimeout)
	}
	if c.Drafts.Table != "" && c.Drafts.Region == "" {
		return fmt.Errorf("%s is required when %s is set", env.AWSRegion, env.DraftsTable)
	}
	return nil
}

// AllowedOrigins lists browser origins for CORS.
func (c *Config) AllowedOrigins() []string {
	if c.WebURL == "" {
		return []string{"http://localhost:3000"}
	}
	var out []string
	for _, o := range strings.Split(c.WebURL, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func requireURL(key, value string, schemes ...string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", key)
	}
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s: unsupported scheme %q", key, u.Scheme)
}
