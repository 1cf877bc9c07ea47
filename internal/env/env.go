package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ListenAddr        = "CONSOLE_LISTEN_ADDR"
	SupportAPIURL     = "SUPPORT_API_URL"
	RealtimeURL       = "REALTIME_URL"
	AdminToken        = "ADMIN_TOKEN"
	AdminTokenKey     = "ADMIN_TOKEN_KEY"
	AdminSecretKey    = "ADMIN_SECRET"
	AuthRedisURL      = "AUTH_REDIS_URL"
	AuthRedisPass     = "AUTH_REDIS_PASS"
	ChatRedisURL      = "CHAT_REDIS_URL"
	ChatRedisPass     = "CHAT_REDIS_PASS"
	PollInterval      = "POLL_INTERVAL"
	ActivePageSize    = "ACTIVE_PAGE_SIZE"
	ResolvedPageSize  = "RESOLVED_PAGE_SIZE"
	ChannelMaxRetries = "CHANNEL_MAX_RETRIES"
	ChannelRetryDelay = "CHANNEL_RETRY_DELAY"
	ChannelAckTimeout = "CHANNEL_ACK_TIMEOUT"
	AWSRegion         = "AWS_REGION"
	AWSID             = "AWS_ID"
	AWSSecret         = "AWS_SECRET"
	AWSToken          = "AWS_TOKEN"
	DynamoDBEndpoint  = "DYNAMODB_ENDPOINT"
	DraftsTable       = "DRAFTS_TABLE"
	WebUrl            = "WEB_URL"
)

// Load reads a .env file from the working directory when one exists.
// Variables already set in the process environment win.
func Load(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && len(files) == 0 && os.IsNotExist(err) {
		return nil
	}
	return err
}

// Require reports the first key in keys that is unset.
func Require(keys ...string) error {
	for _, key := range keys {
		if os.Getenv(key) == "" {
			return fmt.Errorf("env: required environment variable not set: %s", key)
		}
	}
	return nil
}

func Get(key string) string {
	return os.Getenv(key)
}

func GetOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func MustGet(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic("env: required environment variable not set: " + key)
	}
	return val
}

func GetInt(key string, defaultVal int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// GetDuration accepts Go duration strings ("30s") or bare seconds ("30").
func GetDuration(key string, defaultVal time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}
