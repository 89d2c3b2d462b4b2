package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, ":8080", cfg.Port)
	assert.NotEmpty(t, cfg.AllowedOrigins)
	assert.Equal(t, int64(4096), cfg.MaxMessageSize)
	assert.Equal(t, 256, cfg.SendQueueSize)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://jobs.example.com, https://admin.example.com")
	t.Setenv("MAX_MESSAGE_SIZE", "8192")
	t.Setenv("SEND_QUEUE_SIZE", "64")
	t.Setenv("RATE_LIMIT_BURST", "50")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")

	cfg := NewConfigFromEnv()

	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, []string{"https://jobs.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(8192), cfg.MaxMessageSize)
	assert.Equal(t, 64, cfg.SendQueueSize)
	assert.Equal(t, 50, cfg.RateLimit.Burst)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestNewConfigFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "not-a-number")
	t.Setenv("RATE_LIMIT_BURST", "-5")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "zero")

	cfg := NewConfigFromEnv()

	assert.Equal(t, int64(4096), cfg.MaxMessageSize)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
}

func TestSetConfigSanitizesZeroValues(t *testing.T) {
	SetConfig(&Config{})
	t.Cleanup(func() { SetConfig(nil) })

	cfg := currentConfig()
	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, int64(4096), cfg.MaxMessageSize)
	assert.Equal(t, 256, cfg.SendQueueSize)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
}

func TestSetConfigNilResetsDefaults(t *testing.T) {
	SetConfig(&Config{Port: ":9999"})
	SetConfig(nil)

	assert.Equal(t, ":8080", currentConfig().Port)
}
