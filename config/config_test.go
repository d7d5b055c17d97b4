package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("SERVER_PORT", "")
	cfg := LoadConfig()

	// An empty SERVER_PORT is present but unparsable, so the default wins.
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, "console", cfg.Mail.Backend)
	assert.Equal(t, "confirmation-emails", cfg.Mail.Queue)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 5, cfg.MQ.MaxAttempts)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_USE_SSL", "true")
	t.Setenv("JWT_SECRET", "  s3cret  ")
	t.Setenv("JWT_TOKEN_TTL", "2h")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("MAIL_BACKEND", "SMTP")
	t.Setenv("MQ_BACKEND", "PubSub")

	cfg := LoadConfig()

	assert.Equal(t, 9090, cfg.ServerPort)
	assert.True(t, cfg.Database.UseSSL)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.CORSAllowedOrigins)
	assert.Equal(t, "smtp", cfg.Mail.Backend)
	assert.Equal(t, "pubsub", cfg.MQ.Backend)
}

func TestLoadConfigInvalidValuesFallBack(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-port")
	t.Setenv("JWT_TOKEN_TTL", "-5m")
	t.Setenv("DB_USE_SSL", "maybe")

	cfg := LoadConfig()

	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.False(t, cfg.Database.UseSSL)
}
