package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitLogger(t *testing.T) {
	tests := []struct {
		level   string
		format  string
		enabled zapcore.Level
		hidden  zapcore.Level
	}{
		{"debug", "console", zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"", "console", zapcore.InfoLevel, zapcore.DebugLevel},
		{"WARN", "json", zapcore.WarnLevel, zapcore.InfoLevel},
		{"error", "JSON", zapcore.ErrorLevel, zapcore.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level+"_"+tt.format, func(t *testing.T) {
			logger, sugar, err := InitLogger(tt.level, tt.format)
			require.NoError(t, err)
			require.NotNil(t, sugar)
			assert.True(t, logger.Core().Enabled(tt.enabled))
			assert.False(t, logger.Core().Enabled(tt.hidden))
		})
	}
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	_, _, err := InitLogger("loud", "console")
	assert.Error(t, err)
}

func TestAuthConfig_MapsFields(t *testing.T) {
	cfg := newAppTestConfig(t)
	cfg.Auth.CSRFTokenTTL = 10 * time.Minute

	ac := AuthConfig(cfg)
	assert.Equal(t, cfg.Auth.JWTSecret, ac.JWTSecret)
	assert.Equal(t, cfg.Auth.HashedPassword, ac.AdminPasswordHash)
	assert.Equal(t, "admin", ac.AdminUsername)
	assert.Equal(t, 10*time.Minute, ac.CSRFTokenTTL)
	assert.Equal(t, time.Hour, ac.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, ac.RefreshTokenTTL)
	assert.Equal(t, 5, ac.MaxLoginAttempts)
	assert.Equal(t, 15*time.Minute, ac.LoginWindow)
	assert.Equal(t, "/admin/dashboard", ac.RedirectURL)
}
