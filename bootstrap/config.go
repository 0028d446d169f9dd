package bootstrap

import (
	"fmt"
	"os"
	"strings"

	"formdesk/auth"
	"formdesk/config"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger initializes the zap logger. format "json" produces structured
// output for log shippers; anything else gets colored console output.
func InitLogger(level, format string) (*zap.Logger, *zap.SugaredLogger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	var encoder zapcore.Encoder
	if strings.EqualFold(format, "json") {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder // Colored levels
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder        // Readable timestamps
		encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder      // Short file paths
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), lvl)

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar(), nil
}

// InitConfig loads the application configuration.
func InitConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load config: %v\n", err)
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// LogConfig reports the effective configuration without secrets.
func LogConfig(cfg *config.Config, sugar *zap.SugaredLogger) {
	if viper.ConfigFileUsed() == "" {
		sugar.Info("No config file found, using defaults and env vars")
	} else {
		sugar.Infow("Config file loaded", "path", viper.ConfigFileUsed())
	}

	sugar.Infow("Config loaded",
		"server_address", cfg.Server.Address,
		"store_driver", cfg.Store.Driver,
		"database_path", cfg.Database.Path,
		"admin_username", cfg.Auth.AdminUsername,
		"access_token_ttl", cfg.Auth.AccessTokenTTL.String(),
		"csrf_token_ttl", cfg.Auth.CSRFTokenTTL.String(),
		"max_login_attempts", cfg.Auth.MaxLoginAttempts,
		"login_window", cfg.Auth.LoginWindow.String())
}

// AuthConfig extracts what the authentication core needs from cfg.
func AuthConfig(cfg *config.Config) auth.Config {
	return auth.Config{
		JWTSecret:         cfg.Auth.JWTSecret,
		AccessTokenTTL:    cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL:   cfg.Auth.RefreshTokenTTL,
		CSRFTokenTTL:      cfg.Auth.CSRFTokenTTL,
		MaxLoginAttempts:  cfg.Auth.MaxLoginAttempts,
		LoginWindow:       cfg.Auth.LoginWindow,
		AdminUsername:     cfg.Auth.AdminUsername,
		AdminPasswordHash: cfg.Auth.HashedPassword,
		RedirectURL:       cfg.Auth.RedirectURL,
	}
}
