package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strings"
	"time"

	"formdesk/storage"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

// bcryptMaxPasswordBytes is the input limit of bcrypt; longer passwords are
// rejected rather than silently truncated.
const bcryptMaxPasswordBytes = 72

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig holds the admin credential and token lifetimes
type AuthConfig struct {
	JWTSecret        string        `mapstructure:"jwt_secret"`
	AdminUsername    string        `mapstructure:"admin_username"`
	AdminPassword    string        `mapstructure:"admin_password"` // plaintext, cleared after hashing
	HashedPassword   string        `mapstructure:"admin_password_hash"`
	BcryptCost       int           `mapstructure:"bcrypt_cost"`
	AccessTokenTTL   time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL  time.Duration `mapstructure:"refresh_token_ttl"`
	CSRFTokenTTL     time.Duration `mapstructure:"csrf_token_ttl"`
	MaxLoginAttempts int           `mapstructure:"max_login_attempts"`
	LoginWindow      time.Duration `mapstructure:"login_window"`
	RedirectURL      string        `mapstructure:"redirect_url"`
}

// StoreConfig selects the key-value backend for sessions and counters
type StoreConfig struct {
	Driver     string        `mapstructure:"driver"`
	GCInterval time.Duration `mapstructure:"gc_interval"`
	Redis      struct {
		URL      string `mapstructure:"url"`
		Addr     string `mapstructure:"addr"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		PoolSize int    `mapstructure:"pool_size"`
	} `mapstructure:"redis"`
}

// DatabaseConfig points at the SQLite file holding contact submissions
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// APIConfig holds HTTP surface settings
type APIConfig struct {
	RequestTimeout       time.Duration   `mapstructure:"request_timeout"`
	StaticDir            string          `mapstructure:"static_dir"`
	AllowedOrigins       []string        `mapstructure:"allowed_origins"`
	TrustProxy           bool            `mapstructure:"trust_proxy"`
	TrustedProxyNetworks []string        `mapstructure:"trusted_proxy_networks"`
	MaxRequestBodyBytes  int64           `mapstructure:"max_request_body_bytes"`
	IntakeRateLimit      RateLimitConfig `mapstructure:"intake_rate_limit"`
}

// RateLimitConfig throttles the public submission endpoint per client IP.
// RequestsPerMinute 0 disables the throttle.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
	MaxClients        int `mapstructure:"max_clients"` // tracked IPs; least recently seen are evicted
}

// LoggingConfig controls the zap logger
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config holds all configuration for the formdesk service
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	API      APIConfig      `mapstructure:"api"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// KVConfig converts the store section into the storage factory's options.
func (c *Config) KVConfig() storage.KVConfig {
	return storage.KVConfig{
		Driver:     c.Store.Driver,
		GCInterval: c.Store.GCInterval,
		Redis: storage.RedisConfig{
			URL:      c.Store.Redis.URL,
			Addr:     c.Store.Redis.Addr,
			Username: c.Store.Redis.Username,
			Password: c.Store.Redis.Password,
			DB:       c.Store.Redis.DB,
			PoolSize: c.Store.Redis.PoolSize,
		},
	}
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.address", "127.0.0.1:3000")
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.write_timeout", 35*time.Second)
	viper.SetDefault("server.idle_timeout", 60*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)

	viper.SetDefault("auth.bcrypt_cost", bcrypt.DefaultCost)
	viper.SetDefault("auth.access_token_ttl", time.Hour)
	viper.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	viper.SetDefault("auth.csrf_token_ttl", 15*time.Minute)
	viper.SetDefault("auth.max_login_attempts", 5)
	viper.SetDefault("auth.login_window", 15*time.Minute)
	viper.SetDefault("auth.redirect_url", "/admin/dashboard")

	viper.SetDefault("store.driver", storage.DriverRedis)
	viper.SetDefault("store.gc_interval", time.Minute)
	viper.SetDefault("store.redis.url", "redis://127.0.0.1/")
	viper.SetDefault("store.redis.pool_size", 10)

	viper.SetDefault("database.path", "./data/formdesk.db")

	viper.SetDefault("api.request_timeout", 30*time.Second)
	viper.SetDefault("api.static_dir", "./static")
	viper.SetDefault("api.allowed_origins", []string{"http://localhost:3000", "https://localhost:3000"})
	viper.SetDefault("api.trust_proxy", false)
	viper.SetDefault("api.trusted_proxy_networks", []string{})
	viper.SetDefault("api.max_request_body_bytes", 1<<20)
	viper.SetDefault("api.intake_rate_limit.requests_per_minute", 10)
	viper.SetDefault("api.intake_rate_limit.burst", 5)
	viper.SetDefault("api.intake_rate_limit.max_clients", 10000)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
}

// loadFromEnv sets up environment variable loading
func loadFromEnv() {
	viper.SetEnvPrefix("FORMDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Short names used by existing deployments
	_ = viper.BindEnv("auth.jwt_secret", "FORMDESK_AUTH_JWT_SECRET", "JWT_SECRET")
	_ = viper.BindEnv("auth.admin_username", "FORMDESK_AUTH_ADMIN_USERNAME", "ADMIN_LOGIN")
	_ = viper.BindEnv("auth.admin_password", "FORMDESK_AUTH_ADMIN_PASSWORD", "ADMIN_PASSWORD")
	_ = viper.BindEnv("auth.admin_password_hash", "FORMDESK_AUTH_ADMIN_PASSWORD_HASH", "ADMIN_PASSWORD_HASH")
	_ = viper.BindEnv("store.redis.url", "FORMDESK_STORE_REDIS_URL", "REDIS_URL")
	_ = viper.BindEnv("database.path", "FORMDESK_DATABASE_PATH", "DATABASE_URL")
	_ = viper.BindEnv("server.address", "FORMDESK_SERVER_ADDRESS", "SERVER_ADDRESS")
}

// validateAndHash validates the configuration and hashes the admin password
func validateAndHash(config *Config) error {
	if err := validateJWTSecret(config.Auth.JWTSecret); err != nil {
		return err
	}

	config.Auth.AdminUsername = strings.TrimSpace(config.Auth.AdminUsername)
	if config.Auth.AdminUsername == "" {
		return fmt.Errorf("admin username is required (ADMIN_LOGIN)")
	}

	if config.Auth.BcryptCost < bcrypt.MinCost || config.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	// A plaintext password wins over a configured hash so that rotating
	// ADMIN_PASSWORD alone takes effect.
	if config.Auth.AdminPassword != "" {
		if len(config.Auth.AdminPassword) > bcryptMaxPasswordBytes {
			return fmt.Errorf("admin password must be at most %d bytes", bcryptMaxPasswordBytes)
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(config.Auth.AdminPassword), config.Auth.BcryptCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		config.Auth.HashedPassword = string(hashed)
		config.Auth.AdminPassword = "" // clear plain password
	}
	if config.Auth.HashedPassword == "" {
		return fmt.Errorf("admin password is required (ADMIN_PASSWORD or ADMIN_PASSWORD_HASH)")
	}
	if _, err := bcrypt.Cost([]byte(config.Auth.HashedPassword)); err != nil {
		return fmt.Errorf("admin password hash is not a valid bcrypt hash: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

func validateJWTSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("JWT secret is required (JWT_SECRET)")
	}
	if len(secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters (256 bits) for security")
	}

	weakSecrets := []string{
		"secret", "password", "changeme", "default", "admin",
		"jwt_secret", "supersecret", "mysecret", "test", "example",
	}
	lowerSecret := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if strings.Contains(lowerSecret, weak) {
			return fmt.Errorf("JWT secret appears to contain weak/default value: please use a cryptographically secure random string")
		}
	}
	return nil
}

func validateConfig(config *Config) error {
	if _, _, err := net.SplitHostPort(config.Server.Address); err != nil {
		return fmt.Errorf("server.address %q must be host:port: %w", config.Server.Address, err)
	}

	a := config.Auth
	if a.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be positive")
	}
	if a.RefreshTokenTTL < a.AccessTokenTTL {
		return fmt.Errorf("auth.refresh_token_ttl must not be shorter than auth.access_token_ttl")
	}
	if a.CSRFTokenTTL <= 0 {
		return fmt.Errorf("auth.csrf_token_ttl must be positive")
	}
	if a.MaxLoginAttempts < 1 {
		return fmt.Errorf("auth.max_login_attempts must be at least 1")
	}
	if a.LoginWindow < time.Second {
		return fmt.Errorf("auth.login_window must be at least 1s")
	}
	if a.RedirectURL == "" || !strings.HasPrefix(a.RedirectURL, "/") || strings.HasPrefix(a.RedirectURL, "//") {
		return fmt.Errorf("auth.redirect_url must be a local path")
	}

	switch config.Store.Driver {
	case storage.DriverRedis:
		if config.Store.Redis.URL == "" && config.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.url or store.redis.addr is required for the redis driver")
		}
		if config.Store.Redis.URL != "" {
			u, err := url.Parse(config.Store.Redis.URL)
			if err != nil || (u.Scheme != "redis" && u.Scheme != "rediss" && u.Scheme != "unix") {
				return fmt.Errorf("store.redis.url must be a redis://, rediss:// or unix:// URL")
			}
		}
	case storage.DriverMemory:
	default:
		return fmt.Errorf("unsupported store.driver %q (expected %q or %q)", config.Store.Driver, storage.DriverRedis, storage.DriverMemory)
	}

	if strings.TrimSpace(config.Database.Path) == "" {
		return fmt.Errorf("database.path is required (DATABASE_URL)")
	}

	if config.API.RequestTimeout <= 0 {
		return fmt.Errorf("api.request_timeout must be positive")
	}
	if config.API.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("api.max_request_body_bytes must be positive")
	}
	if rl := config.API.IntakeRateLimit; rl.RequestsPerMinute < 0 {
		return fmt.Errorf("api.intake_rate_limit.requests_per_minute cannot be negative")
	} else if rl.RequestsPerMinute > 0 && (rl.Burst < 1 || rl.MaxClients < 1) {
		return fmt.Errorf("api.intake_rate_limit.burst and max_clients must be at least 1 when the limit is enabled")
	}
	for _, network := range config.API.TrustedProxyNetworks {
		if !isValidIPOrCIDR(network) {
			return fmt.Errorf("api.trusted_proxy_networks contains invalid entry %q", network)
		}
	}

	switch strings.ToLower(config.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json")
	}

	return nil
}

func isValidIPOrCIDR(ipStr string) bool {
	if net.ParseIP(ipStr) != nil {
		return true
	}
	_, _, err := net.ParseCIDR(ipStr)
	return err == nil
}

// LoadConfig loads configuration from .env, config file and environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// SetConfigName drops a file chosen with viper.SetConfigFile, so only search when none was.
	if viper.ConfigFileUsed() == "" {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validateAndHash(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
