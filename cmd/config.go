package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"formdesk/bootstrap"
	"formdesk/config"
	"formdesk/storage"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const redacted = "[redacted]"

// componentCheck is the outcome of probing one backing store.
type componentCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type checkReport struct {
	Config     string           `json:"config"`
	Components []componentCheck `json:"components"`
}

func (r checkReport) failed() bool {
	for _, c := range r.Components {
		if c.Status != "ok" {
			return true
		}
	}
	return false
}

// newCheckConfigCmd creates the 'check-config' command
func newCheckConfigCmd() *cobra.Command {
	var skipStores bool

	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate configuration and verify the stores are reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfg, err := config.LoadConfig()
			if err != nil {
				if !outputJSON {
					fmt.Fprintf(out, "%s %v\n", errorColor.Sprint("✗ Configuration invalid:"), err)
				}
				return err
			}

			report := checkReport{Config: "ok"}
			if !skipStores {
				ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
				defer cancel()

				var s *spinner.Spinner
				if !outputJSON && !quiet {
					s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
					s.Suffix = " Checking stores..."
					s.Start()
				}
				report.Components = checkStores(ctx, cfg)
				if s != nil {
					s.Stop()
				}
			}

			if outputJSON {
				if err := outputAsJSON(out, report); err != nil {
					return err
				}
			} else {
				renderCheckReport(out, cfg, report)
			}

			if report.failed() {
				return errors.New("configuration check failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipStores, "skip-stores", false, "Only validate configuration, do not connect to the stores")
	return cmd
}

// checkStores opens each store once, pings it and closes it again.
func checkStores(ctx context.Context, cfg *config.Config) []componentCheck {
	nop := zap.NewNop().Sugar()
	var checks []componentCheck

	start := time.Now()
	kv, err := storage.NewKVStore(ctx, cfg.KVConfig(), nop)
	if err == nil {
		err = kv.Ping(ctx)
		_ = kv.Close()
	}
	checks = append(checks, newComponentCheck("kv ("+storeDriver(cfg)+")", start, err, func(err error) string {
		return bootstrap.ClassifyConnectionError(err, storeAddress(cfg))
	}))

	start = time.Now()
	err = bootstrap.EnsureDataDirectory(cfg.Database.Path, nop)
	if err == nil {
		var db *storage.SQLite
		db, err = storage.NewSQLite(ctx, cfg.Database.Path, nop)
		if err == nil {
			err = db.Ping(ctx)
			_ = db.Close()
		}
	}
	checks = append(checks, newComponentCheck("database", start, err, func(err error) string {
		return bootstrap.ClassifySQLiteError(err, cfg.Database.Path)
	}))

	return checks
}

func newComponentCheck(name string, start time.Time, err error, classify func(error) string) componentCheck {
	if err != nil {
		return componentCheck{Name: name, Status: "unavailable", Detail: classify(err)}
	}
	return componentCheck{Name: name, Status: "ok", Latency: time.Since(start).Round(time.Millisecond).String()}
}

func storeDriver(cfg *config.Config) string {
	if cfg.Store.Driver == "" {
		return storage.DriverRedis
	}
	return cfg.Store.Driver
}

func storeAddress(cfg *config.Config) string {
	if cfg.Store.Redis.URL != "" {
		return bootstrap.RedactURL(cfg.Store.Redis.URL)
	}
	return cfg.Store.Redis.Addr
}

func renderCheckReport(w io.Writer, cfg *config.Config, report checkReport) {
	fmt.Fprintln(w, headerColor.Sprint("CONFIGURATION CHECK"))
	fmt.Fprintln(w, headerColor.Sprint(strings.Repeat("=", 60)))
	fmt.Fprintf(w, "%s configuration valid (admin %q, listen %s)\n",
		successColor.Sprint("✓"), cfg.Auth.AdminUsername, cfg.Server.Address)

	if len(report.Components) == 0 && !quiet {
		fmt.Fprintln(w, warningColor.Sprint("! store checks skipped"))
	}
	for _, c := range report.Components {
		if c.Status == "ok" {
			fmt.Fprintf(w, "%s %-16s %s\n", successColor.Sprint("✓"), c.Name, c.Latency)
			continue
		}
		fmt.Fprintf(w, "%s %-16s %s\n", errorColor.Sprint("✗"), c.Name, c.Status)
		if !quiet {
			fmt.Fprintln(w, c.Detail)
		}
	}
	fmt.Fprintln(w, headerColor.Sprint(strings.Repeat("=", 60)))
}

// configView is the printable form of Config with secrets removed.
type configView struct {
	Server struct {
		Address         string `json:"address" yaml:"address"`
		ReadTimeout     string `json:"read_timeout" yaml:"read_timeout"`
		WriteTimeout    string `json:"write_timeout" yaml:"write_timeout"`
		IdleTimeout     string `json:"idle_timeout" yaml:"idle_timeout"`
		ShutdownTimeout string `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	} `json:"server" yaml:"server"`
	Auth struct {
		JWTSecret         string `json:"jwt_secret" yaml:"jwt_secret"`
		AdminUsername     string `json:"admin_username" yaml:"admin_username"`
		AdminPasswordHash string `json:"admin_password_hash" yaml:"admin_password_hash"`
		BcryptCost        int    `json:"bcrypt_cost" yaml:"bcrypt_cost"`
		AccessTokenTTL    string `json:"access_token_ttl" yaml:"access_token_ttl"`
		RefreshTokenTTL   string `json:"refresh_token_ttl" yaml:"refresh_token_ttl"`
		CSRFTokenTTL      string `json:"csrf_token_ttl" yaml:"csrf_token_ttl"`
		MaxLoginAttempts  int    `json:"max_login_attempts" yaml:"max_login_attempts"`
		LoginWindow       string `json:"login_window" yaml:"login_window"`
		RedirectURL       string `json:"redirect_url" yaml:"redirect_url"`
	} `json:"auth" yaml:"auth"`
	Store struct {
		Driver     string `json:"driver" yaml:"driver"`
		GCInterval string `json:"gc_interval" yaml:"gc_interval"`
		RedisURL   string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`
		RedisAddr  string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
		RedisDB    int    `json:"redis_db" yaml:"redis_db"`
		PoolSize   int    `json:"pool_size" yaml:"pool_size"`
	} `json:"store" yaml:"store"`
	Database struct {
		Path string `json:"path" yaml:"path"`
	} `json:"database" yaml:"database"`
	API struct {
		RequestTimeout       string   `json:"request_timeout" yaml:"request_timeout"`
		StaticDir            string   `json:"static_dir" yaml:"static_dir"`
		AllowedOrigins       []string `json:"allowed_origins" yaml:"allowed_origins"`
		TrustProxy           bool     `json:"trust_proxy" yaml:"trust_proxy"`
		TrustedProxyNetworks []string `json:"trusted_proxy_networks" yaml:"trusted_proxy_networks"`
		MaxRequestBodyBytes  int64    `json:"max_request_body_bytes" yaml:"max_request_body_bytes"`
	} `json:"api" yaml:"api"`
	Logging struct {
		Level  string `json:"level" yaml:"level"`
		Format string `json:"format" yaml:"format"`
	} `json:"logging" yaml:"logging"`
}

func newConfigView(cfg *config.Config) configView {
	var v configView

	v.Server.Address = cfg.Server.Address
	v.Server.ReadTimeout = cfg.Server.ReadTimeout.String()
	v.Server.WriteTimeout = cfg.Server.WriteTimeout.String()
	v.Server.IdleTimeout = cfg.Server.IdleTimeout.String()
	v.Server.ShutdownTimeout = cfg.Server.ShutdownTimeout.String()

	v.Auth.JWTSecret = redacted
	v.Auth.AdminUsername = cfg.Auth.AdminUsername
	v.Auth.AdminPasswordHash = redacted
	v.Auth.BcryptCost = cfg.Auth.BcryptCost
	v.Auth.AccessTokenTTL = cfg.Auth.AccessTokenTTL.String()
	v.Auth.RefreshTokenTTL = cfg.Auth.RefreshTokenTTL.String()
	v.Auth.CSRFTokenTTL = cfg.Auth.CSRFTokenTTL.String()
	v.Auth.MaxLoginAttempts = cfg.Auth.MaxLoginAttempts
	v.Auth.LoginWindow = cfg.Auth.LoginWindow.String()
	v.Auth.RedirectURL = cfg.Auth.RedirectURL

	v.Store.Driver = storeDriver(cfg)
	v.Store.GCInterval = cfg.Store.GCInterval.String()
	if cfg.Store.Redis.URL != "" {
		v.Store.RedisURL = bootstrap.RedactURL(cfg.Store.Redis.URL)
	}
	v.Store.RedisAddr = cfg.Store.Redis.Addr
	v.Store.RedisDB = cfg.Store.Redis.DB
	v.Store.PoolSize = cfg.Store.Redis.PoolSize

	v.Database.Path = cfg.Database.Path

	v.API.RequestTimeout = cfg.API.RequestTimeout.String()
	v.API.StaticDir = cfg.API.StaticDir
	v.API.AllowedOrigins = cfg.API.AllowedOrigins
	v.API.TrustProxy = cfg.API.TrustProxy
	v.API.TrustedProxyNetworks = cfg.API.TrustedProxyNetworks
	v.API.MaxRequestBodyBytes = cfg.API.MaxRequestBodyBytes

	v.Logging.Level = cfg.Logging.Level
	v.Logging.Format = cfg.Logging.Format
	return v
}

// newShowConfigCmd creates the 'show-config' command
func newShowConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show-config",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}

			view := newConfigView(cfg)
			if outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), view)
			}

			encoder := yaml.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent(2)
			if err := encoder.Encode(view); err != nil {
				return fmt.Errorf("failed to encode YAML: %w", err)
			}
			return encoder.Close()
		},
	}
}
