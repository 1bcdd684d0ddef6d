// Package config loads the server configuration from defaults, an optional
// config file, a .env file, OASQL_* environment variables and command line
// flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "OASQL"

// Config holds the server settings.
type Config struct {
	ContractPath         string   `mapstructure:"contractPath"`
	QueriesPath          string   `mapstructure:"queriesPath"`
	DBURL                string   `mapstructure:"dbUrl"`
	PoolMaxSize          int      `mapstructure:"poolMaxSize"`
	PoolAcquireTimeoutMs int      `mapstructure:"poolAcquireTimeoutMs"`
	ListenHost           string   `mapstructure:"listenHost"`
	ListenPort           int      `mapstructure:"listenPort"`
	LogLevel             string   `mapstructure:"logLevel"`  // debug, info, warn, error
	LogFormat            string   `mapstructure:"logFormat"` // text or json
	MaxBodyBytes         int64    `mapstructure:"maxBodyBytes"`
	RateLimitRPS         float64  `mapstructure:"rateLimitRps"` // 0 disables rate limiting
	RateLimitBurst       int      `mapstructure:"rateLimitBurst"`
	ShutdownTimeoutMs    int      `mapstructure:"shutdownTimeoutMs"`
	CORSOrigins          []string `mapstructure:"corsOrigins"` // empty disables CORS
}

// keys maps each setting to its environment variable suffix and flag name.
var keys = map[string]struct{ env, flag string }{
	"contractPath":         {"CONTRACT_PATH", "contract-path"},
	"queriesPath":          {"QUERIES_PATH", "queries-path"},
	"dbUrl":                {"DB_URL", "db-url"},
	"poolMaxSize":          {"POOL_MAX_SIZE", "pool-max-size"},
	"poolAcquireTimeoutMs": {"POOL_ACQUIRE_TIMEOUT_MS", "pool-acquire-timeout-ms"},
	"listenHost":           {"LISTEN_HOST", "listen-host"},
	"listenPort":           {"LISTEN_PORT", "listen-port"},
	"logLevel":             {"LOG_LEVEL", "log-level"},
	"logFormat":            {"LOG_FORMAT", "log-format"},
	"maxBodyBytes":         {"MAX_BODY_BYTES", "max-body-bytes"},
	"rateLimitRps":         {"RATE_LIMIT_RPS", "rate-limit-rps"},
	"rateLimitBurst":       {"RATE_LIMIT_BURST", "rate-limit-burst"},
	"shutdownTimeoutMs":    {"SHUTDOWN_TIMEOUT_MS", "shutdown-timeout-ms"},
	"corsOrigins":          {"CORS_ORIGINS", "cors-origins"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("contractPath", "openapi.yaml")
	v.SetDefault("queriesPath", "queries.yaml")
	v.SetDefault("dbUrl", "root:example@tcp(localhost:3306)/demo")
	v.SetDefault("poolMaxSize", 5)
	v.SetDefault("poolAcquireTimeoutMs", 5000)
	v.SetDefault("listenHost", "")
	v.SetDefault("listenPort", 8880)
	v.SetDefault("logLevel", "info")
	v.SetDefault("logFormat", "text")
	v.SetDefault("maxBodyBytes", 1<<20)
	v.SetDefault("rateLimitRps", 0)
	v.SetDefault("rateLimitBurst", 0)
	v.SetDefault("shutdownTimeoutMs", 30000)
	v.SetDefault("corsOrigins", []string{})
}

// Options controls where Load looks for settings.
type Options struct {
	File    string         // config file; "" searches for oasql.{yaml,toml,json} in the working directory
	EnvFile string         // dotenv file; "" uses .env when present
	Flags   *pflag.FlagSet // changed flags (kebab-case keys) override everything else
}

// Load resolves the configuration and validates it.
func Load(opts Options) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	for key, k := range keys {
		if err := v.BindEnv(key, EnvPrefix+"_"+k.env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.File, err)
		}
	} else {
		v.SetConfigName("oasql")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if opts.Flags != nil {
		for key, k := range keys {
			if f := opts.Flags.Lookup(k.flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", key, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil || (!explicit && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.ContractPath == "" {
		errs = append(errs, errors.New("contractPath is required"))
	}
	if c.DBURL == "" {
		errs = append(errs, errors.New("dbUrl is required"))
	}
	if c.PoolMaxSize < 1 {
		errs = append(errs, fmt.Errorf("poolMaxSize must be at least 1, got %d", c.PoolMaxSize))
	}
	if c.PoolAcquireTimeoutMs < 1 {
		errs = append(errs, fmt.Errorf("poolAcquireTimeoutMs must be positive, got %d", c.PoolAcquireTimeoutMs))
	}
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		errs = append(errs, fmt.Errorf("listenPort out of range: %d", c.ListenPort))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("logFormat must be text or json, got %q", c.LogFormat))
	}
	if c.MaxBodyBytes < 1 {
		errs = append(errs, fmt.Errorf("maxBodyBytes must be positive, got %d", c.MaxBodyBytes))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("rateLimitRps must not be negative, got %g", c.RateLimitRPS))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.ListenPort))
}

// AcquireTimeout returns the pool acquire timeout.
func (c *Config) AcquireTimeout() time.Duration {
	return time.Duration(c.PoolAcquireTimeoutMs) * time.Millisecond
}

// ShutdownTimeout returns the graceful shutdown bound.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMs) * time.Millisecond
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("logLevel: %w", err)
	}
	return l, nil
}
