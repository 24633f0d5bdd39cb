package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MEDRX_DATABASE_PASSWORD
const EnvPrefix = "MEDRX"

// Config holds all application configuration
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Log         LogConfig         `mapstructure:"log"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Fulfillment FulfillmentConfig `mapstructure:"fulfillment"`
	Alert       AlertConfig       `mapstructure:"alert"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

// LogConfig selects level, encoding and destination of the process log
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
	Output string `mapstructure:"output"` // stdout, stderr, or file path
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port string `mapstructure:"port"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres or sqlite
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	SQLitePath      string `mapstructure:"sqlite_path"` // file path or ":memory:"
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // minutes
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // minutes
}

// RedisConfig holds Redis connection settings.
// When disabled the alert dispatcher uses an in-process claim store.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type HTTPConfig struct {
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes   int           `mapstructure:"max_header_bytes"`
	MaxBodySize      int64         `mapstructure:"max_body_size"`
	CORSAllowOrigins []string      `mapstructure:"cors_allow_origins"`
	CORSAllowMethods []string      `mapstructure:"cors_allow_methods"`
	CORSAllowHeaders []string      `mapstructure:"cors_allow_headers"`
	TrustedProxies   []string      `mapstructure:"trusted_proxies"`
}

// FulfillmentConfig holds lock and retry settings of the fulfillment manager
type FulfillmentConfig struct {
	LockTimeout         time.Duration `mapstructure:"lock_timeout"`
	MaxConflictRetries  int           `mapstructure:"max_conflict_retries"`
	MaxTransientRetries int           `mapstructure:"max_transient_retries"`
	TransientBackoff    time.Duration `mapstructure:"transient_backoff"`
	MaxCallerRetries    int           `mapstructure:"max_caller_retries"` // resubmissions of a transient rejection
	ExcludeExpired      bool          `mapstructure:"exclude_expired"`    // skip batches past expiry when planning
}

// AlertConfig holds low-stock alert settings
type AlertConfig struct {
	DedupWindow      time.Duration `mapstructure:"dedup_window"`
	Audiences        []string      `mapstructure:"audiences"`
	ShortageAudience string        `mapstructure:"shortage_audience"`
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	CollectorEndpoint string        `mapstructure:"collector_endpoint"` // OTLP gRPC, e.g. localhost:4317
	SamplingRatio     float64       `mapstructure:"sampling_ratio"`
	ServiceName       string        `mapstructure:"service_name"`
	Insecure          bool          `mapstructure:"insecure"`           // plaintext gRPC, development only
	LogExportEnabled  bool          `mapstructure:"log_export_enabled"` // ship zap logs over OTLP
	DBTraceEnabled    bool          `mapstructure:"db_trace_enabled"`   // otelgorm spans
	DBLogFullSQL      bool          `mapstructure:"db_log_full_sql"`    // dev only
	DBSlowQueryThresh time.Duration `mapstructure:"db_slow_query_threshold"`
}

// defaults registers every key so AutomaticEnv can override it during
// Unmarshal. Retry counts default to non-zero but accept an explicit 0.
var defaults = map[string]any{
	"app.name": "medrx-backend",
	"app.env":  "development",
	"app.port": "8080",

	"database.driver":             "postgres",
	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "postgres",
	"database.password":           "",
	"database.dbname":             "medrx",
	"database.sslmode":            "disable",
	"database.sqlite_path":        "medrx.db",
	"database.max_open_conns":     25,
	"database.max_idle_conns":     5,
	"database.conn_max_lifetime":  60,
	"database.conn_max_idle_time": 30,

	"redis.enabled":  false,
	"redis.host":     "localhost",
	"redis.port":     6379,
	"redis.password": "",
	"redis.db":       0,

	"log.level":  "info",
	"log.format": "console",
	"log.output": "stdout",

	"http.read_timeout":       15 * time.Second,
	"http.write_timeout":      15 * time.Second,
	"http.idle_timeout":       60 * time.Second,
	"http.shutdown_timeout":   10 * time.Second,
	"http.max_header_bytes":   1 << 20,
	"http.max_body_size":      1 << 20,
	"http.cors_allow_origins": []string{},
	"http.cors_allow_methods": []string{"GET", "POST", "OPTIONS"},
	"http.cors_allow_headers": []string{"Content-Type", "X-Request-ID", "X-Actor-ID"},
	"http.trusted_proxies":    []string{},

	"fulfillment.lock_timeout":          5 * time.Second,
	"fulfillment.max_conflict_retries":  1,
	"fulfillment.max_transient_retries": 2,
	"fulfillment.transient_backoff":     50 * time.Millisecond,
	"fulfillment.max_caller_retries":    3,
	"fulfillment.exclude_expired":       false,

	"alert.dedup_window":      24 * time.Hour,
	"alert.audiences":         []string{"admin", "inventory_staff"},
	"alert.shortage_audience": "pharmacy_staff",

	"telemetry.enabled":                 false,
	"telemetry.collector_endpoint":      "localhost:4317",
	"telemetry.sampling_ratio":          1.0,
	"telemetry.service_name":            "medrx-backend",
	"telemetry.insecure":                false,
	"telemetry.log_export_enabled":      false,
	"telemetry.db_trace_enabled":        false,
	"telemetry.db_log_full_sql":         false,
	"telemetry.db_slow_query_threshold": 200 * time.Millisecond,
}

// Load reads config.toml from the working directory, ./backend or /app when
// present, then applies MEDRX_ environment overrides on top of the built-in
// defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")
	return load(v)
}

// LoadFile is Load with an explicit config file; the file must exist
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	db := c.Database
	if db.Driver != "postgres" && db.Driver != "sqlite" {
		fail("database.driver must be postgres or sqlite, got %q", db.Driver)
	}
	if db.MaxOpenConns <= 0 {
		fail("database.max_open_conns must be positive")
	}
	if db.MaxIdleConns < 0 {
		fail("database.max_idle_conns cannot be negative")
	}
	if db.MaxIdleConns > db.MaxOpenConns {
		fail("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)", db.MaxIdleConns, db.MaxOpenConns)
	}

	f := c.Fulfillment
	if f.LockTimeout < 0 {
		fail("fulfillment.lock_timeout cannot be negative")
	}
	if f.MaxConflictRetries < 0 || f.MaxTransientRetries < 0 || f.MaxCallerRetries < 0 {
		fail("fulfillment retry counts cannot be negative")
	}
	if c.Alert.DedupWindow < time.Minute {
		fail("alert.dedup_window must be at least 1m, got %s", c.Alert.DedupWindow)
	}
	if r := c.Telemetry.SamplingRatio; r < 0 || r > 1 {
		fail("telemetry.sampling_ratio must be between 0.0 and 1.0, got %g", r)
	}

	if c.IsProduction() {
		if db.Driver == "sqlite" {
			fail("database.driver sqlite is not supported in production")
		}
		if db.Password == "" {
			fail("database.password is required in production")
		}
		if db.SSLMode == "disable" {
			fail("database.sslmode cannot be 'disable' in production")
		}
		if slices.Contains(c.HTTP.CORSAllowOrigins, "*") {
			fail("http.cors_allow_origins cannot be '*' in production")
		}
		if c.Telemetry.DBLogFullSQL {
			fail("telemetry.db_log_full_sql must be false in production")
		}
	}

	return errors.Join(errs...)
}

// IsProduction reports whether app.env is production
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// DSN returns the postgres connection URL with user and password escaped
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

// Addr returns the Redis host:port address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
