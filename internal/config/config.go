package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "ROLLCALL"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	DB       DBConfig       `mapstructure:"db"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Location LocationConfig `mapstructure:"location"`
	QR       QRConfig       `mapstructure:"qr"`
	Device   DeviceConfig   `mapstructure:"device"`
	Tracker  TrackerConfig  `mapstructure:"tracker"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Dev      DevConfig      `mapstructure:"dev"`
}

type ServerConfig struct {
	Env      string `mapstructure:"env"` // "dev" | "prod"
	HTTPAddr string `mapstructure:"http_addr"`
	GRPCAddr string `mapstructure:"grpc_addr"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// RedisConfig selects the shared daily device store. An empty Addr keeps
// the records in process memory.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LedgerConfig struct {
	FirstWeekColumn string        `mapstructure:"first_week_column"`
	HeaderRows      int           `mapstructure:"header_rows"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	MinCallInterval time.Duration `mapstructure:"min_call_interval"`
	RetryInitial    time.Duration `mapstructure:"retry_initial"`
	RetryMax        time.Duration `mapstructure:"retry_max"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	MaskIP          bool          `mapstructure:"mask_ip"`
}

type LocationConfig struct {
	MaxDistanceKm float64 `mapstructure:"max_distance_km"`
	ClassroomLat  float64 `mapstructure:"classroom_lat"`
	ClassroomLng  float64 `mapstructure:"classroom_lng"`
}

type QRConfig struct {
	TTL      time.Duration `mapstructure:"ttl"`
	// Required rejects submissions without a QR code on every transport.
	Required bool          `mapstructure:"required"`
}

type DeviceConfig struct {
	AmbiguousPolicy string `mapstructure:"ambiguous_policy"`
}

type TrackerConfig struct {
	// Timezone is an IANA name; empty means the server's local time.
	Timezone string `mapstructure:"timezone"`
}

type JobsConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	TTL           time.Duration `mapstructure:"ttl"`
	BatchDelay    time.Duration `mapstructure:"batch_delay"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

// AdminConfig enables the admin API when JWTSecret is set.
type AdminConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

type DevConfig struct {
	SeedRoster bool `mapstructure:"seed_roster"`
}

type LoadOptions struct {
	// File is an explicit config file. When empty, config.yaml is looked up
	// in ./configs and the working directory, and a missing file is fine.
	File string
	// DotEnv is loaded into the process environment first if it exists.
	DotEnv string
}

// Load reads defaults, the optional config file and ROLLCALL_* environment
// variables, in increasing order of precedence.
func Load(opts LoadOptions) (*Config, error) {
	if opts.DotEnv == "" {
		opts.DotEnv = ".env"
	}
	if err := godotenv.Load(opts.DotEnv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", opts.DotEnv, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// No default: the value depends on server.env.
	if err := v.BindEnv("dev.seed_roster"); err != nil {
		return nil, err
	}

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.File, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Server.Env = strings.ToLower(strings.TrimSpace(cfg.Server.Env))
	if !v.IsSet("dev.seed_roster") {
		cfg.Dev.SeedRoster = cfg.IsDev()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.grpc_addr", ":9090")

	v.SetDefault("db.path", "./data/rollcall.db")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output_path", "stdout")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("ledger.first_week_column", "C")
	v.SetDefault("ledger.header_rows", 1)
	v.SetDefault("ledger.cache_ttl", 60*time.Second)
	v.SetDefault("ledger.min_call_interval", 100*time.Millisecond)
	v.SetDefault("ledger.retry_initial", time.Second)
	v.SetDefault("ledger.retry_max", 10*time.Second)
	v.SetDefault("ledger.retry_attempts", 5)
	v.SetDefault("ledger.mask_ip", false)

	v.SetDefault("location.max_distance_km", 0.5)
	v.SetDefault("location.classroom_lat", 41.015137)
	v.SetDefault("location.classroom_lng", 28.979530)

	v.SetDefault("qr.ttl", 5*time.Minute)
	v.SetDefault("qr.required", false)

	v.SetDefault("device.ambiguous_policy", "allow")

	v.SetDefault("tracker.timezone", "")

	v.SetDefault("jobs.batch_size", 50)
	v.SetDefault("jobs.ttl", 2*time.Hour)
	v.SetDefault("jobs.batch_delay", time.Second)
	v.SetDefault("jobs.prune_interval", 10*time.Minute)

	v.SetDefault("admin.jwt_secret", "")
	v.SetDefault("admin.jwt_issuer", "rollcall")
}

func (c *Config) Validate() error {
	switch c.Server.Env {
	case "dev", "prod":
	default:
		return fmt.Errorf("server.env must be dev or prod, got %q", c.Server.Env)
	}
	switch strings.ToLower(c.Device.AmbiguousPolicy) {
	case "", "allow", "deny":
	default:
		return fmt.Errorf("device.ambiguous_policy must be allow or deny, got %q", c.Device.AmbiguousPolicy)
	}
	if c.Location.MaxDistanceKm <= 0 {
		return fmt.Errorf("location.max_distance_km must be positive")
	}
	if c.Jobs.BatchSize <= 0 {
		return fmt.Errorf("jobs.batch_size must be positive")
	}
	if _, err := c.TimeLocation(); err != nil {
		return err
	}
	return nil
}

func (c *Config) IsDev() bool { return c.Server.Env == "dev" }

// AdminEnabled reports whether admin tokens can be verified.
func (c *Config) AdminEnabled() bool { return c.Admin.JWTSecret != "" }

// TimeLocation resolves tracker.timezone.
func (c *Config) TimeLocation() (*time.Location, error) {
	tz := strings.TrimSpace(c.Tracker.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("tracker.timezone: %w", err)
	}
	return loc, nil
}

// Getenv is a small helper for values read before Load, like the config
// file flag default.
func Getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
