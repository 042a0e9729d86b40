// Package config loads service configuration from built-in defaults, a TOML
// file, an optional .env file and environment variables, in that order.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/vinayprograms/drainkit/bus"
	"github.com/vinayprograms/drainkit/errors"
	"github.com/vinayprograms/drainkit/logging"
	"github.com/vinayprograms/drainkit/shutdown"
)

const (
	// PathEnv names the variable that points at the TOML file.
	PathEnv = "APP_CONFIG_PATH"

	// DefaultPath is read when neither an argument nor PathEnv is given.
	DefaultPath = "/home/app/conf/application.toml"

	// EnvPrefix is prepended to every environment variable name.
	EnvPrefix = "DRAINKIT_"
)

// Event backends.
const (
	BackendMemory = "memory"
	BackendNATS   = "nats"
	BackendRedis  = "redis"
)

// Config is the complete service configuration.
type Config struct {
	Service   ServiceConfig   `toml:"service" envPrefix:"SERVICE_"`
	Logging   LoggingConfig   `toml:"logging" envPrefix:"LOG_"`
	Shutdown  ShutdownConfig  `toml:"shutdown" envPrefix:"SHUTDOWN_"`
	Events    EventsConfig    `toml:"events" envPrefix:"EVENTS_"`
	NATS      NATSConfig      `toml:"nats" envPrefix:"NATS_"`
	Redis     RedisConfig     `toml:"redis" envPrefix:"REDIS_"`
	Server    ServerConfig    `toml:"server" envPrefix:"SERVER_"`
	Telemetry TelemetryConfig `toml:"telemetry" envPrefix:"TELEMETRY_"`
}

type ServiceConfig struct {
	Name        string `toml:"name" env:"NAME"`
	Environment string `toml:"environment" env:"ENVIRONMENT"`
}

type LoggingConfig struct {
	Level  string `toml:"level" env:"LEVEL"`
	Format string `toml:"format" env:"FORMAT"`
}

type ShutdownConfig struct {
	PhaseTimeout  time.Duration `toml:"phase_timeout" env:"PHASE_TIMEOUT"`
	HandleSignals bool          `toml:"handle_signals" env:"HANDLE_SIGNALS"`
}

type EventsConfig struct {
	Capacity int    `toml:"capacity" env:"CAPACITY"`
	Backend  string `toml:"backend" env:"BACKEND"`
	Subject  string `toml:"subject" env:"SUBJECT"`
}

type NATSConfig struct {
	URL            string        `toml:"url" env:"URL"`
	Name           string        `toml:"name" env:"NAME"`
	Token          string        `toml:"token" env:"TOKEN"`
	User           string        `toml:"user" env:"USER"`
	Password       string        `toml:"password" env:"PASSWORD"`
	ConnectTimeout time.Duration `toml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	MaxReconnects  int           `toml:"max_reconnects" env:"MAX_RECONNECTS"`
}

type RedisConfig struct {
	Addr     string `toml:"addr" env:"ADDR"`
	Password string `toml:"password" env:"PASSWORD"`
	DB       int    `toml:"db" env:"DB"`
}

type ServerConfig struct {
	Addr            string        `toml:"addr" env:"ADDR"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// TelemetryConfig enables trace export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint string `toml:"endpoint" env:"ENDPOINT"`
	Protocol string `toml:"protocol" env:"PROTOCOL"`
	Insecure bool   `toml:"insecure" env:"INSECURE"`
}

// Default returns the built-in configuration.
func Default() *Config {
	nats := bus.DefaultNATSConfig()
	return &Config{
		Service: ServiceConfig{
			Name:        "drainkit",
			Environment: "development",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: logging.FormatJSON,
		},
		Shutdown: ShutdownConfig{
			PhaseTimeout:  shutdown.DefaultConfig().PhaseTimeout,
			HandleSignals: true,
		},
		Events: EventsConfig{
			Capacity: 500,
			Backend:  BackendMemory,
			Subject:  "cluster.events",
		},
		NATS: NATSConfig{
			URL:            nats.URL,
			ConnectTimeout: nats.ConnectTimeout,
			MaxReconnects:  nats.MaxReconnects,
		},
		Redis: RedisConfig{
			Addr: bus.DefaultRedisConfig().Addr,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Protocol: "grpc",
		},
	}
}

// Option configures Load.
type Option func(*loadOptions)

type loadOptions struct {
	dotenv  []string
	environ map[string]string
}

// WithDotEnv reads the given .env files instead of ./.env.
func WithDotEnv(files ...string) Option {
	return func(o *loadOptions) {
		o.dotenv = files
	}
}

// WithEnvironment replaces the process environment, for tests. Values
// from the .env files are merged under it and the process environment is
// left untouched.
func WithEnvironment(environ map[string]string) Option {
	return func(o *loadOptions) {
		o.environ = environ
	}
}

// Load builds the configuration. The .env files are read first, so they
// may set PathEnv too. Variables in them never override ones already set.
// path selects the TOML file; when empty, PathEnv and then DefaultPath are
// used. A missing file at DefaultPath is skipped, a missing file that was
// asked for explicitly is an error.
func Load(path string, opts ...Option) (*Config, error) {
	o := loadOptions{dotenv: []string{".env"}}
	for _, opt := range opts {
		opt(&o)
	}

	environ, err := resolveEnvironment(o)
	if err != nil {
		return nil, err
	}

	cfg := Default()

	explicit := true
	if path == "" {
		path = environ[PathEnv]
	}
	if path == "" {
		path, explicit = DefaultPath, false
	}
	if err := decodeFile(path, explicit, cfg); err != nil {
		return nil, err
	}

	envOpts := env.Options{Prefix: EnvPrefix, Environment: environ}
	if err := env.ParseWithOptions(cfg, envOpts); err != nil {
		return nil, errors.InvalidConfig("parse environment", errors.WithCause(err))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveEnvironment applies the .env files and returns the variables Load
// reads. Without WithEnvironment the files are loaded into the process.
func resolveEnvironment(o loadOptions) (map[string]string, error) {
	var environ map[string]string
	if o.environ != nil {
		environ = make(map[string]string, len(o.environ))
		for k, v := range o.environ {
			environ[k] = v
		}
	}

	for _, f := range o.dotenv {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if environ == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, errors.InvalidConfig("read "+f, errors.WithCause(err))
			}
			continue
		}
		vars, err := godotenv.Read(f)
		if err != nil {
			return nil, errors.InvalidConfig("read "+f, errors.WithCause(err))
		}
		for k, v := range vars {
			if _, ok := environ[k]; !ok {
				environ[k] = v
			}
		}
	}

	if environ == nil {
		environ = env.ToMap(os.Environ())
	}
	return environ, nil
}

func decodeFile(path string, explicit bool, cfg *Config) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return errors.InvalidConfig("config file "+path, errors.WithCause(err))
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return errors.InvalidConfig("decode "+path, errors.WithCause(err))
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return errors.InvalidConfig("unknown keys in "+path+": "+strings.Join(keys, ", "),
			errors.WithMetadata("path", path))
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", logging.FormatJSON, logging.FormatConsole:
	default:
		return errors.InvalidConfig("logging.format must be json or console")
	}
	if c.Shutdown.PhaseTimeout < 0 {
		return errors.InvalidConfig("shutdown.phase_timeout must not be negative")
	}
	if c.Events.Capacity < 1 {
		return errors.InvalidConfig("events.capacity must be at least 1")
	}
	switch c.Events.Backend {
	case BackendMemory, BackendNATS, BackendRedis:
	default:
		return errors.InvalidConfig("events.backend must be memory, nats or redis")
	}
	if c.Events.Subject == "" {
		return errors.InvalidConfig("events.subject is required")
	}
	if c.Server.Addr == "" {
		return errors.InvalidConfig("server.addr is required")
	}
	if c.Server.ShutdownTimeout < 0 {
		return errors.InvalidConfig("server.shutdown_timeout must not be negative")
	}
	switch c.Telemetry.Protocol {
	case "grpc", "http":
	default:
		return errors.InvalidConfig("telemetry.protocol must be grpc or http")
	}
	return nil
}

// ShutdownConfig converts the shutdown section.
func (c *Config) ShutdownConfig() shutdown.Config {
	return shutdown.Config{
		PhaseTimeout:  c.Shutdown.PhaseTimeout,
		HandleSignals: c.Shutdown.HandleSignals,
	}
}

// LoggingConfig converts the logging section.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
	}
}

// NATSConfig converts the nats section.
func (c *Config) NATSConfig() bus.NATSConfig {
	cfg := bus.DefaultNATSConfig()
	cfg.URL = c.NATS.URL
	cfg.Name = c.NATS.Name
	if cfg.Name == "" {
		cfg.Name = c.Service.Name
	}
	cfg.Token = c.NATS.Token
	cfg.User = c.NATS.User
	cfg.Password = c.NATS.Password
	if c.NATS.ConnectTimeout > 0 {
		cfg.ConnectTimeout = c.NATS.ConnectTimeout
	}
	cfg.MaxReconnects = c.NATS.MaxReconnects
	return cfg
}

// RedisConfig converts the redis section.
func (c *Config) RedisConfig() bus.RedisConfig {
	cfg := bus.DefaultRedisConfig()
	cfg.Addr = c.Redis.Addr
	cfg.Password = c.Redis.Password
	cfg.DB = c.Redis.DB
	return cfg
}
