package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "IM_NOTIFY"

type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Transport  TransportConfig  `mapstructure:"transport"`
	Reconnect  ReconnectConfig  `mapstructure:"reconnect"`
	Heartbeat  HeartbeatConfig  `mapstructure:"heartbeat"`
	Credential CredentialConfig `mapstructure:"credentials"`
	History    HistoryConfig    `mapstructure:"history"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Server     ServerConfig     `mapstructure:"server"`

	v *viper.Viper
}

// APIConfig locates the server: channel endpoints are Base + path.
type APIConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	StreamPath  string        `mapstructure:"stream_path"`
	SocketPath  string        `mapstructure:"socket_path"`
	HistoryPath string        `mapstructure:"history_path"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type TransportConfig struct {
	Kind                 string        `mapstructure:"kind"`
	PingInterval         time.Duration `mapstructure:"ping_interval"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
}

type ReconnectConfig struct {
	BaseDelay time.Duration `mapstructure:"base_delay"`
	MaxDelay  time.Duration `mapstructure:"max_delay"`
	Jitter    float64       `mapstructure:"jitter"`
}

type HeartbeatConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type CredentialConfig struct {
	Backend string `mapstructure:"backend"` // keyring | static
	Token   string `mapstructure:"token"`
	Key     string `mapstructure:"key"`
	Service string `mapstructure:"service"`
	FileDir string `mapstructure:"file_dir"`
}

type HistoryConfig struct {
	PageSize int           `mapstructure:"page_size"`
	Breaker  BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | text
	Otel   bool   `mapstructure:"otel"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the endpoint
}

// ServerConfig drives the development push server.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	JWTSecret         string        `mapstructure:"jwt_secret"`
	DBPath            string        `mapstructure:"db_path"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	AMQPURL           string        `mapstructure:"amqp_url"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.stream_path", "/api/notifications/stream")
	v.SetDefault("api.socket_path", "/api/notifications/ws")
	v.SetDefault("api.history_path", "/api/notifications")
	v.SetDefault("api.timeout", 10*time.Second)

	v.SetDefault("transport.kind", "sse")
	v.SetDefault("transport.ping_interval", 30*time.Second)
	v.SetDefault("transport.max_reconnect_attempts", 5)
	v.SetDefault("transport.write_timeout", 10*time.Second)

	v.SetDefault("reconnect.base_delay", time.Second)
	v.SetDefault("reconnect.max_delay", 15*time.Second)
	v.SetDefault("reconnect.jitter", 0.0)

	v.SetDefault("heartbeat.timeout", 60*time.Second)

	v.SetDefault("credentials.backend", "keyring")
	v.SetDefault("credentials.token", "")
	v.SetDefault("credentials.key", "access_token")
	v.SetDefault("credentials.service", "im-live-notify")
	v.SetDefault("credentials.file_dir", "")

	v.SetDefault("history.page_size", 20)
	v.SetDefault("history.breaker.max_requests", 1)
	v.SetDefault("history.breaker.interval", time.Minute)
	v.SetDefault("history.breaker.timeout", 30*time.Second)
	v.SetDefault("history.breaker.failure_ratio", 0.6)
	v.SetDefault("history.breaker.min_requests", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.otel", false)

	v.SetDefault("metrics.addr", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.jwt_secret", "dev-secret")
	v.SetDefault("server.db_path", "im-live-notify.db")
	v.SetDefault("server.heartbeat_interval", 25*time.Second)
	v.SetDefault("server.ping_interval", 30*time.Second)
	v.SetDefault("server.amqp_url", "")
}

// flags exposes the most common keys on the command line under their config
// key names.
func flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("im-live-notify", pflag.ContinueOnError)
	fs.String("config_file", "", "Path to the configuration file")
	fs.String("api.base_url", "", "API base URL")
	fs.String("transport.kind", "", "Live channel transport: sse or ws")
	fs.String("credentials.backend", "", "Token storage: keyring or static")
	fs.String("credentials.token", "", "Static access token")
	fs.String("log.level", "", "Log level: debug, info, warn, error")
	fs.String("log.format", "", "Log format: json or text")
	fs.String("metrics.addr", "", "Prometheus listen address")
	fs.String("server.addr", "", "Development server listen address")
	fs.String("server.amqp_url", "", "AMQP broker URL for the development server")
	return fs
}

// LoadConfig resolves the configuration from defaults, an optional YAML file,
// IM_NOTIFY_* environment variables and args, in increasing precedence.
func LoadConfig(args []string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	fs := flags()
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// only explicitly set flags override lower layers
	var bindErr error
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config_file" {
			return
		}
		if err := v.BindPFlag(f.Name, f); err != nil {
			bindErr = errors.Join(bindErr, err)
		}
	})
	if bindErr != nil {
		return nil, fmt.Errorf("bind flags: %w", bindErr)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path, _ := fs.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	switch strings.ToLower(c.Transport.Kind) {
	case "sse", "ws":
	default:
		errs = append(errs, fmt.Errorf("transport.kind %q: want sse or ws", c.Transport.Kind))
	}
	switch c.Credential.Backend {
	case "keyring", "static":
	default:
		errs = append(errs, fmt.Errorf("credentials.backend %q: want keyring or static", c.Credential.Backend))
	}
	if c.Reconnect.BaseDelay <= 0 || c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		errs = append(errs, errors.New("reconnect: base_delay must be positive and not above max_delay"))
	}
	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter >= 1 {
		errs = append(errs, errors.New("reconnect.jitter must be in [0,1)"))
	}
	if c.Heartbeat.Timeout <= 0 {
		errs = append(errs, errors.New("heartbeat.timeout must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Watch calls fn with the reloaded configuration whenever the config file
// changes. It is a no-op when no file was loaded.
func (c *Config) Watch(fn func(*Config)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}

	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next := &Config{v: c.v}
		if err := c.v.Unmarshal(next); err != nil {
			return
		}
		if next.Validate() != nil {
			return
		}
		fn(next)
	})
	c.v.WatchConfig()
}
