package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	API      APIConfig      `mapstructure:"api"`
	Secrets  SecretsConfig  `mapstructure:"secrets"`
}

// GatewayConfig points at the locally running broker gateway.
type GatewayConfig struct {
	REST RESTConfig `mapstructure:"rest"`
	WS   WSConfig   `mapstructure:"ws"`

	// The gateway ships a self-signed certificate for 127.0.0.1.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
}

type RESTConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type WSConfig struct {
	URL              string        `mapstructure:"url"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
}

// StreamConfig selects what to watch and how much history to keep in memory.
type StreamConfig struct {
	Stock           string        `mapstructure:"stock"`            // e.g. "TSLA"
	Option          string        `mapstructure:"option"`           // OCC ticker, e.g. "TSLA250620C00200000"
	StockRetention  time.Duration `mapstructure:"stock_retention"`  // window used for stock-only sessions
	OptionRetention time.Duration `mapstructure:"option_retention"` // window used when an option is watched
	StatusInterval  time.Duration `mapstructure:"status_interval"`  // period of the series count log line
}

// Retention returns the single window the series store is built with.
func (s StreamConfig) Retention() time.Duration {
	if s.Option != "" {
		return s.OptionRetention
	}
	return s.StockRetention
}

// Options defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

type APIConfig struct {
	Addr string `mapstructure:"addr"`
}

// SecretsConfig selects the credential store and the parameter names read from it.
type SecretsConfig struct {
	Backend         string `mapstructure:"backend"` // "memory" or "ssm"
	Region          string `mapstructure:"region"`
	DBHostParam     string `mapstructure:"db_host_param"`
	DBUserParam     string `mapstructure:"db_user_param"`
	DBPasswordParam string `mapstructure:"db_password_param"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gateway.rest.base_url", "https://127.0.0.1:5010/v1/api")
	v.SetDefault("gateway.rest.timeout", 8*time.Second)
	v.SetDefault("gateway.ws.url", "wss://127.0.0.1:5010/v1/api/ws")
	v.SetDefault("gateway.ws.handshake_timeout", 10*time.Second)
	v.SetDefault("gateway.ws.write_timeout", 5*time.Second)
	v.SetDefault("gateway.insecure_skip_verify", true)

	v.SetDefault("stream.stock", "")
	v.SetDefault("stream.option", "")
	v.SetDefault("stream.stock_retention", 180*time.Second)
	v.SetDefault("stream.option_retention", 300*time.Second)
	v.SetDefault("stream.status_interval", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_file", "")
	v.SetDefault("log.environment", "dev")

	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "tickscope")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", time.Hour)

	v.SetDefault("api.addr", "127.0.0.1:8050")

	v.SetDefault("secrets.backend", "memory")
	v.SetDefault("secrets.region", "")
	v.SetDefault("secrets.db_host_param", "TICKSCOPE_DB_HOST")
	v.SetDefault("secrets.db_user_param", "TICKSCOPE_DB_USER")
	v.SetDefault("secrets.db_password_param", "TICKSCOPE_DB_PASSWORD")
}

// Load loads application configuration using Viper.
// It reads config.yaml when present, then overrides with .env, environment
// variables (TICKSCOPE_STREAM_STOCK, ...) and finally command-line flags.
func Load(args []string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	fs := pflag.NewFlagSet("tickscope", pflag.ContinueOnError)
	configFile := fs.String("config", "", "path to config.yaml")
	fs.String("stock", "", "stock symbol to watch")
	fs.String("option", "", "OCC option ticker to watch")
	fs.String("log-level", "", "log level override")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	bindFlag(v, fs, "stream.stock", "stock")
	bindFlag(v, fs, "stream.option", "option")
	bindFlag(v, fs, "log.level", "log-level")

	if *configFile != "" {
		v.SetConfigFile(*configFile)
	} else {
		v.SetConfigName("config") // config.yaml
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// Support environment variables with dot notation (e.g., TICKSCOPE_GATEWAY_WS_URL)
	v.SetEnvPrefix("TICKSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// bindFlag binds a flag only when it was given, so an unset flag does not
// shadow the config file or environment.
func bindFlag(v *viper.Viper, fs *pflag.FlagSet, key, name string) {
	if f := fs.Lookup(name); f != nil && f.Changed {
		_ = v.BindPFlag(key, f)
	}
}

// Validate performs basic configuration validation.
func (c *Config) Validate() error {
	if c.Gateway.REST.BaseURL == "" {
		return errors.New("gateway rest base_url cannot be empty")
	}
	if c.Gateway.WS.URL == "" {
		return errors.New("gateway ws url cannot be empty")
	}
	if c.Gateway.REST.Timeout <= 0 {
		return fmt.Errorf("gateway rest timeout must be greater than 0, got %s", c.Gateway.REST.Timeout)
	}
	if c.Stream.StockRetention <= 0 || c.Stream.OptionRetention <= 0 {
		return errors.New("stream retention windows must be greater than 0")
	}
	if c.Stream.StatusInterval <= 0 {
		return errors.New("stream status_interval must be greater than 0")
	}
	switch c.Secrets.Backend {
	case "memory", "ssm":
	default:
		return fmt.Errorf("unknown secrets backend %q", c.Secrets.Backend)
	}
	return nil
}
