package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tickscope/pkg/secrets"
)

// PostgresConfig defines the configuration for connecting to a PostgreSQL database.
// The database only backs the contract-id cache.
type PostgresConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN builds the connection string. In prod the host, user and password come
// from the secrets store instead of the config file.
func (cfg *PostgresConfig) DSN(ctx context.Context, env string, store secrets.Store, names SecretsConfig) (string, error) {
	host, user, password := cfg.Host, cfg.User, cfg.Password

	if env == "prod" {
		if store == nil {
			return "", errors.New("prod dsn requires a secrets store")
		}
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		var err error
		if host, err = store.Get(ctx, names.DBHostParam); err != nil {
			return "", fmt.Errorf("db host: %w", err)
		}
		if user, err = store.Get(ctx, names.DBUserParam); err != nil {
			return "", fmt.Errorf("db user: %w", err)
		}
		if password, err = store.Get(ctx, names.DBPasswordParam); err != nil {
			return "", fmt.Errorf("db password: %w", err)
		}
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, cfg.Port, user, password, cfg.DBName, cfg.SSLMode,
	)
	if cfg.TimeZone != "" {
		dsn += fmt.Sprintf(" TimeZone=%s", cfg.TimeZone)
	}
	return dsn, nil
}

// AdminDSN targets the maintenance "postgres" database, used to create DBName.
func (cfg *PostgresConfig) AdminDSN(ctx context.Context, env string, store secrets.Store, names SecretsConfig) (string, error) {
	admin := *cfg
	admin.DBName = "postgres"
	return admin.DSN(ctx, env, store, names)
}
