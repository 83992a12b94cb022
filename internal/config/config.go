// Package config loads the recruitflowd daemon configuration.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the configuration for the daemon.
type Config struct {
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	// Storage selects the execution ledger backend: "memory", "sqlite",
	// "postgres", or "redis".
	Storage struct {
		Driver string `mapstructure:"driver"`

		// SQLite DSN, e.g. "file:recruitflow.db?_journal=WAL".
		SQLitePath string `mapstructure:"sqlite_path"`

		Postgres struct {
			Host     string `mapstructure:"host"`
			Port     int    `mapstructure:"port"`
			User     string `mapstructure:"user"`
			Password string `mapstructure:"password"`
			Name     string `mapstructure:"name"`
			SSLMode  string `mapstructure:"sslmode"`
		} `mapstructure:"postgres"`

		Redis struct {
			Addr     string `mapstructure:"addr"`
			Password string `mapstructure:"password"`
			DB       int    `mapstructure:"db"`
		} `mapstructure:"redis"`
	} `mapstructure:"storage"`

	Scheduler struct {
		TickSeconds int `mapstructure:"tick_seconds"`
	} `mapstructure:"scheduler"`

	Worker struct {
		Concurrency int `mapstructure:"concurrency"`
		QueueSize   int `mapstructure:"queue_size"`
	} `mapstructure:"worker"`

	Sweep struct {
		IntervalSeconds int      `mapstructure:"interval_seconds"`
		Orgs            []string `mapstructure:"orgs"`
	} `mapstructure:"sweep"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// PostgresDSN renders the postgres section as a connection string.
func (c *Config) PostgresDSN() string {
	pg := c.Storage.Postgres
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pg.Host, pg.Port, pg.User, pg.Password, pg.Name, pg.SSLMode)
}

// LoadConfig loads the configuration from a file and the environment.
// Missing config files are not an error: every setting has a usable default
// so the daemon starts with an in-memory ledger out of the box.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("recruitflow")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix("RECRUITFLOW")
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.sqlite_path", "file:recruitflow.db?_journal=WAL")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("scheduler.tick_seconds", 1)
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.queue_size", 64)
	v.SetDefault("sweep.interval_seconds", 60)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	switch config.Storage.Driver {
	case "memory", "sqlite", "postgres", "redis":
	default:
		return nil, fmt.Errorf("unknown storage driver %q", config.Storage.Driver)
	}
	return &config, nil
}
