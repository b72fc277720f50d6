// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package config loads the connector configuration from a YAML file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"
)

type ArchiveConfig struct {
	BaseDir  string `yaml:"base_dir"`
	Timezone string `yaml:"timezone"`
}

// LogDir is the root of the per-contact logs.
func (ac ArchiveConfig) LogDir() string {
	return filepath.Join(ac.BaseDir, "logs")
}

// BlockedDir holds the global block list logs.
func (ac ArchiveConfig) BlockedDir() string {
	return filepath.Join(ac.BaseDir, "blocked_contacts")
}

type DatabaseConfig struct {
	Dialect  string `yaml:"dialect"`
	URI      string `yaml:"uri"`
	MaxConns int32  `yaml:"max_conns"`
}

type SessionConfig struct {
	PhoneNumber string `yaml:"phone_number"`
	QRFile      string `yaml:"qr_file"`
}

type ConnectionConfig struct {
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	QueueSize      int           `yaml:"queue_size"`
}

type CallsConfig struct {
	TombstoneTTL time.Duration `yaml:"tombstone_ttl"`
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type ScheduleConfig struct {
	Restart   string `yaml:"restart"`
	Blocklist string `yaml:"blocklist"`
}

type HAConfig struct {
	Enabled       bool          `yaml:"enabled"`
	InstanceName  string        `yaml:"instance_name"`
	CheckInterval time.Duration `yaml:"check_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the full connector configuration.
type Config struct {
	Archive    ArchiveConfig    `yaml:"archive"`
	Database   DatabaseConfig   `yaml:"database"`
	Session    SessionConfig    `yaml:"session"`
	Connection ConnectionConfig `yaml:"connection"`
	Calls      CallsConfig      `yaml:"calls"`
	Server     ServerConfig     `yaml:"server"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	HA         HAConfig         `yaml:"ha"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Archive: ArchiveConfig{
			BaseDir:  ".",
			Timezone: "Asia/Jakarta",
		},
		Database: DatabaseConfig{
			Dialect:  DialectSQLite,
			URI:      "file:whatsarchive.db?_foreign_keys=on",
			MaxConns: 4,
		},
		Connection: ConnectionConfig{
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			QueueSize:      256,
		},
		Calls: CallsConfig{
			TombstoneTTL: time.Hour,
		},
		Server: ServerConfig{
			Enabled: true,
			Listen:  ":3000",
		},
		Schedule: ScheduleConfig{
			Restart:   "5 14 * * *",
			Blocklist: "0 14 * * *",
		},
		HA: HAConfig{
			InstanceName:  "whatsarchive",
			CheckInterval: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies .env and environment
// overrides and validates the result. A missing file is only an error if required is set.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err = yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	_ = godotenv.Load(".env")
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (cfg *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if port, ok := lookup("PORT"); ok && port != "" {
		cfg.Server.Listen = ":" + port
	}
	if phone, ok := lookup("PHONE_NUMBER"); ok {
		cfg.Session.PhoneNumber = strings.TrimPrefix(strings.TrimSpace(phone), "+")
	}
	if uri, ok := lookup("DATABASE_URL"); ok && uri != "" {
		cfg.Database.URI = uri
	}
	if dialect, ok := lookup("DATABASE_DIALECT"); ok && dialect != "" {
		cfg.Database.Dialect = dialect
	}
	if level, ok := lookup("LOG_LEVEL"); ok && level != "" {
		cfg.Logging.Level = level
	}
	if dir, ok := lookup("ARCHIVE_DIR"); ok && dir != "" {
		cfg.Archive.BaseDir = dir
	}
	if tz, ok := lookup("TZ_ARCHIVE"); ok && tz != "" {
		cfg.Archive.Timezone = tz
	}
}

// Validate checks the configuration for values that can't work.
func (cfg *Config) Validate() error {
	switch cfg.Database.Dialect {
	case DialectSQLite, DialectPostgres:
	default:
		return fmt.Errorf("unsupported database dialect %q", cfg.Database.Dialect)
	}
	if cfg.Database.URI == "" {
		return errors.New("database.uri is empty")
	}
	if _, err := cfg.Location(); err != nil {
		return err
	}
	gron := gronx.New()
	if cfg.Schedule.Restart != "" && !gron.IsValid(cfg.Schedule.Restart) {
		return fmt.Errorf("invalid schedule.restart: %q is not a valid cron expression", cfg.Schedule.Restart)
	}
	if cfg.Schedule.Blocklist != "" && !gron.IsValid(cfg.Schedule.Blocklist) {
		return fmt.Errorf("invalid schedule.blocklist: %q is not a valid cron expression", cfg.Schedule.Blocklist)
	}
	if cfg.Connection.InitialBackoff <= 0 {
		return errors.New("connection.initial_backoff must be positive")
	} else if cfg.Connection.MaxBackoff < cfg.Connection.InitialBackoff {
		return errors.New("connection.max_backoff must not be less than connection.initial_backoff")
	}
	if cfg.HA.Enabled {
		if cfg.Database.Dialect != DialectPostgres {
			return errors.New("ha requires the postgres database dialect")
		} else if cfg.HA.InstanceName == "" {
			return errors.New("ha.instance_name is empty")
		}
	}
	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %w", err)
	}
	return nil
}

// Location returns the time zone used for archive timestamps and cron schedules.
func (cfg *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(cfg.Archive.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid archive.timezone: %w", err)
	}
	return loc, nil
}
