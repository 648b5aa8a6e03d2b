/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/uptrace/bun"
	"gopkg.in/yaml.v3"
)

// AbstractDatabaseManager defines the operations for managing a database
// connection, running migrations, reporting health, and opening scopes.
type AbstractDatabaseManager interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Ping(ctx context.Context) error
	HealthCheck(ctx context.Context) *HealthStatus
	GetDB() *bun.DB
	GetSQLDB() *sql.DB
	GetScopeManager() *ScopeManager
	RunMigrations(ctx context.Context) error
	GetStats() *DBStats
	SetLogger(logger Logger)
}

// AbstractDatabaseConfigProvider exposes configuration loading.
type AbstractDatabaseConfigProvider interface {
	ConfigLoader() *Config
}

// HealthStatus holds the result of a health check against the database.
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Connected     bool          `json:"connected"`
	ResponseTime  time.Duration `json:"response_time"`
	ActiveConns   int           `json:"active_conns"`
	IdleConns     int           `json:"idle_conns"`
	MaxOpenConns  int           `json:"max_open_conns"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// DBStats mirrors database/sql stats returned by the manager.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}

// ConnectionConfig describes how to connect to a database and tune its pool.
type ConnectionConfig struct {
	Type                string        `json:"type" yaml:"type"` // postgres, mysql, sqlite
	Host                string        `json:"host" yaml:"host"`
	Port                int           `json:"port" yaml:"port"`
	Username            string        `json:"username" yaml:"username"`
	Password            string        `json:"password" yaml:"password"`
	DBName              string        `json:"dbname" yaml:"dbname"` // sqlite: file path, ".db" appended when missing
	SSLMode             string        `json:"sslmode" yaml:"sslmode"`
	MaxIdleConns        int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	MaxOpenConns        int           `json:"max_open_conns" yaml:"max_open_conns"`
	ConnMaxLifetime     time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime     time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	ConnectTimeout      time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	ReadTimeout         time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout        time.Duration `json:"write_timeout" yaml:"write_timeout"`
	HealthCheckInterval time.Duration `json:"health_check_interval" yaml:"health_check_interval"`
	EnableQueryLog      bool          `json:"enable_query_log" yaml:"enable_query_log"`
	SlowQueryTime       time.Duration `json:"slow_query_time" yaml:"slow_query_time"`
	BusyTimeout         time.Duration `json:"busy_timeout" yaml:"busy_timeout"`       // sqlite: wait for the write lock
	IsolationLevel      string        `json:"isolation_level" yaml:"isolation_level"` // read_committed, repeatable_read, serializable
}

// DataMigrateConfig controls schema migration behavior on startup.
type DataMigrateConfig struct {
	EnableMigrateOnStartup bool `json:"enable_migrate_on_startup" yaml:"enable_migrate_on_startup"`
}

// DataInitConfig controls data seeding behavior and environment selection.
type DataInitConfig struct {
	AutoInitOnStartup bool   `json:"auto_init_on_startup" yaml:"auto_init_on_startup"`
	Filepath          string `json:"filepath" yaml:"filepath"`
	Environment       string `json:"environment" yaml:"environment"`
}

// Config aggregates connection, migration, and data initialization settings.
type Config struct {
	ConnectionConfig  ConnectionConfig  `json:"connection_config" yaml:"connection"`
	DataMigrateConfig DataMigrateConfig `json:"data_migrate_config" yaml:"migrate"`
	DataInitConfig    DataInitConfig    `json:"data_init_config" yaml:"init"`
}

// DefaultConnectionConfig returns a connection config with sensible defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		MaxIdleConns:        10,
		MaxOpenConns:        100,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     time.Minute * 30,
		ConnectTimeout:      time.Second * 10,
		ReadTimeout:         time.Second * 30,
		WriteTimeout:        time.Second * 30,
		HealthCheckInterval: time.Minute * 5,
		EnableQueryLog:      false,
		SlowQueryTime:       time.Second * 2,
		BusyTimeout:         time.Second * 5,
	}
}

// DefaultConfig returns a Config whose connection part is
// DefaultConnectionConfig.
func DefaultConfig() *Config {
	return &Config{
		ConnectionConfig: *DefaultConnectionConfig(),
		DataInitConfig: DataInitConfig{
			Filepath:    "configs/sql",
			Environment: "prod",
		},
	}
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML configuration on top of DefaultConfig.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

var isolationLevels = map[string]sql.IsolationLevel{
	"read_committed":  sql.LevelReadCommitted,
	"repeatable_read": sql.LevelRepeatableRead,
	"serializable":    sql.LevelSerializable,
}

var supportedTypes = []string{"mysql", "postgres", "postgresql", "sqlite", "sqlite3"}

// IsSQLite reports whether the configuration points at a SQLite database.
func (c *ConnectionConfig) IsSQLite() bool {
	return c.Type == "sqlite" || c.Type == "sqlite3"
}

// Validate checks the database type and that the dialect can honor the
// requested isolation level. SQLite transactions are always serializable.
func (c *ConnectionConfig) Validate() error {
	supported := false
	for _, t := range supportedTypes {
		supported = supported || c.Type == t
	}
	if !supported {
		return fmt.Errorf("unsupported database type: %s, supported types: %v", c.Type, supportedTypes)
	}
	if c.IsolationLevel == "" {
		return nil
	}
	if _, ok := isolationLevels[c.IsolationLevel]; !ok {
		return fmt.Errorf("unknown isolation level: %s", c.IsolationLevel)
	}
	if c.IsSQLite() && c.IsolationLevel != "serializable" {
		return fmt.Errorf("isolation level %s is not supported by sqlite", c.IsolationLevel)
	}
	return nil
}

// TxOptions translates IsolationLevel into the options used when a scope
// begins its transaction. Empty levels, and every level on SQLite, use the
// driver default.
func (c *ConnectionConfig) TxOptions() *sql.TxOptions {
	level, ok := isolationLevels[c.IsolationLevel]
	if !ok || c.IsSQLite() {
		return nil
	}
	return &sql.TxOptions{Isolation: level}
}

// connectionEnv maps DB_* environment variables onto connection fields.
// Values that do not parse are ignored.
var connectionEnv = map[string]func(c *ConnectionConfig, v string){
	"DB_TYPE":     func(c *ConnectionConfig, v string) { c.Type = v },
	"DB_HOST":     func(c *ConnectionConfig, v string) { c.Host = v },
	"DB_USERNAME": func(c *ConnectionConfig, v string) { c.Username = v },
	"DB_PASSWORD": func(c *ConnectionConfig, v string) { c.Password = v },
	"DB_NAME":     func(c *ConnectionConfig, v string) { c.DBName = v },
	"DB_SSLMODE":  func(c *ConnectionConfig, v string) { c.SSLMode = v },
	"DB_PORT": func(c *ConnectionConfig, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	},
	"DB_MAX_IDLE_CONNS": func(c *ConnectionConfig, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxIdleConns = n
		}
	},
	"DB_MAX_OPEN_CONNS": func(c *ConnectionConfig, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxOpenConns = n
		}
	},
	"DB_CONN_MAX_LIFETIME": func(c *ConnectionConfig, v string) {
		if d, ok := parseEnvDuration(v); ok {
			c.ConnMaxLifetime = d
		}
	},
	"DB_BUSY_TIMEOUT": func(c *ConnectionConfig, v string) {
		if d, ok := parseEnvDuration(v); ok {
			c.BusyTimeout = d
		}
	},
	"DB_ISOLATION_LEVEL": func(c *ConnectionConfig, v string) { c.IsolationLevel = v },
	"DB_ENABLE_QUERY_LOG": func(c *ConnectionConfig, v string) {
		if b, err := strconv.ParseBool(v); err == nil {
			c.EnableQueryLog = b
		}
	},
}

// parseEnvDuration accepts Go durations ("90s") and bare seconds ("90").
func parseEnvDuration(v string) (time.Duration, bool) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, true
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, true
	}
	return 0, false
}

// ApplyEnv overrides c with the non-empty DB_* environment variables.
func (c *ConnectionConfig) ApplyEnv() {
	for name, apply := range connectionEnv {
		if v := os.Getenv(name); v != "" {
			apply(c, v)
		}
	}
}
