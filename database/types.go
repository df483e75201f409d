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
	"time"

	"github.com/spf13/cast"
	"github.com/tomoncle/quarry/meta"
	"github.com/uptrace/bun"
	"gopkg.in/yaml.v3"
)

// AbstractDatabaseManager defines the operations for managing a database
// connection and reporting its health. Registry holds the metadata of the
// models registered on Connect.
type AbstractDatabaseManager interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Ping(ctx context.Context) error
	HealthCheck(ctx context.Context) *HealthStatus
	GetDB() *bun.DB
	GetSQLDB() *sql.DB
	Registry() *meta.Registry
	GetStats() *DBStats
	SetLogger(logger Logger)
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

// QueryLogStyle selects the query hook installed when query logging is on.
type QueryLogStyle string

const (
	// QueryLogBunDebug uses bundebug, controlled by the BUNDEBUG variable.
	QueryLogBunDebug QueryLogStyle = "bundebug"
	// QueryLogColor prints one colored line per statement.
	QueryLogColor QueryLogStyle = "color"
)

// ConnectionConfig describes how to connect to a database and tune its pool.
// Durations in YAML are written as Go durations, e.g. "30s" or "1h".
type ConnectionConfig struct {
	Type                string        `json:"type" yaml:"type"` // postgres, mysql, sqlite
	Host                string        `json:"host" yaml:"host"`
	Port                int           `json:"port" yaml:"port"`
	Username            string        `json:"username" yaml:"username"`
	Password            string        `json:"password" yaml:"password"`
	DBName              string        `json:"dbname" yaml:"dbname"` // sqlite: file name without ".db", or ":memory:"
	SSLMode             string        `json:"sslmode" yaml:"sslmode"`
	MaxIdleConns        int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	MaxOpenConns        int           `json:"max_open_conns" yaml:"max_open_conns"`
	ConnMaxLifetime     time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime     time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	ConnectTimeout      time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	ReadTimeout         time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout        time.Duration `json:"write_timeout" yaml:"write_timeout"`
	EnableQueryLog      bool          `json:"enable_query_log" yaml:"enable_query_log"`
	QueryLogStyle       QueryLogStyle `json:"query_log_style" yaml:"query_log_style"`
	SlowQueryTime       time.Duration `json:"slow_query_time" yaml:"slow_query_time"`
	Charset             string        `json:"charset" yaml:"charset"` // MySQL: utf8mb4
}

// Config is the root of the database configuration file.
type Config struct {
	ConnectionConfig ConnectionConfig `json:"connection_config" yaml:"connection_config"`
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
		EnableQueryLog:      false,
		QueryLogStyle:       QueryLogBunDebug,
		SlowQueryTime:       time.Second * 2,
		Charset:             "utf8mb4",
	}
}

// ParseConfig decodes a YAML document on top of the default connection
// settings, so omitted keys keep their defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{ConnectionConfig: *DefaultConnectionConfig()}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads and parses the YAML configuration file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read database config: %w", err)
	}
	return ParseConfig(data)
}

// ApplyEnv overlays the DB_* environment variables on c. A set variable wins
// over the file value; values that do not parse are ignored.
// DB_CONN_MAX_LIFETIME is in seconds, DB_SLOW_QUERY_TIME a Go duration.
func (c *ConnectionConfig) ApplyEnv() {
	envString("DB_TYPE", &c.Type)
	envString("DB_HOST", &c.Host)
	envInt("DB_PORT", &c.Port)
	envString("DB_USERNAME", &c.Username)
	envString("DB_PASSWORD", &c.Password)
	envString("DB_NAME", &c.DBName)
	envString("DB_SSLMODE", &c.SSLMode)
	envInt("DB_MAX_IDLE_CONNS", &c.MaxIdleConns)
	envInt("DB_MAX_OPEN_CONNS", &c.MaxOpenConns)
	var lifetime int
	if envInt("DB_CONN_MAX_LIFETIME", &lifetime) {
		c.ConnMaxLifetime = time.Duration(lifetime) * time.Second
	}
	if v, ok := os.LookupEnv("DB_ENABLE_QUERY_LOG"); ok {
		if b, err := cast.ToBoolE(v); err == nil {
			c.EnableQueryLog = b
		}
	}
	if v := os.Getenv("DB_QUERY_LOG_STYLE"); v != "" {
		c.QueryLogStyle = QueryLogStyle(v)
	}
	if v := os.Getenv("DB_SLOW_QUERY_TIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.SlowQueryTime = d
		}
	}
}

// Validate reports an unsupported database type.
func (c *ConnectionConfig) Validate() error {
	_, err := normalizeType(c.Type)
	return err
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) bool {
	v := os.Getenv(key)
	if v == "" {
		return false
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return false
	}
	*dst = n
	return true
}
