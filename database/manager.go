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
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/tomoncle/quarry/meta"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
)

// driver opens the *sql.DB of one database type and names its Bun dialect.
type driver struct {
	open    func(cfg *ConnectionConfig) (*sql.DB, error)
	dialect func() schema.Dialect
}

var drivers = map[string]driver{
	"mysql":    {open: openMySQL, dialect: func() schema.Dialect { return mysqldialect.New() }},
	"postgres": {open: openPostgres, dialect: func() schema.Dialect { return pgdialect.New() }},
	"sqlite":   {open: openSQLite, dialect: func() schema.Dialect { return sqlitedialect.New() }},
}

var typeAliases = map[string]string{
	"postgresql": "postgres",
	"sqlite3":    "sqlite",
}

// SupportedTypes lists the accepted database types, aliases included.
func SupportedTypes() []string {
	types := make([]string, 0, len(drivers)+len(typeAliases))
	for name := range drivers {
		types = append(types, name)
	}
	for alias := range typeAliases {
		types = append(types, alias)
	}
	sort.Strings(types)
	return types
}

func normalizeType(typ string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(typ))
	if canonical, ok := typeAliases[name]; ok {
		name = canonical
	}
	if _, ok := drivers[name]; !ok {
		return "", fmt.Errorf("unsupported database type: %s, supported types: %v", typ, SupportedTypes())
	}
	return name, nil
}

func openMySQL(c *ConnectionConfig) (*sql.DB, error) {
	cfg := mysql.NewConfig()
	cfg.User = c.Username
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	cfg.DBName = c.DBName
	cfg.ParseTime = true
	cfg.Loc = time.Local
	cfg.Timeout = c.ConnectTimeout
	cfg.ReadTimeout = c.ReadTimeout
	cfg.WriteTimeout = c.WriteTimeout
	charset := c.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	cfg.Params = map[string]string{"charset": charset}
	return sql.Open("mysql", cfg.FormatDSN())
}

func openPostgres(c *ConnectionConfig) (*sql.DB, error) {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
		c.Username, c.Password, c.Host, c.Port, c.DBName, sslMode, int(c.ConnectTimeout.Seconds()))
	return sql.Open("postgres", dsn)
}

func openSQLite(c *ConnectionConfig) (*sql.DB, error) {
	return sql.Open(sqliteshim.ShimName, sqliteDSN(c.DBName))
}

// sqliteDSN maps a database name to a DSN. ":memory:" and "file:" URIs are
// used as given; a shared cache keeps one in-memory database per pool.
func sqliteDSN(name string) string {
	switch {
	case name == ":memory:":
		return "file::memory:?cache=shared"
	case strings.HasPrefix(name, "file:"):
		return name
	}
	return fmt.Sprintf("%s.db", name)
}

// ManagerOption customizes a manager built by NewDatabaseManager.
type ManagerOption func(*defaultDatabaseManager)

// WithModels makes Connect register the models of models instead of the
// default model registry.
func WithModels(models ModelRegistry) ManagerOption {
	return func(dm *defaultDatabaseManager) {
		if models != nil {
			dm.models = models
		}
	}
}

type defaultDatabaseManager struct {
	config *ConnectionConfig
	models ModelRegistry

	mu        sync.RWMutex
	db        *bun.DB
	registry  *meta.Registry
	logger    Logger
	lastError error
}

// NewDatabaseManager returns an AbstractDatabaseManager backed by Bun. A nil
// config gets DefaultConnectionConfig.
func NewDatabaseManager(config *ConnectionConfig, opts ...ManagerOption) AbstractDatabaseManager {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	dm := &defaultDatabaseManager{
		config: config,
		models: defaultRegistry,
		logger: GetLogger(),
	}
	for _, opt := range opts {
		opt(dm)
	}
	return dm
}

// Connect opens the pool, checks it with a ping, installs the query hooks
// and registers the models with Bun and with a fresh metadata registry.
// Connecting an open manager is a no-op.
func (dm *defaultDatabaseManager) Connect(ctx context.Context) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.db != nil {
		return nil
	}

	db, registry, err := dm.open(ctx)
	if err != nil {
		dm.lastError = err
		return err
	}
	dm.db, dm.registry, dm.lastError = db, registry, nil
	dm.logger.Info("Database connected successfully:", "type", dm.config.Type, "models", len(registry.Types()))
	return nil
}

func (dm *defaultDatabaseManager) open(ctx context.Context) (*bun.DB, *meta.Registry, error) {
	typ, err := normalizeType(dm.config.Type)
	if err != nil {
		return nil, nil, err
	}
	drv := drivers[typ]

	sqlDB, err := drv.open(dm.config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	sqlDB.SetMaxIdleConns(dm.config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(dm.config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(dm.config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(dm.config.ConnMaxIdleTime)
	db := bun.NewDB(sqlDB, drv.dialect())

	timeout := dm.config.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("database connection test failed: %w", err)
	}

	dm.installHooks(db)
	registry, err := registerModels(db, dm.models)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, registry, nil
}

func (dm *defaultDatabaseManager) installHooks(db *bun.DB) {
	if dm.config.EnableQueryLog {
		switch dm.config.QueryLogStyle {
		case QueryLogColor:
			db.AddQueryHook(NewQueryHook("BUNDEBUG"))
		default:
			db.AddQueryHook(bundebug.NewQueryHook(
				bundebug.WithVerbose(true),
				bundebug.FromEnv("BUNDEBUG"),
			))
		}
	}
	if dm.config.SlowQueryTime > 0 {
		db.AddQueryHook(NewSlowQueryHook(dm.config.SlowQueryTime, dm.logger, "DB_SLOW_QUERY_LOG"))
	}
}

// RegisterModels registers the models of the default model registry with db
// and with a new metadata registry for its dialect.
func RegisterModels(db *bun.DB) (*meta.Registry, error) {
	return registerModels(db, defaultRegistry)
}

func registerModels(db *bun.DB, models ModelRegistry) (*meta.Registry, error) {
	registry := meta.NewRegistry(db.Dialect())
	var instances []interface{}
	for _, model := range models.Models() {
		instances = append(instances, model.Instance())
	}
	if len(instances) == 0 {
		return registry, nil
	}
	db.RegisterModel(instances...)
	if err := registry.Register(instances...); err != nil {
		return nil, fmt.Errorf("failed to register models: %w", err)
	}
	return registry, nil
}

func (dm *defaultDatabaseManager) Disconnect() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.db == nil {
		return nil
	}
	err := dm.db.Close()
	dm.db, dm.registry = nil, nil
	if err != nil {
		dm.logger.Error("Failed to close database connection", "error", err)
		return err
	}
	dm.logger.Info("Database connection closed")
	return nil
}

func (dm *defaultDatabaseManager) Ping(ctx context.Context) error {
	db := dm.GetDB()
	if db == nil {
		return fmt.Errorf("database not connected")
	}
	return db.PingContext(ctx)
}

func (dm *defaultDatabaseManager) GetDB() *bun.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.db
}

// GetSQLDB returns the pool under the Bun database, the channel raw SQL
// queries run on.
func (dm *defaultDatabaseManager) GetSQLDB() *sql.DB {
	if db := dm.GetDB(); db != nil {
		return db.DB
	}
	return nil
}

// Registry returns the metadata registry built on Connect, or nil.
func (dm *defaultDatabaseManager) Registry() *meta.Registry {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.registry
}

func (dm *defaultDatabaseManager) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{LastCheckTime: start}

	db := dm.GetDB()
	if db == nil {
		status.LastError = "Database not initialized"
		return status
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := db.PingContext(ctx)
	status.ResponseTime = time.Since(start)
	if err != nil {
		status.LastError = err.Error()
	} else {
		status.Healthy, status.Connected = true, true
	}
	stats := db.DB.Stats()
	status.ActiveConns = stats.InUse
	status.IdleConns = stats.Idle
	status.MaxOpenConns = stats.MaxOpenConnections

	dm.mu.Lock()
	dm.lastError = err
	dm.mu.Unlock()
	return status
}

func (dm *defaultDatabaseManager) GetStats() *DBStats {
	db := dm.GetDB()
	if db == nil {
		return &DBStats{}
	}
	stats := db.DB.Stats()
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

func (dm *defaultDatabaseManager) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.logger = logger
}
