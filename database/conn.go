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
	"fmt"
	"sync"

	"github.com/tomoncle/quarry/meta"
	"github.com/uptrace/bun"
)

var (
	globalManager AbstractDatabaseManager
	globalMu      sync.RWMutex
	DB            *bun.DB
)

// GetDB returns the global Bun database instance.
func GetDB() *bun.DB {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalManager != nil {
		return globalManager.GetDB()
	}
	return DB
}

// GetRegistry returns the metadata registry of the global database, or nil
// before InitDB.
func GetRegistry() *meta.Registry {
	if manager := GetDatabaseManager(); manager != nil {
		return manager.Registry()
	}
	return nil
}

// GetDatabaseManager returns the global database manager.
func GetDatabaseManager() AbstractDatabaseManager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalManager
}

// InitDB connects the global database. The DB_* environment variables
// override cfg, and every model of the default model registry is registered
// with Bun and with the metadata registry.
func InitDB(cfg *Config) (*bun.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	conn := cfg.ConnectionConfig
	conn.ApplyEnv()
	if err := conn.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create database manager: %w", err)
	}

	manager := NewDatabaseManager(&conn)
	if err := manager.Connect(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	globalMu.Lock()
	previous := globalManager
	globalManager = manager
	DB = manager.GetDB()
	globalMu.Unlock()
	if previous != nil {
		_ = previous.Disconnect()
	}
	GetLogger().Info("Database initialization completed!")
	return DB, nil
}

// CloseDB closes the global database connection.
func CloseDB() error {
	globalMu.Lock()
	manager := globalManager
	globalManager, DB = nil, nil
	globalMu.Unlock()
	if manager != nil {
		return manager.Disconnect()
	}
	return nil
}

// GetHealthStatus returns the current database health status.
func GetHealthStatus(ctx context.Context) *HealthStatus {
	if manager := GetDatabaseManager(); manager != nil {
		return manager.HealthCheck(ctx)
	}
	return &HealthStatus{LastError: "Database not initialized"}
}

// GetDatabaseStats returns global database statistics.
func GetDatabaseStats() *DBStats {
	if manager := GetDatabaseManager(); manager != nil {
		return manager.GetStats()
	}
	return &DBStats{}
}
