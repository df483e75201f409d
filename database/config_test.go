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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig_KeepsDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
connection_config:
  type: postgres
  host: db.internal
  port: 5432
  dbname: catalog
  slow_query_time: 250ms
  enable_query_log: true
  query_log_style: color
`))
	require.NoError(t, err)

	conn := cfg.ConnectionConfig
	assert.Equal(t, "postgres", conn.Type)
	assert.Equal(t, "db.internal", conn.Host)
	assert.Equal(t, 5432, conn.Port)
	assert.Equal(t, 250*time.Millisecond, conn.SlowQueryTime)
	assert.True(t, conn.EnableQueryLog)
	assert.Equal(t, QueryLogColor, conn.QueryLogStyle)

	defaults := DefaultConnectionConfig()
	assert.Equal(t, defaults.MaxOpenConns, conn.MaxOpenConns)
	assert.Equal(t, defaults.ConnMaxLifetime, conn.ConnMaxLifetime)
	assert.Equal(t, "utf8mb4", conn.Charset)
}

func TestParseConfig_Invalid(t *testing.T) {
	_, err := ParseConfig([]byte("connection_config: [1, 2"))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.yaml")
	require.NoError(t, os.WriteFile(path, []byte("connection_config:\n  type: sqlite\n  dbname: \":memory:\"\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.ConnectionConfig.Type)
	assert.Equal(t, ":memory:", cfg.ConnectionConfig.DBName)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv_OverridesFileValues(t *testing.T) {
	t.Setenv("DB_TYPE", "sqlite")
	t.Setenv("DB_NAME", ":memory:")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_CONN_MAX_LIFETIME", "90")
	t.Setenv("DB_ENABLE_QUERY_LOG", "true")
	t.Setenv("DB_SLOW_QUERY_TIME", "3s")
	t.Setenv("DB_MAX_OPEN_CONNS", "many")

	cfg := DefaultConnectionConfig()
	cfg.Type = "oracle"
	cfg.ApplyEnv()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sqlite", cfg.Type)
	assert.Equal(t, ":memory:", cfg.DBName)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, 90*time.Second, cfg.ConnMaxLifetime)
	assert.True(t, cfg.EnableQueryLog)
	assert.Equal(t, 3*time.Second, cfg.SlowQueryTime)
	assert.Equal(t, 100, cfg.MaxOpenConns)
}

func TestValidate(t *testing.T) {
	for _, typ := range []string{"mysql", "postgres", "PostgreSQL", "sqlite", "sqlite3"} {
		cfg := &ConnectionConfig{Type: typ}
		assert.NoError(t, cfg.Validate(), typ)
	}
	cfg := &ConnectionConfig{Type: "oracle"}
	assert.ErrorContains(t, cfg.Validate(), "unsupported database type")
}

func TestSqliteDSN(t *testing.T) {
	assert.Equal(t, "file::memory:?cache=shared", sqliteDSN(":memory:"))
	assert.Equal(t, "file:test.db?mode=ro", sqliteDSN("file:test.db?mode=ro"))
	assert.Equal(t, "catalog.db", sqliteDSN("catalog"))
}
