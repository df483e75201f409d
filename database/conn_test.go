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
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/quarry/meta"
	"github.com/uptrace/bun"
)

type Gadget struct {
	bun.BaseModel `bun:"table:gadgets"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull"`
}

type recordingLogger struct {
	warnings []string
}

func (l *recordingLogger) SetLevel(LogLevel) {}
func (l *recordingLogger) Debug(msg string, fields ...interface{}) {}
func (l *recordingLogger) Info(msg string, fields ...interface{}) {}
func (l *recordingLogger) Error(msg string, fields ...interface{}) {}
func (l *recordingLogger) Warn(msg string, fields ...interface{}) { l.warnings = append(l.warnings, msg) }

func TestInitDB_SQLite(t *testing.T) {
	require.NoError(t, RegisterEntity[Gadget](10))

	cfg, err := ParseConfig([]byte("connection_config:\n  type: sqlite\n  dbname: \":memory:\"\n"))
	require.NoError(t, err)

	db, err := InitDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseDB() })
	assert.Same(t, db, GetDB())

	registry := GetRegistry()
	require.NotNil(t, registry)
	entity, err := meta.EntityOf[Gadget](registry)
	require.NoError(t, err)
	assert.Equal(t, "gadgets", entity.Table())

	ctx := context.Background()
	_, err = db.NewCreateTable().Model((*Gadget)(nil)).IfNotExists().Exec(ctx)
	require.NoError(t, err)
	_, err = db.NewInsert().Model(&Gadget{Name: "lamp"}).Exec(ctx)
	require.NoError(t, err)

	status := GetHealthStatus(ctx)
	assert.True(t, status.Healthy)
	assert.True(t, status.Connected)
	assert.NotNil(t, GetDatabaseManager())
	assert.GreaterOrEqual(t, GetDatabaseStats().OpenConns, 1)

	require.NoError(t, CloseDB())
	assert.Nil(t, GetDB())
	assert.Nil(t, GetRegistry())
	assert.False(t, GetHealthStatus(ctx).Healthy)
}

func TestInitDB_NilConfig(t *testing.T) {
	_, err := InitDB(nil)
	assert.Error(t, err)
}

type Widget struct {
	ID int64 `bun:"id,pk"`
}

type Sprocket struct {
	ID int64 `bun:"id,pk"`
}

func TestModelRegistry_Priority(t *testing.T) {
	registry := newModelRegistry()
	require.NoError(t, registry.Register(NewModelAdapter((*Sprocket)(nil), 5)))
	require.NoError(t, registry.Register(NewModelAdapter((*Gadget)(nil), 1)))
	require.NoError(t, registry.Register(NewModelAdapter((*Widget)(nil), 5)))

	var order []interface{}
	for _, m := range registry.Models() {
		order = append(order, m.Instance())
	}
	assert.Equal(t, []interface{}{(*Gadget)(nil), (*Sprocket)(nil), (*Widget)(nil)}, order)
}

func TestModelRegistry_SameTypeKeepsLowerPriority(t *testing.T) {
	registry := newModelRegistry()
	require.NoError(t, registry.Register(NewModelAdapter((*Widget)(nil), 3)))
	require.NoError(t, registry.Register(NewModelAdapter((*Gadget)(nil), 2)))
	require.NoError(t, registry.Register(NewModelAdapter(&Widget{ID: 1}, 1)))

	models := registry.Models()
	require.Len(t, models, 2)
	assert.Equal(t, 1, models[0].Priority())
	assert.Equal(t, &Widget{ID: 1}, models[0].Instance())
}

func TestModelRegistry_RejectsNonStruct(t *testing.T) {
	registry := newModelRegistry()
	assert.Error(t, registry.Register(nil))
	assert.Error(t, registry.Register(NewModelAdapter("gadgets", 1)))
	assert.Error(t, registry.Register(NewModelAdapter(Gadget{}, 1)))
	assert.Empty(t, registry.Models())

	assert.Panics(t, func() { RegisteredModel(NewModelAdapter(42, 1)) })
}

func TestSlowQueryHook(t *testing.T) {
	logger := &recordingLogger{}
	var out bytes.Buffer
	hook := NewSlowQueryHook(10*time.Millisecond, logger, "")
	hook.writer = &out

	ctx := context.Background()
	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	assert.Empty(t, logger.warnings)

	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT 2", StartTime: time.Now().Add(-time.Second)})
	assert.Len(t, logger.warnings, 1)
	assert.Contains(t, out.String(), "SELECT 2")

	EnableBunSqlSilent(true)
	defer EnableBunSqlSilent(false)
	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT 3", StartTime: time.Now().Add(-time.Second)})
	assert.Len(t, logger.warnings, 1)
}

func TestSlowQueryHook_EnvDisables(t *testing.T) {
	t.Setenv("TEST_SLOW_QUERY_LOG", "0")
	logger := &recordingLogger{}
	hook := NewSlowQueryHook(time.Millisecond, logger, "TEST_SLOW_QUERY_LOG")
	hook.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now().Add(-time.Second)})
	assert.Empty(t, logger.warnings)
}

func TestQueryHook_Verbosity(t *testing.T) {
	var out bytes.Buffer
	hook := NewQueryHook("TEST_QUERY_LOG")
	hook.writer = &out
	ctx := context.Background()

	t.Setenv("TEST_QUERY_LOG", "1")
	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT ok", StartTime: time.Now()})
	assert.Empty(t, out.String())

	t.Setenv("TEST_QUERY_LOG", "2")
	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT ok", StartTime: time.Now()})
	assert.Contains(t, out.String(), "SELECT ok")
}
