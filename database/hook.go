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
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

var silentHooks atomic.Bool

// EnableBunSqlSilent mutes every hook of this package, e.g. in tests.
func EnableBunSqlSilent(b bool) {
	silentHooks.Store(b)
}

var operationColors = map[string]*color.Color{
	"SELECT": color.New(color.FgGreen),
	"INSERT": color.New(color.FgBlue),
	"UPDATE": color.New(color.FgYellow),
	"DELETE": color.New(color.FgMagenta),
}

var operationBackgrounds = map[string]*color.Color{
	"SELECT": color.New(color.BgGreen, color.FgHiWhite),
	"INSERT": color.New(color.BgBlue, color.FgHiWhite),
	"UPDATE": color.New(color.BgYellow, color.FgHiWhite),
	"DELETE": color.New(color.BgMagenta, color.FgHiWhite),
}

func colorFor(palette map[string]*color.Color, operation string, fallback *color.Color) *color.Color {
	if c, ok := palette[operation]; ok {
		return c
	}
	return fallback
}

// QueryHook prints every statement with its duration, colored by operation.
// The environment variable named by envName overrides enabled: "0" or empty
// disables, "1" logs failed statements only, "2" logs everything.
type QueryHook struct {
	envName string
	enabled bool
	verbose bool
	writer  io.Writer
}

var _ bun.QueryHook = (*QueryHook)(nil)

// NewQueryHook returns a verbose QueryHook writing to stdout.
func NewQueryHook(envName string) *QueryHook {
	return &QueryHook{envName: envName, enabled: true, verbose: true, writer: os.Stdout}
}

func (h *QueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if silentHooks.Load() {
		return
	}
	enabled, verbose := h.enabled, h.verbose
	if env, ok := os.LookupEnv(h.envName); ok && h.envName != "" {
		enabled = env != "" && env != "0"
		verbose = env == "2"
	}
	if !enabled {
		return
	}
	if !verbose {
		switch {
		case event.Err == nil, errors.Is(event.Err, sql.ErrNoRows), errors.Is(event.Err, sql.ErrTxDone):
			return
		}
	}

	now := time.Now()
	args := []interface{}{
		now.Format("2006-01-02 15:04:05.000"),
		color.CyanString("%8s", "[BUN]"),
		fmt.Sprintf("%12s", now.Sub(event.StartTime).Round(time.Microsecond)),
		colorFor(operationColors, event.Operation(), color.New(color.FgRed)).Sprint(event.Query),
	}
	if event.Err != nil {
		args = append(args, color.New(color.BgRed).Sprintf(" %T: %s ", event.Err, event.Err))
	}
	_, _ = fmt.Fprintln(h.writer, args...)
}

// SlowQueryHook reports statements slower than slowTime through the
// database logger and, when a writer is set, as a highlighted line.
type SlowQueryHook struct {
	fromEnv  string
	enabled  bool
	slowTime time.Duration
	logger   Logger
	writer   io.Writer
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

// NewSlowQueryHook returns an enabled hook. The variable named by fromEnv,
// when set, enables the hook only if its value is "1".
func NewSlowQueryHook(slowTime time.Duration, logger Logger, fromEnv string) *SlowQueryHook {
	return &SlowQueryHook{fromEnv: fromEnv, enabled: true, slowTime: slowTime, logger: logger}
}

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if silentHooks.Load() || event.Err != nil {
		return
	}
	enabled := h.enabled
	if env, ok := os.LookupEnv(h.fromEnv); ok && h.fromEnv != "" {
		enabled = env == "1"
	}
	if !enabled {
		return
	}

	duration := time.Since(event.StartTime)
	if duration <= h.slowTime {
		return
	}
	if h.logger != nil {
		h.logger.Warn(color.YellowString("Database slow query detected"),
			"duration", duration,
			"slow_threshold", h.slowTime,
			"query", event.Query,
		)
	}
	if h.writer != nil {
		_, _ = fmt.Fprintln(h.writer,
			time.Now().Format("2006-01-02 15:04:05.000"),
			color.YellowString("%12s", "[BUN_SLOW]"),
			fmt.Sprintf("%12s", duration.Round(time.Microsecond)),
			colorFor(operationBackgrounds, event.Operation(), color.New(color.BgRed, color.FgHiWhite)).Sprint(event.Query),
		)
	}
}
