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

package rawsql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tomoncle/quarry/types"
)

// Query runs sqlText on a connection of its own and maps the result with
// MapRows. Positional ("?" or "$1" depending on the driver) and sql.Named
// arguments are passed through unchanged. The connection and the cursor are
// released before Query returns, whatever the outcome.
func Query[T any](ctx context.Context, db *sql.DB, sqlText string, args ...interface{}) ([]T, error) {
	return QueryWith[T](ctx, db, nil, sqlText, args...)
}

// QueryWith is Query with mapping options.
func QueryWith[T any](ctx context.Context, db *sql.DB, opts []Option, sqlText string, args ...interface{}) ([]T, error) {
	if db == nil {
		return nil, types.NewArgumentError("rawsql.Query", "db", "nil database")
	}
	if sqlText == "" {
		return nil, types.NewArgumentError("rawsql.Query", "sql", "empty query")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Warnf("release connection: %v", cerr)
		}
	}()

	log.Debugf("query: %s %v", sqlText, args)
	rows, err := conn.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return MapRows[T](rows, opts...)
}

// QueryOne returns the first mapped row, or nil when the query yields none.
func QueryOne[T any](ctx context.Context, db *sql.DB, sqlText string, args ...interface{}) (*T, error) {
	items, err := Query[T](ctx, db, sqlText, args...)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}
