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

package query

import (
	"context"

	"github.com/tomoncle/quarry/meta"
	"github.com/tomoncle/quarry/types"
)

// ProjectedColumns returns the columns of T that P also maps, in P's field
// order. Matching is by column name, ignoring case. A nil registry gets a
// default one.
func ProjectedColumns[T, P any](registry *meta.Registry) ([]string, error) {
	const op = "query.Project"
	if registry == nil {
		registry = meta.NewRegistry(nil)
	}
	source, err := meta.EntityOf[T](registry)
	if err != nil {
		return nil, err
	}
	target, err := meta.EntityOf[P](registry)
	if err != nil {
		return nil, err
	}
	var columns []string
	for _, f := range target.Fields() {
		if sf, ok := source.Field(f.Name); ok {
			columns = append(columns, sf.Name)
		}
	}
	if len(columns) == 0 {
		return nil, types.NewArgumentError(op, "projection", "%s shares no columns with %s", target.Type(), source.Type())
	}
	return columns, nil
}

// ProjectList materializes q as P values holding only the shared columns.
func ProjectList[T, P any](ctx context.Context, q Queryable[T]) ([]*P, error) {
	columns, err := projectedColumns[T, P](q)
	if err != nil {
		return nil, err
	}
	out := make([]*P, 0)
	if err := q.Columns(columns...).ScanList(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ProjectFirst is ProjectList for the first match. It returns nil when
// nothing matches.
func ProjectFirst[T, P any](ctx context.Context, q Queryable[T]) (*P, error) {
	columns, err := projectedColumns[T, P](q)
	if err != nil {
		return nil, err
	}
	var out P
	found, err := q.Columns(columns...).ScanFirst(ctx, &out)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

// projectedColumns reports a failed source before resolving columns.
func projectedColumns[T, P any](q Queryable[T]) ([]string, error) {
	if q == nil {
		return nil, types.NewArgumentError("query.Project", "source", "nil source")
	}
	if f, ok := q.(interface{ failure() error }); ok && f.failure() != nil {
		return nil, f.failure()
	}
	return ProjectedColumns[T, P](q.Registry())
}
