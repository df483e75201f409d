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
	"fmt"

	"github.com/tomoncle/quarry/types"
)

// ToPaginatedList counts source, then reads page pageIndex (1-based) of
// pageSize items. The count is its own query over the unpaged source, so
// TotalItems covers the whole filtered set. Page bounds below 1 are rejected.
func ToPaginatedList[T any](ctx context.Context, source Queryable[T], pageIndex, pageSize int) (*types.PaginatedList[T], error) {
	const op = "query.ToPaginatedList"
	if source == nil {
		return nil, types.NewArgumentError(op, "source", "nil source")
	}
	req := types.NewPageRequest(pageIndex, pageSize)
	if err := req.Validate(op); err != nil {
		return nil, err
	}
	return paginate(ctx, source, source, req)
}

// ToPaginatedListSpec evaluates spec against source and returns the requested
// page. The total is counted over source filtered by the same conditions.
func ToPaginatedListSpec[T any](ctx context.Context, source Queryable[T], spec *PaginationSpecification[T]) (*types.PaginatedList[T], error) {
	const op = "query.ToPaginatedListSpec"
	if source == nil {
		return nil, types.NewArgumentError(op, "source", "nil source")
	}
	if spec == nil {
		return nil, types.NewArgumentError(op, "spec", "nil pagination specification")
	}
	req := spec.Request()
	if err := req.Validate(op); err != nil {
		return nil, err
	}
	counted, err := applyConditions(source, spec.Conditions)
	if err != nil {
		return nil, err
	}
	paged, err := Evaluate(source, spec.Specification())
	if err != nil {
		return nil, err
	}
	return paginate(ctx, counted, paged, req)
}

func paginate[T any](ctx context.Context, counted, paged Queryable[T], req types.PageRequest) (*types.PaginatedList[T], error) {
	total, err := counted.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count page total: %w", err)
	}
	if total == 0 {
		return types.NewPaginatedList[T](nil, 0, req.PageIndex(), req.PageSize()), nil
	}
	items, err := paged.Skip(req.Offset()).Take(req.PageSize()).ToList(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page %d: %w", req.PageIndex(), err)
	}
	return types.NewPaginatedList(items, total, req.PageIndex(), req.PageSize()), nil
}
