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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/quarry/types"
)

func numberedBooks(n int) []*Book {
	books := make([]*Book, 0, n)
	for i := 1; i <= n; i++ {
		books = append(books, &Book{ID: int64(i), Title: "Vol", Genre: "serial", Pages: 100 + i})
	}
	return books
}

func TestToPaginatedList_SecondPage(t *testing.T) {
	source, err := FromSlice(nil, numberedBooks(5))
	require.NoError(t, err)

	page, err := ToPaginatedList(context.Background(), source.OrderBy("id", Asc), 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, bookIDs(page.Items()))
	assert.EqualValues(t, 5, page.TotalItems())
	assert.Equal(t, 3, page.TotalPages())
	assert.Equal(t, 2, page.PageIndex())
	assert.Equal(t, 2, page.PageSize())
	assert.True(t, page.HasPreviousPage())
	assert.True(t, page.HasNextPage())
}

func TestToPaginatedList_LastPartialPage(t *testing.T) {
	source, err := FromSlice(nil, numberedBooks(7))
	require.NoError(t, err)

	page, err := ToPaginatedList(context.Background(), source, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalPages())
	assert.Equal(t, []int64{7}, bookIDs(page.Items()))
	assert.False(t, page.HasNextPage())
}

func TestToPaginatedList_PastTheEnd(t *testing.T) {
	source, err := FromSlice(nil, numberedBooks(4))
	require.NoError(t, err)

	page, err := ToPaginatedList(context.Background(), source, 9, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Len())
	assert.EqualValues(t, 4, page.TotalItems())
	assert.Equal(t, 2, page.TotalPages())
}

func TestToPaginatedList_EmptySource(t *testing.T) {
	source, err := FromSlice[Book](nil, nil)
	require.NoError(t, err)

	page, err := ToPaginatedList(context.Background(), source, 1, 10)
	require.NoError(t, err)
	assert.NotNil(t, page.Items())
	assert.Empty(t, page.Items())
	assert.Zero(t, page.TotalItems())
	assert.Zero(t, page.TotalPages())
	assert.False(t, page.HasPreviousPage())
	assert.False(t, page.HasNextPage())
}

func TestToPaginatedList_RejectsBadBounds(t *testing.T) {
	source, err := FromSlice(nil, numberedBooks(3))
	require.NoError(t, err)

	for _, bounds := range [][2]int{{0, 10}, {1, 0}, {-1, 5}, {2, -3}} {
		_, err := ToPaginatedList(context.Background(), source, bounds[0], bounds[1])
		assert.ErrorIs(t, err, types.ErrInvalidArgument, "page %d size %d", bounds[0], bounds[1])
	}
	_, err = ToPaginatedList[Book](context.Background(), nil, 1, 1)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestToPaginatedListSpec_CountsFilteredSet(t *testing.T) {
	spec := NewPaginationSpecification[Book](2, 2, Eq("genre", "scifi"))
	spec.OrderBy = func(q Queryable[Book]) Queryable[Book] { return q.OrderBy("id", Asc) }

	page, err := ToPaginatedListSpec(context.Background(), bookSource(t), spec)
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, bookIDs(page.Items()))
	assert.EqualValues(t, 3, page.TotalItems())
	assert.Equal(t, 2, page.TotalPages())
}

func TestToPaginatedListSpec_DynamicOrder(t *testing.T) {
	spec := NewPaginationSpecification[Book](1, 2)
	spec.OrderByDynamic = &DynamicOrder{Column: "pages", Direction: "desc"}

	page, err := ToPaginatedListSpec(context.Background(), bookSource(t), spec)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 2}, bookIDs(page.Items()))
	assert.EqualValues(t, 5, page.TotalItems())
}

func TestToPaginatedListSpec_Invalid(t *testing.T) {
	ctx := context.Background()

	_, err := ToPaginatedListSpec[Book](ctx, bookSource(t), nil)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = ToPaginatedListSpec(ctx, bookSource(t), NewPaginationSpecification[Book](0, 5))
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = ToPaginatedListSpec(ctx, bookSource(t), NewPaginationSpecification[Book](1, 5, Condition{}))
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}
