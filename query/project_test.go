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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/quarry/types"
)

type BookSummary struct {
	ID    int64  `bun:"id"`
	Title string `bun:"title"`
}

type Shelf struct {
	Code string `bun:"code"`
}

func TestProjectedColumns(t *testing.T) {
	columns, err := ProjectedColumns[Book, BookSummary](nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "title"}, columns)

	_, err = ProjectedColumns[Book, Shelf](nil)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestProjectList(t *testing.T) {
	q := bookSource(t).Where(Eq("genre", "classic")).OrderBy("title", Desc)

	summaries, err := ProjectList[Book, BookSummary](context.Background(), q)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, BookSummary{ID: 4, Title: "Persuasion"}, *summaries[0])
	assert.Equal(t, BookSummary{ID: 2, Title: "Emma"}, *summaries[1])
}

func TestProjectFirst(t *testing.T) {
	ctx := context.Background()

	summary, err := ProjectFirst[Book, BookSummary](ctx, bookSource(t).Where(Eq("id", 3)))
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "Neuromancer", summary.Title)

	summary, err = ProjectFirst[Book, BookSummary](ctx, bookSource(t).Where(Eq("id", 42)))
	require.NoError(t, err)
	assert.Nil(t, summary)
}

func TestProject_FailedSourceReturnsItsError(t *testing.T) {
	ctx := context.Background()
	storeDown := errors.New("store down")

	summaries, err := ProjectList[Book, BookSummary](ctx, Failed[Book](nil, storeDown))
	assert.ErrorIs(t, err, storeDown)
	assert.Nil(t, summaries)

	summary, err := ProjectFirst[Book, BookSummary](ctx, Failed[Book](nil, storeDown))
	assert.ErrorIs(t, err, storeDown)
	assert.Nil(t, summary)

	_, err = ProjectList[Book, BookSummary](ctx, bookSource(t).Where(Eq("shelf", 1)))
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestProject_SliceSourceWithoutRegistry(t *testing.T) {
	q := SliceSource[Book](nil, newBooks())()
	require.NotNil(t, q.Registry())

	summaries, err := ProjectList[Book, BookSummary](context.Background(), q.Where(Eq("genre", "scifi")))
	require.NoError(t, err)
	assert.Len(t, summaries, 3)
}
