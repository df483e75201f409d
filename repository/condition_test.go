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

package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/quarry/meta"
	"github.com/tomoncle/quarry/query"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func newMockDB(t *testing.T) (*bun.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = sqldb.Close() })
	return db, mock
}

func whereSQL(t *testing.T, db *bun.DB, cond query.Condition) string {
	t.Helper()
	entity, err := meta.EntityOf[Product](meta.NewRegistry(db.Dialect()))
	require.NoError(t, err)
	expr, args, err := renderCondition(cond, entity)
	require.NoError(t, err)
	return db.NewSelect().Model((*Product)(nil)).Column("id").Where(expr, args...).String()
}

func TestRenderCondition(t *testing.T) {
	db, _ := newMockDB(t)
	cases := []struct {
		name string
		cond query.Condition
		want string
	}{
		{"eq", query.Eq("SKU", "A-1"), `WHERE ("p"."sku" = 'A-1')`},
		{"eq nil", query.Eq("note", nil), `WHERE ("p"."note" IS NULL)`},
		{"ne nil", query.Ne("note", nil), `WHERE ("p"."note" IS NOT NULL)`},
		{"lte", query.Lte("price", 10), `WHERE ("p"."price" <= 10)`},
		{"in", query.In("id", 1, 2), `WHERE ("p"."id" IN (1, 2))`},
		{"empty in", query.In("id"), `WHERE (1 = 0)`},
		{"empty not in", query.NotIn("id"), `WHERE ("p"."id" IS NOT NULL)`},
		{"like", query.Like("name", "Ha%"), `WHERE ("p"."name" LIKE 'Ha%')`},
		{"or", query.Or(query.Eq("stock", 0), query.IsNull("note")), `WHERE (("p"."stock" = 0 OR "p"."note" IS NULL))`},
		{"not", query.Not(query.Gt("stock", 1)), `WHERE (NOT ("p"."stock" > 1))`},
		{"empty and", query.And(), `WHERE (1 = 1)`},
		{"raw", query.Raw("price * stock > ?", 100), `WHERE ((price * stock > 100))`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Contains(t, whereSQL(t, db, tc.cond), tc.want)
		})
	}
}

func TestRenderCondition_UnknownField(t *testing.T) {
	entity, err := meta.EntityOf[Product](meta.NewRegistry(nil))
	require.NoError(t, err)
	_, _, err = renderCondition(query.Eq("weight", 1), entity)
	assert.Error(t, err)
}

func TestQueryable_TakeZeroSkipsStore(t *testing.T) {
	db, mock := newMockDB(t)
	q, err := NewQueryable[Product](db, nil)
	require.NoError(t, err)

	items, err := q.Take(0).ToList(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)

	first, err := q.Skip(1).Take(1).Skip(1).First(context.Background())
	require.NoError(t, err)
	assert.Nil(t, first)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPagination_EmptyCountSkipsPageQuery(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "products" AS "p" WHERE ("p"."category_id" = 9)`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	repo := NewRepository[Product](db, nil)
	page, err := repo.GetPaginatedList(context.Background(), query.NewPaginationSpecification[Product](1, 20, query.Eq("category_id", 9)))
	require.NoError(t, err)
	assert.Zero(t, page.TotalItems())
	assert.Zero(t, page.TotalPages())
	assert.Empty(t, page.Items())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryable_OrderAndPagingSQL(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY "p"."price" DESC, "p"."name" ASC LIMIT 2 OFFSET 4`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(7, "Chisel"))

	q, err := NewQueryable[Product](db, nil)
	require.NoError(t, err)
	items, err := q.OrderBy("price", query.Desc).OrderBy("Name", query.Asc).Skip(4).Take(2).ToList(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Chisel", items[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryable_GroupByWithOrderSQL(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY FIRST_VALUE("p"."price") OVER (PARTITION BY "p"."category_id" ORDER BY "p"."price" ASC) ASC, "p"."category_id" ASC, "p"."price" ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	q, err := NewQueryable[Product](db, nil)
	require.NoError(t, err)
	items, err := q.OrderBy("price", query.Asc).GroupBy("category_id").ToList(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConflictColumns(t *testing.T) {
	entity, err := meta.EntityOf[Product](meta.NewRegistry(pgdialect.New()))
	require.NoError(t, err)

	keys, err := conflictColumns(pgdialect.New(), entity, nil)
	require.NoError(t, err)
	assert.Equal(t, `"id"`, keys)

	keys, err = conflictColumns(pgdialect.New(), entity, []string{"SKU", "name"})
	require.NoError(t, err)
	assert.Equal(t, `"sku", "name"`, keys)

	_, err = conflictColumns(pgdialect.New(), entity, []string{"barcode"})
	assert.Error(t, err)
}

func TestRemoveByID_RowsAffectedError(t *testing.T) {
	db, mock := newMockDB(t)
	noCount := errors.New("driver cannot count rows")
	mock.ExpectExec("DELETE").WillReturnResult(sqlmock.NewErrorResult(noCount))

	err := NewRepository[Product](db, nil).RemoveByID(context.Background(), 1)
	assert.ErrorIs(t, err, noCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}
