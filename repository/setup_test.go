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
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tomoncle/quarry/database"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type Category struct {
	bun.BaseModel `bun:"table:categories,alias:c"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull"`
}

type Product struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID         int64     `bun:"id,pk,autoincrement"`
	SKU        string    `bun:"sku,notnull,unique"`
	Name       string    `bun:"name,notnull"`
	Price      float64   `bun:"price"`
	Stock      int       `bun:"stock"`
	Note       *string   `bun:"note"`
	CategoryID int64     `bun:"category_id"`
	Category   *Category `bun:"rel:belongs-to,join:category_id=id"`
}

type ProductSummary struct {
	ID   int64  `bun:"id"`
	Name string `bun:"name"`
}

type AuditEntry struct {
	bun.BaseModel `bun:"table:audit_entries"`

	Message string `bun:"message"`
}

func init() {
	database.EnableBunSqlSilent(true)
}

// newTestDB opens a private in-memory SQLite database holding two categories
// and five products.
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	sqldb, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, model := range []interface{}{(*Category)(nil), (*Product)(nil), (*AuditEntry)(nil)} {
		_, err := db.NewCreateTable().Model(model).Exec(ctx)
		require.NoError(t, err)
	}

	categories := []*Category{{Name: "tools"}, {Name: "garden"}}
	_, err = db.NewInsert().Model(&categories).Exec(ctx)
	require.NoError(t, err)

	products := []*Product{
		{SKU: "HAM-1", Name: "Hammer", Price: 12.5, Stock: 10, CategoryID: 1},
		{SKU: "SAW-1", Name: "Saw", Price: 24, Stock: 3, CategoryID: 1},
		{SKU: "HOS-1", Name: "Hose", Price: 30, Stock: 0, CategoryID: 2},
		{SKU: "RAK-1", Name: "Rake", Price: 15, Stock: 7, CategoryID: 2},
		{SKU: "DRL-1", Name: "Drill", Price: 89.9, Stock: 2, CategoryID: 1},
	}
	_, err = db.NewInsert().Model(&products).Exec(ctx)
	require.NoError(t, err)
	return db
}

func productIDs(items []*Product) []int64 {
	ids := make([]int64, 0, len(items))
	for _, p := range items {
		ids = append(ids, p.ID)
	}
	return ids
}
