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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/quarry/database"
	"github.com/tomoncle/quarry/query"
)

type Setting struct {
	Key    string            `bun:"key,pk"`
	Values []string          `bun:"values,array"`
	Labels map[string]string `bun:"labels"`
}

func TestUnitOfWork_SaveChanges(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	uow := NewUnitOfWork(db, nil)
	products := For[Product](uow)
	assert.Same(t, products, For[Product](uow))

	hammer, err := products.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.False(t, uow.HasChanges())

	hammer.Price = 13.75
	assert.True(t, uow.HasChanges())

	require.NoError(t, products.Add(ctx, &Product{SKU: "SCR-1", Name: "Screwdriver", Price: 6, CategoryID: 1}))
	require.NoError(t, products.RemoveByID(ctx, 3))

	// Nothing reaches the database before SaveChanges.
	plain := NewRepository[Product](db, nil)
	n, err := plain.LongCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	affected, err := uow.SaveChanges(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, affected)
	assert.False(t, uow.HasChanges())

	got, err := plain.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 13.75, got.Price)

	ok, err := plain.ExistsByID(ctx, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = plain.Exists(ctx, query.Eq("sku", "SCR-1"))
	require.NoError(t, err)
	assert.True(t, ok)

	affected, err = uow.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestUnitOfWork_UpdateOfTrackedEntity(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	uow := NewUnitOfWork(db, nil)
	products := For[Product](uow)

	saw, err := products.GetByID(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, products.Update(ctx, saw))
	assert.True(t, uow.HasChanges())

	affected, err := uow.SaveChanges(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)
}

func TestUnitOfWork_AsNoTracking(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	uow := NewUnitOfWork(db, nil)
	products := For[Product](uow)

	rake, err := products.GetByID(ctx, 4, AsNoTracking())
	require.NoError(t, err)
	rake.Name = "Leaf rake"
	assert.False(t, uow.HasChanges())

	affected, err := uow.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Zero(t, affected)

	got, err := NewRepository[Product](db, nil).GetByID(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, "Rake", got.Name)
}

func TestUnitOfWork_FailedSaveRollsBack(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	uow := NewUnitOfWork(db, nil)
	products := For[Product](uow)

	require.NoError(t, products.Add(ctx, &Product{SKU: "NEW-1", Name: "New"}))
	require.NoError(t, products.Add(ctx, &Product{SKU: "HAM-1", Name: "Second hammer"}))

	_, err := uow.SaveChanges(ctx)
	assert.ErrorIs(t, err, database.ErrDuplicateKey)
	assert.True(t, uow.HasChanges())

	ok, err := NewRepository[Product](db, nil).Exists(ctx, query.Eq("sku", "NEW-1"))
	require.NoError(t, err)
	assert.False(t, ok)

	uow.Discard()
	assert.False(t, uow.HasChanges())
}

func TestUnitOfWork_RemoveStopsTracking(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	uow := NewUnitOfWork(db, nil)
	products := For[Product](uow)

	drill, err := products.GetByID(ctx, 5)
	require.NoError(t, err)
	drill.Stock = 0
	require.NoError(t, products.Remove(ctx, drill))

	affected, err := uow.SaveChanges(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)
}

func TestSnapshot_DoesNotAliasCollections(t *testing.T) {
	live := &Setting{Key: "k", Values: []string{"a"}, Labels: map[string]string{"env": "dev"}}
	snap := snapshot(live)

	live.Values[0] = "b"
	live.Labels["env"] = "prod"
	assert.Equal(t, []string{"a"}, snap.Values)
	assert.Equal(t, "dev", snap.Labels["env"])
}
