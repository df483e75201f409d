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

package meta

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/quarry/types"
	"github.com/uptrace/bun"
)

type Customer struct {
	bun.BaseModel `bun:"table:customers,alias:c"`

	ID      int64    `bun:"id,pk,autoincrement"`
	Email   string   `bun:"email_address"`
	Orders  []*Order `bun:"rel:has-many,join:id=customer_id"`
	Address Address  `bun:"embed:addr_"`
}

type Address struct {
	City string `bun:"city"`
}

type Order struct {
	ID         int64 `bun:"id,pk"`
	CustomerID int64 `bun:"customer_id"`
}

type AuditLog struct {
	Message string `bun:"message"`
}

type Membership struct {
	UserID  int64 `bun:"user_id,pk"`
	GroupID int64 `bun:"group_id,pk"`
}

func TestEntity_Key(t *testing.T) {
	registry := NewRegistry(nil)

	entity, err := EntityOf[Customer](registry)
	require.NoError(t, err)
	key, err := entity.Key()
	require.NoError(t, err)
	assert.Equal(t, "id", key.Name)
	assert.Equal(t, "ID", key.GoName)
	assert.Equal(t, reflect.TypeOf(int64(0)), key.Type)
	assert.Equal(t, "customers", entity.Table())

	noKey, err := EntityOf[AuditLog](registry)
	require.NoError(t, err)
	_, err = noKey.Key()
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	composite, err := EntityOf[Membership](registry)
	require.NoError(t, err)
	_, err = composite.Key()
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestEntity_FieldLookupIgnoresCase(t *testing.T) {
	entity, err := EntityOf[Customer](NewRegistry(nil))
	require.NoError(t, err)

	for _, name := range []string{"email_address", "EMAIL_ADDRESS", "Email", "email", " Email "} {
		f, ok := entity.Field(name)
		require.True(t, ok, name)
		assert.Equal(t, "email_address", f.Name)
	}
	_, ok := entity.Field("Orders")
	assert.False(t, ok)

	_, err = entity.MustField("test", "phone")
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestEntity_Relations(t *testing.T) {
	entity, err := EntityOf[Customer](NewRegistry(nil))
	require.NoError(t, err)

	assert.True(t, entity.HasRelation("Orders"))
	assert.True(t, entity.HasRelation("orders.Items"))
	assert.False(t, entity.HasRelation("Email"))

	name, ok := entity.Relation("ORDERS")
	require.True(t, ok)
	assert.Equal(t, "Orders", name)
}

func TestField_SetAndValue(t *testing.T) {
	entity, err := EntityOf[Customer](NewRegistry(nil))
	require.NoError(t, err)

	c := &Customer{}
	id, _ := entity.Field("id")
	require.NoError(t, id.Set(reflect.ValueOf(c), "12"))
	assert.EqualValues(t, 12, c.ID)
	assert.EqualValues(t, 12, id.Interface(reflect.ValueOf(c)))

	city, ok := entity.Field("addr_city")
	require.True(t, ok)
	assert.Equal(t, "", city.Interface(reflect.ValueOf(c)))
	require.NoError(t, city.Set(reflect.ValueOf(c), []byte("Oslo")))
	assert.Equal(t, "Oslo", c.Address.City)

	err = id.Set(reflect.ValueOf(c), "twelve")
	assert.ErrorIs(t, err, types.ErrConversion)
}

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry(nil)
	require.NoError(t, registry.Register((*Order)(nil), AuditLog{}))
	assert.Len(t, registry.Types(), 2)

	assert.ErrorIs(t, registry.Register(nil), types.ErrInvalidArgument)
	_, err := registry.Entity(reflect.TypeOf(3))
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	first, err := EntityOf[Order](registry)
	require.NoError(t, err)
	second, err := registry.Entity(reflect.TypeOf(&Order{}))
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestRegistry_NilRegistryIsAnArgumentError(t *testing.T) {
	var registry *Registry
	_, err := EntityOf[Customer](registry)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}
