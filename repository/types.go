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

	"github.com/tomoncle/quarry/meta"
	"github.com/tomoncle/quarry/query"
	"github.com/tomoncle/quarry/types"
	"github.com/uptrace/bun"
)

// QueryRepository reads entities through specifications and conditions.
// Lookups that find nothing return nil (or an empty slice) without error.
type QueryRepository[T any] interface {
	GetList(ctx context.Context, spec *query.Specification[T]) ([]*T, error)

	GetListWhere(ctx context.Context, conds ...query.Condition) ([]*T, error)

	Get(ctx context.Context, spec *query.Specification[T]) (*T, error)

	GetWhere(ctx context.Context, conds ...query.Condition) (*T, error)

	// GetByID resolves the primary key of T at runtime and returns the
	// entity whose key equals id after conversion to the key type.
	GetByID(ctx context.Context, id any, opts ...ByIDOption) (*T, error)

	Exists(ctx context.Context, conds ...query.Condition) (bool, error)

	ExistsByID(ctx context.Context, id any) (bool, error)

	Count(ctx context.Context, conds ...query.Condition) (int, error)

	LongCount(ctx context.Context, conds ...query.Condition) (int64, error)

	GetPaginatedList(ctx context.Context, spec *query.PaginationSpecification[T]) (*types.PaginatedList[T], error)

	// GetFromRawSQL maps the rows of a hand-written query onto T.
	GetFromRawSQL(ctx context.Context, sqlText string, args ...interface{}) ([]*T, error)
}

// CommandRepository writes entities. Inside a UnitOfWork the writes are
// queued until SaveChanges.
type CommandRepository[T any] interface {
	Add(ctx context.Context, entity ...*T) error

	Update(ctx context.Context, entity *T) error

	Remove(ctx context.Context, entity *T) error

	RemoveByID(ctx context.Context, id any) error

	// Upsert inserts entities and updates fields on key conflicts.
	Upsert(ctx context.Context, fields []string, conflictKeys []string, entity ...*T) error
}

// TransactionRepository runs writes inside a caller-owned transaction.
type TransactionRepository[T any] interface {
	AddWithTx(ctx context.Context, tx *bun.Tx, entity ...*T) error
	UpsertWithTx(ctx context.Context, tx *bun.Tx, fields []string, conflictKeys []string, entity ...*T) error
	UpdateWithTx(ctx context.Context, tx *bun.Tx, entity *T) error
	RemoveByIDWithTx(ctx context.Context, tx *bun.Tx, id any) error
}

// Repository combines query, command and transactional operations and
// exposes the underlying queryable for composition.
type Repository[T any] interface {
	QueryRepository[T]
	CommandRepository[T]
	TransactionRepository[T]
	// Query returns a fresh queryable over T.
	Query() query.Queryable[T]
	Registry() *meta.Registry
	DB() *bun.DB
}
