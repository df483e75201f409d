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

package quarry

import (
	"context"
	"sync"

	"github.com/tomoncle/quarry/database"
	"github.com/tomoncle/quarry/query"
	"github.com/tomoncle/quarry/repository"
	"github.com/tomoncle/quarry/types"
	"github.com/uptrace/bun"
)

type Service[T any] interface {
	// Get returns the entity with the given primary key, or nil.
	Get(ctx context.Context, id any, opts ...repository.ByIDOption) (*T, error)

	// List returns the entities selected by spec.
	List(ctx context.Context, spec *query.Specification[T]) ([]*T, error)

	// Find returns the entities matching all conditions.
	Find(ctx context.Context, conds ...query.Condition) ([]*T, error)

	// First returns the first entity selected by spec, or nil.
	First(ctx context.Context, spec *query.Specification[T]) (*T, error)

	// Count returns the number of entities matching all conditions.
	Count(ctx context.Context, conds ...query.Condition) (int64, error)

	// Exists reports whether an entity matches all conditions.
	Exists(ctx context.Context, conds ...query.Condition) (bool, error)

	// Page returns one page of the entities selected by spec.
	Page(ctx context.Context, spec *query.PaginationSpecification[T]) (*types.PaginatedList[T], error)

	// Query executes a raw query and maps the rows onto entities.
	Query(ctx context.Context, sqlText string, args ...interface{}) ([]*T, error)

	// Save inserts one or more new entities.
	Save(ctx context.Context, model ...*T) error

	// SaveOrUpdate upserts entities, updating fields on key conflicts.
	SaveOrUpdate(ctx context.Context, fields []string, conflictKeys []string, model ...*T) error

	// Update writes an existing entity by primary key.
	Update(ctx context.Context, model *T) error

	// Delete removes the entity with the given primary key.
	Delete(ctx context.Context, id any) error

	SaveWithTx(ctx context.Context, tx *bun.Tx, model ...*T) error

	SaveOrUpdateWithTx(ctx context.Context, tx *bun.Tx, fields []string, conflictKeys []string, model ...*T) error

	UpdateWithTx(ctx context.Context, tx *bun.Tx, model *T) error

	DeleteWithTx(ctx context.Context, tx *bun.Tx, id any) error

	// Queryable returns a fresh composable query over T.
	Queryable() query.Queryable[T]
}

type baseServiceImpl[T any] struct {
	repo repository.Repository[T]
	once sync.Once
}

// NewService returns a Service backed by the global database. The
// repository is created on first use, so NewService may run before InitDB.
func NewService[T any]() Service[T] {
	return &baseServiceImpl[T]{}
}

// NewServiceWithRepository returns a Service over repo.
func NewServiceWithRepository[T any](repo repository.Repository[T]) Service[T] {
	s := &baseServiceImpl[T]{repo: repo}
	s.once.Do(func() {})
	return s
}

func (s *baseServiceImpl[T]) baseRepo() repository.Repository[T] {
	s.once.Do(func() {
		s.repo = repository.NewRepository[T](database.GetDB(), database.GetRegistry())
	})
	return s.repo
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id any, opts ...repository.ByIDOption) (*T, error) {
	return s.baseRepo().GetByID(ctx, id, opts...)
}

func (s *baseServiceImpl[T]) List(ctx context.Context, spec *query.Specification[T]) ([]*T, error) {
	return s.baseRepo().GetList(ctx, spec)
}

func (s *baseServiceImpl[T]) Find(ctx context.Context, conds ...query.Condition) ([]*T, error) {
	return s.baseRepo().GetListWhere(ctx, conds...)
}

func (s *baseServiceImpl[T]) First(ctx context.Context, spec *query.Specification[T]) (*T, error) {
	return s.baseRepo().Get(ctx, spec)
}

func (s *baseServiceImpl[T]) Count(ctx context.Context, conds ...query.Condition) (int64, error) {
	return s.baseRepo().LongCount(ctx, conds...)
}

func (s *baseServiceImpl[T]) Exists(ctx context.Context, conds ...query.Condition) (bool, error) {
	return s.baseRepo().Exists(ctx, conds...)
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, spec *query.PaginationSpecification[T]) (*types.PaginatedList[T], error) {
	return s.baseRepo().GetPaginatedList(ctx, spec)
}

func (s *baseServiceImpl[T]) Query(ctx context.Context, sqlText string, args ...interface{}) ([]*T, error) {
	return s.baseRepo().GetFromRawSQL(ctx, sqlText, args...)
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, model ...*T) error {
	return s.baseRepo().Add(ctx, model...)
}

func (s *baseServiceImpl[T]) SaveOrUpdate(ctx context.Context, fields []string, conflictKeys []string, model ...*T) error {
	return s.baseRepo().Upsert(ctx, fields, conflictKeys, model...)
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, model *T) error {
	return s.baseRepo().Update(ctx, model)
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, id any) error {
	return s.baseRepo().RemoveByID(ctx, id)
}

func (s *baseServiceImpl[T]) SaveWithTx(ctx context.Context, tx *bun.Tx, model ...*T) error {
	return s.baseRepo().AddWithTx(ctx, tx, model...)
}

func (s *baseServiceImpl[T]) SaveOrUpdateWithTx(ctx context.Context, tx *bun.Tx, fields []string, conflictKeys []string, model ...*T) error {
	return s.baseRepo().UpsertWithTx(ctx, tx, fields, conflictKeys, model...)
}

func (s *baseServiceImpl[T]) UpdateWithTx(ctx context.Context, tx *bun.Tx, model *T) error {
	return s.baseRepo().UpdateWithTx(ctx, tx, model)
}

func (s *baseServiceImpl[T]) DeleteWithTx(ctx context.Context, tx *bun.Tx, id any) error {
	return s.baseRepo().RemoveByIDWithTx(ctx, tx, id)
}

func (s *baseServiceImpl[T]) Queryable() query.Queryable[T] {
	return s.baseRepo().Query()
}
