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
	"errors"
	"fmt"

	"github.com/tomoncle/quarry/database"
	"github.com/tomoncle/quarry/meta"
	"github.com/tomoncle/quarry/query"
	"github.com/tomoncle/quarry/rawsql"
	"github.com/tomoncle/quarry/types"
	"github.com/tomoncle/quarry/utils"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

var log = utils.NewLogger("QUERY")

// ErrNoStore is returned by writes and raw queries of a repository that only
// has a query source.
var ErrNoStore = errors.New("repository has no database")

type baseRepositoryImpl[T any] struct {
	db       *bun.DB
	registry *meta.Registry
	source   query.Source[T]
	uow      *UnitOfWork
	tracker  *tracker[T]
}

// NewRepository returns a generic repository backed by the provided Bun DB.
// A nil registry gets one bound to the DB dialect.
func NewRepository[T any](db *bun.DB, registry *meta.Registry) Repository[T] {
	return newBaseRepository[T](db, registry)
}

// NewSourceRepository returns a read-only repository over source, for
// example an in-memory query.SliceSource.
func NewSourceRepository[T any](source query.Source[T]) Repository[T] {
	r := &baseRepositoryImpl[T]{source: source}
	if q := source(); q != nil {
		r.registry = q.Registry()
	}
	return r
}

func newBaseRepository[T any](db *bun.DB, registry *meta.Registry) *baseRepositoryImpl[T] {
	if registry == nil && db != nil {
		registry = meta.NewRegistry(db.Dialect())
	}
	r := &baseRepositoryImpl[T]{db: db, registry: registry}
	r.source = func() query.Queryable[T] {
		q, err := NewQueryable[T](r.db, r.registry)
		if err != nil {
			return query.Failed[T](r.registry, err)
		}
		return q
	}
	return r
}

func (r *baseRepositoryImpl[T]) Query() query.Queryable[T] { return r.source() }

func (r *baseRepositoryImpl[T]) Registry() *meta.Registry { return r.registry }

func (r *baseRepositoryImpl[T]) DB() *bun.DB { return r.db }

func (r *baseRepositoryImpl[T]) GetList(ctx context.Context, spec *query.Specification[T]) ([]*T, error) {
	q, err := query.Evaluate(r.Query(), spec)
	if err != nil {
		return nil, err
	}
	items, err := q.ToList(ctx)
	if err != nil {
		return nil, err
	}
	r.track(items...)
	return items, nil
}

func (r *baseRepositoryImpl[T]) GetListWhere(ctx context.Context, conds ...query.Condition) ([]*T, error) {
	return r.GetList(ctx, query.NewSpecification[T](conds...))
}

func (r *baseRepositoryImpl[T]) Get(ctx context.Context, spec *query.Specification[T]) (*T, error) {
	q, err := query.Evaluate(r.Query(), spec)
	if err != nil {
		return nil, err
	}
	item, err := q.First(ctx)
	if err != nil || item == nil {
		return nil, err
	}
	r.track(item)
	return item, nil
}

func (r *baseRepositoryImpl[T]) GetWhere(ctx context.Context, conds ...query.Condition) (*T, error) {
	return r.Get(ctx, query.NewSpecification[T](conds...))
}

func (r *baseRepositoryImpl[T]) Exists(ctx context.Context, conds ...query.Condition) (bool, error) {
	q, err := query.Evaluate(r.Query(), query.NewSpecification[T](conds...))
	if err != nil {
		return false, err
	}
	return q.Exists(ctx)
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, conds ...query.Condition) (int, error) {
	n, err := r.LongCount(ctx, conds...)
	return int(n), err
}

func (r *baseRepositoryImpl[T]) LongCount(ctx context.Context, conds ...query.Condition) (int64, error) {
	q, err := query.Evaluate(r.Query(), query.NewSpecification[T](conds...))
	if err != nil {
		return 0, err
	}
	return q.Count(ctx)
}

func (r *baseRepositoryImpl[T]) GetPaginatedList(ctx context.Context, spec *query.PaginationSpecification[T]) (*types.PaginatedList[T], error) {
	page, err := query.ToPaginatedListSpec(ctx, r.Query(), spec)
	if err != nil {
		return nil, err
	}
	r.track(page.Items()...)
	return page, nil
}

func (r *baseRepositoryImpl[T]) GetFromRawSQL(ctx context.Context, sqlText string, args ...interface{}) ([]*T, error) {
	if r.db == nil {
		return nil, ErrNoStore
	}
	opts := []rawsql.Option{rawsql.WithRegistry(r.registry)}
	return rawsql.QueryWith[*T](ctx, r.db.DB, opts, sqlText, args...)
}

func (r *baseRepositoryImpl[T]) Add(ctx context.Context, entity ...*T) error {
	if r.db == nil {
		return ErrNoStore
	}
	entities := compact(entity)
	if len(entities) == 0 {
		return nil
	}
	if r.uow != nil {
		r.uow.enqueue(pendingWrite{
			run: func(ctx context.Context, tx bun.Tx) (int64, error) {
				return r.insert(ctx, tx, entities)
			},
			done: func() { r.track(entities...) },
		})
		return nil
	}
	_, err := r.insert(ctx, r.db, entities)
	return err
}

func (r *baseRepositoryImpl[T]) Update(ctx context.Context, entity *T) error {
	if r.db == nil {
		return ErrNoStore
	}
	if entity == nil {
		return types.NewArgumentError("repository.Update", "entity", "nil entity")
	}
	if r.uow != nil {
		if r.tracker.markModified(entity) {
			return nil
		}
		r.uow.enqueue(pendingWrite{
			run: func(ctx context.Context, tx bun.Tx) (int64, error) {
				return r.update(ctx, tx, entity)
			},
			done: func() { r.track(entity) },
		})
		return nil
	}
	_, err := r.update(ctx, r.db, entity)
	return err
}

func (r *baseRepositoryImpl[T]) Remove(ctx context.Context, entity *T) error {
	if r.db == nil {
		return ErrNoStore
	}
	if entity == nil {
		return types.NewArgumentError("repository.Remove", "entity", "nil entity")
	}
	if r.uow != nil {
		r.tracker.detach(entity)
		r.uow.enqueue(pendingWrite{
			run: func(ctx context.Context, tx bun.Tx) (int64, error) {
				return r.delete(ctx, tx, entity)
			},
		})
		return nil
	}
	_, err := r.delete(ctx, r.db, entity)
	return err
}

func (r *baseRepositoryImpl[T]) RemoveByID(ctx context.Context, id any) error {
	if r.db == nil {
		return ErrNoStore
	}
	key, value, err := r.resolveKey("repository.RemoveByID", id)
	if err != nil {
		return err
	}
	if r.uow != nil {
		r.tracker.detachKey(key, value)
		r.uow.enqueue(pendingWrite{
			run: func(ctx context.Context, tx bun.Tx) (int64, error) {
				return r.deleteByKey(ctx, tx, key, value)
			},
		})
		return nil
	}
	_, err = r.deleteByKey(ctx, r.db, key, value)
	return err
}

func (r *baseRepositoryImpl[T]) Upsert(ctx context.Context, fields []string, conflictKeys []string, entity ...*T) error {
	if r.db == nil {
		return ErrNoStore
	}
	entities := compact(entity)
	if r.uow != nil {
		r.uow.enqueue(pendingWrite{
			run: func(ctx context.Context, tx bun.Tx) (int64, error) {
				return r.upsert(ctx, tx, fields, conflictKeys, entities)
			},
			done: func() { r.track(entities...) },
		})
		return nil
	}
	_, err := r.upsert(ctx, r.db, fields, conflictKeys, entities)
	return err
}

func (r *baseRepositoryImpl[T]) AddWithTx(ctx context.Context, tx *bun.Tx, entity ...*T) error {
	if tx == nil {
		return types.NewArgumentError("repository.AddWithTx", "tx", "nil transaction")
	}
	entities := compact(entity)
	if len(entities) == 0 {
		return nil
	}
	_, err := r.insert(ctx, tx, entities)
	return err
}

func (r *baseRepositoryImpl[T]) UpsertWithTx(ctx context.Context, tx *bun.Tx, fields []string, conflictKeys []string, entity ...*T) error {
	if tx == nil {
		return types.NewArgumentError("repository.UpsertWithTx", "tx", "nil transaction")
	}
	_, err := r.upsert(ctx, tx, fields, conflictKeys, compact(entity))
	return err
}

func (r *baseRepositoryImpl[T]) UpdateWithTx(ctx context.Context, tx *bun.Tx, entity *T) error {
	if tx == nil {
		return types.NewArgumentError("repository.UpdateWithTx", "tx", "nil transaction")
	}
	_, err := r.update(ctx, tx, entity)
	return err
}

func (r *baseRepositoryImpl[T]) RemoveByIDWithTx(ctx context.Context, tx *bun.Tx, id any) error {
	if tx == nil {
		return types.NewArgumentError("repository.RemoveByIDWithTx", "tx", "nil transaction")
	}
	key, value, err := r.resolveKey("repository.RemoveByIDWithTx", id)
	if err != nil {
		return err
	}
	_, err = r.deleteByKey(ctx, tx, key, value)
	return err
}

func (r *baseRepositoryImpl[T]) track(items ...*T) {
	if r.tracker != nil {
		r.tracker.attach(items...)
	}
}

func (r *baseRepositoryImpl[T]) insert(ctx context.Context, db bun.IDB, entities []*T) (int64, error) {
	res, err := db.NewInsert().Model(&entities).Exec(ctx)
	return affected(res, err)
}

func (r *baseRepositoryImpl[T]) update(ctx context.Context, db bun.IDB, entity *T) (int64, error) {
	res, err := db.NewUpdate().Model(entity).WherePK().Exec(ctx)
	return affected(res, err)
}

func (r *baseRepositoryImpl[T]) delete(ctx context.Context, db bun.IDB, entity *T) (int64, error) {
	res, err := db.NewDelete().Model(entity).WherePK().Exec(ctx)
	return affected(res, err)
}

func (r *baseRepositoryImpl[T]) deleteByKey(ctx context.Context, db bun.IDB, key *meta.Field, value interface{}) (int64, error) {
	res, err := db.NewDelete().
		Model((*T)(nil)).
		Where("? = ?", bun.Ident(key.Name), value).
		Exec(ctx)
	return affected(res, err)
}

func (r *baseRepositoryImpl[T]) upsert(ctx context.Context, db bun.IDB, fields []string, conflictKeys []string, entities []*T) (int64, error) {
	if len(fields) == 0 {
		return 0, types.NewArgumentError("repository.Upsert", "fields", "fields cannot be empty")
	}
	if len(entities) == 0 {
		return 0, nil
	}
	entity, err := meta.EntityOf[T](r.registry)
	if err != nil {
		return 0, err
	}
	columns := make([]string, 0, len(fields))
	for _, name := range fields {
		f, err := entity.MustField("repository.Upsert", name)
		if err != nil {
			return 0, err
		}
		columns = append(columns, f.Name)
	}

	insert := db.NewInsert().Model(&entities)
	switch {
	case db.Dialect().Features().Has(feature.InsertOnConflict):
		keys, err := conflictColumns(db.Dialect(), entity, conflictKeys)
		if err != nil {
			return 0, err
		}
		insert = insert.On("CONFLICT (?) DO UPDATE", bun.Safe(keys))
		for _, column := range columns {
			insert = insert.Set("? = EXCLUDED.?", bun.Ident(column), bun.Ident(column))
		}
	case db.Dialect().Features().Has(feature.InsertOnDuplicateKey):
		insert = insert.On("DUPLICATE KEY UPDATE")
		for _, column := range columns {
			insert = insert.Set("? = VALUES(?)", bun.Ident(column), bun.Ident(column))
		}
	default:
		return r.upsertFallback(ctx, db, entities)
	}
	return affected(insert.Exec(ctx))
}

// conflictColumns renders the conflict target, defaulting to the primary key.
func conflictColumns(dialect schema.Dialect, entity *meta.Entity, names []string) (string, error) {
	if len(names) == 0 {
		key, err := entity.Key()
		if err != nil {
			return "", err
		}
		names = []string{key.Name}
	}
	fmter := schema.NewFormatter(dialect)
	var b []byte
	for i, name := range names {
		f, err := entity.MustField("repository.Upsert", name)
		if err != nil {
			return "", err
		}
		if i > 0 {
			b = append(b, ", "...)
		}
		b = fmter.AppendIdent(b, f.Name)
	}
	return string(b), nil
}

func (r *baseRepositoryImpl[T]) upsertFallback(ctx context.Context, db bun.IDB, entities []*T) (int64, error) {
	var total int64
	for _, entity := range entities {
		n, err := r.insert(ctx, db, []*T{entity})
		if errors.Is(err, database.ErrDuplicateKey) {
			n, err = r.update(ctx, db, entity)
		}
		if err != nil {
			return total, fmt.Errorf("upsert failed for entity: %w", err)
		}
		total += n
	}
	return total, nil
}

func affected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, database.ClassifyWriteError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func compact[T any](entity []*T) []*T {
	entities := make([]*T, 0, len(entity))
	for _, e := range entity {
		if e != nil {
			entities = append(entities, e)
		}
	}
	return entities
}
