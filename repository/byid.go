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
	"fmt"

	"github.com/tomoncle/quarry/meta"
	"github.com/tomoncle/quarry/query"
	"github.com/tomoncle/quarry/types"
	"github.com/tomoncle/quarry/utils"
)

type byIDOptions struct {
	includes   []string
	noTracking bool
}

type ByIDOption func(*byIDOptions)

// WithIncludes eager loads the given relation paths with the entity.
func WithIncludes(paths ...string) ByIDOption {
	return func(o *byIDOptions) { o.includes = append(o.includes, paths...) }
}

// AsNoTracking keeps the result out of the unit of work's change tracking.
func AsNoTracking() ByIDOption {
	return func(o *byIDOptions) { o.noTracking = true }
}

// keyCondition builds "key == id" for entity. The key field and its type
// come from the metadata registry; id is converted to that type first.
func keyCondition(op string, entity *meta.Entity, id any) (query.Condition, *meta.Field, interface{}, error) {
	key, err := entity.Key()
	if err != nil {
		return query.Condition{}, nil, nil, err
	}
	if utils.IsDBNull(id) {
		return query.Condition{}, nil, nil, types.NewArgumentError(op, "id", "nil identifier for %s", entity.Type())
	}
	value, err := utils.ConvertTo(id, key.Type)
	if err != nil {
		return query.Condition{}, nil, nil, &types.ArgumentError{
			Op:     op,
			Param:  "id",
			Reason: fmt.Sprintf("cannot convert %T to %s (key %s of %s)", id, key.Type, key.GoName, entity.Type()),
			Err:    err,
		}
	}
	return query.Eq(key.Name, value.Interface()), key, value.Interface(), nil
}

func (r *baseRepositoryImpl[T]) resolveKey(op string, id any) (*meta.Field, interface{}, error) {
	entity, err := meta.EntityOf[T](r.registry)
	if err != nil {
		return nil, nil, err
	}
	_, key, value, err := keyCondition(op, entity, id)
	return key, value, err
}

func (r *baseRepositoryImpl[T]) GetByID(ctx context.Context, id any, opts ...ByIDOption) (*T, error) {
	o := &byIDOptions{}
	for _, opt := range opts {
		opt(o)
	}
	q := r.Query()
	if q.Entity() == nil {
		_, err := q.First(ctx)
		return nil, err
	}
	cond, _, _, err := keyCondition("repository.GetByID", q.Entity(), id)
	if err != nil {
		return nil, err
	}
	q = q.Where(cond)
	for _, path := range o.includes {
		q = q.Include(path)
	}
	log.Debugf("get %s by id: %s", q.Entity().Table(), cond)
	item, err := q.First(ctx)
	if err != nil || item == nil {
		return nil, err
	}
	if !o.noTracking {
		r.track(item)
	}
	return item, nil
}

func (r *baseRepositoryImpl[T]) ExistsByID(ctx context.Context, id any) (bool, error) {
	q := r.Query()
	if q.Entity() == nil {
		return q.Exists(ctx)
	}
	cond, _, _, err := keyCondition("repository.ExistsByID", q.Entity(), id)
	if err != nil {
		return false, err
	}
	return q.Where(cond).Exists(ctx)
}

// GetByIDProjected finds the entity with primary key id and returns it as a
// P holding the columns P shares with T. It matches exactly like GetByID.
func GetByIDProjected[T, P any](ctx context.Context, repo Repository[T], id any) (*P, error) {
	q := repo.Query()
	if q.Entity() == nil {
		_, err := q.First(ctx)
		return nil, err
	}
	cond, _, _, err := keyCondition("repository.GetByIDProjected", q.Entity(), id)
	if err != nil {
		return nil, err
	}
	return query.ProjectFirst[T, P](ctx, q.Where(cond))
}

// GetListProjected evaluates spec and returns the matches as P values.
func GetListProjected[T, P any](ctx context.Context, repo Repository[T], spec *query.Specification[T]) ([]*P, error) {
	q, err := query.Evaluate(repo.Query(), spec)
	if err != nil {
		return nil, err
	}
	return query.ProjectList[T, P](ctx, q)
}
