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
	"math"
	"strings"

	"github.com/tomoncle/quarry/meta"
	"github.com/tomoncle/quarry/query"
	"github.com/tomoncle/quarry/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

type orderTerm struct {
	column     string
	dir        query.Direction
	afterGroup bool
}

// bunQueryable composes a SELECT over T. State is copied on every call and
// the Bun query is only built when a result is requested.
type bunQueryable[T any] struct {
	db        bun.IDB
	registry  *meta.Registry
	entity    *meta.Entity
	where     []query.Condition
	relations []string
	orders    []orderTerm
	groups    []string
	columns   []string
	offset    int
	limit     int // -1 means unlimited
	err       error
}

// NewQueryable returns a Queryable that reads T through db. db may be a
// *bun.DB, a bun.Tx or a bun.Conn.
func NewQueryable[T any](db bun.IDB, registry *meta.Registry) (query.Queryable[T], error) {
	if db == nil {
		return nil, types.NewArgumentError("repository.NewQueryable", "db", "nil database")
	}
	if registry == nil {
		registry = meta.NewRegistry(db.Dialect())
	}
	entity, err := meta.EntityOf[T](registry)
	if err != nil {
		return nil, err
	}
	return &bunQueryable[T]{db: db, registry: registry, entity: entity, limit: -1}, nil
}

func (q *bunQueryable[T]) Entity() *meta.Entity { return q.entity }

func (q *bunQueryable[T]) Registry() *meta.Registry { return q.registry }

func (q *bunQueryable[T]) clone() *bunQueryable[T] {
	next := *q
	next.where = append([]query.Condition(nil), q.where...)
	next.relations = append([]string(nil), q.relations...)
	next.orders = append([]orderTerm(nil), q.orders...)
	next.groups = append([]string(nil), q.groups...)
	next.columns = append([]string(nil), q.columns...)
	return &next
}

func (q *bunQueryable[T]) fail(err error) query.Queryable[T] {
	next := q.clone()
	if next.err == nil {
		next.err = err
	}
	return next
}

func (q *bunQueryable[T]) Where(cond query.Condition) query.Queryable[T] {
	if err := cond.Validate(q.entity); err != nil {
		return q.fail(err)
	}
	next := q.clone()
	next.where = append(next.where, cond)
	return next
}

func (q *bunQueryable[T]) Include(path string) query.Queryable[T] {
	path = strings.TrimSpace(path)
	name, ok := q.entity.Relation(path)
	if !ok {
		return q.fail(types.NewArgumentError("repository.Include", "path", "%s has no relation %q", q.entity.Type(), path))
	}
	if i := strings.IndexByte(path, '.'); i >= 0 {
		name += path[i:]
	}
	next := q.clone()
	next.relations = append(next.relations, name)
	return next
}

func (q *bunQueryable[T]) OrderBy(field string, dir query.Direction) query.Queryable[T] {
	f, err := q.entity.MustField("repository.OrderBy", field)
	if err != nil {
		return q.fail(err)
	}
	next := q.clone()
	next.orders = append(next.orders, orderTerm{column: f.Name, dir: dir, afterGroup: len(q.groups) > 0})
	return next
}

func (q *bunQueryable[T]) GroupBy(fields ...string) query.Queryable[T] {
	if len(fields) == 0 {
		return q.fail(types.NewArgumentError("repository.GroupBy", "fields", "at least one field is required"))
	}
	next := q.clone()
	for _, name := range fields {
		f, err := q.entity.MustField("repository.GroupBy", name)
		if err != nil {
			return q.fail(err)
		}
		next.groups = append(next.groups, f.Name)
	}
	return next
}

func (q *bunQueryable[T]) Skip(n int) query.Queryable[T] {
	if n < 0 {
		return q.fail(types.NewArgumentError("repository.Skip", "count", "must be >= 0, got %d", n))
	}
	next := q.clone()
	next.offset += n
	if next.limit >= 0 {
		next.limit = max(next.limit-n, 0)
	}
	return next
}

func (q *bunQueryable[T]) Take(n int) query.Queryable[T] {
	if n < 0 {
		return q.fail(types.NewArgumentError("repository.Take", "count", "must be >= 0, got %d", n))
	}
	next := q.clone()
	if next.limit < 0 || n < next.limit {
		next.limit = n
	}
	return next
}

func (q *bunQueryable[T]) Columns(fields ...string) query.Queryable[T] {
	next := q.clone()
	next.columns = next.columns[:0]
	for _, name := range fields {
		f, err := q.entity.MustField("repository.Columns", name)
		if err != nil {
			return q.fail(err)
		}
		next.columns = append(next.columns, f.Name)
	}
	return next
}

func (q *bunQueryable[T]) ToList(ctx context.Context) ([]*T, error) {
	if q.err != nil {
		return nil, q.err
	}
	items := make([]*T, 0)
	if q.limit == 0 {
		return items, nil
	}
	sq, err := q.selectQuery(q.db.NewSelect().Model(&items), true)
	if err != nil {
		return nil, err
	}
	if err := sq.Scan(ctx); err != nil {
		return nil, q.wrap(err)
	}
	return items, nil
}

func (q *bunQueryable[T]) First(ctx context.Context) (*T, error) {
	if q.err != nil || q.limit == 0 {
		return nil, q.err
	}
	item := new(T)
	sq, err := q.selectQuery(q.db.NewSelect().Model(item), true)
	if err != nil {
		return nil, err
	}
	if err := sq.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, q.wrap(err)
	}
	return item, nil
}

func (q *bunQueryable[T]) Count(ctx context.Context) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	sq, err := q.selectQuery(q.db.NewSelect().Model((*T)(nil)), false)
	if err != nil {
		return 0, err
	}
	n, err := sq.Count(ctx)
	if err != nil {
		return 0, q.wrap(err)
	}
	return int64(n), nil
}

func (q *bunQueryable[T]) Exists(ctx context.Context) (bool, error) {
	if q.err != nil {
		return false, q.err
	}
	sq, err := q.selectQuery(q.db.NewSelect().Model((*T)(nil)), false)
	if err != nil {
		return false, err
	}
	ok, err := sq.Exists(ctx)
	if err != nil {
		return false, q.wrap(err)
	}
	return ok, nil
}

func (q *bunQueryable[T]) ScanList(ctx context.Context, dest interface{}) error {
	if q.err != nil {
		return q.err
	}
	if q.limit == 0 {
		return nil
	}
	sq, err := q.selectQuery(q.db.NewSelect().Model((*T)(nil)), true)
	if err != nil {
		return err
	}
	return q.wrap(sq.Scan(ctx, dest))
}

func (q *bunQueryable[T]) ScanFirst(ctx context.Context, dest interface{}) (bool, error) {
	if q.err != nil || q.limit == 0 {
		return false, q.err
	}
	sq, err := q.selectQuery(q.db.NewSelect().Model((*T)(nil)), true)
	if err != nil {
		return false, err
	}
	if err := sq.Limit(1).Scan(ctx, dest); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, q.wrap(err)
	}
	return true, nil
}

// selectQuery applies the composed state to sq. Paging and ordering are
// left out when paged is false.
func (q *bunQueryable[T]) selectQuery(sq *bun.SelectQuery, paged bool) (*bun.SelectQuery, error) {
	if len(q.columns) > 0 {
		for _, column := range q.columns {
			sq = sq.ColumnExpr("?TableAlias.?", bun.Ident(column))
		}
	}
	for _, cond := range q.where {
		expr, args, err := renderCondition(cond, q.entity)
		if err != nil {
			return nil, err
		}
		sq = sq.Where(expr, args...)
	}
	for _, rel := range q.relations {
		sq = sq.Relation(rel)
	}
	if len(q.groups) > 0 {
		q.applyGroups(sq)
	}
	if !paged {
		return sq, nil
	}
	sq = q.applyOrders(sq)
	if q.offset > 0 {
		sq = sq.Offset(q.offset)
	}
	switch {
	case q.limit > 0:
		sq = sq.Limit(q.limit)
	case q.offset > 0:
		// SQLite and MySQL reject OFFSET without LIMIT.
		switch q.db.Dialect().Name() {
		case dialect.SQLite, dialect.MySQL:
			sq = sq.Limit(math.MaxInt32)
		}
	}
	return sq, nil
}

// applyGroups groups by the key columns followed by every other column, which
// keeps the element type intact and collapses exact duplicates only.
func (q *bunQueryable[T]) applyGroups(sq *bun.SelectQuery) {
	seen := make(map[string]bool, len(q.groups))
	for _, column := range q.groups {
		if !seen[column] {
			seen[column] = true
			sq.GroupExpr("?TableAlias.?", bun.Ident(column))
		}
	}
	for _, f := range q.entity.Fields() {
		if !seen[f.Name] {
			seen[f.Name] = true
			sq.GroupExpr("?TableAlias.?", bun.Ident(f.Name))
		}
	}
}

// applyOrders orders rows the way the in-memory backend flattens groups.
// Orders given after GroupBy lead. Each group then sits where its first row
// falls under the earlier orders, ties broken by the key columns, and rows
// inside a group keep the earlier orders. Without earlier orders groups
// follow their keys.
func (q *bunQueryable[T]) applyOrders(sq *bun.SelectQuery) *bun.SelectQuery {
	if len(q.groups) == 0 {
		for _, o := range q.orders {
			sq = sq.OrderExpr("?TableAlias.? "+o.dir.String(), bun.Ident(o.column))
		}
		return sq
	}

	var before []orderTerm
	for _, o := range q.orders {
		if o.afterGroup {
			sq = sq.OrderExpr("?TableAlias.? "+o.dir.String(), bun.Ident(o.column))
		} else {
			before = append(before, o)
		}
	}
	if len(before) > 0 {
		window, windowArgs := groupWindow(q.groups, before)
		for _, o := range before {
			args := append([]interface{}{bun.Ident(o.column)}, windowArgs...)
			sq = sq.OrderExpr("FIRST_VALUE(?TableAlias.?) OVER ("+window+") "+o.dir.String(), args...)
		}
	}
	for _, column := range q.groups {
		sq = sq.OrderExpr("?TableAlias.? ASC", bun.Ident(column))
	}
	for _, o := range before {
		sq = sq.OrderExpr("?TableAlias.? "+o.dir.String(), bun.Ident(o.column))
	}
	return sq
}

// groupWindow renders "PARTITION BY keys ORDER BY orders" for a window that
// starts at the first row of each group.
func groupWindow(keys []string, orders []orderTerm) (string, []interface{}) {
	var b strings.Builder
	args := make([]interface{}, 0, len(keys)+len(orders))
	b.WriteString("PARTITION BY ")
	for i, column := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("?TableAlias.?")
		args = append(args, bun.Ident(column))
	}
	b.WriteString(" ORDER BY ")
	for i, o := range orders {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("?TableAlias.? " + o.dir.String())
		args = append(args, bun.Ident(o.column))
	}
	return b.String(), args
}

func (q *bunQueryable[T]) wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("select %s: %w", q.entity.Table(), err)
}
