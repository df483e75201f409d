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
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/jinzhu/copier"
	"github.com/tomoncle/quarry/meta"
	"github.com/tomoncle/quarry/types"
	"github.com/tomoncle/quarry/utils"
)

type opKind int

const (
	opWhere opKind = iota
	opInclude
	opOrder
	opGroup
	opSkip
	opTake
)

type memOp struct {
	kind   opKind
	cond   Condition
	field  *meta.Field
	dir    Direction
	fields []*meta.Field
	n      int
}

type sortKey struct {
	field *meta.Field
	dir   Direction
}

// sliceQueryable evaluates queries over a snapshot of in-memory entities.
// Eager loads are validated against the declared relations and otherwise
// ignored, since related values are already in memory.
type sliceQueryable[T any] struct {
	registry *meta.Registry
	entity   *meta.Entity
	items    []*T
	ops      []memOp
	err      error
}

// FromSlice returns a Queryable over items. Nil entries are dropped. A nil
// registry gets a private SQLite-dialect registry.
func FromSlice[T any](registry *meta.Registry, items []*T) (Queryable[T], error) {
	if registry == nil {
		registry = meta.NewRegistry(nil)
	}
	entity, err := meta.EntityOf[T](registry)
	if err != nil {
		return nil, err
	}
	snapshot := make([]*T, 0, len(items))
	for _, item := range items {
		if item != nil {
			snapshot = append(snapshot, item)
		}
	}
	return &sliceQueryable[T]{registry: registry, entity: entity, items: snapshot}, nil
}

// SliceSource adapts FromSlice to a Source. Construction errors surface on
// the first materializing call.
func SliceSource[T any](registry *meta.Registry, items []*T) Source[T] {
	return func() Queryable[T] {
		q, err := FromSlice(registry, items)
		if err != nil {
			return Failed[T](registry, err)
		}
		return q
	}
}

// Failed returns a queryable whose every materializing call reports err.
func Failed[T any](registry *meta.Registry, err error) Queryable[T] {
	if registry == nil {
		registry = meta.NewRegistry(nil)
	}
	return &sliceQueryable[T]{registry: registry, err: err}
}

func (q *sliceQueryable[T]) Entity() *meta.Entity { return q.entity }

func (q *sliceQueryable[T]) Registry() *meta.Registry { return q.registry }

func (q *sliceQueryable[T]) failure() error { return q.err }

func (q *sliceQueryable[T]) with(op memOp, err error) Queryable[T] {
	next := *q
	next.ops = append(append(make([]memOp, 0, len(q.ops)+1), q.ops...), op)
	if next.err == nil {
		next.err = err
	}
	return &next
}

func (q *sliceQueryable[T]) fail(err error) Queryable[T] {
	next := *q
	if next.err == nil {
		next.err = err
	}
	return &next
}

func (q *sliceQueryable[T]) Where(cond Condition) Queryable[T] {
	if q.entity == nil {
		return q.fail(q.err)
	}
	return q.with(memOp{kind: opWhere, cond: cond}, cond.Validate(q.entity))
}

func (q *sliceQueryable[T]) Include(path string) Queryable[T] {
	if q.entity == nil {
		return q.fail(q.err)
	}
	if strings.TrimSpace(path) == "" {
		return q.fail(types.NewArgumentError("query.Include", "path", "empty relation path"))
	}
	if !q.entity.HasRelation(path) {
		return q.fail(types.NewArgumentError("query.Include", "path", "%s has no relation %q", q.entity.Type(), path))
	}
	return q.with(memOp{kind: opInclude}, nil)
}

func (q *sliceQueryable[T]) OrderBy(field string, dir Direction) Queryable[T] {
	if q.entity == nil {
		return q.fail(q.err)
	}
	f, err := q.entity.MustField("query.OrderBy", field)
	return q.with(memOp{kind: opOrder, field: f, dir: dir}, err)
}

func (q *sliceQueryable[T]) GroupBy(fields ...string) Queryable[T] {
	if q.entity == nil {
		return q.fail(q.err)
	}
	resolved, err := resolveFields(q.entity, "query.GroupBy", fields)
	return q.with(memOp{kind: opGroup, fields: resolved}, err)
}

func (q *sliceQueryable[T]) Skip(n int) Queryable[T] {
	return q.with(memOp{kind: opSkip, n: n}, checkCount("query.Skip", n))
}

func (q *sliceQueryable[T]) Take(n int) Queryable[T] {
	return q.with(memOp{kind: opTake, n: n}, checkCount("query.Take", n))
}

func (q *sliceQueryable[T]) Columns(fields ...string) Queryable[T] {
	if q.entity == nil {
		return q.fail(q.err)
	}
	_, err := resolveFields(q.entity, "query.Columns", fields)
	return q.fail(err)
}

func (q *sliceQueryable[T]) ToList(ctx context.Context) ([]*T, error) {
	return q.run(ctx, true)
}

func (q *sliceQueryable[T]) First(ctx context.Context) (*T, error) {
	items, err := q.run(ctx, true)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

func (q *sliceQueryable[T]) Count(ctx context.Context) (int64, error) {
	items, err := q.run(ctx, false)
	return int64(len(items)), err
}

func (q *sliceQueryable[T]) Exists(ctx context.Context) (bool, error) {
	n, err := q.Count(ctx)
	return n > 0, err
}

func (q *sliceQueryable[T]) ScanList(ctx context.Context, dest interface{}) error {
	items, err := q.run(ctx, true)
	if err != nil {
		return err
	}
	return copier.Copy(dest, items)
}

func (q *sliceQueryable[T]) ScanFirst(ctx context.Context, dest interface{}) (bool, error) {
	first, err := q.First(ctx)
	if err != nil || first == nil {
		return false, err
	}
	return true, copier.Copy(dest, first)
}

func (q *sliceQueryable[T]) run(ctx context.Context, paged bool) ([]*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.err != nil {
		return nil, q.err
	}

	items := append(make([]*T, 0, len(q.items)), q.items...)
	var keys []sortKey
	flush := func() error {
		if len(keys) == 0 {
			return nil
		}
		err := sortItems(items, keys)
		keys = nil
		return err
	}

	for _, op := range q.ops {
		var err error
		switch op.kind {
		case opWhere:
			items, err = filterItems(q.entity, items, op.cond)
		case opOrder:
			keys = append(keys, sortKey{field: op.field, dir: op.dir})
		case opGroup:
			if err = flush(); err == nil {
				items = groupItems(items, op.fields)
			}
		case opSkip:
			if !paged {
				continue
			}
			if err = flush(); err == nil {
				items = items[min(op.n, len(items)):]
			}
		case opTake:
			if !paged {
				continue
			}
			if err = flush(); err == nil {
				items = items[:min(op.n, len(items))]
			}
		}
		if err != nil {
			return nil, err
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return items, nil
}

func filterItems[T any](entity *meta.Entity, items []*T, cond Condition) ([]*T, error) {
	kept := make([]*T, 0, len(items))
	for _, item := range items {
		ok, err := cond.Match(entity, reflect.ValueOf(item))
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, item)
		}
	}
	return kept, nil
}

func sortItems[T any](items []*T, keys []sortKey) error {
	var cmpErr error
	sort.SliceStable(items, func(i, j int) bool {
		a, b := reflect.ValueOf(items[i]), reflect.ValueOf(items[j])
		for _, k := range keys {
			c, err := utils.Compare(k.field.Interface(a), k.field.Interface(b))
			if err != nil {
				if cmpErr == nil {
					cmpErr = fmt.Errorf("order by %s: %w", k.field.Name, err)
				}
				return false
			}
			if c != 0 {
				if k.dir == Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return false
	})
	return cmpErr
}

// groupItems clusters items by key in order of first appearance and
// flattens the groups again. Relative order inside a group is kept.
func groupItems[T any](items []*T, fields []*meta.Field) []*T {
	var order []string
	groups := make(map[string][]*T)
	for _, item := range items {
		key := groupKey(reflect.ValueOf(item), fields)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], item)
	}
	flat := make([]*T, 0, len(items))
	for _, key := range order {
		flat = append(flat, groups[key]...)
	}
	return flat
}

func groupKey(item reflect.Value, fields []*meta.Field) string {
	var b strings.Builder
	for _, f := range fields {
		v := f.Interface(item)
		if utils.IsDBNull(v) {
			b.WriteString("\x00null")
		} else {
			rv := reflect.Indirect(reflect.ValueOf(v))
			fmt.Fprintf(&b, "%s:%v", rv.Type(), rv.Interface())
		}
		b.WriteByte('\x1f')
	}
	return b.String()
}

func resolveFields(entity *meta.Entity, op string, names []string) ([]*meta.Field, error) {
	if len(names) == 0 {
		return nil, types.NewArgumentError(op, "fields", "at least one field is required")
	}
	resolved := make([]*meta.Field, 0, len(names))
	for _, name := range names {
		f, err := entity.MustField(op, name)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, f)
	}
	return resolved, nil
}

func checkCount(op string, n int) error {
	if n < 0 {
		return types.NewArgumentError(op, "count", "must be >= 0, got %d", n)
	}
	return nil
}
