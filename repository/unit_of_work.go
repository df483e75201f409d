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
	"reflect"
	"sync"

	"github.com/jinzhu/copier"
	"github.com/tomoncle/quarry/meta"
	"github.com/tomoncle/quarry/utils"
	"github.com/uptrace/bun"
)

type pendingWrite struct {
	run  func(ctx context.Context, tx bun.Tx) (int64, error)
	done func()
}

type changeSet interface {
	modified() []pendingWrite
	accept()
	clear()
}

// UnitOfWork hands out one repository per entity type and collects their
// writes until SaveChanges. Entities read through its repositories are
// tracked; changes made to them in memory are written back on SaveChanges.
//
// A UnitOfWork belongs to one request or job and is not meant to be shared.
type UnitOfWork struct {
	db       *bun.DB
	registry *meta.Registry

	mu      sync.Mutex
	repos   map[reflect.Type]interface{}
	changes []changeSet
	pending []pendingWrite
}

// NewUnitOfWork returns an empty unit of work over db. A nil registry gets
// one bound to the DB dialect.
func NewUnitOfWork(db *bun.DB, registry *meta.Registry) *UnitOfWork {
	if registry == nil {
		registry = meta.NewRegistry(db.Dialect())
	}
	return &UnitOfWork{
		db:       db,
		registry: registry,
		repos:    make(map[reflect.Type]interface{}),
	}
}

// For returns the repository for T, creating it on first use.
func For[T any](uow *UnitOfWork) Repository[T] {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	uow.mu.Lock()
	defer uow.mu.Unlock()
	if repo, ok := uow.repos[typ]; ok {
		return repo.(*baseRepositoryImpl[T])
	}
	repo := newBaseRepository[T](uow.db, uow.registry)
	repo.uow = uow
	repo.tracker = newTracker(repo)
	uow.repos[typ] = repo
	uow.changes = append(uow.changes, repo.tracker)
	return repo
}

func (u *UnitOfWork) Registry() *meta.Registry { return u.registry }

func (u *UnitOfWork) enqueue(w pendingWrite) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.pending = append(u.pending, w)
}

// HasChanges reports whether SaveChanges has anything to write.
func (u *UnitOfWork) HasChanges() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.pending) > 0 {
		return true
	}
	for _, c := range u.changes {
		if len(c.modified()) > 0 {
			return true
		}
	}
	return false
}

// SaveChanges writes queued adds, updates and removes in order, then the
// tracked entities that changed since they were read, all in one
// transaction. It returns the number of affected rows. On error nothing is
// committed and the queue is kept.
func (u *UnitOfWork) SaveChanges(ctx context.Context) (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	writes := append([]pendingWrite(nil), u.pending...)
	for _, c := range u.changes {
		writes = append(writes, c.modified()...)
	}
	if len(writes) == 0 {
		return 0, nil
	}

	var total int64
	err := u.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		total = 0
		for i, w := range writes {
			n, err := w.run(ctx, tx)
			if err != nil {
				return fmt.Errorf("write %d of %d: %w", i+1, len(writes), err)
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	u.pending = nil
	for _, w := range writes {
		if w.done != nil {
			w.done()
		}
	}
	for _, c := range u.changes {
		c.accept()
	}
	return total, nil
}

// Discard drops queued writes and stops tracking every entity.
func (u *UnitOfWork) Discard() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.pending = nil
	for _, c := range u.changes {
		c.clear()
	}
}

type trackedEntry[T any] struct {
	snapshot *T
	forced   bool
}

// tracker keeps a snapshot of every entity read through one repository.
type tracker[T any] struct {
	repo    *baseRepositoryImpl[T]
	mu      sync.Mutex
	order   []*T
	entries map[*T]*trackedEntry[T]
}

func newTracker[T any](repo *baseRepositoryImpl[T]) *tracker[T] {
	return &tracker[T]{repo: repo, entries: make(map[*T]*trackedEntry[T])}
}

func (t *tracker[T]) attach(items ...*T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, item := range items {
		if item == nil {
			continue
		}
		if _, ok := t.entries[item]; ok {
			continue
		}
		t.entries[item] = &trackedEntry[T]{snapshot: snapshot(item)}
		t.order = append(t.order, item)
	}
}

// markModified forces an update of item on the next save. It reports false
// when item is not tracked.
func (t *tracker[T]) markModified(item *T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[item]
	if ok {
		entry.forced = true
	}
	return ok
}

func (t *tracker[T]) detach(item *T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[item]; !ok {
		return
	}
	delete(t.entries, item)
	for i, it := range t.order {
		if it == item {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *tracker[T]) detachKey(key *meta.Field, value interface{}) {
	t.mu.Lock()
	var matched []*T
	for _, item := range t.order {
		if utils.Equal(key.Interface(reflect.ValueOf(item)), value) {
			matched = append(matched, item)
		}
	}
	t.mu.Unlock()
	for _, item := range matched {
		t.detach(item)
	}
}

func (t *tracker[T]) modified() []pendingWrite {
	t.mu.Lock()
	defer t.mu.Unlock()
	var writes []pendingWrite
	for _, item := range t.order {
		entry := t.entries[item]
		if !entry.forced && reflect.DeepEqual(entry.snapshot, item) {
			continue
		}
		entity := item
		writes = append(writes, pendingWrite{
			run: func(ctx context.Context, tx bun.Tx) (int64, error) {
				return t.repo.update(ctx, tx, entity)
			},
		})
	}
	return writes
}

func (t *tracker[T]) accept() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, item := range t.order {
		t.entries[item] = &trackedEntry[T]{snapshot: snapshot(item)}
	}
}

func (t *tracker[T]) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.order = nil
	t.entries = make(map[*T]*trackedEntry[T])
}

// snapshot copies item by value and gives the copy its own slices, maps and
// pointees, so in-place edits of the live entity show up as changes.
func snapshot[T any](item *T) *T {
	snap := new(T)
	*snap = *item
	v := reflect.ValueOf(snap).Elem()
	if v.Kind() != reflect.Struct {
		return snap
	}
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if !f.CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.Slice, reflect.Map:
			if f.IsNil() {
				continue
			}
			fresh := reflect.New(f.Type())
			if err := copier.CopyWithOption(fresh.Interface(), f.Interface(), copier.Option{DeepCopy: true}); err != nil {
				log.Debugf("shallow snapshot of %s.%s: %v", v.Type(), v.Type().Field(i).Name, err)
				continue
			}
			f.Set(fresh.Elem())
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			fresh := reflect.New(f.Type().Elem())
			fresh.Elem().Set(f.Elem())
			f.Set(fresh)
		}
	}
	return snap
}
