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
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/tomoncle/quarry/types"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

// Registry caches one Entity per Go type. Descriptors are derived from Bun's
// table schema the first time a type is seen and reused afterwards, so call
// sites never reflect over the struct again.
type Registry struct {
	mu       sync.RWMutex
	tables   *schema.Tables
	entities map[reflect.Type]*Entity
}

// NewRegistry returns a registry that reads table schemas through dialect.
// A nil dialect falls back to SQLite, which is enough for in-memory sources.
func NewRegistry(dialect schema.Dialect) *Registry {
	if dialect == nil {
		dialect = sqlitedialect.New()
	}
	return &Registry{
		tables:   dialect.Tables(),
		entities: make(map[reflect.Type]*Entity),
	}
}

// Register resolves the given models up front. Models are struct values or
// pointers to structs, as accepted by bun.DB.RegisterModel.
func (r *Registry) Register(models ...interface{}) error {
	for _, model := range models {
		if model == nil {
			return types.NewArgumentError("meta.Register", "model", "nil model")
		}
		if _, err := r.Entity(reflect.TypeOf(model)); err != nil {
			return err
		}
	}
	return nil
}

// Entity returns the descriptor for typ. Pointer types are dereferenced.
func (r *Registry) Entity(typ reflect.Type) (*Entity, error) {
	if r == nil {
		return nil, types.NewArgumentError("meta.Entity", "registry", "nil registry")
	}
	typ = indirectType(typ)
	if typ == nil || typ.Kind() != reflect.Struct {
		return nil, types.NewArgumentError("meta.Entity", "type", "%v is not a struct type", typ)
	}

	r.mu.RLock()
	entity, ok := r.entities[typ]
	r.mu.RUnlock()
	if ok {
		return entity, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if entity, ok = r.entities[typ]; ok {
		return entity, nil
	}
	entity = newEntity(r.tables.Get(typ))
	r.entities[typ] = entity
	return entity, nil
}

// Types lists the registered types ordered by table name.
func (r *Registry) Types() []reflect.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]reflect.Type, 0, len(r.entities))
	for typ := range r.entities {
		result = append(result, typ)
	}
	sort.Slice(result, func(i, j int) bool {
		return r.entities[result[i]].table < r.entities[result[j]].table
	})
	return result
}

// EntityOf is the generic form of Registry.Entity.
func EntityOf[T any](r *Registry) (*Entity, error) {
	return r.Entity(reflect.TypeOf((*T)(nil)).Elem())
}

// Entity describes one mapped struct type.
type Entity struct {
	typ       reflect.Type
	table     string
	fields    []*Field
	byName    map[string]*Field
	pks       []*Field
	relations map[string]string
}

func newEntity(table *schema.Table) *Entity {
	e := &Entity{
		typ:       table.Type,
		table:     table.Name,
		byName:    make(map[string]*Field, len(table.Fields)*2),
		relations: relationNames(table.Type),
	}
	for _, f := range table.Fields {
		if isRelationTag(f.StructField.Tag.Get("bun")) {
			continue
		}
		field := &Field{
			Name:   f.Name,
			GoName: f.GoName,
			Type:   f.StructField.Type,
			Index:  append([]int(nil), f.Index...),
			IsPK:   f.IsPK,
		}
		e.fields = append(e.fields, field)
		if field.IsPK {
			e.pks = append(e.pks, field)
		}
		// Column names win over Go names when both normalize to the same key.
		if _, taken := e.byName[strings.ToLower(field.GoName)]; !taken {
			e.byName[strings.ToLower(field.GoName)] = field
		}
		e.byName[strings.ToLower(field.Name)] = field
	}
	return e
}

func (e *Entity) Type() reflect.Type { return e.typ }

func (e *Entity) Table() string { return e.table }

// Fields returns the settable fields in declaration order.
func (e *Entity) Fields() []*Field {
	fields := make([]*Field, len(e.fields))
	copy(fields, e.fields)
	return fields
}

// Field finds a field by column name or Go field name, ignoring case.
func (e *Entity) Field(name string) (*Field, bool) {
	f, ok := e.byName[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

// MustField is Field returning an ArgumentError for unknown names.
func (e *Entity) MustField(op, name string) (*Field, error) {
	if f, ok := e.Field(name); ok {
		return f, nil
	}
	return nil, types.NewArgumentError(op, "field", "%s has no field %q", e.typ, name)
}

// Key returns the single primary key field. Entities with no key or a
// composite key cannot be addressed by one identifier.
func (e *Entity) Key() (*Field, error) {
	switch len(e.pks) {
	case 0:
		return nil, types.NewArgumentError("meta.Key", "entity", "%s declares no primary key", e.typ)
	case 1:
		return e.pks[0], nil
	default:
		return nil, types.NewArgumentError("meta.Key", "entity", "%s declares a composite primary key", e.typ)
	}
}

// HasRelation reports whether path starts with a relation declared on the
// entity. Only the first segment of a dotted path is checked.
func (e *Entity) HasRelation(path string) bool {
	head := strings.TrimSpace(path)
	if i := strings.IndexByte(head, '.'); i >= 0 {
		head = head[:i]
	}
	_, ok := e.relations[strings.ToLower(head)]
	return ok
}

// Relation returns the Go field name of the relation named by the first
// segment of path.
func (e *Entity) Relation(path string) (string, bool) {
	head := strings.TrimSpace(path)
	if i := strings.IndexByte(head, '.'); i >= 0 {
		head = head[:i]
	}
	name, ok := e.relations[strings.ToLower(head)]
	return name, ok
}

func (e *Entity) String() string {
	return fmt.Sprintf("%s(%s)", e.typ, e.table)
}

func relationNames(typ reflect.Type) map[string]string {
	names := make(map[string]string)
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		if !sf.IsExported() {
			continue
		}
		if isRelationTag(sf.Tag.Get("bun")) {
			names[strings.ToLower(sf.Name)] = sf.Name
		}
	}
	return names
}

func isRelationTag(tag string) bool {
	return strings.Contains(tag, "rel:") || strings.Contains(tag, "m2m:")
}

func indirectType(typ reflect.Type) reflect.Type {
	for typ != nil && typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	return typ
}
