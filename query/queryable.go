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
	"strings"

	"github.com/tomoncle/quarry/meta"
	"github.com/tomoncle/quarry/types"
)

// Direction is the sort direction of an ordering clause.
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

// ParseDirection accepts "asc", "ascending", "desc" and "descending" in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "ascending":
		return Asc, nil
	case "desc", "descending":
		return Desc, nil
	default:
		return Asc, types.NewArgumentError("query.ParseDirection", "direction", "unknown sort direction %q", s)
	}
}

// Queryable is a lazily composed query over entities of type T. Every
// composition method returns a new Queryable and leaves the receiver
// untouched; nothing touches the store until one of the materializing
// methods runs.
//
// Consecutive OrderBy calls add secondary sort keys. Count and Exists ignore
// Skip and Take and report on the filtered set.
type Queryable[T any] interface {
	Entity() *meta.Entity
	Registry() *meta.Registry

	Where(cond Condition) Queryable[T]
	Include(path string) Queryable[T]
	OrderBy(field string, dir Direction) Queryable[T]
	GroupBy(fields ...string) Queryable[T]
	Skip(n int) Queryable[T]
	Take(n int) Queryable[T]
	// Columns narrows the selected columns for ScanList and ScanFirst.
	Columns(fields ...string) Queryable[T]

	ToList(ctx context.Context) ([]*T, error)
	// First returns nil without error when nothing matches.
	First(ctx context.Context) (*T, error)
	Count(ctx context.Context) (int64, error)
	Exists(ctx context.Context) (bool, error)

	// ScanList materializes into dest, a pointer to a slice of structs or
	// struct pointers of another type.
	ScanList(ctx context.Context, dest interface{}) error
	// ScanFirst materializes the first row into dest, a struct pointer. It
	// reports false when nothing matches.
	ScanFirst(ctx context.Context, dest interface{}) (bool, error)
}

// Source hands out fresh queryables over one entity type.
type Source[T any] func() Queryable[T]
