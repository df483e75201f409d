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

import "github.com/tomoncle/quarry/types"

// DynamicOrder sorts by a column named at runtime, for example from a query
// string. Direction is "asc" or "desc".
type DynamicOrder struct {
	Column    string `json:"column" yaml:"column"`
	Direction string `json:"direction" yaml:"direction"`
}

// Specification describes what to fetch: filters, eager loads, ordering,
// grouping and paging. It is plain data owned by the caller; Evaluate applies
// it without modifying it.
type Specification[T any] struct {
	// Conditions are applied one after another, so all of them must hold.
	Conditions []Condition
	// Includes applies a composite eager load.
	Includes func(Queryable[T]) Queryable[T]
	// IncludeStrings lists relation paths to eager load, e.g. "Author" or
	// "Author.Profile".
	IncludeStrings []string
	// OrderBy wins over OrderByDynamic when both are set.
	OrderBy        func(Queryable[T]) Queryable[T]
	OrderByDynamic *DynamicOrder
	GroupBy        []string
	Skip           *int
	Take           *int
}

func NewSpecification[T any](conds ...Condition) *Specification[T] {
	return &Specification[T]{Conditions: conds}
}

func (s *Specification[T]) AddCondition(conds ...Condition) *Specification[T] {
	s.Conditions = append(s.Conditions, conds...)
	return s
}

func (s *Specification[T]) AddInclude(paths ...string) *Specification[T] {
	s.IncludeStrings = append(s.IncludeStrings, paths...)
	return s
}

// ApplyOrderBy sets a static ordering. Chained calls add secondary keys.
func (s *Specification[T]) ApplyOrderBy(field string, dir Direction) *Specification[T] {
	prev := s.OrderBy
	s.OrderBy = func(q Queryable[T]) Queryable[T] {
		if prev != nil {
			q = prev(q)
		}
		return q.OrderBy(field, dir)
	}
	return s
}

func (s *Specification[T]) ApplyOrderByDynamic(column, direction string) *Specification[T] {
	s.OrderByDynamic = &DynamicOrder{Column: column, Direction: direction}
	return s
}

func (s *Specification[T]) ApplyGroupBy(fields ...string) *Specification[T] {
	s.GroupBy = fields
	return s
}

func (s *Specification[T]) ApplyPaging(skip, take int) *Specification[T] {
	s.Skip, s.Take = &skip, &take
	return s
}

// PaginationSpecification is a Specification whose skip and take come from
// a 1-based page index and a page size.
type PaginationSpecification[T any] struct {
	Conditions     []Condition
	Includes       func(Queryable[T]) Queryable[T]
	IncludeStrings []string
	OrderBy        func(Queryable[T]) Queryable[T]
	OrderByDynamic *DynamicOrder
	PageIndex      int
	PageSize       int
}

func NewPaginationSpecification[T any](pageIndex, pageSize int, conds ...Condition) *PaginationSpecification[T] {
	return &PaginationSpecification[T]{PageIndex: pageIndex, PageSize: pageSize, Conditions: conds}
}

// Specification returns the unpaged part: filters, eager loads and order.
func (p *PaginationSpecification[T]) Specification() *Specification[T] {
	return &Specification[T]{
		Conditions:     p.Conditions,
		Includes:       p.Includes,
		IncludeStrings: p.IncludeStrings,
		OrderBy:        p.OrderBy,
		OrderByDynamic: p.OrderByDynamic,
	}
}

func (p *PaginationSpecification[T]) Request() types.PageRequest {
	return types.NewPageRequest(p.PageIndex, p.PageSize)
}
