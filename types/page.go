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

package types

import (
	"encoding/json"
	"math"
)

// PageRequest carries a 1-based page index and a page size.
type PageRequest struct {
	pageIndex int
	pageSize  int
}

// NewPageRequest constructs a PageRequest. Bounds are checked by Validate, not here.
func NewPageRequest(pageIndex int, pageSize int) PageRequest {
	return PageRequest{pageIndex: pageIndex, pageSize: pageSize}
}

func (p PageRequest) PageIndex() int { return p.pageIndex }

func (p PageRequest) PageSize() int { return p.pageSize }

// Offset returns the number of rows preceding the requested page.
func (p PageRequest) Offset() int {
	return (p.pageIndex - 1) * p.pageSize
}

// Validate rejects non-positive page indexes and sizes.
func (p PageRequest) Validate(op string) error {
	if p.pageIndex < 1 {
		return NewArgumentError(op, "pageIndex", "must be >= 1, got %d", p.pageIndex)
	}
	if p.pageSize < 1 {
		return NewArgumentError(op, "pageSize", "must be >= 1, got %d", p.pageSize)
	}
	return nil
}

// PaginatedList is one page of a filtered result set plus the total count of
// the whole filtered set. It is never mutated after construction.
type PaginatedList[T any] struct {
	items      []*T
	totalItems int64
	pageIndex  int
	pageSize   int
	totalPages int
}

// NewPaginatedList builds a page envelope and computes the page count.
func NewPaginatedList[T any](items []*T, totalItems int64, pageIndex int, pageSize int) *PaginatedList[T] {
	if items == nil {
		items = make([]*T, 0)
	}
	return &PaginatedList[T]{
		items:      items,
		totalItems: totalItems,
		pageIndex:  pageIndex,
		pageSize:   pageSize,
		totalPages: TotalPages(totalItems, pageSize),
	}
}

// TotalPages returns ceil(totalItems / pageSize), or 0 for a non-positive size.
func TotalPages(totalItems int64, pageSize int) int {
	if pageSize < 1 {
		return 0
	}
	return int(math.Ceil(float64(totalItems) / float64(pageSize)))
}

// Items returns a copy of the page slice.
func (p *PaginatedList[T]) Items() []*T {
	items := make([]*T, len(p.items))
	copy(items, p.items)
	return items
}

func (p *PaginatedList[T]) Len() int { return len(p.items) }

func (p *PaginatedList[T]) TotalItems() int64 { return p.totalItems }

func (p *PaginatedList[T]) PageIndex() int { return p.pageIndex }

func (p *PaginatedList[T]) PageSize() int { return p.pageSize }

func (p *PaginatedList[T]) TotalPages() int { return p.totalPages }

func (p *PaginatedList[T]) HasPreviousPage() bool { return p.pageIndex > 1 }

func (p *PaginatedList[T]) HasNextPage() bool { return p.pageIndex < p.totalPages }

type paginatedListJSON[T any] struct {
	Items      []*T  `json:"items"`
	TotalItems int64 `json:"total_items"`
	PageIndex  int   `json:"page_index"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// MarshalJSON implements json.Marshaler.
func (p *PaginatedList[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(paginatedListJSON[T]{
		Items:      p.items,
		TotalItems: p.totalItems,
		PageIndex:  p.pageIndex,
		PageSize:   p.pageSize,
		TotalPages: p.totalPages,
	})
}
