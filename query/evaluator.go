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
	"strings"

	"github.com/tomoncle/quarry/types"
)

const evaluateOp = "query.Evaluate"

// Evaluate applies spec to source and returns the composed queryable. The
// steps always run in this order: conditions, composite include, include
// paths, ordering, grouping, skip, take. Unset parts are skipped.
//
// A nil source or spec is an ArgumentError, as are null conditions, blank
// include paths, unknown order or group columns and negative skip or take.
// Evaluate does not touch the store.
func Evaluate[T any](source Queryable[T], spec *Specification[T]) (Queryable[T], error) {
	if source == nil {
		return nil, types.NewArgumentError(evaluateOp, "source", "nil source")
	}
	if spec == nil {
		return nil, types.NewArgumentError(evaluateOp, "spec", "nil specification")
	}
	entity := source.Entity()
	if entity == nil {
		if f, ok := source.(interface{ failure() error }); ok && f.failure() != nil {
			return nil, f.failure()
		}
		return nil, types.NewArgumentError(evaluateOp, "source", "source has no entity metadata")
	}

	q, err := applyConditions(source, spec.Conditions)
	if err != nil {
		return nil, err
	}

	if spec.Includes != nil {
		q = spec.Includes(q)
	}
	for i, path := range spec.IncludeStrings {
		if strings.TrimSpace(path) == "" {
			return nil, types.NewArgumentError(evaluateOp, "includeStrings", "blank include path at index %d", i)
		}
		if !entity.HasRelation(path) {
			return nil, types.NewArgumentError(evaluateOp, "includeStrings", "%s has no relation %q", entity.Type(), path)
		}
		q = q.Include(path)
	}

	if spec.OrderBy != nil {
		q = spec.OrderBy(q)
	} else if d := spec.OrderByDynamic; d != nil && strings.TrimSpace(d.Column) != "" && strings.TrimSpace(d.Direction) != "" {
		field, err := entity.MustField(evaluateOp, d.Column)
		if err != nil {
			return nil, err
		}
		dir, err := ParseDirection(d.Direction)
		if err != nil {
			return nil, err
		}
		q = q.OrderBy(field.Name, dir)
	}

	if len(spec.GroupBy) > 0 {
		if _, err := resolveFields(entity, evaluateOp, spec.GroupBy); err != nil {
			return nil, err
		}
		q = q.GroupBy(spec.GroupBy...)
	}

	if spec.Skip != nil {
		if err := checkCount(evaluateOp, *spec.Skip); err != nil {
			return nil, err
		}
		q = q.Skip(*spec.Skip)
	}
	if spec.Take != nil {
		if err := checkCount(evaluateOp, *spec.Take); err != nil {
			return nil, err
		}
		q = q.Take(*spec.Take)
	}
	return q, nil
}

// applyConditions filters source by each condition in turn. The count query
// of a paginated read goes through here too, so page and total always see
// the same filter.
func applyConditions[T any](source Queryable[T], conds []Condition) (Queryable[T], error) {
	q := source
	for i, cond := range conds {
		if cond.IsZero() {
			return nil, types.NewArgumentError(evaluateOp, "conditions", "null condition at index %d", i)
		}
		if err := cond.Validate(source.Entity()); err != nil {
			return nil, err
		}
		q = q.Where(cond)
	}
	return q, nil
}
