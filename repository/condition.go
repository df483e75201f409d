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
	"fmt"
	"strings"

	"github.com/tomoncle/quarry/meta"
	"github.com/tomoncle/quarry/query"
	"github.com/uptrace/bun"
)

var comparisons = map[query.Op]string{
	query.OpEq:  "=",
	query.OpNe:  "<>",
	query.OpGt:  ">",
	query.OpGte: ">=",
	query.OpLt:  "<",
	query.OpLte: "<=",
}

// renderCondition turns cond into a WHERE fragment using Bun placeholders.
// Columns are qualified with the model's table alias.
func renderCondition(cond query.Condition, entity *meta.Entity) (string, []interface{}, error) {
	switch cond.Op {
	case query.OpAnd, query.OpOr:
		if len(cond.Children) == 0 {
			return "1 = 1", nil, nil
		}
		parts := make([]string, 0, len(cond.Children))
		var args []interface{}
		for _, child := range cond.Children {
			expr, childArgs, err := renderCondition(child, entity)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, expr)
			args = append(args, childArgs...)
		}
		return "(" + strings.Join(parts, " "+strings.ToUpper(string(cond.Op))+" ") + ")", args, nil
	case query.OpNot:
		expr, args, err := renderCondition(cond.Children[0], entity)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + expr + ")", args, nil
	case query.OpRaw:
		return "(" + cond.SQL + ")", cond.Args, nil
	}

	field, err := entity.MustField("repository.Where", cond.Field)
	if err != nil {
		return "", nil, err
	}
	column := bun.Ident(field.Name)

	switch cond.Op {
	case query.OpIsNull:
		return "?TableAlias.? IS NULL", []interface{}{column}, nil
	case query.OpNotNull:
		return "?TableAlias.? IS NOT NULL", []interface{}{column}, nil
	case query.OpEq:
		if cond.Value == nil {
			return "?TableAlias.? IS NULL", []interface{}{column}, nil
		}
	case query.OpNe:
		if cond.Value == nil {
			return "?TableAlias.? IS NOT NULL", []interface{}{column}, nil
		}
	case query.OpIn, query.OpNotIn:
		values := query.InValues(cond.Value)
		if len(values) == 0 {
			if cond.Op == query.OpIn {
				return "1 = 0", nil, nil
			}
			return "?TableAlias.? IS NOT NULL", []interface{}{column}, nil
		}
		if cond.Op == query.OpIn {
			return "?TableAlias.? IN (?)", []interface{}{column, bun.In(values)}, nil
		}
		return "?TableAlias.? NOT IN (?)", []interface{}{column, bun.In(values)}, nil
	case query.OpLike:
		return "?TableAlias.? LIKE ?", []interface{}{column, cond.Value}, nil
	}

	sqlOp, ok := comparisons[cond.Op]
	if !ok {
		return "", nil, fmt.Errorf("unsupported operator %q", cond.Op)
	}
	return "?TableAlias.? " + sqlOp + " ?", []interface{}{column, cond.Value}, nil
}
