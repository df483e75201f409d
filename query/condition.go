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
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/tomoncle/quarry/meta"
	"github.com/tomoncle/quarry/types"
	"github.com/tomoncle/quarry/utils"
)

// Op identifies the kind of a Condition.
type Op string

const (
	OpEq      Op = "eq"
	OpNe      Op = "neq"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpIn      Op = "in"
	OpNotIn   Op = "not_in"
	OpLike    Op = "like"
	OpIsNull  Op = "is_null"
	OpNotNull Op = "not_null"
	OpAnd     Op = "and"
	OpOr      Op = "or"
	OpNot     Op = "not"
	OpRaw     Op = "raw"
)

// Condition is a predicate over one entity, expressed as data so that both
// SQL-backed and in-memory sources can apply it. The zero Condition is
// invalid and is rejected wherever conditions are accepted.
type Condition struct {
	Op       Op
	Field    string
	Value    interface{}
	Children []Condition
	// SQL and Args hold a raw WHERE fragment for OpRaw.
	SQL  string
	Args []interface{}
}

func Eq(field string, value interface{}) Condition {
	return Condition{Op: OpEq, Field: field, Value: value}
}

func Ne(field string, value interface{}) Condition {
	return Condition{Op: OpNe, Field: field, Value: value}
}

func Gt(field string, value interface{}) Condition {
	return Condition{Op: OpGt, Field: field, Value: value}
}

func Gte(field string, value interface{}) Condition {
	return Condition{Op: OpGte, Field: field, Value: value}
}

func Lt(field string, value interface{}) Condition {
	return Condition{Op: OpLt, Field: field, Value: value}
}

func Lte(field string, value interface{}) Condition {
	return Condition{Op: OpLte, Field: field, Value: value}
}

// In matches rows whose field equals one of values. A single slice argument
// is expanded.
func In(field string, values ...interface{}) Condition {
	return Condition{Op: OpIn, Field: field, Value: flatten(values)}
}

func NotIn(field string, values ...interface{}) Condition {
	return Condition{Op: OpNotIn, Field: field, Value: flatten(values)}
}

// Like matches a SQL LIKE pattern ('%' any run, '_' any single character).
func Like(field string, pattern string) Condition {
	return Condition{Op: OpLike, Field: field, Value: pattern}
}

func IsNull(field string) Condition {
	return Condition{Op: OpIsNull, Field: field}
}

func NotNull(field string) Condition {
	return Condition{Op: OpNotNull, Field: field}
}

func And(children ...Condition) Condition {
	return Condition{Op: OpAnd, Children: children}
}

func Or(children ...Condition) Condition {
	return Condition{Op: OpOr, Children: children}
}

func Not(child Condition) Condition {
	return Condition{Op: OpNot, Children: []Condition{child}}
}

// Raw wraps a SQL WHERE fragment in Bun placeholder syntax. In-memory
// sources cannot evaluate it.
func Raw(sql string, args ...interface{}) Condition {
	return Condition{Op: OpRaw, SQL: sql, Args: args}
}

func (c Condition) IsZero() bool { return c.Op == "" }

// Validate checks that c is well formed and only names fields of entity.
func (c Condition) Validate(entity *meta.Entity) error {
	const op = "query.Condition"
	switch c.Op {
	case "":
		return types.NewArgumentError(op, "condition", "nil condition")
	case OpAnd, OpOr:
		for _, child := range c.Children {
			if err := child.Validate(entity); err != nil {
				return err
			}
		}
		return nil
	case OpNot:
		if len(c.Children) != 1 {
			return types.NewArgumentError(op, "condition", "not expects exactly one operand, got %d", len(c.Children))
		}
		return c.Children[0].Validate(entity)
	case OpRaw:
		if strings.TrimSpace(c.SQL) == "" {
			return types.NewArgumentError(op, "condition", "empty raw SQL")
		}
		return nil
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNotIn, OpLike, OpIsNull, OpNotNull:
		if strings.TrimSpace(c.Field) == "" {
			return types.NewArgumentError(op, "field", "%s condition without field", c.Op)
		}
		if entity != nil {
			if _, err := entity.MustField(op, c.Field); err != nil {
				return err
			}
		}
		switch c.Op {
		case OpGt, OpGte, OpLt, OpLte:
			if c.Value == nil {
				return types.NewArgumentError(op, "value", "%s %s compares with nil", c.Field, c.Op)
			}
		case OpLike:
			if _, ok := c.Value.(string); !ok {
				return types.NewArgumentError(op, "value", "like pattern must be a string, got %T", c.Value)
			}
		}
		return nil
	default:
		return types.NewArgumentError(op, "condition", "unknown operator %q", c.Op)
	}
}

// Match evaluates c against item, a struct value or pointer to one.
func (c Condition) Match(entity *meta.Entity, item reflect.Value) (bool, error) {
	switch c.Op {
	case OpAnd:
		for _, child := range c.Children {
			ok, err := child.Match(entity, item)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case OpOr:
		if len(c.Children) == 0 {
			return true, nil
		}
		for _, child := range c.Children {
			ok, err := child.Match(entity, item)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case OpNot:
		ok, err := c.Children[0].Match(entity, item)
		return !ok && err == nil, err
	case OpRaw:
		return false, fmt.Errorf("raw SQL condition %q cannot be evaluated in memory", c.SQL)
	}

	field, err := entity.MustField("query.Condition", c.Field)
	if err != nil {
		return false, err
	}
	actual := field.Interface(item)
	null := utils.IsDBNull(actual)

	switch c.Op {
	case OpIsNull:
		return null, nil
	case OpNotNull:
		return !null, nil
	case OpEq:
		if c.Value == nil {
			return null, nil
		}
		return !null && utils.Equal(actual, c.Value), nil
	case OpNe:
		if c.Value == nil {
			return !null, nil
		}
		return !null && !utils.Equal(actual, c.Value), nil
	case OpIn, OpNotIn:
		if null {
			return false, nil
		}
		found := false
		for _, v := range InValues(c.Value) {
			if utils.Equal(actual, v) {
				found = true
				break
			}
		}
		return found == (c.Op == OpIn), nil
	case OpLike:
		if null {
			return false, nil
		}
		re, err := likePattern(c.Value.(string))
		if err != nil {
			return false, err
		}
		return re.MatchString(fmt.Sprint(actual)), nil
	}

	if null {
		return false, nil
	}
	cmp, err := utils.Compare(actual, c.Value)
	if err != nil {
		return false, err
	}
	switch c.Op {
	case OpGt:
		return cmp > 0, nil
	case OpGte:
		return cmp >= 0, nil
	case OpLt:
		return cmp < 0, nil
	case OpLte:
		return cmp <= 0, nil
	}
	return false, fmt.Errorf("unknown operator %q", c.Op)
}

func (c Condition) String() string {
	switch c.Op {
	case OpAnd, OpOr:
		parts := make([]string, len(c.Children))
		for i, child := range c.Children {
			parts[i] = child.String()
		}
		return "(" + strings.Join(parts, " "+strings.ToUpper(string(c.Op))+" ") + ")"
	case OpNot:
		return "NOT " + c.Children[0].String()
	case OpRaw:
		return c.SQL
	case OpIsNull, OpNotNull:
		return fmt.Sprintf("%s %s", c.Field, c.Op)
	}
	return fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Value)
}

func likePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?s)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

func flatten(values []interface{}) []interface{} {
	if len(values) != 1 {
		return values
	}
	rv := reflect.ValueOf(values[0])
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return values
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// InValues returns the operand list of an In or NotIn condition.
func InValues(v interface{}) []interface{} {
	if values, ok := v.([]interface{}); ok {
		return values
	}
	if v == nil {
		return nil
	}
	return flatten([]interface{}{v})
}
