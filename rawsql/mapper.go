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

package rawsql

import (
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/tomoncle/quarry/meta"
	"github.com/tomoncle/quarry/types"
	"github.com/tomoncle/quarry/utils"
)

// ErrorPolicy decides what MapRows does with a row holding a value that
// cannot be converted to its field.
type ErrorPolicy int

const (
	// AbortOnError stops at the first bad row and returns its ConversionError.
	AbortOnError ErrorPolicy = iota
	// SkipRow drops the bad row, logs it and keeps going.
	SkipRow
)

func (p ErrorPolicy) String() string {
	if p == SkipRow {
		return "skip-row"
	}
	return "abort"
}

var (
	log             = utils.NewLogger("RAWSQL")
	defaultRegistry = meta.NewRegistry(nil)

	timeType    = reflect.TypeOf(time.Time{})
	uuidType    = reflect.TypeOf(uuid.UUID{})
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
)

type options struct {
	policy   ErrorPolicy
	registry *meta.Registry
}

type Option func(*options)

func WithErrorPolicy(policy ErrorPolicy) Option {
	return func(o *options) { o.policy = policy }
}

// WithRegistry resolves target fields through registry instead of the
// package default.
func WithRegistry(registry *meta.Registry) Option {
	return func(o *options) {
		if registry != nil {
			o.registry = registry
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{policy: AbortOnError, registry: defaultRegistry}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// MapRows reads every remaining row of rows into a T.
//
// Scalar targets (numbers, strings, bool, time.Time, uuid.UUID and
// sql.Scanner types) take the first column. Struct targets, or pointers to
// them, get one new value per row whose fields are matched to columns by
// column name or Go field name, ignoring case. NULL leaves the zero value,
// columns without a field are ignored and fields without a column stay zero.
//
// MapRows does not close rows.
func MapRows[T any](rows *sql.Rows, opts ...Option) ([]T, error) {
	if rows == nil {
		return nil, types.NewArgumentError("rawsql.MapRows", "rows", "nil rows")
	}
	o := newOptions(opts)

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	target := reflect.TypeOf((*T)(nil)).Elem()
	p, err := newPlan(o.registry, target, columns)
	if err != nil {
		return nil, err
	}

	values := make([]interface{}, len(columns))
	dest := make([]interface{}, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}

	result := make([]T, 0)
	for row := 0; rows.Next(); row++ {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", row, err)
		}
		item, err := p.build(values, row)
		if err != nil {
			var convErr *types.ConversionError
			if o.policy == SkipRow && errors.As(err, &convErr) {
				log.WithField("row", row).WithField("column", convErr.Column).Warnf("skip row: %v", err)
				continue
			}
			return nil, err
		}
		result = append(result, item.Interface().(T))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// plan is the column-to-field assignment for one target type and one
// column list, computed before the first row is read.
type plan struct {
	target reflect.Type
	base   reflect.Type
	scalar bool
	fields []*meta.Field // by column index, nil when unmatched
	names  []string
}

func newPlan(registry *meta.Registry, target reflect.Type, columns []string) (*plan, error) {
	p := &plan{target: target, base: target, names: columns}
	if p.base.Kind() == reflect.Ptr {
		p.base = p.base.Elem()
	}
	if isScalar(p.base) {
		if len(columns) == 0 {
			return nil, types.NewArgumentError("rawsql.MapRows", "rows", "no columns to map into %s", target)
		}
		p.scalar = true
		return p, nil
	}
	entity, err := registry.Entity(p.base)
	if err != nil {
		return nil, err
	}
	p.fields = make([]*meta.Field, len(columns))
	for i, column := range columns {
		if f, ok := entity.Field(column); ok {
			p.fields[i] = f
		}
	}
	return p, nil
}

func (p *plan) build(values []interface{}, row int) (reflect.Value, error) {
	item := reflect.New(p.base)
	if p.scalar {
		if !utils.IsDBNull(values[0]) {
			v, err := utils.ConvertTo(values[0], p.base)
			if err != nil {
				return reflect.Value{}, located(err, row, p.names[0])
			}
			item.Elem().Set(v)
		}
	} else {
		for i, f := range p.fields {
			if f == nil || utils.IsDBNull(values[i]) {
				continue
			}
			if err := f.Set(item, values[i]); err != nil {
				return reflect.Value{}, located(err, row, p.names[i])
			}
		}
	}
	if p.target.Kind() == reflect.Ptr {
		return item, nil
	}
	return item.Elem(), nil
}

func located(err error, row int, column string) error {
	var convErr *types.ConversionError
	if errors.As(err, &convErr) {
		convErr.Row = row
		convErr.Column = column
		return convErr
	}
	return err
}

func isScalar(typ reflect.Type) bool {
	if typ == timeType || typ == uuidType || reflect.PointerTo(typ).Implements(scannerType) {
		return true
	}
	return typ.Kind() != reflect.Struct
}
