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

package utils

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Compare orders two scalar values the way a database would: nulls first,
// then numbers numerically, times chronologically and everything else by its
// string form. It fails for values that have no natural order.
func Compare(a, b interface{}) (int, error) {
	a, b = normalize(a), normalize(b)
	switch {
	case a == nil && b == nil:
		return 0, nil
	case a == nil:
		return -1, nil
	case b == nil:
		return 1, nil
	}

	if ta, ok := a.(time.Time); ok {
		tb, err := cast.ToTimeE(textOf(b))
		if err != nil {
			return 0, fmt.Errorf("compare %T with %T: %w", a, b, err)
		}
		return ta.Compare(tb), nil
	}
	if tb, ok := b.(time.Time); ok {
		ta, err := cast.ToTimeE(textOf(a))
		if err != nil {
			return 0, fmt.Errorf("compare %T with %T: %w", a, b, err)
		}
		return ta.Compare(tb), nil
	}

	if isIntegerKind(a) && isIntegerKind(b) {
		ia, erra := toInt64(a)
		ib, errb := toInt64(b)
		if erra == nil && errb == nil {
			return compareOrdered(ia, ib), nil
		}
	}
	if isNumber(a) || isNumber(b) {
		fa, erra := toFloat64(a)
		fb, errb := toFloat64(b)
		if erra == nil && errb == nil {
			return compareOrdered(fa, fb), nil
		}
	}

	sa, erra := cast.ToStringE(a)
	sb, errb := cast.ToStringE(b)
	if erra != nil || errb != nil {
		return 0, fmt.Errorf("compare %T with %T: values are not ordered", a, b)
	}
	return strings.Compare(sa, sb), nil
}

// Equal reports whether a and b hold the same value after normalization.
func Equal(a, b interface{}) bool {
	if c, err := Compare(a, b); err == nil {
		return c == 0
	}
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func compareOrdered[N int64 | float64](a, b N) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func normalize(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	if valuer, ok := v.(driver.Valuer); ok {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Ptr && rv.IsNil() {
			return nil
		}
		if dv, err := valuer.Value(); err == nil {
			return textOf(dv)
		}
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Type() == uuidType {
		return rv.Interface().(fmt.Stringer).String()
	}
	return textOf(rv.Interface())
}

func isIntegerKind(v interface{}) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isNumber(v interface{}) bool {
	if isIntegerKind(v) {
		return true
	}
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Float32 || k == reflect.Float64
}
