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
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"github.com/tomoncle/quarry/types"
)

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
	uuidType     = reflect.TypeOf(uuid.UUID{})
	scannerType  = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	valuerType   = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
)

// IsDBNull reports whether v is the database null sentinel: nil, a nil
// pointer, or a driver.Valuer that yields nil.
func IsDBNull(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr && rv.IsNil() {
		return true
	}
	if valuer, ok := v.(driver.Valuer); ok {
		dv, err := valuer.Value()
		return err == nil && dv == nil
	}
	return false
}

// ConvertTo converts value to target without depending on the process
// locale: numbers are parsed in base 10 with '.' as decimal separator and
// times in RFC 3339 and the other layouts cast understands. Failures are
// returned as *types.ConversionError.
func ConvertTo(value interface{}, target reflect.Type) (reflect.Value, error) {
	if target == nil {
		return reflect.Value{}, conversionError(value, target, errors.New("nil target type"))
	}
	if value == nil {
		return reflect.Value{}, conversionError(value, target, errors.New("nil value"))
	}

	src := reflect.ValueOf(value)
	if src.Type().AssignableTo(target) {
		return src, nil
	}
	if target.Kind() == reflect.Ptr {
		inner, err := ConvertTo(value, target.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(target.Elem())
		ptr.Elem().Set(inner)
		return ptr, nil
	}
	for src.Kind() == reflect.Ptr {
		if src.IsNil() {
			return reflect.Value{}, conversionError(value, target, errors.New("nil value"))
		}
		src = src.Elem()
	}
	if src.Type().AssignableTo(target) {
		return src, nil
	}
	raw := src.Interface()

	if target == uuidType {
		id, err := toUUID(raw)
		if err != nil {
			return reflect.Value{}, conversionError(value, target, err)
		}
		return reflect.ValueOf(id), nil
	}
	if reflect.PointerTo(target).Implements(scannerType) {
		ptr := reflect.New(target)
		if err := ptr.Interface().(sql.Scanner).Scan(driverValue(raw)); err != nil {
			return reflect.Value{}, conversionError(value, target, err)
		}
		return ptr.Elem(), nil
	}

	out := reflect.New(target).Elem()
	var err error
	switch {
	case target == timeType:
		var t time.Time
		t, err = cast.ToTimeE(textOf(raw))
		if err == nil {
			out.Set(reflect.ValueOf(t))
		}
	case target == durationType:
		var d time.Duration
		d, err = cast.ToDurationE(textOf(raw))
		if err == nil {
			out.SetInt(int64(d))
		}
	default:
		err = convertKind(raw, out)
	}
	if err != nil {
		return reflect.Value{}, conversionError(value, target, err)
	}
	return out, nil
}

func convertKind(raw interface{}, out reflect.Value) error {
	switch out.Kind() {
	case reflect.Bool:
		b, err := cast.ToBoolE(textOf(raw))
		if err != nil {
			return err
		}
		out.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := toInt64(raw)
		if err != nil {
			return err
		}
		if out.OverflowInt(n) {
			return fmt.Errorf("value %d overflows %s", n, out.Type())
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := toInt64(raw)
		if err != nil {
			return err
		}
		if n < 0 || out.OverflowUint(uint64(n)) {
			return fmt.Errorf("value %d overflows %s", n, out.Type())
		}
		out.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		f, err := toFloat64(raw)
		if err != nil {
			return err
		}
		if out.OverflowFloat(f) {
			return fmt.Errorf("value %v overflows %s", f, out.Type())
		}
		out.SetFloat(f)
	case reflect.String:
		s, err := cast.ToStringE(raw)
		if err != nil {
			return err
		}
		out.SetString(s)
	case reflect.Slice:
		if out.Type().Elem().Kind() != reflect.Uint8 {
			return fmt.Errorf("unsupported target %s", out.Type())
		}
		switch v := raw.(type) {
		case []byte:
			out.SetBytes(append([]byte(nil), v...))
		case string:
			out.SetBytes([]byte(v))
		default:
			return fmt.Errorf("unsupported source %T", raw)
		}
	default:
		src := reflect.ValueOf(raw)
		if src.Kind() == out.Kind() && src.Type().ConvertibleTo(out.Type()) {
			out.Set(src.Convert(out.Type()))
			return nil
		}
		return fmt.Errorf("unsupported target %s", out.Type())
	}
	return nil
}

func toInt64(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case string, []byte:
		s := strings.TrimSpace(textOf(v).(string))
		n, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return n, nil
		}
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, err
		}
		return integral(f)
	case float32:
		return integral(float64(v))
	case float64:
		return integral(v)
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	}
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return integral(rv.Float())
	case reflect.String:
		return toInt64(rv.String())
	}
	return cast.ToInt64E(raw)
}

func integral(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%v is not an integral value", f)
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%v overflows int64", f)
	}
	return int64(f), nil
}

func toFloat64(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case string, []byte:
		return strconv.ParseFloat(strings.TrimSpace(textOf(v).(string)), 64)
	}
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return toFloat64(rv.String())
	}
	return cast.ToFloat64E(raw)
}

func toUUID(raw interface{}) (uuid.UUID, error) {
	switch v := raw.(type) {
	case string:
		return uuid.Parse(strings.TrimSpace(v))
	case []byte:
		if len(v) == 16 {
			return uuid.FromBytes(v)
		}
		return uuid.ParseBytes(v)
	case [16]byte:
		return uuid.UUID(v), nil
	case fmt.Stringer:
		return uuid.Parse(v.String())
	}
	return uuid.Nil, fmt.Errorf("unsupported source %T", raw)
}

// textOf turns []byte into string so that cast treats driver text as text.
func textOf(raw interface{}) interface{} {
	if b, ok := raw.([]byte); ok {
		return string(b)
	}
	return raw
}

func driverValue(raw interface{}) interface{} {
	rv := reflect.ValueOf(raw)
	if rv.Type().Implements(valuerType) {
		if dv, err := raw.(driver.Valuer).Value(); err == nil {
			return dv
		}
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	}
	return raw
}

func conversionError(value interface{}, target reflect.Type, err error) *types.ConversionError {
	return &types.ConversionError{
		Row:   -1,
		From:  reflect.TypeOf(value),
		To:    target,
		Value: value,
		Err:   err,
	}
}
