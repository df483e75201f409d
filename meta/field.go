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
	"reflect"

	"github.com/tomoncle/quarry/utils"
)

// Field describes one settable struct field and the column it maps to.
type Field struct {
	Name   string
	GoName string
	Type   reflect.Type
	Index  []int
	IsPK   bool
}

// Value reads the field from strct, a struct value or pointer to one. The
// second result is false when an embedded pointer on the way is nil.
func (f *Field) Value(strct reflect.Value) (reflect.Value, bool) {
	v := indirect(strct)
	for i, idx := range f.Index {
		if i > 0 {
			if v.Kind() == reflect.Ptr {
				if v.IsNil() {
					return reflect.Value{}, false
				}
				v = v.Elem()
			}
		}
		v = v.Field(idx)
	}
	return v, true
}

// Interface is Value returning the field as interface{}, nil when unreachable.
func (f *Field) Interface(strct reflect.Value) interface{} {
	v, ok := f.Value(strct)
	if !ok {
		return nil
	}
	return v.Interface()
}

// Set converts value to the field type and assigns it, allocating embedded
// pointers on the way.
func (f *Field) Set(strct reflect.Value, value interface{}) error {
	converted, err := utils.ConvertTo(value, f.Type)
	if err != nil {
		return err
	}
	f.settable(strct).Set(converted)
	return nil
}

func (f *Field) settable(strct reflect.Value) reflect.Value {
	v := indirect(strct)
	for i, idx := range f.Index {
		if i > 0 && v.Kind() == reflect.Ptr {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(idx)
	}
	return v
}

func indirect(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	return v
}
