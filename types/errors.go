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
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	// ErrInvalidArgument matches every *ArgumentError via errors.Is.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConversion matches every *ConversionError via errors.Is.
	ErrConversion = errors.New("conversion failed")
)

// ArgumentError reports a caller-supplied value the engine refuses to work with:
// a nil specification, an unknown order column, an entity without a key or an
// identifier that cannot be coerced to the key type.
type ArgumentError struct {
	Op     string
	Param  string
	Reason string
	Err    error
}

// NewArgumentError builds an ArgumentError for op/param with a formatted reason.
func NewArgumentError(op, param, format string, args ...interface{}) *ArgumentError {
	return &ArgumentError{Op: op, Param: param, Reason: fmt.Sprintf(format, args...)}
}

func (e *ArgumentError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString("invalid argument")
	if e.Param != "" {
		b.WriteString(" ")
		b.WriteString(e.Param)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ArgumentError) Unwrap() error { return e.Err }

func (e *ArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

// ConversionError reports a value that could not be converted to a Go type.
// Row and Column are set when the value came from a result set; Row is -1
// otherwise.
type ConversionError struct {
	Row    int
	Column string
	From   reflect.Type
	To     reflect.Type
	Value  interface{}
	Err    error
}

func (e *ConversionError) Error() string {
	from := "nil"
	if e.From != nil {
		from = e.From.String()
	}
	to := "<nil>"
	if e.To != nil {
		to = e.To.String()
	}
	msg := fmt.Sprintf("cannot convert %s value %v to %s", from, e.Value, to)
	if e.Column != "" {
		msg = fmt.Sprintf("row %d column %q: %s", e.Row, e.Column, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConversionError) Unwrap() error { return e.Err }

func (e *ConversionError) Is(target error) bool { return target == ErrConversion }
