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

package database

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

var defaultRegistry = newModelRegistry()

// SQLModel is an entity type known ahead of time. Instance returns a struct
// pointer compatible with Bun, possibly nil; Priority orders registration,
// lower first.
type SQLModel interface {
	Instance() interface{}
	Priority() int
}

// ModelRegistry stores one SQLModel per entity type and exposes them in a
// deterministic order.
type ModelRegistry interface {
	Register(model SQLModel) error
	Models() []SQLModel
}

type modelRegistry struct {
	mutex  sync.RWMutex
	models map[reflect.Type]SQLModel
	order  []reflect.Type
}

func newModelRegistry() ModelRegistry {
	return &modelRegistry{models: make(map[reflect.Type]SQLModel)}
}

// Register adds model. Registering a type again keeps the lower priority.
func (r *modelRegistry) Register(model SQLModel) error {
	if model == nil {
		return fmt.Errorf("model cannot be nil")
	}
	typ := reflect.TypeOf(model.Instance())
	if typ == nil || typ.Kind() != reflect.Ptr || typ.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("model %T: want a pointer to a struct", model.Instance())
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if prev, ok := r.models[typ]; ok {
		if model.Priority() < prev.Priority() {
			r.models[typ] = model
		}
		return nil
	}
	r.models[typ] = model
	r.order = append(r.order, typ)
	return nil
}

// Models returns the models by ascending priority; ties keep registration order.
func (r *modelRegistry) Models() []SQLModel {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]SQLModel, 0, len(r.order))
	for _, typ := range r.order {
		result = append(result, r.models[typ])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority() < result[j].Priority()
	})
	return result
}

type ModelAdapter struct {
	instance interface{}
	priority int
}

// NewModelAdapter wraps a struct pointer and priority into an SQLModel.
func NewModelAdapter(instance interface{}, priority int) SQLModel {
	return &ModelAdapter{
		instance: instance,
		priority: priority,
	}
}

func (a *ModelAdapter) Instance() interface{} {
	return a.instance
}

func (a *ModelAdapter) Priority() int {
	return a.priority
}

// RegisterEntity adds T to the default registry.
func RegisterEntity[T any](priority int) error {
	return defaultRegistry.Register(NewModelAdapter((*T)(nil), priority))
}

// GetRegisteredModels returns all models registered in the default registry
// sorted by ascending priority.
func GetRegisteredModels() []SQLModel {
	return defaultRegistry.Models()
}

// RegisteredModel adds a model to the default registry. It panics when the
// model does not wrap a struct pointer.
func RegisteredModel(model SQLModel) {
	if err := defaultRegistry.Register(model); err != nil {
		panic(err)
	}
}
