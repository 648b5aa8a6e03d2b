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
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Serializer converts entities to and from the stored body.
// FromStorage(ToStorage(e)) must be equal to e.
type Serializer[T any] interface {
	ToStorage(entity T) ([]byte, error)
	FromStorage(body []byte) (T, error)
}

// JSONSerializer stores entities as JSON documents, which also lets searches
// address body fields with the dialect's JSON functions.
type JSONSerializer[T any] struct{}

// NewJSONSerializer returns a Serializer backed by encoding/json.
func NewJSONSerializer[T any]() Serializer[T] {
	return JSONSerializer[T]{}
}

func (JSONSerializer[T]) ToStorage(entity T) ([]byte, error) {
	return json.Marshal(entity)
}

func (JSONSerializer[T]) FromStorage(body []byte) (T, error) {
	var entity T
	err := json.Unmarshal(body, &entity)
	return entity, err
}

// Body is the serialized document column. It is written as text so JSON
// functions can read it, and scanned back from either text or bytes.
type Body []byte

// Value implements driver.Valuer for Body.
func (b Body) Value() (driver.Value, error) {
	if b == nil {
		return nil, nil
	}
	return string(b), nil
}

// Scan implements sql.Scanner for Body.
func (b *Body) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*b = nil
	case []byte:
		*b = append((*b)[:0], v...)
	case string:
		*b = Body(v)
	default:
		return fmt.Errorf("cannot scan %T into Body", value)
	}
	return nil
}
