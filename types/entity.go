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
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// EntityID identifies one entity within its table.
type EntityID string

// NewEntityID returns a random, UUID based identifier.
func NewEntityID() EntityID {
	return EntityID(uuid.NewString())
}

func (id EntityID) String() string { return string(id) }

// Entity is implemented by every value stored in a document table.
type Entity interface {
	EntityID() EntityID
}

// Kinded lets an entity name its own kind instead of using its Go type name.
type Kinded interface {
	EntityKind() string
}

// Identity is the (kind, id) pair that decides whether two entities are the
// same logical object. It is comparable and safe to use as a map key.
type Identity struct {
	Kind string
	ID   EntityID
}

func (i Identity) String() string {
	return fmt.Sprintf("%s#%s", i.Kind, i.ID)
}

// IdentityOf returns the identity of e. Content is ignored.
func IdentityOf(e Entity) Identity {
	return Identity{Kind: KindOf(e), ID: e.EntityID()}
}

// SameEntity reports whether a and b have the same kind and id.
func SameEntity(a, b Entity) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return IdentityOf(a) == IdentityOf(b)
}

// KindOf returns the entity kind: EntityKind() when implemented, otherwise
// the package qualified name of the underlying struct type.
func KindOf(e Entity) string {
	if k, ok := e.(Kinded); ok {
		return k.EntityKind()
	}
	t := reflect.TypeOf(e)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}

// Version is the optimistic lock counter of a stored row.
type Version int64

// InitialVersion is assigned to freshly created rows.
const InitialVersion Version = 1

// Next returns the version a row carries after one more successful mutation.
func (v Version) Next() Version { return v + 1 }

func (v Version) Int64() int64 { return int64(v) }

// StoredItem pairs an entity with the version and timestamps of its row.
type StoredItem[T any] struct {
	Item       T
	Version    Version
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Unpack returns the item and its version.
func (s *StoredItem[T]) Unpack() (T, Version) {
	return s.Item, s.Version
}
