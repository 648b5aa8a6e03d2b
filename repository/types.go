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
	"context"

	"github.com/tomoncle/docstore/types"
	"github.com/uptrace/bun/schema"
)

// CrudRepository defines version checked CRUD operations on one document table.
type CrudRepository[T types.Entity] interface {
	// Create stores entity with types.InitialVersion. An existing id is a conflict.
	Create(ctx context.Context, entity T) (*types.StoredItem[T], error)

	// Get returns the stored item, or false when no row has that id.
	Get(ctx context.Context, id types.EntityID) (*types.StoredItem[T], bool, error)

	GetMany(ctx context.Context, ids ...types.EntityID) ([]*types.StoredItem[T], error)

	Exists(ctx context.Context, id types.EntityID) (bool, error)

	// Update replaces the stored body if the row still carries expected and
	// advances its version.
	Update(ctx context.Context, entity T, expected types.Version) (*types.StoredItem[T], error)

	// Delete removes the row if it still carries expected.
	Delete(ctx context.Context, id types.EntityID, expected types.Version) error
}

// SearchRepository defines filtered, ordered and paginated reads.
type SearchRepository[T types.Entity] interface {
	Search(ctx context.Context, req *types.SearchRequest) ([]*types.StoredItem[T], error)

	// SearchWithCount returns one page and the number of matches ignoring
	// limit and offset, both read in the same scope.
	SearchWithCount(ctx context.Context, req *types.SearchRequest) (*types.Pagination[T], error)

	Count(ctx context.Context, filter *types.QueryFilter) (int, error)
}

// Repository combines CRUD and search on one document table. Every operation
// joins the scope carried by ctx, if any.
type Repository[T types.Entity] interface {
	CrudRepository[T]
	SearchRepository[T]
	Table() string
	EnsureTable(ctx context.Context) error
	Dialect() schema.Dialect
}
