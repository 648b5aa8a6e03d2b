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

package docstore

import (
	"context"
	"sync"

	"github.com/tomoncle/docstore/database"
	"github.com/tomoncle/docstore/repository"
	"github.com/tomoncle/docstore/types"
)

var (
	ErrConflict       = repository.ErrConflict
	ErrInvalidSort    = repository.ErrInvalidSort
	ErrEmptyID        = repository.ErrEmptyID
	ErrScopeClosed    = database.ErrScopeClosed
	ErrNotInitialized = database.ErrNotInitialized
)

type (
	ConflictError = repository.ConflictError
	StoreError    = repository.StoreError
)

type Service[T types.Entity] interface {
	// Save stores a new entity with the initial version.
	Save(ctx context.Context, entity T) (*types.StoredItem[T], error)

	// Get returns a single entity by its identifier, or false when absent.
	Get(ctx context.Context, id types.EntityID) (*types.StoredItem[T], bool, error)

	// GetMany returns the entities among ids that exist.
	GetMany(ctx context.Context, ids ...types.EntityID) ([]*types.StoredItem[T], error)

	// Exists reports whether an entity with id is stored.
	Exists(ctx context.Context, id types.EntityID) (bool, error)

	// Update replaces an entity stored with the expected version.
	Update(ctx context.Context, entity T, expected types.Version) (*types.StoredItem[T], error)

	// Delete removes an entity stored with the expected version.
	Delete(ctx context.Context, id types.EntityID, expected types.Version) error

	// Search returns the entities matching req.
	Search(ctx context.Context, req *types.SearchRequest) ([]*types.StoredItem[T], error)

	// SearchWithCount returns one page of matches and the total match count.
	SearchWithCount(ctx context.Context, req *types.SearchRequest) (*types.Pagination[T], error)

	// Count returns the number of entities matching filter.
	Count(ctx context.Context, filter *types.QueryFilter) (int, error)
}

type baseServiceImpl[T types.Entity] struct {
	table      string
	serializer types.Serializer[T]
	scopes     func() *database.ScopeManager

	mu    sync.Mutex
	bound *database.ScopeManager
	repo  repository.Repository[T]
}

// NewService returns a Service over table on the global database. The table
// is registered so migrations create it. The repository follows the global
// database: it is bound on first use and rebound after every InitDB.
func NewService[T types.Entity](table string) Service[T] {
	database.RegisterTable(table, 0)
	return &baseServiceImpl[T]{
		table:      table,
		serializer: types.NewJSONSerializer[T](),
		scopes:     database.GetScopeManager,
	}
}

// NewServiceWith returns a Service over table on scopes using serializer.
func NewServiceWith[T types.Entity](scopes *database.ScopeManager, table string, serializer types.Serializer[T]) Service[T] {
	return &baseServiceImpl[T]{
		table:      table,
		serializer: serializer,
		scopes:     func() *database.ScopeManager { return scopes },
	}
}

// baseRepo returns the repository for the current scope manager. Binding to
// a new manager creates the table if it is missing, outside any scope ctx
// carries.
func (s *baseServiceImpl[T]) baseRepo(ctx context.Context) (repository.Repository[T], error) {
	scopes := s.scopes()
	if scopes == nil {
		return nil, ErrNotInitialized
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bound == scopes {
		return s.repo, nil
	}
	if err := database.CreateDocumentTable(ctx, scopes.DB(), s.table); err != nil {
		return nil, err
	}
	s.bound = scopes
	s.repo = repository.NewRepository[T](scopes, s.table, s.serializer)
	return s.repo, nil
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, entity T) (*types.StoredItem[T], error) {
	repo, err := s.baseRepo(ctx)
	if err != nil {
		return nil, err
	}
	return repo.Create(ctx, entity)
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id types.EntityID) (*types.StoredItem[T], bool, error) {
	repo, err := s.baseRepo(ctx)
	if err != nil {
		return nil, false, err
	}
	return repo.Get(ctx, id)
}

func (s *baseServiceImpl[T]) GetMany(ctx context.Context, ids ...types.EntityID) ([]*types.StoredItem[T], error) {
	repo, err := s.baseRepo(ctx)
	if err != nil {
		return nil, err
	}
	return repo.GetMany(ctx, ids...)
}

func (s *baseServiceImpl[T]) Exists(ctx context.Context, id types.EntityID) (bool, error) {
	repo, err := s.baseRepo(ctx)
	if err != nil {
		return false, err
	}
	return repo.Exists(ctx, id)
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, entity T, expected types.Version) (*types.StoredItem[T], error) {
	repo, err := s.baseRepo(ctx)
	if err != nil {
		return nil, err
	}
	return repo.Update(ctx, entity, expected)
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, id types.EntityID, expected types.Version) error {
	repo, err := s.baseRepo(ctx)
	if err != nil {
		return err
	}
	return repo.Delete(ctx, id, expected)
}

func (s *baseServiceImpl[T]) Search(ctx context.Context, req *types.SearchRequest) ([]*types.StoredItem[T], error) {
	repo, err := s.baseRepo(ctx)
	if err != nil {
		return nil, err
	}
	return repo.Search(ctx, req)
}

func (s *baseServiceImpl[T]) SearchWithCount(ctx context.Context, req *types.SearchRequest) (*types.Pagination[T], error) {
	repo, err := s.baseRepo(ctx)
	if err != nil {
		return nil, err
	}
	return repo.SearchWithCount(ctx, req)
}

func (s *baseServiceImpl[T]) Count(ctx context.Context, filter *types.QueryFilter) (int, error) {
	repo, err := s.baseRepo(ctx)
	if err != nil {
		return 0, err
	}
	return repo.Count(ctx, filter)
}

// RunInScope runs block in a scope of the global database, joining the scope
// carried by ctx if there is one.
func RunInScope(ctx context.Context, block func(ctx context.Context) error) error {
	scopes := database.GetScopeManager()
	if scopes == nil {
		return ErrNotInitialized
	}
	return scopes.RunInScope(ctx, block)
}

// InScope is RunInScope for blocks that produce a value.
func InScope[R any](ctx context.Context, block func(ctx context.Context) (R, error)) (R, error) {
	scopes := database.GetScopeManager()
	if scopes == nil {
		var zero R
		return zero, ErrNotInitialized
	}
	return database.InScope(ctx, scopes, block)
}

// Async runs block on its own goroutine in a scope of the global database.
func Async[R any](ctx context.Context, block func(ctx context.Context) (R, error)) *database.Deferred[R] {
	return database.Async(ctx, database.GetScopeManager(), block)
}
