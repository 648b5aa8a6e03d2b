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
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/docstore/database"
	"github.com/tomoncle/docstore/types"
)

var errBoom = errors.New("boom")

func TestCreateThenGet(t *testing.T) {
	repo, _ := newNoteRepository(t)
	ctx := context.Background()
	n := newNote("n-1", "One", 1)

	created, err := repo.Create(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, types.InitialVersion, created.Version)
	assert.Equal(t, created.CreatedAt, created.ModifiedAt)

	got, ok, err := repo.Get(ctx, n.ID)
	require.NoError(t, err)
	require.True(t, ok)
	item, version := got.Unpack()
	assert.Equal(t, n, item)
	assert.Equal(t, types.InitialVersion, version)
	assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestGetMissingIsAbsent(t *testing.T) {
	repo, _ := newNoteRepository(t)

	item, ok, err := repo.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, item)
}

func TestCreateDuplicateIsConflict(t *testing.T) {
	repo, _ := newNoteRepository(t)
	ctx := context.Background()
	seedNotes(t, repo, newNote("n-1", "One", 1))

	_, err := repo.Create(ctx, newNote("n-1", "Two", 2))
	require.ErrorIs(t, err, ErrConflict)

	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "notes", ce.Table)
	assert.Equal(t, types.EntityID("n-1"), ce.ID)

	requireNoteValue(t, repo, "n-1", "One")
}

func TestCreateWithoutID(t *testing.T) {
	repo, _ := newNoteRepository(t)

	_, err := repo.Create(context.Background(), note{Value: "One"})
	require.ErrorIs(t, err, ErrEmptyID)

	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "create", se.Op)
}

func TestUpdateAdvancesVersion(t *testing.T) {
	repo, _ := newNoteRepository(t)
	ctx := context.Background()
	n := newNote("n-1", "One", 1)
	created, err := repo.Create(ctx, n)
	require.NoError(t, err)

	n.Value = "Two"
	updated, err := repo.Update(ctx, n, created.Version)
	require.NoError(t, err)
	assert.Equal(t, types.Version(2), updated.Version)
	assert.Equal(t, "Two", updated.Item.Value)
	assert.WithinDuration(t, created.CreatedAt, updated.CreatedAt, time.Millisecond)
	assert.False(t, updated.ModifiedAt.Before(created.ModifiedAt))

	got, _, err := repo.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Version, got.Version)
	assert.Equal(t, "Two", got.Item.Value)
}

func TestUpdateWithStaleVersionFails(t *testing.T) {
	repo, _ := newNoteRepository(t)
	ctx := context.Background()
	n := newNote("n-1", "One", 1)
	created, err := repo.Create(ctx, n)
	require.NoError(t, err)

	n.Value = "Two"
	_, err = repo.Update(ctx, n, created.Version)
	require.NoError(t, err)

	n.Value = "Three"
	_, err = repo.Update(ctx, n, created.Version)
	require.ErrorIs(t, err, ErrConflict)

	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, types.InitialVersion, ce.Expected)
	assert.Equal(t, types.Version(2), ce.Actual)

	got, _, err := repo.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Two", got.Item.Value)
	assert.Equal(t, types.Version(2), got.Version)
}

func TestUpdateMissingIsConflict(t *testing.T) {
	repo, _ := newNoteRepository(t)

	_, err := repo.Update(context.Background(), newNote("n-1", "One", 1), types.InitialVersion)
	require.ErrorIs(t, err, ErrConflict)

	exists, err := repo.Exists(context.Background(), "n-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDelete(t *testing.T) {
	repo, _ := newNoteRepository(t)
	ctx := context.Background()
	seedNotes(t, repo, newNote("n-1", "One", 1))

	err := repo.Delete(ctx, "n-1", types.Version(2))
	require.ErrorIs(t, err, ErrConflict)
	requireNoteValue(t, repo, "n-1", "One")

	require.NoError(t, repo.Delete(ctx, "n-1", types.InitialVersion))
	_, ok, err := repo.Get(ctx, "n-1")
	require.NoError(t, err)
	assert.False(t, ok)

	err = repo.Delete(ctx, "n-1", types.InitialVersion)
	require.ErrorIs(t, err, ErrConflict)
}

func TestExistsAndGetMany(t *testing.T) {
	repo, _ := newNoteRepository(t)
	ctx := context.Background()
	seedNotes(t, repo, newNote("n-2", "Two", 2), newNote("n-1", "One", 1), newNote("n-3", "Three", 3))

	exists, err := repo.Exists(ctx, "n-2")
	require.NoError(t, err)
	assert.True(t, exists)

	items, err := repo.GetMany(ctx, "n-3", "missing", "n-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, types.EntityID("n-1"), items[0].Item.ID)
	assert.Equal(t, types.EntityID("n-3"), items[1].Item.ID)

	items, err = repo.GetMany(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

type failingSerializer struct {
	types.JSONSerializer[note]
}

func (failingSerializer) ToStorage(note) ([]byte, error) { return nil, errBoom }

func TestSerializerFailureIsStoreError(t *testing.T) {
	scopes := newTestScopes(t)
	repo := NewRepository[note](scopes, "notes", failingSerializer{})
	require.NoError(t, repo.EnsureTable(context.Background()))

	_, err := repo.Create(context.Background(), newNote("n-1", "One", 1))
	require.ErrorIs(t, err, errBoom)

	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "serialize", se.Op)
	assert.Equal(t, "notes", se.Table)
	assert.NotErrorIs(t, err, ErrConflict)
}

func TestNestedScopesRollBackTogether(t *testing.T) {
	repo, scopes := newNoteRepository(t)
	ctx := context.Background()
	seedNotes(t, repo, newNote("n-1", "One", 1), newNote("n-2", "One", 2))

	err := scopes.RunInScope(ctx, func(ctx context.Context) error {
		first, _, err := repo.Get(ctx, "n-1")
		require.NoError(t, err)
		first.Item.Value = "Two"
		_, err = repo.Update(ctx, first.Item, first.Version)
		require.NoError(t, err)

		err = scopes.RunInScope(ctx, func(ctx context.Context) error {
			second, _, err := repo.Get(ctx, "n-2")
			if err != nil {
				return err
			}
			second.Item.Value = "Two"
			_, err = repo.Update(ctx, second.Item, second.Version)
			return err
		})
		require.NoError(t, err)
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	requireNoteValue(t, repo, "n-1", "One")
	requireNoteValue(t, repo, "n-2", "One")
}

func TestReadYourWritesInsideScope(t *testing.T) {
	repo, scopes := newNoteRepository(t)
	ctx := context.Background()
	seedNotes(t, repo, newNote("n-1", "One", 1))

	err := scopes.RunInScope(ctx, func(ctx context.Context) error {
		n := newNote("n-1", "Two", 1)
		_, err := repo.Update(ctx, n, types.InitialVersion)
		require.NoError(t, err)

		inside, _, err := repo.Get(ctx, "n-1")
		require.NoError(t, err)
		assert.Equal(t, "Two", inside.Item.Value)
		assert.Equal(t, types.Version(2), inside.Version)

		outside, _, err := repo.Get(context.Background(), "n-1")
		require.NoError(t, err)
		assert.Equal(t, "One", outside.Item.Value)
		return nil
	})
	require.NoError(t, err)
	requireNoteValue(t, repo, "n-1", "Two")
}

func TestConflictInsideScopeRollsBackScope(t *testing.T) {
	repo, scopes := newNoteRepository(t)
	ctx := context.Background()
	seedNotes(t, repo, newNote("n-1", "One", 1))

	err := scopes.RunInScope(ctx, func(ctx context.Context) error {
		if _, err := repo.Create(ctx, newNote("n-2", "One", 2)); err != nil {
			return err
		}
		_, err := repo.Update(ctx, newNote("n-1", "Two", 1), types.Version(5))
		return err
	})
	require.ErrorIs(t, err, ErrConflict)

	exists, err := repo.Exists(ctx, "n-2")
	require.NoError(t, err)
	assert.False(t, exists)
	requireNoteValue(t, repo, "n-1", "One")
}

func TestAsyncCreateJoinsScope(t *testing.T) {
	repo, scopes := newNoteRepository(t)
	ctx := context.Background()

	err := scopes.RunInScope(ctx, func(ctx context.Context) error {
		d := database.Async(ctx, scopes, func(ctx context.Context) (*types.StoredItem[note], error) {
			return repo.Create(ctx, newNote("n-1", "One", 1))
		})
		created, err := d.Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, types.InitialVersion, created.Version)

		inside, ok, err := repo.Get(ctx, "n-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "One", inside.Item.Value)
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	exists, err := repo.Exists(ctx, "n-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSwallowedCreateConflictRollsBackScope(t *testing.T) {
	repo, scopes := newNoteRepository(t)
	ctx := context.Background()
	seedNotes(t, repo, newNote("n-1", "One", 1))

	err := scopes.RunInScope(ctx, func(ctx context.Context) error {
		if _, err := repo.Create(ctx, newNote("n-2", "Two", 2)); err != nil {
			return err
		}
		_, err := repo.Create(ctx, newNote("n-1", "Again", 3))
		require.ErrorIs(t, err, ErrConflict)
		return nil
	})
	require.ErrorIs(t, err, ErrConflict)

	exists, err := repo.Exists(ctx, "n-2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestConcurrentScopesCreateDistinctNotes(t *testing.T) {
	repo, scopes := newNoteRepository(t)
	ctx := context.Background()
	seedNotes(t, repo, newNote("n-0", "Zero", 0))

	const workers = 8
	start := make(chan struct{})
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 1; i <= workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs[i-1] = scopes.RunInScope(ctx, func(ctx context.Context) error {
				if _, _, err := repo.Get(ctx, "n-0"); err != nil {
					return err
				}
				_, err := repo.Create(ctx, newNote(fmt.Sprintf("n-%d", i), "Many", i))
				return err
			})
		}()
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "worker %d", i+1)
	}
	total, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, workers+1, total)
}

func TestConcurrentUpdatesHaveOneWinner(t *testing.T) {
	repo, _ := newNoteRepository(t)
	ctx := context.Background()
	seedNotes(t, repo, newNote("n-1", "One", 1))

	const workers = 8
	start := make(chan struct{})
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = repo.Update(ctx, newNote("n-1", fmt.Sprintf("writer-%d", i), i), types.InitialVersion)
		}()
	}
	close(start)
	wg.Wait()

	winners, conflicts := 0, 0
	winner := ""
	for i, err := range errs {
		switch {
		case err == nil:
			winners++
			winner = fmt.Sprintf("writer-%d", i)
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("writer %d: unexpected error: %v", i, err)
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, workers-1, conflicts)

	item, ok, err := repo.Get(ctx, "n-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.InitialVersion.Next(), item.Version)
	assert.Equal(t, winner, item.Item.Value)
}
