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
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tomoncle/docstore/database"
	"github.com/tomoncle/docstore/types"
)

type note struct {
	ID    types.EntityID `json:"id"`
	Value string         `json:"value"`
	Rank  int            `json:"rank"`
	Owner struct {
		Name string `json:"name"`
	} `json:"owner"`
}

func (n note) EntityID() types.EntityID { return n.ID }

func newNote(id, value string, rank int) note {
	n := note{ID: types.EntityID(id), Value: value, Rank: rank}
	n.Owner.Name = "owner-" + id
	return n
}

func newTestScopes(t *testing.T) *database.ScopeManager {
	t.Helper()

	cfg := database.DefaultConnectionConfig()
	cfg.Type = "sqlite"
	cfg.DBName = filepath.Join(t.TempDir(), "repository.db")
	cfg.HealthCheckInterval = 0

	dm := database.NewDatabaseManager(cfg)
	dm.SetLogger(nil)
	require.NoError(t, dm.Connect(context.Background()))
	t.Cleanup(func() { _ = dm.Disconnect() })
	return dm.GetScopeManager()
}

func newNoteRepository(t *testing.T) (Repository[note], *database.ScopeManager) {
	t.Helper()

	scopes := newTestScopes(t)
	repo := NewRepository[note](scopes, "notes", nil)
	require.NoError(t, repo.EnsureTable(context.Background()))
	return repo, scopes
}

func seedNotes(t *testing.T, repo Repository[note], notes ...note) {
	t.Helper()
	for _, n := range notes {
		_, err := repo.Create(context.Background(), n)
		require.NoError(t, err)
	}
}

func requireNoteValue(t *testing.T, repo Repository[note], id types.EntityID, want string) {
	t.Helper()
	item, ok, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok, fmt.Sprintf("%s not found", id))
	require.Equal(t, want, item.Item.Value)
}
