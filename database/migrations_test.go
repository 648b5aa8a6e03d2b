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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func TestRunMigrationsCreatesDocumentTables(t *testing.T) {
	m := newTestManager(t).GetScopeManager()
	ctx := context.Background()

	mm := NewMigrationManager(m, nil)
	mm.SetTables(NewTableAdapter("notes", 1), NewTableAdapter("memos", 2))
	require.NoError(t, mm.RunMigrations(ctx))

	now := time.Now().UTC()
	for _, table := range []string{"notes", "memos"} {
		row := &DocumentRow{ID: "n-1", Body: []byte(`{}`), Version: 1, CreatedAt: now, ModifiedAt: now}
		_, err := m.DB().NewInsert().Model(row).ModelTableExpr("?", bun.Ident(table)).Exec(ctx)
		require.NoError(t, err, table)
	}

	applied, err := mm.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, "001", applied[0].Version)
	assert.Equal(t, "create_document_tables", applied[0].Name)
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	m := newTestManager(t).GetScopeManager()
	ctx := context.Background()

	mm := NewMigrationManager(m, nil)
	mm.SetTables(NewTableAdapter("notes", 1))
	require.NoError(t, mm.RunMigrations(ctx))
	require.NoError(t, mm.RunMigrations(ctx))

	applied, err := mm.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, 1)
}

func TestRunMigrationsCreatesTablesRegisteredLater(t *testing.T) {
	m := newTestManager(t).GetScopeManager()
	ctx := context.Background()

	mm := NewMigrationManager(m, nil)
	mm.SetTables(NewTableAdapter("notes", 1))
	require.NoError(t, mm.RunMigrations(ctx))

	mm.SetTables(NewTableAdapter("notes", 1), NewTableAdapter("late_notes", 2))
	require.NoError(t, mm.RunMigrations(ctx))

	now := time.Now().UTC()
	row := &DocumentRow{ID: "n-1", Body: []byte(`{}`), Version: 1, CreatedAt: now, ModifiedAt: now}
	_, err := m.DB().NewInsert().Model(row).ModelTableExpr("?", bun.Ident("late_notes")).Exec(ctx)
	require.NoError(t, err)

	applied, err := mm.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, 1)
}

func TestCreateDocumentTableIfNotExists(t *testing.T) {
	m := newTestManager(t).GetScopeManager()
	ctx := context.Background()

	require.NoError(t, CreateDocumentTable(ctx, m.DB(), "notes"))
	require.NoError(t, CreateDocumentTable(ctx, m.DB(), "notes"))
}

func TestTableRegistryOrdersByPriorityThenName(t *testing.T) {
	r := newTableRegistry()
	r.Register(NewTableAdapter("zeta", 1))
	r.Register(NewTableAdapter("alpha", 2))
	r.Register(NewTableAdapter("beta", 1))
	r.Register(NewTableAdapter("alpha", 0))

	var names []string
	for _, table := range r.Tables() {
		names = append(names, table.Name())
	}
	assert.Equal(t, []string{"alpha", "beta", "zeta"}, names)
}
