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
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// newTestManager connects to a fresh SQLite file that lives as long as the test.
func newTestManager(t *testing.T) AbstractDatabaseManager {
	t.Helper()

	cfg := DefaultConnectionConfig()
	cfg.Type = "sqlite"
	cfg.DBName = filepath.Join(t.TempDir(), "test.db")
	cfg.HealthCheckInterval = 0

	dm := NewDatabaseManager(cfg)
	dm.SetLogger(nil)
	require.NoError(t, dm.Connect(context.Background()))
	t.Cleanup(func() { _ = dm.Disconnect() })
	return dm
}

func newTestScopes(t *testing.T) *ScopeManager {
	t.Helper()

	scopes := newTestManager(t).GetScopeManager()
	require.NotNil(t, scopes)
	_, err := scopes.DB().ExecContext(context.Background(),
		"CREATE TABLE kv (k VARCHAR(64) PRIMARY KEY, v TEXT NOT NULL)")
	require.NoError(t, err)
	return scopes
}

func put(ctx context.Context, m *ScopeManager, k, v string) error {
	return m.Do(ctx, func(ctx context.Context, db bun.IDB) error {
		_, err := db.ExecContext(ctx, "INSERT INTO kv (k, v) VALUES (?, ?)", k, v)
		return err
	})
}

func set(ctx context.Context, m *ScopeManager, k, v string) error {
	return m.Do(ctx, func(ctx context.Context, db bun.IDB) error {
		_, err := db.ExecContext(ctx, "UPDATE kv SET v = ? WHERE k = ?", v, k)
		return err
	})
}

func lookup(ctx context.Context, m *ScopeManager, k string) (string, bool, error) {
	var v string
	err := m.Do(ctx, func(ctx context.Context, db bun.IDB) error {
		return db.QueryRowContext(ctx, "SELECT v FROM kv WHERE k = ?", k).Scan(&v)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func requireValue(t *testing.T, m *ScopeManager, k, want string) {
	t.Helper()
	v, ok, err := lookup(context.Background(), m, k)
	require.NoError(t, err)
	require.True(t, ok, "key %s not found", k)
	require.Equal(t, want, v)
}

func requireAbsent(t *testing.T, m *ScopeManager, k string) {
	t.Helper()
	_, ok, err := lookup(context.Background(), m, k)
	require.NoError(t, err)
	require.False(t, ok, "key %s should not exist", k)
}
