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
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/uptrace/bun"
)

// MigrationManager applies schema migrations, each inside its own scope.
type MigrationManager struct {
	scopes *ScopeManager
	logger Logger
	tables func() []SQLTable
}

// Migration represents an applied migration record stored in the database.
type Migration struct {
	bun.BaseModel `bun:"table:schema_migrations"`

	Version     string    `bun:"version,pk"`
	Name        string    `bun:"name"`
	AppliedAt   time.Time `bun:"applied_at"`
	Description string    `bun:"description"`
}

// MigrationFunc is a migration step executed within a scope.
type MigrationFunc func(ctx context.Context, db bun.IDB) error

// MigrationItem describes a single migration version.
type MigrationItem struct {
	Version     string
	Name        string
	Description string
	Up          MigrationFunc
}

// NewMigrationManager constructs a MigrationManager that creates the tables
// of the default registry.
func NewMigrationManager(scopes *ScopeManager, logger Logger) *MigrationManager {
	if logger == nil {
		logger = nopLogger{}
	}
	return &MigrationManager{
		scopes: scopes,
		logger: logger,
		tables: GetRegisteredTables,
	}
}

// SetTables overrides the registry the base table migration reads from.
func (mm *MigrationManager) SetTables(tables ...SQLTable) {
	mm.tables = func() []SQLTable { return tables }
}

// RunMigrations creates the migration tracking table if needed and executes all
// pending migrations in ascending version order. Applied versions are skipped,
// so running it again is a no-op.
func (mm *MigrationManager) RunMigrations(ctx context.Context) error {
	if mm.scopes == nil {
		return fmt.Errorf("database not initialized")
	}

	// silent migration
	if _, ok := os.LookupEnv("BUNDEBUG_MIGRATION"); !ok {
		EnableBunSqlSilent(true)
		defer EnableBunSqlSilent(false)
	}

	if err := mm.createMigrationTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations := mm.getAllMigrations()
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	for _, migration := range migrations {
		if err := mm.runMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", migration.Version, err)
		}
	}

	// tables registered after 001 was recorded
	if err := mm.SyncTables(ctx); err != nil {
		return fmt.Errorf("failed to sync document tables: %w", err)
	}

	mm.logger.Info("Database migrations completed!")
	return nil
}

func (mm *MigrationManager) createMigrationTable(ctx context.Context) error {
	_, err := mm.scopes.DB().NewCreateTable().
		Model((*Migration)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func (mm *MigrationManager) getAllMigrations() []MigrationItem {
	return []MigrationItem{
		{
			Version:     "001",
			Name:        "create_document_tables",
			Description: "Create registered document tables",
			Up:          mm.createDocumentTables,
		},
	}
}

func (mm *MigrationManager) runMigration(ctx context.Context, migration MigrationItem) error {
	return mm.scopes.RunInScope(ctx, func(ctx context.Context) error {
		return mm.scopes.Do(ctx, func(ctx context.Context, db bun.IDB) error {
			exists, err := db.NewSelect().
				Model((*Migration)(nil)).
				Where("version = ?", migration.Version).
				Exists(ctx)
			if err != nil {
				return err
			}
			if exists {
				return nil
			}

			if err := migration.Up(ctx, db); err != nil {
				return err
			}

			record := &Migration{
				Version:     migration.Version,
				Name:        migration.Name,
				AppliedAt:   time.Now().UTC(),
				Description: migration.Description,
			}
			if _, err := db.NewInsert().Model(record).Exec(ctx); err != nil {
				return err
			}
			mm.logger.Info("Migration executed successfully", "version", migration.Version, "name", migration.Name)
			return nil
		})
	})
}

// SyncTables creates every registered table that does not exist yet.
func (mm *MigrationManager) SyncTables(ctx context.Context) error {
	return mm.scopes.RunInScope(ctx, func(ctx context.Context) error {
		return mm.scopes.Do(ctx, mm.createDocumentTables)
	})
}

func (mm *MigrationManager) createDocumentTables(ctx context.Context, db bun.IDB) error {
	for _, table := range mm.tables() {
		if err := CreateDocumentTable(ctx, db, table.Name()); err != nil {
			return err
		}
	}
	return nil
}

// GetAppliedMigrations returns migration records ordered by version.
func (mm *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]Migration, error) {
	var migrations []Migration
	err := mm.scopes.Do(ctx, func(ctx context.Context, db bun.IDB) error {
		return db.NewSelect().
			Model(&migrations).
			Order("version ASC").
			Scan(ctx)
	})
	return migrations, err
}
