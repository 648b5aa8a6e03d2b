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
	"sync"
	"time"

	"github.com/uptrace/bun"
)

var (
	globalMu      sync.RWMutex
	globalManager AbstractDatabaseManager
	globalConfig  *Config
)

// GetDB returns the global Bun database instance.
func GetDB() *bun.DB {
	if manager := GetDatabaseManager(); manager != nil {
		return manager.GetDB()
	}
	return nil
}

// GetScopeManager returns the scope manager of the global database. A new
// manager is returned after every InitDB.
func GetScopeManager() *ScopeManager {
	if manager := GetDatabaseManager(); manager != nil {
		return manager.GetScopeManager()
	}
	return nil
}

// GetDatabaseManager returns the global database manager.
func GetDatabaseManager() AbstractDatabaseManager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalManager
}

// InitDB initializes the global database using the provided configuration,
// running migrations and seeding when the configuration asks for it.
func InitDB(cfg *Config) (*bun.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	db, err := InitDatabaseWithOptions(cfg, cfg.DataMigrateConfig.EnableMigrateOnStartup)
	if err != nil {
		return nil, err
	}
	if cfg.DataInitConfig.AutoInitOnStartup {
		if err := InitData(); err != nil {
			return nil, fmt.Errorf("failed to initialize data: %w", err)
		}
	}
	return db, nil
}

// InitDatabaseWithOptions applies DB_* environment overrides to cfg, connects
// and optionally runs migrations. A previously initialized global database is
// closed once the new one is in place.
func InitDatabaseWithOptions(cfg *Config, runMigrations bool) (*bun.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	cfg.ConnectionConfig.ApplyEnv()
	if err := cfg.ConnectionConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	ctx := context.Background()
	manager := NewDatabaseManager(&cfg.ConnectionConfig)
	if err := manager.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if runMigrations {
		if err := manager.RunMigrations(ctx); err != nil {
			_ = manager.Disconnect()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
	}

	globalMu.Lock()
	previous := globalManager
	globalManager, globalConfig = manager, cfg
	globalMu.Unlock()

	if previous != nil {
		_ = previous.Disconnect()
	}
	GetLogger().Info("Database initialization completed!")
	return manager.GetDB(), nil
}

// CloseDB closes the global database connection.
func CloseDB() error {
	globalMu.Lock()
	manager := globalManager
	globalManager, globalConfig = nil, nil
	globalMu.Unlock()

	if manager != nil {
		return manager.Disconnect()
	}
	return nil
}

// GetHealthStatus returns the current database health status.
func GetHealthStatus(ctx context.Context) *HealthStatus {
	if manager := GetDatabaseManager(); manager != nil {
		return manager.HealthCheck(ctx)
	}
	return &HealthStatus{
		Healthy:       false,
		Connected:     false,
		LastError:     "Database not initialized",
		LastCheckTime: time.Now(),
	}
}

// GetDatabaseStats returns global database statistics.
func GetDatabaseStats() *DBStats {
	if manager := GetDatabaseManager(); manager != nil {
		return manager.GetStats()
	}
	return &DBStats{}
}

// RunMigrations executes database migrations on the global database.
func RunMigrations() error {
	manager := GetDatabaseManager()
	if manager == nil {
		return fmt.Errorf("database not initialized")
	}
	return manager.RunMigrations(context.Background())
}

// InitData seeds initial data using the configured environment.
func InitData() error {
	globalMu.RLock()
	cfg := globalConfig
	globalMu.RUnlock()

	environment := "prod"
	if cfg != nil && cfg.DataInitConfig.Environment != "" {
		environment = cfg.DataInitConfig.Environment
	}
	return InitDataWithSQL(environment)
}

// InitDataWithSQL seeds initial data by executing SQL files for the environment.
func InitDataWithSQL(environment string) error {
	scopes := GetScopeManager()
	if scopes == nil {
		return fmt.Errorf("database not initialized")
	}

	globalMu.RLock()
	cfg := globalConfig
	globalMu.RUnlock()

	seeder := NewSeedManager(scopes, environment)
	if cfg != nil && cfg.DataInitConfig.Filepath != "" {
		seeder.SetSQLRootPath(cfg.DataInitConfig.Filepath)
	}
	_, err := seeder.Execute(context.Background())
	return err
}
