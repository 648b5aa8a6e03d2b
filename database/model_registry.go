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
	"sort"
	"sync"
)

var defaultRegistry = newTableRegistry()

// SQLTable is a document table created by the migrations. Priority controls
// creation order (lower values first).
type SQLTable interface {
	Name() string
	Priority() int
}

// TableRegistry stores document tables and exposes them in a deterministic order.
type TableRegistry interface {
	Register(table SQLTable)
	Tables() []SQLTable
}

type tableRegistry struct {
	tables map[string]SQLTable
	mutex  sync.RWMutex
}

func newTableRegistry() TableRegistry {
	return &tableRegistry{
		tables: make(map[string]SQLTable),
	}
}

// Register adds table, replacing an earlier registration with the same name.
func (r *tableRegistry) Register(table SQLTable) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.tables[table.Name()] = table
}

func (r *tableRegistry) Tables() []SQLTable {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]SQLTable, 0, len(r.tables))
	for _, t := range r.tables {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Priority() != result[j].Priority() {
			return result[i].Priority() < result[j].Priority()
		}
		return result[i].Name() < result[j].Name()
	})
	return result
}

type tableAdapter struct {
	name     string
	priority int
}

// NewTableAdapter wraps a table name and priority into an SQLTable.
func NewTableAdapter(name string, priority int) SQLTable {
	return &tableAdapter{
		name:     name,
		priority: priority,
	}
}

func (a *tableAdapter) Name() string { return a.name }

func (a *tableAdapter) Priority() int { return a.priority }

// RegisterTable adds a document table to the default registry.
func RegisterTable(name string, priority int) {
	defaultRegistry.Register(NewTableAdapter(name, priority))
}

// GetRegisteredTables returns the tables of the default registry sorted by
// ascending priority, then name.
func GetRegisteredTables() []SQLTable {
	return defaultRegistry.Tables()
}

func RegisteredTableNames() []string {
	tables := GetRegisteredTables()
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name()
	}
	return names
}
