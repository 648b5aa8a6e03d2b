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
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/uptrace/bun"
)

var seedOrderPattern = regexp.MustCompile(`^(\d+)_`)

// SeedManager discovers SQL files and executes them in one scope, so a
// failing statement leaves no seed data behind.
type SeedManager struct {
	scopes      *ScopeManager
	environment string
	sqlRootPath string
	logger      Logger
}

// SQLFileInfo describes a SQL file to be executed during seeding.
type SQLFileInfo struct {
	Path        string
	Name        string
	Order       int
	Environment string
	ModTime     time.Time
}

// ExecutionResult contains the outcome of executing a single SQL file.
type ExecutionResult struct {
	File         string
	Duration     time.Duration
	RowsAffected int64
}

// NewSeedManager creates a seeder for the given environment. Files are read
// from <root>/common and then <root>/environments/<environment>.
func NewSeedManager(scopes *ScopeManager, environment string) *SeedManager {
	return &SeedManager{
		scopes:      scopes,
		environment: environment,
		sqlRootPath: "configs/sql",
		logger:      GetLogger(),
	}
}

// SetSQLRootPath sets the root directory from which SQL files are loaded.
func (s *SeedManager) SetSQLRootPath(path string) {
	s.sqlRootPath = path
}

func (s *SeedManager) SetLogger(logger Logger) {
	if logger == nil {
		logger = nopLogger{}
	}
	s.logger = logger
}

// Execute runs every discovered SQL file in order.
func (s *SeedManager) Execute(ctx context.Context) ([]ExecutionResult, error) {
	s.logger.Info("Starting SQL initialization", "environment", s.environment, "sql_path", s.sqlRootPath)

	files, err := s.GetSQLFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to get SQL files: %w", err)
	}
	if len(files) == 0 {
		s.logger.Info("No SQL files found to execute")
		return nil, nil
	}

	results := make([]ExecutionResult, 0, len(files))
	err = s.scopes.RunInScope(ctx, func(ctx context.Context) error {
		for _, file := range files {
			result, err := s.executeFile(ctx, file)
			if err != nil {
				s.logger.Error("SQL file execution failed", "file", file.Path, "error", err)
				return fmt.Errorf("SQL file execution failed %s: %w", file.Path, err)
			}
			results = append(results, result)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, result := range results {
		s.logger.Info("SQL file executed successfully",
			"file", result.File,
			"duration", result.Duration.String(),
			"rows_affected", result.RowsAffected,
		)
	}
	s.logger.Info("SQL initialization completed", "total_files", len(results), "environment", s.environment)
	return results, nil
}

// seedSource is one directory of seed files. Sources run in the order
// they are listed by sources.
type seedSource struct {
	label string
	dir   string
}

func (s *SeedManager) sources() []seedSource {
	return []seedSource{
		{label: "common", dir: filepath.Join(s.sqlRootPath, "common")},
		{label: s.environment, dir: filepath.Join(s.sqlRootPath, "environments", s.environment)},
	}
}

// GetSQLFiles returns the SQL files of the common and environment dirs,
// common first, each ordered by its numeric prefix and then by name.
// Missing dirs are skipped.
func (s *SeedManager) GetSQLFiles() ([]SQLFileInfo, error) {
	var files []SQLFileInfo
	for _, src := range s.sources() {
		found, err := collectSeedFiles(src)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s SQL files: %w", src.label, err)
		}
		sort.SliceStable(found, func(i, j int) bool {
			if found[i].Order != found[j].Order {
				return found[i].Order < found[j].Order
			}
			return found[i].Name < found[j].Name
		})
		files = append(files, found...)
	}
	return files, nil
}

func collectSeedFiles(src seedSource) ([]SQLFileInfo, error) {
	if _, err := os.Stat(src.dir); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	var files []SQLFileInfo
	err := filepath.WalkDir(src.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".sql") {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, SQLFileInfo{
			Path:        path,
			Name:        d.Name(),
			Order:       seedOrder(d.Name()),
			Environment: src.label,
			ModTime:     info.ModTime(),
		})
		return nil
	})
	return files, err
}

// seedOrder reads the numeric prefix of "010_users.sql". Files without one
// run after every numbered file.
func seedOrder(name string) int {
	if m := seedOrderPattern.FindStringSubmatch(name); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return math.MaxInt32
}

func (s *SeedManager) executeFile(ctx context.Context, file SQLFileInfo) (ExecutionResult, error) {
	start := time.Now()
	result := ExecutionResult{File: file.Path}

	content, err := os.ReadFile(file.Path)
	if err != nil {
		return result, fmt.Errorf("failed to read file: %w", err)
	}
	processed, err := s.replaceEnvVariables(string(content))
	if err != nil {
		return result, err
	}

	err = s.scopes.Do(ctx, func(ctx context.Context, db bun.IDB) error {
		for _, stmt := range splitSQLStatements(processed) {
			res, execErr := db.ExecContext(ctx, stmt)
			if execErr != nil {
				return fmt.Errorf("failed to execute SQL statement: %s, error: %w", stmt, execErr)
			}
			rows, _ := res.RowsAffected()
			result.RowsAffected += rows
		}
		return nil
	})
	result.Duration = time.Since(start)
	return result, err
}

// replaceEnvVariables renders content as a text/template over the process
// environment plus ENVIRONMENT and TIMESTAMP, e.g. {{.ENVIRONMENT}}.
func (s *SeedManager) replaceEnvVariables(content string) (string, error) {
	if !strings.Contains(content, "{{") {
		return content, nil
	}
	tmpl, err := template.New("sql").Option("missingkey=zero").Parse(content)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	envVars := make(map[string]string)
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envVars[parts[0]] = parts[1]
		}
	}
	envVars["ENVIRONMENT"] = s.environment
	envVars["TIMESTAMP"] = time.Now().Format("2006-01-02 15:04:05")

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, envVars); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// splitSQLStatements splits on lines ending in ';', dropping blank lines and
// "--" comment lines.
func splitSQLStatements(content string) []string {
	var statements []string
	var current strings.Builder

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}

		current.WriteString(line)
		current.WriteString(" ")

		if strings.HasSuffix(line, ";") {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}

	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}
