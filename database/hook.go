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
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

var bunSqlSilentMode atomic.Bool

// EnableBunSqlSilent mutes QueryHook, e.g. while migrations run.
func EnableBunSqlSilent(b bool) {
	bunSqlSilentMode.Store(b)
}

var (
	slowColor  = color.New(color.FgYellow, color.Bold)
	errorColor = color.New(color.BgRed, color.FgWhite)
)

// QueryHook reports failed and slow statements through the database Logger,
// tagged with the id of the scope the statement ran in.
type QueryHook struct {
	db       *bun.DB
	logger   Logger
	slowTime time.Duration
}

var _ bun.QueryHook = (*QueryHook)(nil)

// NewQueryHook returns a hook for db. slowTime <= 0 disables slow query
// warnings.
func NewQueryHook(db *bun.DB, logger Logger, slowTime time.Duration) *QueryHook {
	if logger == nil {
		logger = nopLogger{}
	}
	return &QueryHook{db: db, logger: logger, slowTime: slowTime}
}

func (h *QueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if bunSqlSilentMode.Load() {
		return
	}
	scope := "-"
	if s, ok := ctx.Value(scopeKey{h.db}).(*Scope); ok {
		scope = s.ID()
	}
	duration := time.Since(event.StartTime)

	if event.Err != nil {
		if errors.Is(event.Err, sql.ErrNoRows) || errors.Is(event.Err, sql.ErrTxDone) {
			return
		}
		h.logger.Debug("Database query failed",
			"scope", scope,
			"operation", event.Operation(),
			"duration", duration.Round(time.Microsecond),
			"error", errorColor.Sprint(event.Err.Error()),
		)
		return
	}

	if h.slowTime > 0 && duration > h.slowTime {
		h.logger.Warn("Database slow query detected",
			"scope", scope,
			"duration", duration.Round(time.Microsecond),
			"slow_threshold", h.slowTime,
			"query", slowColor.Sprint(event.Query),
		)
	}
}
