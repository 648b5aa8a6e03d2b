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
	"time"

	"github.com/tomoncle/docstore/types"
	"github.com/uptrace/bun"
)

// DocumentAlias is the table alias used by select queries on document tables.
const DocumentAlias = "d"

// DocumentRow is the row layout shared by every document table. The table
// name is supplied per query, so one model serves all of them.
type DocumentRow struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	ID         types.EntityID `bun:"id,pk,type:varchar(64)"`
	Body       types.Body     `bun:"body,type:text,notnull"`
	Version    int64          `bun:"version,notnull"`
	CreatedAt  time.Time      `bun:"created_at,notnull"`
	ModifiedAt time.Time      `bun:"modified_at,notnull"`
}

// CreateDocumentTable creates table with the DocumentRow layout unless it
// already exists.
func CreateDocumentTable(ctx context.Context, db bun.IDB, table string) error {
	_, err := db.NewCreateTable().
		Model((*DocumentRow)(nil)).
		ModelTableExpr("?", bun.Ident(table)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}
