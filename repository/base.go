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
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/tomoncle/docstore/database"
	"github.com/tomoncle/docstore/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

type baseRepositoryImpl[T types.Entity] struct {
	scopes     *database.ScopeManager
	table      string
	serializer types.Serializer[T]
}

// NewRepository returns a repository over table. A nil serializer stores
// entities as JSON.
func NewRepository[T types.Entity](scopes *database.ScopeManager, table string, serializer types.Serializer[T]) Repository[T] {
	if serializer == nil {
		serializer = types.NewJSONSerializer[T]()
	}
	return &baseRepositoryImpl[T]{
		scopes:     scopes,
		table:      table,
		serializer: serializer,
	}
}

func (r *baseRepositoryImpl[T]) Table() string { return r.table }

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect { return r.scopes.DB().Dialect() }

func (r *baseRepositoryImpl[T]) EnsureTable(ctx context.Context) error {
	err := r.scopes.Do(ctx, func(ctx context.Context, db bun.IDB) error {
		return database.CreateDocumentTable(ctx, db, r.table)
	})
	return storeError("ensure table", r.table, err)
}

func (r *baseRepositoryImpl[T]) newSelect(db bun.IDB, model interface{}) *bun.SelectQuery {
	return db.NewSelect().
		Model(model).
		ModelTableExpr("? AS ?", bun.Ident(r.table), bun.Ident(database.DocumentAlias))
}

func (r *baseRepositoryImpl[T]) toItem(row *database.DocumentRow) (*types.StoredItem[T], error) {
	entity, err := r.serializer.FromStorage(row.Body)
	if err != nil {
		return nil, storeError("deserialize", r.table, err)
	}
	return &types.StoredItem[T]{
		Item:       entity,
		Version:    types.Version(row.Version),
		CreatedAt:  row.CreatedAt,
		ModifiedAt: row.ModifiedAt,
	}, nil
}

func (r *baseRepositoryImpl[T]) toItems(rows []database.DocumentRow) ([]*types.StoredItem[T], error) {
	items := make([]*types.StoredItem[T], 0, len(rows))
	for i := range rows {
		item, err := r.toItem(&rows[i])
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *baseRepositoryImpl[T]) body(entity T) (types.Body, error) {
	body, err := r.serializer.ToStorage(entity)
	if err != nil {
		return nil, storeError("serialize", r.table, err)
	}
	return body, nil
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (r *baseRepositoryImpl[T]) Create(ctx context.Context, entity T) (*types.StoredItem[T], error) {
	id := entity.EntityID()
	if id == "" {
		return nil, storeError("create", r.table, ErrEmptyID)
	}
	body, err := r.body(entity)
	if err != nil {
		return nil, err
	}

	ts := now()
	row := &database.DocumentRow{
		ID:         id,
		Body:       body,
		Version:    types.InitialVersion.Int64(),
		CreatedAt:  ts,
		ModifiedAt: ts,
	}
	// in a scope, like Update and Delete, so a duplicate id marks the
	// caller's scope rollback-only
	err = r.scopes.RunInScope(ctx, func(ctx context.Context) error {
		return r.scopes.Do(ctx, func(ctx context.Context, db bun.IDB) error {
			_, err := db.NewInsert().
				Model(row).
				ModelTableExpr("?", bun.Ident(r.table)).
				Exec(ctx)
			if database.IsDuplicateKey(err) {
				return conflict(r.table, id, 0, 0, "entity already exists")
			}
			return err
		})
	})
	if err != nil {
		return nil, storeError("create", r.table, err)
	}
	return &types.StoredItem[T]{
		Item:       entity,
		Version:    types.InitialVersion,
		CreatedAt:  ts,
		ModifiedAt: ts,
	}, nil
}

func (r *baseRepositoryImpl[T]) Get(ctx context.Context, id types.EntityID) (*types.StoredItem[T], bool, error) {
	var row database.DocumentRow
	found := true
	err := r.scopes.Do(ctx, func(ctx context.Context, db bun.IDB) error {
		err := r.newSelect(db, &row).Where("id = ?", id).Limit(1).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		return err
	})
	if err != nil {
		return nil, false, storeError("get", r.table, err)
	}
	if !found {
		return nil, false, nil
	}
	item, err := r.toItem(&row)
	if err != nil {
		return nil, false, err
	}
	return item, true, nil
}

// GetMany returns the stored items among ids ordered by id. Unknown ids are
// skipped.
func (r *baseRepositoryImpl[T]) GetMany(ctx context.Context, ids ...types.EntityID) ([]*types.StoredItem[T], error) {
	if len(ids) == 0 {
		return []*types.StoredItem[T]{}, nil
	}
	var rows []database.DocumentRow
	err := r.scopes.Do(ctx, func(ctx context.Context, db bun.IDB) error {
		return r.newSelect(db, &rows).
			Where("id IN (?)", bun.In(ids)).
			OrderExpr("? ASC", bun.Ident(types.ColumnID)).
			Scan(ctx)
	})
	if err != nil {
		return nil, storeError("get many", r.table, err)
	}
	return r.toItems(rows)
}

func (r *baseRepositoryImpl[T]) Exists(ctx context.Context, id types.EntityID) (bool, error) {
	var exists bool
	err := r.scopes.Do(ctx, func(ctx context.Context, db bun.IDB) error {
		var err error
		exists, err = r.newSelect(db, (*database.DocumentRow)(nil)).Where("id = ?", id).Exists(ctx)
		return err
	})
	return exists, storeError("exists", r.table, err)
}

// currentRow reads the row of id for a version check. A missing row is a
// conflict.
func (r *baseRepositoryImpl[T]) currentRow(ctx context.Context, db bun.IDB, id types.EntityID, expected types.Version) (*database.DocumentRow, error) {
	row := new(database.DocumentRow)
	err := r.newSelect(db, row).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, conflict(r.table, id, expected, 0, "entity does not exist")
	}
	if err != nil {
		return nil, err
	}
	if actual := types.Version(row.Version); actual != expected {
		return nil, conflict(r.table, id, expected, actual, "version mismatch")
	}
	return row, nil
}

func (r *baseRepositoryImpl[T]) Update(ctx context.Context, entity T, expected types.Version) (*types.StoredItem[T], error) {
	id := entity.EntityID()
	if id == "" {
		return nil, storeError("update", r.table, ErrEmptyID)
	}
	body, err := r.body(entity)
	if err != nil {
		return nil, err
	}

	var item *types.StoredItem[T]
	err = r.scopes.RunInScope(ctx, func(ctx context.Context) error {
		return r.scopes.Do(ctx, func(ctx context.Context, db bun.IDB) error {
			current, err := r.currentRow(ctx, db, id, expected)
			if err != nil {
				return err
			}

			next := expected.Next()
			ts := now()
			res, err := db.NewUpdate().
				Model((*database.DocumentRow)(nil)).
				ModelTableExpr("?", bun.Ident(r.table)).
				Set("body = ?", body).
				Set("version = ?", next.Int64()).
				Set("modified_at = ?", ts).
				Where("id = ?", id).
				Where("version = ?", expected.Int64()).
				Exec(ctx)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err != nil {
				return err
			} else if n == 0 {
				return conflict(r.table, id, expected, 0, "concurrent modification")
			}

			item = &types.StoredItem[T]{
				Item:       entity,
				Version:    next,
				CreatedAt:  current.CreatedAt,
				ModifiedAt: ts,
			}
			return nil
		})
	})
	if err != nil {
		return nil, storeError("update", r.table, err)
	}
	return item, nil
}

func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, id types.EntityID, expected types.Version) error {
	err := r.scopes.RunInScope(ctx, func(ctx context.Context) error {
		return r.scopes.Do(ctx, func(ctx context.Context, db bun.IDB) error {
			if _, err := r.currentRow(ctx, db, id, expected); err != nil {
				return err
			}
			res, err := db.NewDelete().
				Model((*database.DocumentRow)(nil)).
				ModelTableExpr("?", bun.Ident(r.table)).
				Where("id = ?", id).
				Where("version = ?", expected.Int64()).
				Exec(ctx)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err != nil {
				return err
			} else if n == 0 {
				return conflict(r.table, id, expected, 0, "concurrent modification")
			}
			return nil
		})
	})
	return storeError("delete", r.table, err)
}
