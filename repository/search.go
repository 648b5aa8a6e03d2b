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
	"math"
	"strings"

	"github.com/pkg/errors"
	"github.com/tomoncle/docstore/database"
	"github.com/tomoncle/docstore/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/schema"
)

var sortableColumns = map[string]struct{}{
	types.ColumnID:         {},
	types.ColumnVersion:    {},
	types.ColumnCreatedAt:  {},
	types.ColumnModifiedAt: {},
}

// fieldExpr returns the expression reading field from the body column.
// Dotted names address nested properties. Filter expressions yield text on
// every dialect; ordering expressions keep JSON numbers numeric where the
// dialect allows it.
func fieldExpr(name dialect.Name, field types.Field, ordering bool) (schema.QueryWithArgs, error) {
	body := bun.Ident(types.ColumnBody)
	parts := strings.Split(string(field), ".")
	path := "$." + string(field)

	switch name {
	case dialect.SQLite:
		return bun.SafeQuery("json_extract(?, ?)", body, path), nil
	case dialect.PG:
		pgPath := "{" + strings.Join(parts, ",") + "}"
		if ordering {
			return bun.SafeQuery("(?::jsonb #> ?)", body, pgPath), nil
		}
		return bun.SafeQuery("(?::jsonb #>> ?)", body, pgPath), nil
	case dialect.MySQL:
		if ordering {
			return bun.SafeQuery("JSON_EXTRACT(?, ?)", body, path), nil
		}
		return bun.SafeQuery("JSON_UNQUOTE(JSON_EXTRACT(?, ?))", body, path), nil
	default:
		return schema.QueryWithArgs{}, errors.Errorf("repository: body fields are not supported on %s", name)
	}
}

// applyFilter adds filter to q, replacing types.Field arguments with field
// expressions.
func (r *baseRepositoryImpl[T]) applyFilter(q *bun.SelectQuery, filter *types.QueryFilter) (*bun.SelectQuery, error) {
	if filter == nil || filter.Schema == "" {
		return q, nil
	}
	args := make([]interface{}, len(filter.Args))
	for i, arg := range filter.Args {
		field, ok := arg.(types.Field)
		if !ok {
			args[i] = arg
			continue
		}
		expr, err := fieldExpr(r.Dialect().Name(), field, false)
		if err != nil {
			return nil, err
		}
		args[i] = expr
	}
	return q.Where(filter.Schema, args...), nil
}

// applyOrder orders q by key with id as the tie breaker, both in the same
// direction, so a descending search is the exact reverse of an ascending one.
func (r *baseRepositoryImpl[T]) applyOrder(q *bun.SelectQuery, key types.SortKey, desc bool) (*bun.SelectQuery, error) {
	direction := "ASC"
	if desc {
		direction = "DESC"
	}

	switch {
	case key.IsField():
		expr, err := fieldExpr(r.Dialect().Name(), key.Field(), true)
		if err != nil {
			return nil, err
		}
		q = q.OrderExpr("? "+direction, expr)
	case key.IsZero(), key.Column() == types.ColumnID:
	default:
		if err := validateSort(key); err != nil {
			return nil, err
		}
		q = q.OrderExpr("? "+direction, bun.Ident(key.Column()))
	}
	return q.OrderExpr("? "+direction, bun.Ident(types.ColumnID)), nil
}

func validateSort(key types.SortKey) error {
	if key.IsField() || key.IsZero() {
		return nil
	}
	if _, ok := sortableColumns[key.Column()]; !ok {
		return errors.Wrapf(ErrInvalidSort, "column %q", key.Column())
	}
	return nil
}

// applyWindow applies limit and offset. An offset without limit still needs
// a LIMIT clause on SQLite and MySQL.
func applyWindow(q *bun.SelectQuery, limit, offset int) *bun.SelectQuery {
	if limit > 0 {
		q = q.Limit(limit)
	} else if offset > 0 {
		q = q.Limit(math.MaxInt32)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	return q
}

func (r *baseRepositoryImpl[T]) search(ctx context.Context, db bun.IDB, req *types.SearchRequest) ([]*types.StoredItem[T], error) {
	var rows []database.DocumentRow
	q, err := r.applyFilter(r.newSelect(db, &rows), req.Filter)
	if err != nil {
		return nil, err
	}
	if q, err = r.applyOrder(q, req.Sort, req.Desc); err != nil {
		return nil, err
	}
	if err := applyWindow(q, req.Limit, req.GetOffset()).Scan(ctx); err != nil {
		return nil, err
	}
	return r.toItems(rows)
}

func (r *baseRepositoryImpl[T]) count(ctx context.Context, db bun.IDB, filter *types.QueryFilter) (int, error) {
	q, err := r.applyFilter(r.newSelect(db, (*database.DocumentRow)(nil)), filter)
	if err != nil {
		return 0, err
	}
	return q.Count(ctx)
}

func (r *baseRepositoryImpl[T]) Search(ctx context.Context, req *types.SearchRequest) ([]*types.StoredItem[T], error) {
	if req == nil {
		req = types.NewSearchRequest()
	}
	var items []*types.StoredItem[T]
	err := r.scopes.Do(ctx, func(ctx context.Context, db bun.IDB) error {
		var err error
		items, err = r.search(ctx, db, req)
		return err
	})
	if err != nil {
		return nil, searchError("search", r.table, err)
	}
	return items, nil
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, filter *types.QueryFilter) (int, error) {
	var total int
	err := r.scopes.Do(ctx, func(ctx context.Context, db bun.IDB) error {
		var err error
		total, err = r.count(ctx, db, filter)
		return err
	})
	if err != nil {
		return 0, searchError("count", r.table, err)
	}
	return total, nil
}

func (r *baseRepositoryImpl[T]) SearchWithCount(ctx context.Context, req *types.SearchRequest) (*types.Pagination[T], error) {
	if req == nil {
		req = types.NewSearchRequest()
	}
	if err := validateSort(req.Sort); err != nil {
		return nil, err
	}
	pagination := types.NewDefaultPagination[T](req.Limit, req.GetOffset())
	err := r.scopes.RunInScope(ctx, func(ctx context.Context) error {
		return r.scopes.Do(ctx, func(ctx context.Context, db bun.IDB) error {
			total, err := r.count(ctx, db, req.Filter)
			if err != nil {
				return err
			}
			pagination.Total = total
			if total == 0 || req.GetOffset() >= total {
				return nil
			}
			items, err := r.search(ctx, db, req)
			if err != nil {
				return err
			}
			pagination.Items = items
			return nil
		})
	})
	if err != nil {
		return nil, searchError("search with count", r.table, err)
	}
	return pagination, nil
}

// searchError keeps ErrInvalidSort unwrapped by StoreError, since it is a
// misuse and not a store failure.
func searchError(op, table string, err error) error {
	if errors.Is(err, ErrInvalidSort) {
		return err
	}
	return storeError(op, table, err)
}
