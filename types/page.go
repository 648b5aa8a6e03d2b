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

package types

// Row columns of a document table.
const (
	ColumnID         = "id"
	ColumnBody       = "body"
	ColumnVersion    = "version"
	ColumnCreatedAt  = "created_at"
	ColumnModifiedAt = "modified_at"
)

// QueryFilter describes a WHERE clause schema and its argument values.
// Arguments of type Field are replaced by the dialect expression that reads
// that field from the stored body, e.g.
//
//	NewQueryFilter("? = ?", Field("name"), "One")
type QueryFilter struct {
	Schema string
	Args   []interface{}
}

// NewQueryFilter creates a new query filter with schema and args.
func NewQueryFilter(schema string, args ...interface{}) *QueryFilter {
	return &QueryFilter{schema, args}
}

// Field names a property of the serialized body. Dots separate the keys
// of nested objects, so "owner.name" reads body.owner.name.
type Field string

// SortKey selects the ordering of a search: either a row column or a body
// field. The zero value orders by id.
type SortKey struct {
	column string
	field  Field
}

// SortByColumn orders by one of the row columns (ColumnID, ColumnVersion,
// ColumnCreatedAt, ColumnModifiedAt).
func SortByColumn(column string) SortKey {
	return SortKey{column: column}
}

// SortByField orders by a property of the serialized body.
func SortByField(field string) SortKey {
	return SortKey{field: Field(field)}
}

func (k SortKey) Column() string { return k.column }

func (k SortKey) Field() Field { return k.field }

func (k SortKey) IsField() bool { return k.field != "" }

func (k SortKey) IsZero() bool { return k.column == "" && k.field == "" }

// SearchRequest is the query object of a search: filter, ordering and
// pagination. Limit <= 0 means no limit.
type SearchRequest struct {
	Filter *QueryFilter
	Sort   SortKey
	Desc   bool
	Limit  int
	Offset int
}

// NewSearchRequest returns a request matching every row, ordered by id.
func NewSearchRequest() *SearchRequest {
	return &SearchRequest{}
}

func (r *SearchRequest) Where(schema string, args ...interface{}) *SearchRequest {
	r.Filter = NewQueryFilter(schema, args...)
	return r
}

func (r *SearchRequest) OrderBy(key SortKey, desc bool) *SearchRequest {
	r.Sort = key
	r.Desc = desc
	return r
}

func (r *SearchRequest) Window(limit, offset int) *SearchRequest {
	r.Limit = limit
	r.Offset = offset
	return r
}

// Page sets limit and offset from a 1-based page number. Pages below 1 are
// treated as 1 and sizes below 1 as 10.
func (r *SearchRequest) Page(page, pageSize int) *SearchRequest {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	return r.Window(pageSize, (page-1)*pageSize)
}

func (r *SearchRequest) GetOffset() int {
	if r.Offset < 0 {
		return 0
	}
	return r.Offset
}

// Pagination holds one page of stored items along with the total number of
// matches ignoring limit and offset.
type Pagination[T any] struct {
	Limit  int
	Offset int
	Total  int
	Items  []*StoredItem[T]
}

// NewDefaultPagination constructs an empty pagination container.
func NewDefaultPagination[T any](limit int, offset int) *Pagination[T] {
	return &Pagination[T]{limit, offset, 0, make([]*StoredItem[T], 0)}
}
