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
	"fmt"

	"github.com/pkg/errors"
	"github.com/tomoncle/docstore/types"
)

var (
	// ErrConflict matches every *ConflictError.
	ErrConflict = errors.New("repository: conflict")

	// ErrInvalidSort is returned for a sort key naming an unknown column.
	ErrInvalidSort = errors.New("repository: invalid sort column")

	// ErrEmptyID is returned when an entity without id is written.
	ErrEmptyID = errors.New("repository: empty entity id")
)

// ConflictError reports a write rejected by the optimistic lock: the row is
// missing, already exists, or carries another version than expected.
type ConflictError struct {
	Table    string
	ID       types.EntityID
	Expected types.Version
	// Actual is the stored version, zero when the row does not exist.
	Actual types.Version
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("repository: conflict on %s/%s: %s (expected version %d, actual %d)",
		e.Table, e.ID, e.Reason, e.Expected, e.Actual)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// StoreError wraps a failure of the backing store or of the serializer.
type StoreError struct {
	Op    string
	Table string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("repository: %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func conflict(table string, id types.EntityID, expected, actual types.Version, reason string) error {
	return &ConflictError{Table: table, ID: id, Expected: expected, Actual: actual, Reason: reason}
}

// storeError wraps err into a *StoreError carrying a stack trace. Conflicts
// and StoreErrors raised deeper in the call chain are returned as they are.
func storeError(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ConflictError
	if errors.As(err, &ce) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return errors.WithStack(&StoreError{Op: op, Table: table, Err: err})
}
