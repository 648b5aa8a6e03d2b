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
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tomoncle/docstore/types"
	"github.com/uptrace/bun"
)

// ErrScopeClosed is returned when a context still carries a scope that has
// already committed or rolled back, e.g. a context leaked into a goroutine
// that outlived its scope.
var ErrScopeClosed = errors.New("database: scope already closed")

// ErrNotInitialized is returned when no database has been connected yet.
var ErrNotInitialized = errors.New("database: not initialized")

// ScopeState is the lifecycle of a unit-of-work.
type ScopeState int

const (
	ScopeNone ScopeState = iota
	ScopeOpen
	ScopeCommitted
	ScopeRolledBack
)

var scopeStates = types.EnumTable{
	int(ScopeNone):       {Name: "none", Desc: "no scope"},
	int(ScopeOpen):       {Name: "open", Desc: "scope open"},
	int(ScopeCommitted):  {Name: "committed", Desc: "scope committed"},
	int(ScopeRolledBack): {Name: "rolled_back", Desc: "scope rolled back"},
}

var _ types.BaseEnum = ScopeState(0)

func (s ScopeState) IsValid() bool  { return scopeStates.Valid(int(s)) }
func (s ScopeState) Number() int    { return int(s) }
func (s ScopeState) Name() string   { return scopeStates.Name(int(s)) }
func (s ScopeState) Desc() string   { return scopeStates.Desc(int(s)) }
func (s ScopeState) String() string { return s.Name() }

// Scope is one unit-of-work: a single bun.Tx owned by the RunInScope call
// that opened it and joined by every nested call sharing its context.
type Scope struct {
	id string
	tx bun.Tx

	// stmtMu serializes statements on tx; a transaction is bound to one
	// connection and must not be used concurrently.
	stmtMu sync.Mutex

	mu       sync.Mutex
	state    ScopeState
	failure  error
	pending  int
	draining bool
	drained  chan struct{}
}

func (s *Scope) ID() string { return s.id }

func (s *Scope) State() ScopeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Failure returns the first error reported by a joined block, if any. A
// scope with a failure is rolled back when its owner completes.
func (s *Scope) Failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

func (s *Scope) isOpen() bool {
	return s.State() == ScopeOpen
}

func (s *Scope) markFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure == nil {
		s.failure = err
	}
}

// enter registers a block that runs concurrently with the owner, such as
// an Async call. It fails once the owner started draining and nothing is
// left running, because the scope is about to be released.
func (s *Scope) enter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != ScopeOpen || (s.draining && s.pending == 0) {
		return false
	}
	s.pending++
	return true
}

func (s *Scope) leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending--
	if s.pending == 0 && s.drained != nil {
		close(s.drained)
		s.drained = nil
	}
}

// drain blocks until every entered block has left.
func (s *Scope) drain() {
	s.mu.Lock()
	s.draining = true
	if s.pending == 0 {
		s.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	s.drained = ch
	s.mu.Unlock()
	<-ch
}

// finish releases the transaction exactly once.
func (s *Scope) finish(commit bool) error {
	s.stmtMu.Lock()
	defer s.stmtMu.Unlock()

	s.mu.Lock()
	if s.state != ScopeOpen {
		s.mu.Unlock()
		return ErrScopeClosed
	}
	s.mu.Unlock()

	var err error
	state := ScopeRolledBack
	if commit {
		if err = s.tx.Commit(); err == nil {
			state = ScopeCommitted
		}
	} else {
		err = s.tx.Rollback()
		if errors.Is(err, sql.ErrTxDone) {
			// database/sql already rolled back because the context ended.
			err = nil
		}
	}

	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	return err
}

type scopeKey struct {
	db *bun.DB
}

// ScopeManager opens, joins, commits and rolls back scopes against one
// bun.DB. The active scope lives in the context.Context, so independent
// goroutines with independent contexts never see each other's scope.
type ScopeManager struct {
	db     *bun.DB
	opts   *sql.TxOptions
	logger Logger
}

// NewScopeManager returns a manager for db. opts may be nil for the driver
// default isolation level.
func NewScopeManager(db *bun.DB, opts *sql.TxOptions, logger Logger) *ScopeManager {
	if logger == nil {
		logger = nopLogger{}
	}
	return &ScopeManager{db: db, opts: opts, logger: logger}
}

func (m *ScopeManager) DB() *bun.DB { return m.db }

// ScopeFrom returns the scope carried by ctx for this manager's database,
// whether or not it is still open.
func (m *ScopeManager) ScopeFrom(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey{m.db}).(*Scope)
	return s, ok
}

// Active returns the open scope carried by ctx.
func (m *ScopeManager) Active(ctx context.Context) (*Scope, bool) {
	s, ok := m.ScopeFrom(ctx)
	if !ok || !s.isOpen() {
		return nil, false
	}
	return s, true
}

// RunInScope runs block inside a scope. Without an open scope in ctx a new
// transaction is begun, committed when block returns nil and rolled back
// otherwise; the error is returned unchanged. With an open scope block joins
// it: no new boundary is created, and a failure marks the whole outer scope
// for rollback even if the caller discards the error.
func (m *ScopeManager) RunInScope(ctx context.Context, block func(ctx context.Context) error) error {
	if s, ok := m.Active(ctx); ok {
		return m.join(ctx, s, block)
	}
	return m.open(ctx, block)
}

func (m *ScopeManager) join(ctx context.Context, s *Scope, block func(ctx context.Context) error) error {
	err := block(ctx)
	if err != nil {
		s.markFailed(err)
	}
	return err
}

func (m *ScopeManager) open(ctx context.Context, block func(ctx context.Context) error) (err error) {
	tx, err := m.db.BeginTx(ctx, m.opts)
	if err != nil {
		return fmt.Errorf("failed to begin scope: %w", err)
	}
	s := &Scope{id: uuid.NewString(), tx: tx, state: ScopeOpen}
	scoped := context.WithValue(ctx, scopeKey{m.db}, s)
	m.logger.Debug("Scope opened", "scope", s.id)

	completed := false
	defer func() {
		if completed {
			return
		}
		// block panicked or called runtime.Goexit.
		r := recover()
		s.drain()
		if rbErr := s.finish(false); rbErr != nil {
			m.logger.Error("Failed to rollback scope", "scope", s.id, "error", rbErr)
		}
		m.logger.Warn("Scope rolled back after panic", "scope", s.id, "panic", r)
		if r != nil {
			panic(r)
		}
	}()

	err = block(scoped)
	s.drain()
	completed = true

	if err == nil {
		err = s.Failure()
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if rbErr := s.finish(false); rbErr != nil {
			m.logger.Error("Failed to rollback scope", "scope", s.id, "error", rbErr)
		}
		m.logger.Debug("Scope rolled back", "scope", s.id, "cause", err)
		return err
	}

	if err := s.finish(true); err != nil {
		m.logger.Error("Failed to commit scope", "scope", s.id, "error", err)
		return fmt.Errorf("failed to commit scope %s: %w", s.id, err)
	}
	m.logger.Debug("Scope committed", "scope", s.id)
	return nil
}

// Do runs fn with the store handle for ctx: the open scope's transaction,
// or the connection pool when ctx carries no scope. Statements on a scope
// are serialized. fn must not call back into RunInScope or Do.
func (m *ScopeManager) Do(ctx context.Context, fn func(ctx context.Context, db bun.IDB) error) error {
	s, ok := m.ScopeFrom(ctx)
	if !ok {
		return fn(ctx, m.db)
	}
	s.stmtMu.Lock()
	defer s.stmtMu.Unlock()
	if !s.isOpen() {
		return ErrScopeClosed
	}
	return fn(ctx, s.tx)
}

// InScope is RunInScope for blocks that produce a value.
func InScope[R any](ctx context.Context, m *ScopeManager, block func(ctx context.Context) (R, error)) (R, error) {
	var result R
	err := m.RunInScope(ctx, func(ctx context.Context) error {
		var err error
		result, err = block(ctx)
		return err
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return result, nil
}
