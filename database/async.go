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
)

// Deferred is the pending result of a block started with Async.
type Deferred[R any] struct {
	done   chan struct{}
	result R
	err    error
}

// Done is closed once the block has finished.
func (d *Deferred[R]) Done() <-chan struct{} { return d.done }

// Await blocks until the block finishes or ctx ends. Abandoning the wait
// does not cancel the block; cancel the context given to Async for that.
func (d *Deferred[R]) Await(ctx context.Context) (R, error) {
	select {
	case <-d.done:
		return d.result, d.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

func (d *Deferred[R]) complete(result R, err error) {
	d.result, d.err = result, err
	close(d.done)
}

// Async runs block on its own goroutine with the same scoping rules as
// InScope. If ctx carries an open scope the block joins it, and the owner of
// that scope waits for the block before committing or rolling back; a
// failure of the block rolls back the owner's scope. Otherwise the block
// opens and releases a scope of its own.
func Async[R any](ctx context.Context, m *ScopeManager, block func(ctx context.Context) (R, error)) *Deferred[R] {
	d := &Deferred[R]{done: make(chan struct{})}
	if m == nil {
		var zero R
		d.complete(zero, ErrNotInitialized)
		return d
	}

	s, joined := m.Active(ctx)
	if joined && !s.enter() {
		// the owner is already releasing the scope
		var zero R
		d.complete(zero, ErrScopeClosed)
		return d
	}

	go func() {
		var (
			result R
			err    error
		)
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("async block panicked: %v", r)
				if joined {
					s.markFailed(err)
				}
			}
			if joined {
				s.leave()
			}
			d.complete(result, err)
		}()
		result, err = InScope(ctx, m, block)
	}()
	return d
}
