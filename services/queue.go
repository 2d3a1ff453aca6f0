// Copyright 2024 Coinbase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package services

import "sync"

// tickQueue coalesces tick requests so at most one tick runs at a time.
// A notification arriving mid-tick is remembered and the tick re-runs
// once after the current one exits, so no new-head signal is lost.
type tickQueue struct {
	mu         sync.Mutex
	pending    bool
	processing bool
	closed     bool
	wg         sync.WaitGroup

	run func()
}

func newTickQueue(run func()) *tickQueue {
	return &tickQueue{run: run}
}

// Notify requests a tick. It returns immediately; the tick runs on a
// separate goroutine. Notifications after Close are dropped.
func (q *tickQueue) Notify() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = true
	if q.processing {
		q.mu.Unlock()
		return
	}
	q.processing = true
	q.wg.Add(1)
	q.mu.Unlock()

	go q.drain()
}

func (q *tickQueue) drain() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if !q.pending {
			q.processing = false
			q.mu.Unlock()
			return
		}
		q.pending = false
		q.mu.Unlock()

		q.run()
	}
}

// Close stops accepting notifications. Closing before the final Wait
// keeps a straggling producer from adding work while Wait is blocked.
func (q *tickQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Wait blocks until the in-flight tick (if any) finishes.
func (q *tickQueue) Wait() {
	q.wg.Wait()
}
