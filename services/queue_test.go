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

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTickQueue_Coalesces(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	var mu sync.Mutex
	runs := 0
	var q *tickQueue
	q = newTickQueue(func() {
		mu.Lock()
		runs++
		first := runs == 1
		mu.Unlock()
		if first {
			close(started)
			<-release
		}
	})

	q.Notify()
	<-started

	// Signals arriving mid-tick collapse into exactly one follow-up run.
	q.Notify()
	q.Notify()
	q.Notify()
	close(release)
	q.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, runs)
}

func TestTickQueue_RunsAgainAfterDrain(t *testing.T) {
	var mu sync.Mutex
	runs := 0
	q := newTickQueue(func() {
		mu.Lock()
		runs++
		mu.Unlock()
	})

	q.Notify()
	q.Wait()
	q.Notify()
	q.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, runs)
}

func TestTickQueue_ClosedDropsNotifications(t *testing.T) {
	var mu sync.Mutex
	runs := 0
	q := newTickQueue(func() {
		mu.Lock()
		runs++
		mu.Unlock()
	})

	q.Notify()
	q.Wait()

	q.Close()
	q.Notify()
	q.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, runs)
}

func TestTickQueue_WaitWithoutNotify(t *testing.T) {
	q := newTickQueue(func() { time.Sleep(time.Millisecond) })
	// Wait on an idle queue must not block.
	q.Wait()
}
