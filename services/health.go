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
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/coinbase/deposit-tracker-sdk/types"
)

// staleTickFactor: a monitor that has not completed a tick within this
// many check intervals is reported unhealthy.
const staleTickFactor = 3

// ChainHealth is one monitor's last known state.
type ChainHealth struct {
	Chain      types.ChainKey `json:"chain"`
	Network    types.Network  `json:"network"`
	Healthy    bool           `json:"healthy"`
	LastHeight uint64         `json:"last_height"`
	LastTick   time.Time      `json:"last_tick"`
	LastError  time.Time      `json:"last_error,omitempty"`
}

// HealthTracker collects per-monitor tick results for the health surface.
type HealthTracker struct {
	mu        sync.RWMutex
	intervals map[types.ChainID]time.Duration
	chains    map[types.ChainID]*ChainHealth
}

func NewHealthTracker() *HealthTracker {
	return &HealthTracker{
		intervals: make(map[types.ChainID]time.Duration),
		chains:    make(map[types.ChainID]*ChainHealth),
	}
}

// Register announces a monitored pair before its first tick.
func (h *HealthTracker) Register(id types.ChainID, checkInterval time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.intervals[id] = checkInterval
	h.chains[id] = &ChainHealth{Chain: id.Chain, Network: id.Network}
}

func (h *HealthTracker) RecordTick(id types.ChainID, height uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.chains[id]; ok {
		c.LastHeight = height
		c.LastTick = time.Now()
	}
}

func (h *HealthTracker) RecordFailure(id types.ChainID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.chains[id]; ok {
		c.LastError = time.Now()
	}
}

// Snapshot returns the state of one pair; ok is false for unknown pairs.
func (h *HealthTracker) Snapshot(id types.ChainID) (ChainHealth, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.chains[id]
	if !ok {
		return ChainHealth{}, false
	}
	out := *c
	out.Healthy = h.healthy(id, c)
	return out, true
}

// SnapshotAll returns every registered pair in a stable order.
func (h *HealthTracker) SnapshotAll() []ChainHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ChainHealth, 0, len(h.chains))
	for id, c := range h.chains {
		snap := *c
		snap.Healthy = h.healthy(id, c)
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Chain != out[j].Chain {
			return out[i].Chain < out[j].Chain
		}
		return out[i].Network < out[j].Network
	})
	return out
}

func (h *HealthTracker) healthy(id types.ChainID, c *ChainHealth) bool {
	if c.LastTick.IsZero() {
		return false
	}
	interval := h.intervals[id]
	return time.Since(c.LastTick) < staleTickFactor*interval
}

// NewHealthHandler serves the tracker state:
//
//	GET /v1/health                    every monitored pair
//	GET /v1/health/{chain}/{network}  one pair, 404 when not monitored
func NewHealthHandler(tracker *HealthTracker) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, tracker.SnapshotAll())
	}).Methods(http.MethodGet)

	r.HandleFunc("/v1/health/{chain}/{network}", func(w http.ResponseWriter, req *http.Request) {
		vars := mux.Vars(req)

		chain, err := types.NormalizeChainKey(vars["chain"])
		if err != nil {
			http.NotFound(w, req)
			return
		}

		id := types.ChainID{Chain: chain, Network: types.Network(vars["network"])}
		snap, ok := tracker.Snapshot(id)
		if !ok {
			http.NotFound(w, req)
			return
		}

		status := http.StatusOK
		if !snap.Healthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, snap)
	}).Methods(http.MethodGet)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
