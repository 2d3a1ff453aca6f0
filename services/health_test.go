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
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/coinbase/deposit-tracker-sdk/types"
)

func TestHealthHandler(t *testing.T) {
	tracker := NewHealthTracker()
	ethID := types.ChainID{Chain: types.ChainEth, Network: types.Mainnet}
	btcID := types.ChainID{Chain: types.ChainBtc, Network: types.Testnet}
	tracker.Register(ethID, 30*time.Second)
	tracker.Register(btcID, 120*time.Second)
	tracker.RecordTick(ethID, 1000000)

	handler := NewHealthHandler(tracker)

	// Healthy pair.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health/eth/mainnet", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var snap ChainHealth
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.True(t, snap.Healthy)
	assert.Equal(t, uint64(1000000), snap.LastHeight)

	// A pair that has never ticked reports unavailable.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health/btc/testnet", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// "bitcoin" aliases to the stored btc key.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health/bitcoin/testnet", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// Unmonitored and unknown pairs 404.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health/xrp/mainnet", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health/doge/mainnet", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The index lists every registered pair.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var all []ChainHealth
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)
	assert.Equal(t, types.ChainBtc, all[0].Chain)
	assert.Equal(t, types.ChainEth, all[1].Chain)
}
