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

package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNilClientHelpers(t *testing.T) {
	// Local runs carry no statsd client; every helper must be a no-op.
	timer := InitClientTimer(nil, "FetchBlock")
	timer.Emit()
	NewTimer(nil, MetricBlockTiming, TagChain, "eth").Emit()
	IncrementErrorCount(nil, "TipHeight", "transient")
	Incr(nil, MetricDepositFound, TagChain, "eth")
	Gauge(nil, MetricCheckpointLag, 3, TagChain, "eth")
}

func TestGetTags(t *testing.T) {
	tags := getTags(TagChain, "eth", TagNetwork, "mainnet")
	assert.Equal(t, map[string]string{TagChain: "eth", TagNetwork: "mainnet"}, tags)

	// An odd option list yields no tags rather than a panic.
	assert.Empty(t, getTags(TagChain))
}

func TestMakeTagsSlice(t *testing.T) {
	base := []string{"env:test"}
	out := makeTagsSlice(base, map[string]string{"chain": "btc"})
	assert.ElementsMatch(t, []string{"env:test", "chain:btc"}, out)

	assert.Equal(t, base, makeTagsSlice(base, nil))
}
