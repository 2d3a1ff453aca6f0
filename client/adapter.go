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

package client

import (
	"context"

	"github.com/coinbase/deposit-tracker-sdk/types"
)

// ChainAdapter is the capability set every chain family exposes to the
// ingestion pipeline, regardless of the underlying protocol. All methods
// are safe for use by a single monitor goroutine; adapters do not assume
// concurrent callers.
type ChainAdapter interface {
	// ChainID identifies the (chain, network) pair this adapter serves.
	ChainID() types.ChainID

	// TipHeight returns the current best block or validated ledger index.
	TipHeight(ctx context.Context) (uint64, error)

	// FetchBlock returns the normalized block at height, or
	// types.ErrBlockNotFound when the node does not have it yet.
	FetchBlock(ctx context.Context, height uint64) (*types.Block, error)

	// Subscribe registers a push callback for new heights. Adapters
	// without a push channel return types.ErrSubscriptionUnsupported and
	// the monitor polls TipHeight instead.
	Subscribe(ctx context.Context, onNewHeight func(uint64)) (Subscription, error)

	// Close releases node connections.
	Close()
}

// Subscription is a live push channel handle.
type Subscription interface {
	// Err delivers the terminal subscription error, if any.
	Err() <-chan error

	// Unsubscribe tears the channel down.
	Unsubscribe()
}
