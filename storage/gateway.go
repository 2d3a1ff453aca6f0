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

package storage

import (
	"context"

	"github.com/coinbase/deposit-tracker-sdk/types"
)

// TokenFilter selects one token from the registry. Blockchain is always
// set; exactly one of NetworkVersion, ContractAddress and Symbol narrows
// the match. Only active tokens are returned.
type TokenFilter struct {
	Blockchain      types.ChainKey
	NetworkVersion  types.NetworkVersion
	ContractAddress string
	Symbol          string
}

// Gateway is the persistence boundary of the tracker. Implementations must
// keep InsertDeposit idempotent and ConfirmAndCredit exactly-once under
// concurrent callers.
type Gateway interface {
	// FindWallets returns every deposit address for a (chain, network)
	// pair.
	FindWallets(ctx context.Context, chain types.ChainKey, network types.Network) ([]types.Wallet, error)

	// FindToken resolves a token by filter. A nil token with a nil error
	// means the asset is not tracked.
	FindToken(ctx context.Context, filter TokenFilter) (*types.Token, error)

	// FindTokenByID loads one token row. A nil token with a nil error
	// means the ID is unknown.
	FindTokenByID(ctx context.Context, id int64) (*types.Token, error)

	// InsertDeposit records a new deposit. It reports false when a row
	// with the same (tx_hash, wallet_id, token_id) already exists.
	InsertDeposit(ctx context.Context, deposit *types.Deposit) (bool, error)

	// RaiseConfirmations updates a deposit's confirmation count and
	// status. The stored count never decreases.
	RaiseConfirmations(ctx context.Context, id int64, confirmations uint64, status types.DepositStatus) error

	// FindUnconfirmedDeposits returns every pending or confirming deposit
	// for a (chain, network) pair.
	FindUnconfirmedDeposits(ctx context.Context, chain types.ChainKey, network types.Network) ([]types.Deposit, error)

	// ConfirmAndCredit marks the deposit confirmed and adds its amount to
	// the owner's balance in one transaction. It reports false when the
	// deposit was already confirmed; the balance is then left untouched.
	// A missing balance row confirms without crediting and returns
	// types.ErrBalanceNotFound.
	ConfirmAndCredit(ctx context.Context, deposit *types.Deposit, symbol string) (bool, error)

	// GetCheckpoint reads a system_settings height. The second result is
	// false when the key has never been written.
	GetCheckpoint(ctx context.Context, key string) (uint64, bool, error)

	// SetCheckpoint writes a system_settings height.
	SetCheckpoint(ctx context.Context, key string, height uint64) error

	Close() error
}
