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
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/coinbase/deposit-tracker-sdk/stats"
	"github.com/coinbase/deposit-tracker-sdk/storage"
	"github.com/coinbase/deposit-tracker-sdk/types"
)

const (
	// maxRegistryCacheTTL caps how stale a cached wallet or token row
	// may be served. The coordinator lowers the effective TTL to the
	// fastest chain's check interval so a newly registered wallet is
	// visible within one tick on every pair.
	maxRegistryCacheTTL = 30 * time.Second
	registryCacheSize   = 64

	xrpNativeDecimals = 6
)

// Filter matches normalized transactions against the wallet registry and
// records deposits. Wallet sets and token rows are cached with a TTL so a
// block burst does not hammer the database.
type Filter struct {
	gateway storage.Gateway
	log     *zap.Logger
	statsd  *statsd.Client

	wallets *expirable.LRU[string, map[string]types.Wallet]
	tokens  *expirable.LRU[string, *types.Token]
}

// NewFilter builds a Filter around the given gateway. registryTTL bounds
// how long wallet and token rows are cached; out-of-range values fall
// back to the cap.
func NewFilter(gateway storage.Gateway, registryTTL time.Duration, log *zap.Logger, statsdClient *statsd.Client) *Filter {
	if registryTTL <= 0 || registryTTL > maxRegistryCacheTTL {
		registryTTL = maxRegistryCacheTTL
	}
	return &Filter{
		gateway: gateway,
		log:     log,
		statsd:  statsdClient,
		wallets: expirable.NewLRU[string, map[string]types.Wallet](registryCacheSize, nil, registryTTL),
		tokens:  expirable.NewLRU[string, *types.Token](registryCacheSize, nil, registryTTL),
	}
}

// ProcessBlock scans one block and records every transfer that pays a
// tracked wallet in a tracked asset. It returns the number of deposits
// newly recorded.
func (f *Filter) ProcessBlock(ctx context.Context, id types.ChainID, block *types.Block) (int, error) {
	wallets, err := f.walletSet(ctx, id)
	if err != nil {
		return 0, err
	}
	if len(wallets) == 0 {
		return 0, nil
	}

	recorded := 0
	for _, tx := range block.Txs {
		candidates, err := f.matchTx(ctx, id, block, tx, wallets)
		if err != nil {
			return recorded, err
		}

		for i := range candidates {
			inserted, err := f.gateway.InsertDeposit(ctx, &candidates[i])
			if err != nil {
				return recorded, err
			}
			if !inserted {
				continue
			}
			recorded++
			stats.Incr(f.statsd, stats.MetricDepositFound,
				stats.TagChain, string(id.Chain), stats.TagNetwork, string(id.Network))
			f.log.Info("deposit recorded",
				zap.String("chain", id.String()),
				zap.String("tx_hash", candidates[i].TxHash),
				zap.Int64("wallet_id", candidates[i].WalletID),
				zap.String("amount", candidates[i].Amount.String()),
				zap.Uint64("block", block.Height),
			)
		}
	}

	return recorded, nil
}

// matchTx maps one normalized transaction to zero or more deposit rows.
func (f *Filter) matchTx(ctx context.Context, id types.ChainID, block *types.Block, tx types.Tx, wallets map[string]types.Wallet) ([]types.Deposit, error) {
	switch payload := tx.Payload.(type) {
	case types.NativeTransfer:
		wallet, ok := wallets[canonicalAddress(id.Chain, payload.To)]
		if !ok {
			return nil, nil
		}
		token, err := f.nativeToken(ctx, id.Chain)
		if err != nil {
			return nil, err
		}
		deposit := f.newDeposit(id, block, tx.Hash, wallet, token,
			types.AmountFromRaw(payload.AmountRaw, payload.Decimals),
			types.DepositMetadata{From: payload.From})
		return []types.Deposit{deposit}, nil

	case types.TokenTransfer:
		wallet, ok := wallets[canonicalAddress(id.Chain, payload.To)]
		if !ok {
			return nil, nil
		}
		token, err := f.findToken(ctx, storage.TokenFilter{
			Blockchain:      id.Chain,
			ContractAddress: payload.ContractAddress,
			Symbol:          payload.Symbol,
		})
		if err != nil {
			return nil, err
		}
		if token == nil {
			// Untracked contract or asset.
			return nil, nil
		}
		deposit := f.newDeposit(id, block, tx.Hash, wallet, token,
			types.AmountFromRaw(payload.AmountRaw, token.Decimals),
			types.DepositMetadata{From: payload.From, ContractAddress: payload.ContractAddress})
		return []types.Deposit{deposit}, nil

	case types.MultiOutput:
		return f.matchOutputs(ctx, id, block, tx.Hash, payload, wallets)

	case types.Payment:
		return f.matchPayment(ctx, id, block, tx.Hash, payload, wallets)
	}

	return nil, nil
}

// matchOutputs aggregates UTXO outputs per address first: one transaction
// paying a wallet through several outputs is a single deposit.
func (f *Filter) matchOutputs(ctx context.Context, id types.ChainID, block *types.Block, txHash string, payload types.MultiOutput, wallets map[string]types.Wallet) ([]types.Deposit, error) {
	totals := make(map[string]decimal.Decimal)
	var order []string
	for _, output := range payload.Outputs {
		if _, ok := wallets[output.Address]; !ok {
			continue
		}
		if _, seen := totals[output.Address]; !seen {
			order = append(order, output.Address)
		}
		totals[output.Address] = totals[output.Address].Add(output.Amount)
	}
	if len(totals) == 0 {
		return nil, nil
	}

	token, err := f.nativeToken(ctx, id.Chain)
	if err != nil {
		return nil, err
	}

	var deposits []types.Deposit
	for _, address := range order {
		deposits = append(deposits, f.newDeposit(id, block, txHash, wallets[address], token,
			totals[address], types.DepositMetadata{From: payload.InputFirstAddress}))
	}
	return deposits, nil
}

func (f *Filter) matchPayment(ctx context.Context, id types.ChainID, block *types.Block, txHash string, payload types.Payment, wallets map[string]types.Wallet) ([]types.Deposit, error) {
	wallet, ok := wallets[payload.To]
	if !ok {
		return nil, nil
	}

	if payload.AmountToken != nil {
		token, err := f.findToken(ctx, storage.TokenFilter{
			Blockchain: id.Chain,
			Symbol:     payload.AmountToken.Currency,
		})
		if err != nil {
			return nil, err
		}
		if token == nil {
			return nil, nil
		}
		deposit := f.newDeposit(id, block, txHash, wallet, token,
			payload.AmountToken.Value, types.DepositMetadata{From: payload.From})
		return []types.Deposit{deposit}, nil
	}

	drops, ok := new(big.Int).SetString(payload.AmountDrops, 10)
	if !ok {
		// Malformed data in one transaction must not sink the block.
		f.log.Warn("skipping payment with unparseable drops amount",
			zap.String("chain", id.String()),
			zap.String("tx_hash", txHash),
			zap.String("amount", payload.AmountDrops),
		)
		return nil, nil
	}
	token, err := f.nativeToken(ctx, id.Chain)
	if err != nil {
		return nil, err
	}
	deposit := f.newDeposit(id, block, txHash, wallet, token,
		types.AmountFromRaw(drops, xrpNativeDecimals),
		types.DepositMetadata{From: payload.From})
	return []types.Deposit{deposit}, nil
}

func (f *Filter) newDeposit(id types.ChainID, block *types.Block, txHash string, wallet types.Wallet, token *types.Token, amount decimal.Decimal, metadata types.DepositMetadata) types.Deposit {
	metadata.BlockHash = block.Hash
	return types.Deposit{
		UserID:         wallet.UserID,
		WalletID:       wallet.ID,
		TokenID:        token.ID,
		TxHash:         txHash,
		Amount:         amount,
		Blockchain:     id.Chain,
		Network:        id.Network,
		NetworkVersion: token.NetworkVersion,
		BlockNumber:    block.Height,
		Status:         types.StatusPending,
		Metadata:       metadata,
	}
}

// walletSet returns the chain's wallets keyed by canonical address.
func (f *Filter) walletSet(ctx context.Context, id types.ChainID) (map[string]types.Wallet, error) {
	if cached, ok := f.wallets.Get(id.String()); ok {
		return cached, nil
	}

	rows, err := f.gateway.FindWallets(ctx, id.Chain, id.Network)
	if err != nil {
		return nil, err
	}

	set := make(map[string]types.Wallet, len(rows))
	for _, w := range rows {
		set[canonicalAddress(id.Chain, w.Address)] = w
	}
	f.wallets.Add(id.String(), set)
	return set, nil
}

// nativeToken resolves the chain's base-asset token row, which must exist.
func (f *Filter) nativeToken(ctx context.Context, chain types.ChainKey) (*types.Token, error) {
	token, err := f.findToken(ctx, storage.TokenFilter{
		Blockchain:     chain,
		NetworkVersion: types.VersionNative,
	})
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, fmt.Errorf("%w: chain %s", types.ErrTokenNotConfigured, chain)
	}
	return token, nil
}

func (f *Filter) findToken(ctx context.Context, filter storage.TokenFilter) (*types.Token, error) {
	key := fmt.Sprintf("%s|%s|%s|%s",
		filter.Blockchain, filter.NetworkVersion,
		strings.ToLower(filter.ContractAddress), filter.Symbol)
	if cached, ok := f.tokens.Get(key); ok {
		return cached, nil
	}

	token, err := f.gateway.FindToken(ctx, filter)
	if err != nil {
		return nil, err
	}
	f.tokens.Add(key, token)
	return token, nil
}

// canonicalAddress normalizes an address for matching. EVM addresses are
// compared case-insensitively; every other chain is case-sensitive.
func canonicalAddress(chain types.ChainKey, address string) string {
	if chain.IsEVM() {
		return strings.ToLower(address)
	}
	return address
}
