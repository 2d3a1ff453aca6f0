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

package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common/hexutil"
	EthTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/sync/semaphore"

	"github.com/coinbase/deposit-tracker-sdk/client"
	"github.com/coinbase/deposit-tracker-sdk/configuration"
	"github.com/coinbase/deposit-tracker-sdk/types"
)

const maxReceiptConcurrency = 4

// Adapter speaks JSON-RPC to a go-ethereum compatible node (Ethereum or
// BNB Smart Chain) and normalizes blocks into native and token transfers.
type Adapter struct {
	id       types.ChainID
	c        *client.RPCClient
	wsURL    string
	standard types.NetworkVersion

	receiptSem *semaphore.Weighted
}

// NewAdapter connects to the configured node. When cfg.WSURL is set a
// second, subscription-capable connection is dialed lazily on Subscribe.
func NewAdapter(ctx context.Context, cfg configuration.ChainConfig) (*Adapter, error) {
	c, err := client.NewRPCClient(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to connect to %s", err, cfg.URL)
	}

	standard := types.VersionERC20
	if cfg.Chain == types.ChainBsc {
		standard = types.VersionBEP20
	}

	return &Adapter{
		id:         types.ChainID{Chain: cfg.Chain, Network: cfg.Network},
		c:          c,
		wsURL:      cfg.WSURL,
		standard:   standard,
		receiptSem: semaphore.NewWeighted(maxReceiptConcurrency),
	}, nil
}

func (a *Adapter) ChainID() types.ChainID { return a.id }

func (a *Adapter) Close() { a.c.Close() }

// TipHeight returns the node's best block number.
func (a *Adapter) TipHeight(ctx context.Context) (uint64, error) {
	var head hexutil.Uint64
	if err := a.c.CallContext(ctx, &head, "eth_blockNumber"); err != nil {
		return 0, types.Transient(fmt.Errorf("%w: eth_blockNumber failed", err))
	}
	return uint64(head), nil
}

// FetchBlock loads the block at height with full transaction bodies and
// normalizes it. Transactions with calldata are resolved through their
// receipts so that ERC-20 Transfer events are captured.
func (a *Adapter) FetchBlock(ctx context.Context, height uint64) (*types.Block, error) {
	var raw json.RawMessage
	err := a.c.CallContext(ctx, &raw, "eth_getBlockByNumber", hexutil.EncodeUint64(height), true)
	if err != nil {
		return nil, types.Transient(fmt.Errorf("%w: eth_getBlockByNumber failed", err))
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, types.ErrBlockNotFound
	}

	var body RPCBlock
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("%w: unable to decode block %d", err, height)
	}

	block := &types.Block{
		Height: height,
		Hash:   strings.ToLower(body.Hash.Hex()),
	}

	var candidates []RPCTransaction
	for _, tx := range body.Transactions {
		if tx.Tx == nil || tx.Tx.To() == nil || tx.TxHash == nil {
			// Contract creations have no recipient to match.
			continue
		}

		if len(tx.Tx.Data()) > 0 {
			candidates = append(candidates, tx)
			continue
		}

		if tx.Tx.Value().Sign() == 0 {
			continue
		}

		from := ""
		if tx.From != nil {
			from = strings.ToLower(tx.From.Hex())
		}
		block.Txs = append(block.Txs, types.Tx{
			Hash: strings.ToLower(tx.TxHash.Hex()),
			Payload: types.NativeTransfer{
				From:      from,
				To:        strings.ToLower(tx.Tx.To().Hex()),
				AmountRaw: tx.Tx.Value(),
				Decimals:  NativeDecimals,
			},
		})
	}

	tokenTxs, err := a.tokenTransfers(ctx, candidates)
	if err != nil {
		return nil, err
	}
	block.Txs = append(block.Txs, tokenTxs...)

	return block, nil
}

// tokenTransfers fetches receipts for every calldata-carrying transaction
// in batches and emits one Tx per ERC-20 Transfer log.
func (a *Adapter) tokenTransfers(ctx context.Context, candidates []RPCTransaction) ([]types.Tx, error) {
	var out []types.Tx

	for start := 0; start < len(candidates); start += receiptBatchSize {
		end := start + receiptBatchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		chunk := candidates[start:end]

		if err := a.receiptSem.Acquire(ctx, 1); err != nil {
			return nil, err
		}

		receipts := make([]*EthTypes.Receipt, len(chunk))
		reqs := make([]rpc.BatchElem, len(chunk))
		for i, tx := range chunk {
			receipts[i] = &EthTypes.Receipt{}
			reqs[i] = rpc.BatchElem{
				Method: "eth_getTransactionReceipt",
				Args:   []interface{}{tx.TxHash.Hex()},
				Result: receipts[i],
			}
		}

		err := a.c.BatchCallContext(ctx, reqs)
		a.receiptSem.Release(1)
		if err != nil {
			return nil, types.Transient(fmt.Errorf("%w: receipt batch failed", err))
		}

		for i, req := range reqs {
			if req.Error != nil {
				return nil, types.Transient(fmt.Errorf("%w: receipt for %s failed", req.Error, chunk[i].TxHash.Hex()))
			}
			out = append(out, a.transfersFromReceipt(chunk[i], receipts[i])...)
		}
	}

	return out, nil
}

func (a *Adapter) transfersFromReceipt(tx RPCTransaction, receipt *EthTypes.Receipt) []types.Tx {
	if receipt.Status != EthTypes.ReceiptStatusSuccessful {
		return nil
	}

	var out []types.Tx
	for _, log := range receipt.Logs {
		if log.Removed || len(log.Topics) != NumTopicsERC20Transfer {
			continue
		}
		if log.Topics[0] != Erc20TransferLogTopic {
			continue
		}

		from := ConvertEVMTopicHashToAddress(&log.Topics[1])
		to := ConvertEVMTopicHashToAddress(&log.Topics[2])
		amount := new(big.Int).SetBytes(log.Data)

		out = append(out, types.Tx{
			Hash: strings.ToLower(tx.TxHash.Hex()),
			Payload: types.TokenTransfer{
				From:            strings.ToLower(from.Hex()),
				To:              strings.ToLower(to.Hex()),
				ContractAddress: strings.ToLower(log.Address.Hex()),
				AmountRaw:       amount,
				Standard:        a.standard,
			},
		})
	}
	return out
}

// Subscribe opens a newHeads subscription on the WebSocket endpoint. When
// no WebSocket URL is configured the adapter is poll-only.
func (a *Adapter) Subscribe(ctx context.Context, onNewHeight func(uint64)) (client.Subscription, error) {
	if a.wsURL == "" {
		return nil, types.ErrSubscriptionUnsupported
	}

	ec, err := ethclient.DialContext(ctx, a.wsURL)
	if err != nil {
		return nil, types.Transient(fmt.Errorf("%w: unable to dial %s", err, a.wsURL))
	}

	heads := make(chan *EthTypes.Header, 16)
	sub, err := ec.SubscribeNewHead(ctx, heads)
	if err != nil {
		ec.Close()
		return nil, types.Transient(fmt.Errorf("%w: newHeads subscription failed", err))
	}

	s := &headSubscription{
		sub:  sub,
		ec:   ec,
		errs: make(chan error, 1),
		done: make(chan struct{}),
	}

	go func() {
		defer close(s.errs)
		for {
			select {
			case head, ok := <-heads:
				if !ok {
					return
				}
				onNewHeight(head.Number.Uint64())
			case err := <-sub.Err():
				if err != nil {
					s.errs <- err
				}
				return
			case <-s.done:
				return
			}
		}
	}()

	return s, nil
}

type headSubscription struct {
	sub  ethereum.Subscription
	ec   *ethclient.Client
	errs chan error
	done chan struct{}
}

func (s *headSubscription) Err() <-chan error { return s.errs }

func (s *headSubscription) Unsubscribe() {
	s.sub.Unsubscribe()
	close(s.done)
	s.ec.Close()
}
