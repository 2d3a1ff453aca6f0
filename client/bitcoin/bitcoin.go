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

package bitcoin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/rpcclient"

	"github.com/coinbase/deposit-tracker-sdk/client"
	"github.com/coinbase/deposit-tracker-sdk/configuration"
	"github.com/coinbase/deposit-tracker-sdk/types"
)

// blockVerbosity 2 returns full transaction objects inside getblock.
const blockVerbosity = 2

// Adapter speaks JSON-RPC to a Bitcoin Core compatible node. Raw requests
// are decoded into local types so that output values stay exact decimals;
// the stock btcjson result types round-trip amounts through float64.
type Adapter struct {
	id types.ChainID
	c  *rpcclient.Client
}

// NewAdapter connects to the configured node over HTTP POST.
func NewAdapter(cfg configuration.ChainConfig) (*Adapter, error) {
	host, disableTLS, err := splitHost(cfg.URL)
	if err != nil {
		return nil, err
	}

	c, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         host,
		User:         cfg.RPCUser,
		Pass:         cfg.RPCPass,
		HTTPPostMode: true,
		DisableTLS:   disableTLS,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to connect to %s", err, cfg.URL)
	}

	return &Adapter{
		id: types.ChainID{Chain: cfg.Chain, Network: cfg.Network},
		c:  c,
	}, nil
}

func (a *Adapter) ChainID() types.ChainID { return a.id }

func (a *Adapter) Close() { a.c.Shutdown() }

// TipHeight returns the node's best block height.
func (a *Adapter) TipHeight(ctx context.Context) (uint64, error) {
	raw, err := a.rawRequest(ctx, "getblockcount", nil)
	if err != nil {
		return 0, types.Transient(fmt.Errorf("%w: getblockcount failed", err))
	}

	var height uint64
	if err := json.Unmarshal(raw, &height); err != nil {
		return 0, fmt.Errorf("%w: unable to decode block count", err)
	}
	return height, nil
}

// FetchBlock resolves height to a hash and loads the verbose block.
func (a *Adapter) FetchBlock(ctx context.Context, height uint64) (*types.Block, error) {
	heightParam, err := json.Marshal(height)
	if err != nil {
		return nil, err
	}

	hashRaw, err := a.rawRequest(ctx, "getblockhash", []json.RawMessage{heightParam})
	if err != nil {
		if isHeightOutOfRange(err) {
			return nil, types.ErrBlockNotFound
		}
		return nil, types.Transient(fmt.Errorf("%w: getblockhash failed", err))
	}

	verbosityParam := json.RawMessage(strconv.Itoa(blockVerbosity))
	blockRaw, err := a.rawRequest(ctx, "getblock", []json.RawMessage{hashRaw, verbosityParam})
	if err != nil {
		return nil, types.Transient(fmt.Errorf("%w: getblock failed", err))
	}

	return decodeBlock(blockRaw)
}

// rawRequest issues one node call and honors ctx. rpcclient owns its
// HTTP transport and exposes no per-call deadline, so an unresponsive
// node is abandoned once ctx expires.
func (a *Adapter) rawRequest(ctx context.Context, method string, params []json.RawMessage) (json.RawMessage, error) {
	type reply struct {
		raw json.RawMessage
		err error
	}
	ch := make(chan reply, 1)
	go func() {
		raw, err := a.c.RawRequest(method, params)
		ch <- reply{raw: raw, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, types.Transient(fmt.Errorf("%w: %s abandoned", ctx.Err(), method))
	case r := <-ch:
		return r.raw, r.err
	}
}

// isHeightOutOfRange matches the -8 error getblockhash returns for a
// height past the node's tip. Any other node error stays transient.
func isHeightOutOfRange(err error) bool {
	var rpcErr *btcjson.RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == btcjson.ErrRPCInvalidParameter
}

// Subscribe is unsupported; Bitcoin monitors poll.
func (a *Adapter) Subscribe(_ context.Context, _ func(uint64)) (client.Subscription, error) {
	return nil, types.ErrSubscriptionUnsupported
}

// decodeBlock normalizes a verbose block into per-transaction output sets.
func decodeBlock(raw json.RawMessage) (*types.Block, error) {
	var body rpcBlock
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("%w: unable to decode block", err)
	}

	block := &types.Block{
		Height: body.Height,
		Hash:   body.Hash,
	}

	for _, tx := range body.Tx {
		var outputs []types.TxOutput
		for _, vout := range tx.Vout {
			if vout.Value.Sign() <= 0 {
				continue
			}
			for _, addr := range vout.ScriptPubKey.addressList() {
				if addr == "" {
					continue
				}
				outputs = append(outputs, types.TxOutput{
					Address: addr,
					Amount:  vout.Value,
				})
			}
		}
		if len(outputs) == 0 {
			continue
		}

		from := ""
		if len(tx.Vin) > 0 && tx.Vin[0].Prevout != nil {
			from = tx.Vin[0].Prevout.ScriptPubKey.address()
		}

		block.Txs = append(block.Txs, types.Tx{
			Hash: tx.Txid,
			Payload: types.MultiOutput{
				Outputs:           outputs,
				InputFirstAddress: from,
			},
		})
	}

	return block, nil
}

// splitHost extracts the host:port rpcclient expects and whether to speak
// plain HTTP.
func splitHost(endpoint string) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		// Bare host:port defaults to plain HTTP.
		return endpoint, true, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("%w: invalid node URL %s", err, endpoint)
	}

	switch u.Scheme {
	case "http":
		return u.Host, true, nil
	case "https":
		return u.Host, false, nil
	}
	return "", false, fmt.Errorf("unsupported node URL scheme %q", u.Scheme)
}
