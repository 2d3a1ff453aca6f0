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

package tron

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"

	"github.com/coinbase/deposit-tracker-sdk/client"
	"github.com/coinbase/deposit-tracker-sdk/configuration"
	"github.com/coinbase/deposit-tracker-sdk/types"
)

// addressPrefix is the version byte of TRON base58check addresses; hex
// addresses carry it as a leading 0x41 byte.
const addressPrefix = 0x41

const apiKeyHeader = "TRON-PRO-API-KEY"

// Adapter speaks the TronGrid-style HTTP API. Public endpoints reject
// over-quota callers with 403, which is surfaced as a rate-limit error so
// the retry schedule stretches instead of giving up.
type Adapter struct {
	id     types.ChainID
	base   string
	apiKey string
	http   *http.Client
}

// NewAdapter builds an adapter for the configured HTTP API base URL.
func NewAdapter(cfg configuration.ChainConfig) *Adapter {
	return &Adapter{
		id:     types.ChainID{Chain: cfg.Chain, Network: cfg.Network},
		base:   strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		http:   client.NewHTTPClient(),
	}
}

func (a *Adapter) ChainID() types.ChainID { return a.id }

func (a *Adapter) Close() { a.http.CloseIdleConnections() }

// TipHeight returns the number of the node's latest block.
func (a *Adapter) TipHeight(ctx context.Context) (uint64, error) {
	var block rpcBlock
	if err := a.post(ctx, "/wallet/getnowblock", nil, &block); err != nil {
		return 0, err
	}
	if block.BlockID == "" {
		return 0, types.Transient(fmt.Errorf("getnowblock returned no block"))
	}
	return block.BlockHeader.RawData.Number, nil
}

// FetchBlock loads the block at height and normalizes its transfer
// contracts.
func (a *Adapter) FetchBlock(ctx context.Context, height uint64) (*types.Block, error) {
	var block rpcBlock
	req := map[string]uint64{"num": height}
	if err := a.post(ctx, "/wallet/getblockbynum", req, &block); err != nil {
		return nil, err
	}
	if block.BlockID == "" {
		// Past-tip heights come back as an empty object.
		return nil, types.ErrBlockNotFound
	}

	out := &types.Block{
		Height: block.BlockHeader.RawData.Number,
		Hash:   block.BlockID,
	}

	for _, tx := range block.Transactions {
		if len(tx.Ret) > 0 && tx.Ret[0].ContractRet != contractRetSuccess {
			continue
		}
		for _, contract := range tx.RawData.Contract {
			payload, err := normalizeContract(contract)
			if err != nil {
				return nil, fmt.Errorf("%w: tx %s", err, tx.TxID)
			}
			if payload == nil {
				continue
			}
			out.Txs = append(out.Txs, types.Tx{Hash: tx.TxID, Payload: payload})
		}
	}

	return out, nil
}

// Subscribe is unsupported; TRON monitors poll.
func (a *Adapter) Subscribe(_ context.Context, _ func(uint64)) (client.Subscription, error) {
	return nil, types.ErrSubscriptionUnsupported
}

func normalizeContract(contract rpcContract) (types.TxPayload, error) {
	if contract.Type != contractTransfer && contract.Type != contractTransferAsset {
		return nil, nil
	}

	var value transferValue
	if err := json.Unmarshal(contract.Parameter.Value, &value); err != nil {
		return nil, fmt.Errorf("%w: unable to decode %s", err, contract.Type)
	}
	if value.Amount <= 0 {
		return nil, nil
	}

	from, err := HexToBase58(value.OwnerAddress)
	if err != nil {
		return nil, err
	}
	to, err := HexToBase58(value.ToAddress)
	if err != nil {
		return nil, err
	}

	if contract.Type == contractTransfer {
		return types.NativeTransfer{
			From:      from,
			To:        to,
			AmountRaw: big.NewInt(value.Amount),
			Decimals:  NativeDecimals,
		}, nil
	}

	symbol, err := decodeAssetName(value.AssetName)
	if err != nil {
		return nil, err
	}
	return types.TokenTransfer{
		From:      from,
		To:        to,
		Symbol:    symbol,
		AmountRaw: big.NewInt(value.Amount),
		Standard:  types.VersionTRC20,
	}, nil
}

// HexToBase58 converts a 41-prefixed hex address to the base58check form
// wallets are stored in.
func HexToBase58(hexAddr string) (string, error) {
	b, err := hex.DecodeString(hexAddr)
	if err != nil {
		return "", fmt.Errorf("%w: invalid hex address %s", err, hexAddr)
	}
	if len(b) != 21 || b[0] != addressPrefix {
		return "", fmt.Errorf("unexpected address bytes %s", hexAddr)
	}
	return base58.CheckEncode(b[1:], addressPrefix), nil
}

// decodeAssetName decodes the hex-encoded asset identifier of a
// TransferAssetContract.
func decodeAssetName(hexName string) (string, error) {
	b, err := hex.DecodeString(hexName)
	if err != nil {
		return "", fmt.Errorf("%w: invalid asset name %s", err, hexName)
	}
	return string(b), nil
}

func (a *Adapter) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set(apiKeyHeader, a.apiKey)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return types.Transient(fmt.Errorf("%w: %s failed", err, path))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return types.RateLimited(fmt.Errorf("%s returned 403", path))
	}
	if resp.StatusCode != http.StatusOK {
		return types.Transient(fmt.Errorf("%s returned %d", path, resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: unable to decode %s response", err, path)
	}
	return nil
}
