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

package xrp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/coinbase/deposit-tracker-sdk/client"
	"github.com/coinbase/deposit-tracker-sdk/configuration"
	"github.com/coinbase/deposit-tracker-sdk/types"
)

const dialTimeout = 10 * time.Second

// Adapter speaks the rippled WebSocket API. One connection serves all
// commands; it is re-dialed on the next call after any failure.
type Adapter struct {
	id  types.ChainID
	url string

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID uint64
}

// NewAdapter builds an adapter for the configured WebSocket URL. The
// connection is dialed lazily on first use.
func NewAdapter(cfg configuration.ChainConfig) *Adapter {
	return &Adapter{
		id:  types.ChainID{Chain: cfg.Chain, Network: cfg.Network},
		url: cfg.URL,
	}
}

func (a *Adapter) ChainID() types.ChainID { return a.id }

func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
}

// TipHeight returns the latest validated ledger index.
func (a *Adapter) TipHeight(ctx context.Context) (uint64, error) {
	raw, err := a.call(ctx, wsRequest{Command: "server_info"})
	if err != nil {
		return 0, err
	}

	var info serverInfoResult
	if err := json.Unmarshal(raw, &info); err != nil {
		return 0, fmt.Errorf("%w: unable to decode server_info", err)
	}
	return info.Info.ValidatedLedger.Seq, nil
}

// FetchBlock loads the ledger at height with expanded transactions and
// normalizes successful Payments.
func (a *Adapter) FetchBlock(ctx context.Context, height uint64) (*types.Block, error) {
	raw, err := a.call(ctx, wsRequest{
		Command:      "ledger",
		LedgerIndex:  height,
		Transactions: true,
		Expand:       true,
	})
	if err != nil {
		return nil, err
	}

	var result ledgerResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: unable to decode ledger %d", err, height)
	}

	block := &types.Block{
		Height: height,
		Hash:   result.Ledger.LedgerHash,
	}

	for _, rawTx := range result.Ledger.Transactions {
		var tx ledgerTx
		if err := json.Unmarshal(rawTx, &tx); err != nil {
			return nil, fmt.Errorf("%w: unable to decode ledger %d transaction", err, height)
		}

		if tx.TransactionType != txTypePayment {
			continue
		}
		if tx.MetaData == nil || tx.MetaData.TransactionResult != resultSuccess {
			continue
		}

		// delivered_amount is authoritative for partial payments.
		amount := tx.Amount
		if len(tx.MetaData.DeliveredAmount) > 0 {
			amount = tx.MetaData.DeliveredAmount
		}

		payment, err := normalizeAmount(tx, amount)
		if err != nil {
			return nil, fmt.Errorf("%w: tx %s", err, tx.Hash)
		}

		block.Txs = append(block.Txs, types.Tx{Hash: tx.Hash, Payload: payment})
	}

	return block, nil
}

// Subscribe is unsupported; XRP monitors poll.
func (a *Adapter) Subscribe(_ context.Context, _ func(uint64)) (client.Subscription, error) {
	return nil, types.ErrSubscriptionUnsupported
}

func normalizeAmount(tx ledgerTx, amount json.RawMessage) (types.Payment, error) {
	payment := types.Payment{
		From: tx.Account,
		To:   tx.Destination,
	}

	if len(amount) == 0 {
		return payment, fmt.Errorf("payment carries no amount")
	}

	if amount[0] == '"' {
		var drops string
		if err := json.Unmarshal(amount, &drops); err != nil {
			return payment, fmt.Errorf("%w: unable to decode drops amount", err)
		}
		payment.AmountDrops = drops
		return payment, nil
	}

	var issued issuedAmount
	if err := json.Unmarshal(amount, &issued); err != nil {
		return payment, fmt.Errorf("%w: unable to decode issued amount", err)
	}
	value, err := decimal.NewFromString(issued.Value)
	if err != nil {
		return payment, fmt.Errorf("%w: invalid issued amount value", err)
	}
	payment.AmountToken = &types.IssuedAmount{
		Currency: issued.Currency,
		Issuer:   issued.Issuer,
		Value:    value,
	}
	return payment, nil
}

// call sends one command and reads frames until the matching response
// arrives. Stream notifications interleaved on the connection are skipped.
func (a *Adapter) call(ctx context.Context, req wsRequest) (json.RawMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()

		conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, a.url, nil)
		if err != nil {
			return nil, types.Transient(fmt.Errorf("%w: unable to dial %s", err, a.url))
		}
		a.conn = conn
	}

	a.nextID++
	req.ID = a.nextID

	// The zero time clears a deadline left on the cached connection by
	// an earlier bounded call.
	deadline, _ := ctx.Deadline()
	_ = a.conn.SetReadDeadline(deadline)
	_ = a.conn.SetWriteDeadline(deadline)

	if err := a.conn.WriteJSON(req); err != nil {
		a.reset()
		return nil, types.Transient(fmt.Errorf("%w: %s write failed", err, req.Command))
	}

	for {
		var resp wsResponse
		if err := a.conn.ReadJSON(&resp); err != nil {
			a.reset()
			return nil, types.Transient(fmt.Errorf("%w: %s read failed", err, req.Command))
		}
		if resp.ID != req.ID {
			continue
		}

		if resp.Status != "success" {
			if resp.Error == errLedgerMissing {
				return nil, types.ErrBlockNotFound
			}
			return nil, types.Transient(fmt.Errorf("%s failed: %s", req.Command, resp.Error))
		}
		return resp.Result, nil
	}
}

// reset drops the connection so the next call re-dials.
func (a *Adapter) reset() {
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
}
