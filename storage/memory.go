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
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coinbase/deposit-tracker-sdk/types"
)

// MemoryGateway is a mutex-guarded in-memory Gateway. It backs unit tests
// and local runs without a database; semantics mirror PostgresGateway.
type MemoryGateway struct {
	mu sync.Mutex

	wallets     []types.Wallet
	tokens      []types.Token
	deposits    map[int64]*types.Deposit
	balances    map[string]decimal.Decimal
	checkpoints map[string]uint64
	nextID      int64
}

type balanceKey struct {
	UserID int64
	Symbol string
}

func (k balanceKey) String() string {
	return fmt.Sprintf("%d/%s", k.UserID, k.Symbol)
}

// NewMemoryGateway returns an empty in-memory store.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		deposits:    make(map[int64]*types.Deposit),
		balances:    make(map[string]decimal.Decimal),
		checkpoints: make(map[string]uint64),
	}
}

func (g *MemoryGateway) Close() error { return nil }

// AddWallet seeds a wallet row. A zero ID is assigned automatically.
func (g *MemoryGateway) AddWallet(w types.Wallet) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if w.ID == 0 {
		g.nextID++
		w.ID = g.nextID
	}
	g.wallets = append(g.wallets, w)
}

// AddToken seeds a token row. A zero ID is assigned automatically.
func (g *MemoryGateway) AddToken(t types.Token) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t.ID == 0 {
		g.nextID++
		t.ID = g.nextID
	}
	g.tokens = append(g.tokens, t)
}

// AddBalance seeds a spot balance row; the in-memory store models no
// other balance type.
func (g *MemoryGateway) AddBalance(userID int64, symbol string, balance decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balances[balanceKey{UserID: userID, Symbol: symbol}.String()] = balance
}

// Balance reads a seeded balance back.
func (g *MemoryGateway) Balance(userID int64, symbol string) (decimal.Decimal, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.balances[balanceKey{UserID: userID, Symbol: symbol}.String()]
	return b, ok
}

// Deposit reads a deposit row back by ID.
func (g *MemoryGateway) Deposit(id int64) (types.Deposit, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.deposits[id]
	if !ok {
		return types.Deposit{}, false
	}
	return *d, true
}

func (g *MemoryGateway) FindWallets(_ context.Context, chain types.ChainKey, network types.Network) ([]types.Wallet, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []types.Wallet
	for _, w := range g.wallets {
		if w.Chain == chain && w.Network == network {
			out = append(out, w)
		}
	}
	return out, nil
}

func (g *MemoryGateway) FindToken(_ context.Context, filter TokenFilter) (*types.Token, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := range g.tokens {
		t := g.tokens[i]
		if t.Blockchain != filter.Blockchain || !t.IsActive {
			continue
		}
		switch {
		case filter.ContractAddress != "":
			if strings.EqualFold(t.ContractAddress, filter.ContractAddress) {
				return &t, nil
			}
		case filter.Symbol != "":
			if t.Symbol == filter.Symbol {
				return &t, nil
			}
		default:
			if t.NetworkVersion == filter.NetworkVersion {
				return &t, nil
			}
		}
	}
	return nil, nil
}

func (g *MemoryGateway) FindTokenByID(_ context.Context, id int64) (*types.Token, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := range g.tokens {
		if g.tokens[i].ID == id {
			t := g.tokens[i]
			return &t, nil
		}
	}
	return nil, nil
}

func (g *MemoryGateway) InsertDeposit(_ context.Context, deposit *types.Deposit) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, d := range g.deposits {
		if d.TxHash == deposit.TxHash && d.WalletID == deposit.WalletID && d.TokenID == deposit.TokenID {
			return false, nil
		}
	}

	g.nextID++
	deposit.ID = g.nextID
	deposit.CreatedAt = time.Now()
	deposit.UpdatedAt = deposit.CreatedAt

	stored := *deposit
	g.deposits[deposit.ID] = &stored
	return true, nil
}

func (g *MemoryGateway) RaiseConfirmations(_ context.Context, id int64, confirmations uint64, status types.DepositStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	d, ok := g.deposits[id]
	if !ok || d.Status == types.StatusConfirmed {
		return nil
	}
	if confirmations > d.Confirmations {
		d.Confirmations = confirmations
	}
	d.Status = status
	d.UpdatedAt = time.Now()
	return nil
}

func (g *MemoryGateway) FindUnconfirmedDeposits(_ context.Context, chain types.ChainKey, network types.Network) ([]types.Deposit, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []types.Deposit
	for _, d := range g.deposits {
		if d.Blockchain != chain || d.Network != network {
			continue
		}
		if d.Status != types.StatusPending && d.Status != types.StatusConfirming {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func (g *MemoryGateway) ConfirmAndCredit(_ context.Context, deposit *types.Deposit, symbol string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	d, ok := g.deposits[deposit.ID]
	if !ok {
		return false, fmt.Errorf("deposit %d not found", deposit.ID)
	}
	if d.Status == types.StatusConfirmed {
		return false, nil
	}

	d.Status = types.StatusConfirmed
	if deposit.Confirmations > d.Confirmations {
		d.Confirmations = deposit.Confirmations
	}
	d.UpdatedAt = time.Now()

	key := balanceKey{UserID: deposit.UserID, Symbol: symbol}.String()
	balance, ok := g.balances[key]
	if !ok {
		return false, fmt.Errorf("%w: user %d symbol %s", types.ErrBalanceNotFound, deposit.UserID, symbol)
	}
	g.balances[key] = balance.Add(deposit.Amount)
	return true, nil
}

func (g *MemoryGateway) GetCheckpoint(_ context.Context, key string) (uint64, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	height, ok := g.checkpoints[key]
	return height, ok, nil
}

func (g *MemoryGateway) SetCheckpoint(_ context.Context, key string, height uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checkpoints[key] = height
	return nil
}
