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

package types

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeChainKey(t *testing.T) {
	key, err := NormalizeChainKey("bitcoin")
	assert.NoError(t, err)
	assert.Equal(t, ChainBtc, key)

	for _, name := range []string{"eth", "bsc", "btc", "trx", "xrp"} {
		key, err := NormalizeChainKey(name)
		assert.NoError(t, err)
		assert.Equal(t, ChainKey(name), key)
	}

	_, err = NormalizeChainKey("doge")
	assert.Error(t, err)

	// Aliases only apply to the one documented name.
	_, err = NormalizeChainKey("Bitcoin")
	assert.Error(t, err)
}

func TestCheckpointKey(t *testing.T) {
	assert.Equal(t, "last_processed_block_eth_mainnet", CheckpointKey(ChainEth, Mainnet))
	assert.Equal(t, "last_processed_block_btc_testnet", CheckpointKey(ChainBtc, Testnet))
}

func TestIsEVM(t *testing.T) {
	assert.True(t, ChainEth.IsEVM())
	assert.True(t, ChainBsc.IsEVM())
	assert.False(t, ChainBtc.IsEVM())
	assert.False(t, ChainTrx.IsEVM())
	assert.False(t, ChainXrp.IsEVM())
}

func TestAmountFromRaw(t *testing.T) {
	// One wei shy of 2 ETH survives the conversion exactly.
	raw, ok := new(big.Int).SetString("1999999999999999999", 10)
	assert.True(t, ok)
	amount := AmountFromRaw(raw, 18)
	assert.True(t, amount.Equal(decimal.RequireFromString("1.999999999999999999")))

	assert.True(t, AmountFromRaw(big.NewInt(1500000), 6).Equal(decimal.RequireFromString("1.5")))
	assert.True(t, AmountFromRaw(big.NewInt(0), 8).IsZero())
}

func TestCreditSymbol(t *testing.T) {
	token := &Token{Symbol: "USDT-TRC20", BaseSymbol: "USDT"}
	assert.Equal(t, "USDT", token.CreditSymbol())

	token = &Token{Symbol: "ETH"}
	assert.Equal(t, "ETH", token.CreditSymbol())
}

func TestTransientErrors(t *testing.T) {
	base := fmt.Errorf("connection refused")

	assert.True(t, IsTransient(Transient(base)))
	assert.False(t, IsRateLimited(Transient(base)))
	assert.True(t, IsRateLimited(RateLimited(base)))
	assert.True(t, IsTransient(RateLimited(base)))

	// Classification survives wrapping.
	wrapped := fmt.Errorf("%w: getblock failed", Transient(base))
	assert.True(t, IsTransient(wrapped))
	assert.True(t, errors.Is(wrapped, base) || errors.As(wrapped, new(*TransientError)))

	assert.False(t, IsTransient(base))
	assert.Nil(t, Transient(nil))
	assert.Nil(t, RateLimited(nil))
}
