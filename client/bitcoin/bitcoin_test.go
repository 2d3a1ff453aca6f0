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
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/coinbase/deposit-tracker-sdk/configuration"
	"github.com/coinbase/deposit-tracker-sdk/types"
)

func TestDecodeBlock(t *testing.T) {
	file, err := os.ReadFile("testdata/block_850000.json")
	assert.NoError(t, err)

	block, err := decodeBlock(file)
	assert.NoError(t, err)

	assert.Equal(t, uint64(850000), block.Height)
	assert.Equal(t, "00000000000000000002a7c4c1e48d76c5a37902165a270156b7a8d72728a054", block.Hash)

	// The nulldata-only transaction carries no spendable output and is
	// dropped.
	assert.Len(t, block.Txs, 2)

	coinbase, ok := block.Txs[0].Payload.(types.MultiOutput)
	assert.True(t, ok)
	assert.Len(t, coinbase.Outputs, 1)
	assert.Equal(t, "bc1qwzrryqr3ja8w7hnja2spmkgfdcgvqwp5swz4af4ngsjecfz0w0pqud7k38", coinbase.Outputs[0].Address)
	assert.True(t, coinbase.Outputs[0].Amount.Equal(decimal.RequireFromString("6.25")))

	spend, ok := block.Txs[1].Payload.(types.MultiOutput)
	assert.True(t, ok)
	assert.Len(t, spend.Outputs, 2)
	assert.Equal(t, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", spend.Outputs[0].Address)
	assert.True(t, spend.Outputs[0].Amount.Equal(decimal.RequireFromString("0.000175")))
	assert.Equal(t, "12cbQLTFMXRnSzktFkuoG3eHoMeFtpTu3S", spend.Outputs[1].Address)
	assert.True(t, spend.Outputs[1].Amount.Equal(decimal.RequireFromString("1.999825")))
}

func TestDecodeBlock_MultiAddressOutput(t *testing.T) {
	raw := json.RawMessage(`{
		"hash": "000000000000000000000000000000000000000000000000000000000000beef",
		"height": 850001,
		"tx": [{
			"txid": "multisig1",
			"vin": [],
			"vout": [{
				"value": 0.5,
				"n": 0,
				"scriptPubKey": {"type": "multisig", "addresses": ["1AddrOne", "1AddrTwo"]}
			}]
		}]
	}`)

	block, err := decodeBlock(raw)
	assert.NoError(t, err)
	assert.Len(t, block.Txs, 1)

	// Every address the output pays is a matching candidate.
	out, ok := block.Txs[0].Payload.(types.MultiOutput)
	assert.True(t, ok)
	assert.Len(t, out.Outputs, 2)
	assert.Equal(t, "1AddrOne", out.Outputs[0].Address)
	assert.Equal(t, "1AddrTwo", out.Outputs[1].Address)
	assert.True(t, out.Outputs[0].Amount.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, out.Outputs[1].Amount.Equal(decimal.RequireFromString("0.5")))
}

func TestIsHeightOutOfRange(t *testing.T) {
	out := &btcjson.RPCError{Code: btcjson.ErrRPCInvalidParameter, Message: "Block height out of range"}
	assert.True(t, isHeightOutOfRange(out))
	assert.True(t, isHeightOutOfRange(fmt.Errorf("getblockhash: %w", out)))

	// Other node failures must stay transient rather than skip silently.
	misc := &btcjson.RPCError{Code: btcjson.ErrRPCMisc, Message: "disk full"}
	assert.False(t, isHeightOutOfRange(misc))
	assert.False(t, isHeightOutOfRange(errors.New("connection refused")))
}

func TestTipHeightHonorsContext(t *testing.T) {
	stall := make(chan struct{})
	defer close(stall)
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-stall
	}))
	defer srv.Close()

	a, err := NewAdapter(configuration.ChainConfig{
		Chain:   types.ChainBtc,
		Network: types.Mainnet,
		URL:     srv.URL,
	})
	assert.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = a.TipHeight(ctx)
	assert.True(t, types.IsTransient(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSplitHost(t *testing.T) {
	tests := []struct {
		endpoint   string
		host       string
		disableTLS bool
	}{
		{"http://127.0.0.1:8332", "127.0.0.1:8332", true},
		{"https://btc.example.com:8332", "btc.example.com:8332", false},
		{"127.0.0.1:8332", "127.0.0.1:8332", true},
	}

	for _, tt := range tests {
		host, disableTLS, err := splitHost(tt.endpoint)
		assert.NoError(t, err)
		assert.Equal(t, tt.host, host)
		assert.Equal(t, tt.disableTLS, disableTLS)
	}

	_, _, err := splitHost("ftp://nope")
	assert.Error(t, err)
}
