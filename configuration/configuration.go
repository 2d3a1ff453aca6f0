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

package configuration

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coinbase/deposit-tracker-sdk/types"
)

// Configuration determines how we set up the tracker: which chains run,
// where their nodes live, and how the storage and health surfaces bind.
type Configuration struct {
	// Chains holds one entry per (chain, network) pair that has an RPC
	// endpoint configured. Pairs without an endpoint are not monitored.
	Chains []ChainConfig

	// DatabaseURL is the Postgres DSN backing the storage gateway.
	DatabaseURL string

	// Port is the health server's listening port.
	Port int

	// StatsdAddress is the dogstatsd agent address. Empty disables
	// metric emission.
	StatsdAddress string

	// RPCTimeout bounds every individual RPC call.
	RPCTimeout time.Duration
}

// ChainConfig is the per-(chain, network) monitor configuration.
type ChainConfig struct {
	Chain   types.ChainKey
	Network types.Network

	// URL is the node endpoint: HTTP(S) JSON-RPC for EVM chains and
	// Bitcoin, the HTTP API base for TRON, a WebSocket URL for XRP.
	URL string

	// WSURL is the optional WebSocket endpoint for EVM newHeads
	// subscriptions. Empty means the monitor polls.
	WSURL string

	// RPCUser and RPCPass enable HTTP basic auth (Bitcoin nodes).
	RPCUser string
	RPCPass string

	// APIKey is sent as TRON-PRO-API-KEY on TRON requests.
	APIKey string

	// RequiredConfirmations is the threshold at which a deposit is
	// credited.
	RequiredConfirmations uint64

	// BlockDelay is slept between consecutive blocks of one tick.
	BlockDelay time.Duration

	// CheckInterval is the pull-mode tick period.
	CheckInterval time.Duration

	// BatchSize caps how many blocks one tick may process. Zero means
	// the full gap is processed.
	BatchSize uint64

	// RPCTimeout bounds each individual node call of this monitor.
	RPCTimeout time.Duration
}

// ConfirmationBlocks is the required-confirmation table. Values follow
// each chain's finality characteristics; testnets confirm faster so that
// integration environments stay responsive.
var ConfirmationBlocks = map[types.ChainKey]map[types.Network]uint64{
	types.ChainEth: {types.Mainnet: 12, types.Testnet: 5},
	types.ChainBsc: {types.Mainnet: 15, types.Testnet: 6},
	types.ChainBtc: {types.Mainnet: 3, types.Testnet: 2},
	types.ChainTrx: {types.Mainnet: 20, types.Testnet: 10},
	types.ChainXrp: {types.Mainnet: 4, types.Testnet: 2},
}

// Per-chain pacing defaults in milliseconds.
var (
	defaultBlockDelay = map[types.ChainKey]time.Duration{
		types.ChainEth: 1000 * time.Millisecond,
		types.ChainBsc: 500 * time.Millisecond,
		types.ChainBtc: 2000 * time.Millisecond,
		types.ChainTrx: 5000 * time.Millisecond,
		types.ChainXrp: 2000 * time.Millisecond,
	}

	defaultCheckInterval = map[types.ChainKey]time.Duration{
		types.ChainEth: 30 * time.Second,
		types.ChainBsc: 30 * time.Second,
		types.ChainBtc: 120 * time.Second,
		types.ChainTrx: 10 * time.Second,
		types.ChainXrp: 30 * time.Second,
	}

	// BTC catches up in 50-block windows; TRX is capped at 5 blocks a
	// tick to stay under the public API rate limit. XRP walks the full
	// gap ledger by ledger.
	defaultBatchSize = map[types.ChainKey]uint64{
		types.ChainEth: 100,
		types.ChainBsc: 100,
		types.ChainBtc: 50,
		types.ChainTrx: 5,
		types.ChainXrp: 0,
	}
)

const (
	// DefaultRPCTimeout bounds a single node call.
	DefaultRPCTimeout = 30 * time.Second

	// DefaultPort is the health server port.
	DefaultPort = 8080
)

// RequiredConfirmations looks up the confirmation threshold for a pair.
func RequiredConfirmations(chain types.ChainKey, network types.Network) uint64 {
	return ConfirmationBlocks[chain][network]
}

// LoadConfiguration builds a Configuration from the environment.
//
// Per pair: {CHAIN}_{NETWORK}_RPC_URL enables monitoring; optional
// {CHAIN}_{NETWORK}_WS_URL, {CHAIN}_{NETWORK}_RPC_USER / _RPC_PASS,
// {CHAIN}_{NETWORK}_BLOCK_DELAY_MS and _CHECK_INTERVAL_MS override the
// defaults. TRON_PRO_API_KEY applies to both TRX networks. DATABASE_URL
// and PORT configure the storage gateway and health server.
func LoadConfiguration() (*Configuration, error) {
	cfg := &Configuration{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StatsdAddress: os.Getenv("STATSD_ADDRESS"),
		Port:          DefaultPort,
		RPCTimeout:    DefaultRPCTimeout,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid PORT", err)
		}
		cfg.Port = p
	}

	for _, chain := range types.ChainKeys {
		for _, network := range []types.Network{types.Mainnet, types.Testnet} {
			cc, err := loadChain(chain, network)
			if err != nil {
				return nil, err
			}
			if cc != nil {
				cfg.Chains = append(cfg.Chains, *cc)
			}
		}
	}

	return cfg, nil
}

func loadChain(chain types.ChainKey, network types.Network) (*ChainConfig, error) {
	prefix := strings.ToUpper(string(chain)) + "_" + strings.ToUpper(string(network))
	url := os.Getenv(prefix + "_RPC_URL")
	if url == "" {
		return nil, nil
	}

	cc := &ChainConfig{
		Chain:                 chain,
		Network:               network,
		URL:                   url,
		WSURL:                 os.Getenv(prefix + "_WS_URL"),
		RPCUser:               os.Getenv(prefix + "_RPC_USER"),
		RPCPass:               os.Getenv(prefix + "_RPC_PASS"),
		RequiredConfirmations: RequiredConfirmations(chain, network),
		BlockDelay:            defaultBlockDelay[chain],
		CheckInterval:         defaultCheckInterval[chain],
		BatchSize:             defaultBatchSize[chain],
		RPCTimeout:            DefaultRPCTimeout,
	}

	if chain == types.ChainTrx {
		cc.APIKey = os.Getenv("TRON_PRO_API_KEY")
	}

	if v := os.Getenv(prefix + "_BLOCK_DELAY_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid %s_BLOCK_DELAY_MS", err, prefix)
		}
		cc.BlockDelay = time.Duration(ms) * time.Millisecond
	}

	if v := os.Getenv(prefix + "_CHECK_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid %s_CHECK_INTERVAL_MS", err, prefix)
		}
		cc.CheckInterval = time.Duration(ms) * time.Millisecond
	}

	return cc, nil
}
