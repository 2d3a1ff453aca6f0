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
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coinbase/deposit-tracker-sdk/client"
	"github.com/coinbase/deposit-tracker-sdk/client/bitcoin"
	"github.com/coinbase/deposit-tracker-sdk/client/evm"
	"github.com/coinbase/deposit-tracker-sdk/client/tron"
	"github.com/coinbase/deposit-tracker-sdk/client/xrp"
	"github.com/coinbase/deposit-tracker-sdk/configuration"
	"github.com/coinbase/deposit-tracker-sdk/storage"
	"github.com/coinbase/deposit-tracker-sdk/types"
)

// Coordinator owns one monitor per configured (chain, network) pair. A
// pair whose node cannot be reached at startup is skipped with an error
// log; the remaining pairs still run.
type Coordinator struct {
	monitors []*Monitor
	adapters []client.ChainAdapter
	health   *HealthTracker
	log      *zap.Logger
}

// NewCoordinator connects an adapter for every configured pair and wires
// its monitor.
func NewCoordinator(ctx context.Context, cfg *configuration.Configuration, gateway storage.Gateway, log *zap.Logger, statsdClient *statsd.Client) (*Coordinator, error) {
	c := &Coordinator{
		health: NewHealthTracker(),
		log:    log,
	}
	filter := NewFilter(gateway, registryTTL(cfg.Chains), log, statsdClient)

	for _, chainCfg := range cfg.Chains {
		adapter, err := newAdapter(ctx, chainCfg)
		if err != nil {
			log.Error("skipping chain, adapter init failed",
				zap.String("chain", string(chainCfg.Chain)),
				zap.String("network", string(chainCfg.Network)),
				zap.Error(err),
			)
			continue
		}

		if err := testConnection(ctx, adapter, cfg.RPCTimeout); err != nil {
			log.Error("skipping chain, node unreachable",
				zap.String("chain", string(chainCfg.Chain)),
				zap.String("network", string(chainCfg.Network)),
				zap.Error(err),
			)
			adapter.Close()
			continue
		}

		c.health.Register(adapter.ChainID(), chainCfg.CheckInterval)
		c.adapters = append(c.adapters, adapter)
		c.monitors = append(c.monitors, NewMonitor(adapter, gateway, filter, chainCfg, log, statsdClient, c.health))

		log.Info("monitoring chain",
			zap.String("chain", string(chainCfg.Chain)),
			zap.String("network", string(chainCfg.Network)),
		)
	}

	if len(c.monitors) == 0 {
		return nil, fmt.Errorf("no chain could be monitored")
	}
	return c, nil
}

// Health exposes the tracker backing the health endpoint.
func (c *Coordinator) Health() *HealthTracker { return c.health }

// Run blocks until ctx is cancelled or a monitor fails terminally.
func (c *Coordinator) Run(ctx context.Context) error {
	defer func() {
		for _, adapter := range c.adapters {
			adapter.Close()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, monitor := range c.monitors {
		monitor := monitor
		g.Go(func() error {
			return monitor.Run(gctx)
		})
	}
	return g.Wait()
}

func newAdapter(ctx context.Context, cfg configuration.ChainConfig) (client.ChainAdapter, error) {
	switch {
	case cfg.Chain.IsEVM():
		return evm.NewAdapter(ctx, cfg)
	case cfg.Chain == types.ChainBtc:
		return bitcoin.NewAdapter(cfg)
	case cfg.Chain == types.ChainTrx:
		return tron.NewAdapter(cfg), nil
	case cfg.Chain == types.ChainXrp:
		return xrp.NewAdapter(cfg), nil
	}
	return nil, fmt.Errorf("no adapter for chain %s", cfg.Chain)
}

// registryTTL keeps cached registry rows fresh within one tick of the
// fastest-polling chain.
func registryTTL(chains []configuration.ChainConfig) time.Duration {
	ttl := maxRegistryCacheTTL
	for _, c := range chains {
		if c.CheckInterval > 0 && c.CheckInterval < ttl {
			ttl = c.CheckInterval
		}
	}
	return ttl
}

func testConnection(ctx context.Context, adapter client.ChainAdapter, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := adapter.TipHeight(pingCtx)
	return err
}
