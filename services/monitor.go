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
	"errors"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"go.uber.org/zap"

	"github.com/coinbase/deposit-tracker-sdk/client"
	"github.com/coinbase/deposit-tracker-sdk/configuration"
	"github.com/coinbase/deposit-tracker-sdk/stats"
	"github.com/coinbase/deposit-tracker-sdk/storage"
	"github.com/coinbase/deposit-tracker-sdk/types"
)

// Monitor runs one (chain, network) pair: it paces ticks, and each tick
// ingests new blocks and re-checks open deposits. New-head subscriptions
// trigger immediate ticks; the interval ticker is the floor that also
// covers chains and outages without a push channel.
type Monitor struct {
	adapter  client.ChainAdapter
	pipeline *Pipeline
	checker  *Checker
	cfg      configuration.ChainConfig
	log      *zap.Logger
	statsd   *statsd.Client
	health   *HealthTracker

	queue *tickQueue
}

// NewMonitor wires a monitor for one chain configuration.
func NewMonitor(adapter client.ChainAdapter, gateway storage.Gateway, filter *Filter, cfg configuration.ChainConfig, log *zap.Logger, statsdClient *statsd.Client, health *HealthTracker) *Monitor {
	m := &Monitor{
		adapter:  adapter,
		pipeline: NewPipeline(adapter, filter, gateway, cfg, log, statsdClient),
		checker:  NewChecker(gateway, cfg, log, statsdClient),
		cfg:      cfg,
		log:      log,
		statsd:   statsdClient,
		health:   health,
	}
	return m
}

// Run blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	id := m.adapter.ChainID()
	m.queue = newTickQueue(func() { m.tick(ctx) })

	var subErrs <-chan error
	sub, err := m.adapter.Subscribe(ctx, func(uint64) { m.queue.Notify() })
	switch {
	case err == nil:
		m.log.Info("push subscription active", zap.String("chain", id.String()))
		subErrs = sub.Err()
		defer sub.Unsubscribe()
	case errors.Is(err, types.ErrSubscriptionUnsupported):
		// Poll-only chain.
	default:
		m.log.Warn("subscription failed, polling instead",
			zap.String("chain", id.String()), zap.Error(err))
	}

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	m.queue.Notify()

	for {
		select {
		case <-ctx.Done():
			// Close first so a late subscription callback cannot race
			// the final wait.
			m.queue.Close()
			m.queue.Wait()
			return ctx.Err()
		case <-ticker.C:
			m.queue.Notify()
		case err, ok := <-subErrs:
			if !ok {
				subErrs = nil
				continue
			}
			m.log.Warn("subscription lost, polling instead",
				zap.String("chain", id.String()), zap.Error(err))
			subErrs = nil
		}
	}
}

// tick runs one ingest-and-confirm pass. Failures are logged and left for
// the next tick; the checkpoint guarantees nothing is skipped.
func (m *Monitor) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	id := m.adapter.ChainID()

	tip, err := m.tipHeight(ctx)
	if err != nil {
		m.log.Error("unable to resolve tip",
			zap.String("chain", id.String()), zap.Error(err))
		m.health.RecordFailure(id)
		return
	}

	if err := m.pipeline.Sync(ctx, tip); err != nil {
		m.log.Error("block sync failed",
			zap.String("chain", id.String()), zap.Error(err))
		m.health.RecordFailure(id)
		return
	}

	if err := m.checker.Check(ctx, tip); err != nil {
		m.log.Error("confirmation check failed",
			zap.String("chain", id.String()), zap.Error(err))
		m.health.RecordFailure(id)
		return
	}

	m.health.RecordTick(id, tip)
}

func (m *Monitor) tipHeight(ctx context.Context) (uint64, error) {
	var tip uint64
	timer := stats.InitClientTimer(m.statsd, "TipHeight")
	err := client.Retry(ctx, func() error {
		callCtx, cancel := boundCall(ctx, m.cfg.RPCTimeout)
		defer cancel()

		t, err := m.adapter.TipHeight(callCtx)
		if err != nil {
			return err
		}
		tip = t
		return nil
	})
	timer.Emit()
	if err != nil {
		stats.IncrementErrorCount(m.statsd, "TipHeight", rpcErrorKind(err))
	}
	return tip, err
}
