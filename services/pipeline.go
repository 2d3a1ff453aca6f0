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
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"go.uber.org/zap"

	"github.com/coinbase/deposit-tracker-sdk/client"
	"github.com/coinbase/deposit-tracker-sdk/configuration"
	"github.com/coinbase/deposit-tracker-sdk/stats"
	"github.com/coinbase/deposit-tracker-sdk/storage"
	"github.com/coinbase/deposit-tracker-sdk/types"
)

// Pipeline walks one chain's blocks strictly in order and advances the
// checkpoint only after a block is fully processed. A crash therefore
// replays at most the block in flight, and InsertDeposit's idempotency
// absorbs the replay.
type Pipeline struct {
	adapter       client.ChainAdapter
	filter        *Filter
	gateway       storage.Gateway
	cfg           configuration.ChainConfig
	log           *zap.Logger
	statsd        *statsd.Client
	checkpointKey string
}

// NewPipeline builds a pipeline for one (chain, network) pair.
func NewPipeline(adapter client.ChainAdapter, filter *Filter, gateway storage.Gateway, cfg configuration.ChainConfig, log *zap.Logger, statsdClient *statsd.Client) *Pipeline {
	return &Pipeline{
		adapter:       adapter,
		filter:        filter,
		gateway:       gateway,
		cfg:           cfg,
		log:           log,
		statsd:        statsdClient,
		checkpointKey: types.CheckpointKey(cfg.Chain, cfg.Network),
	}
}

// Sync processes blocks from the checkpoint up to tip, bounded by the
// chain's batch window. The first run starts at the current tip rather
// than replaying history.
func (p *Pipeline) Sync(ctx context.Context, tip uint64) error {
	id := p.adapter.ChainID()

	checkpoint, ok, err := p.gateway.GetCheckpoint(ctx, p.checkpointKey)
	if err != nil {
		return err
	}

	start := tip
	if ok {
		start = checkpoint + 1
	}
	if start > tip {
		return nil
	}

	end := tip
	if p.cfg.BatchSize > 0 && end-start+1 > p.cfg.BatchSize {
		end = start + p.cfg.BatchSize - 1
	}

	for height := start; height <= end; height++ {
		if height > start {
			if err := sleepCtx(ctx, p.cfg.BlockDelay); err != nil {
				return err
			}
		}

		timer := stats.NewTimer(p.statsd, stats.MetricBlockTiming,
			stats.TagChain, string(id.Chain), stats.TagNetwork, string(id.Network))

		block, err := p.fetchBlock(ctx, height)
		if errors.Is(err, types.ErrBlockNotFound) {
			// The node has not seen this height yet; the next tick
			// resumes here.
			p.log.Warn("block not yet available",
				zap.String("chain", id.String()),
				zap.Uint64("height", height),
			)
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := p.filter.ProcessBlock(ctx, id, block); err != nil {
			return fmt.Errorf("%w: unable to process block %d", err, height)
		}

		if err := p.advanceCheckpoint(ctx, height); err != nil {
			return err
		}

		timer.Emit()
		stats.Incr(p.statsd, stats.MetricBlockProcessed,
			stats.TagChain, string(id.Chain), stats.TagNetwork, string(id.Network))
	}

	stats.Gauge(p.statsd, stats.MetricCheckpointLag, float64(tip-end),
		stats.TagChain, string(id.Chain), stats.TagNetwork, string(id.Network))
	return nil
}

func (p *Pipeline) fetchBlock(ctx context.Context, height uint64) (*types.Block, error) {
	var block *types.Block
	timer := stats.InitClientTimer(p.statsd, "FetchBlock")
	err := client.Retry(ctx, func() error {
		callCtx, cancel := boundCall(ctx, p.cfg.RPCTimeout)
		defer cancel()

		b, err := p.adapter.FetchBlock(callCtx, height)
		if err != nil {
			return err
		}
		block = b
		return nil
	})
	timer.Emit()
	if err != nil && !errors.Is(err, types.ErrBlockNotFound) {
		stats.IncrementErrorCount(p.statsd, "FetchBlock", rpcErrorKind(err))
	}
	return block, err
}

// boundCall derives the per-call context so a dead node connection cannot
// stall a tick indefinitely.
func boundCall(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = configuration.DefaultRPCTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func rpcErrorKind(err error) string {
	switch {
	case types.IsRateLimited(err):
		return "rate_limited"
	case types.IsTransient(err):
		return "transient"
	}
	return "fatal"
}

// advanceCheckpoint writes the new height and reads it back. A mismatch
// means another writer owns the key and this monitor must stop advancing.
func (p *Pipeline) advanceCheckpoint(ctx context.Context, height uint64) error {
	if err := p.gateway.SetCheckpoint(ctx, p.checkpointKey, height); err != nil {
		return err
	}

	stored, ok, err := p.gateway.GetCheckpoint(ctx, p.checkpointKey)
	if err != nil {
		return err
	}
	if !ok || stored != height {
		return fmt.Errorf("%w: %s wrote %d read %d", types.ErrCheckpointMismatch, p.checkpointKey, height, stored)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
