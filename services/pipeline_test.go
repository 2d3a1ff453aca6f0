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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/coinbase/deposit-tracker-sdk/configuration"
	mocks "github.com/coinbase/deposit-tracker-sdk/mocks/client"
	"github.com/coinbase/deposit-tracker-sdk/storage"
	"github.com/coinbase/deposit-tracker-sdk/types"
)

var testChainID = types.ChainID{Chain: types.ChainEth, Network: types.Mainnet}

func newPipeline(adapter *mocks.ChainAdapter, gateway storage.Gateway, batchSize uint64) *Pipeline {
	cfg := configuration.ChainConfig{
		Chain:     types.ChainEth,
		Network:   types.Mainnet,
		BatchSize: batchSize,
	}
	filter := NewFilter(gateway, 0, zap.NewNop(), nil)
	return NewPipeline(adapter, filter, gateway, cfg, zap.NewNop(), nil)
}

func expectBlocks(adapter *mocks.ChainAdapter, from, to uint64) {
	for h := from; h <= to; h++ {
		adapter.On("FetchBlock", mock.Anything, h).
			Return(&types.Block{Height: h}, nil).Once()
	}
}

func TestSync_FirstRunStartsAtTip(t *testing.T) {
	ctx := context.Background()
	g := storage.NewMemoryGateway()

	adapter := &mocks.ChainAdapter{}
	adapter.On("ChainID").Return(testChainID)
	expectBlocks(adapter, 500, 500)

	p := newPipeline(adapter, g, 0)
	assert.NoError(t, p.Sync(ctx, 500))

	height, ok, err := g.GetCheckpoint(ctx, types.CheckpointKey(types.ChainEth, types.Mainnet))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(500), height)

	adapter.AssertExpectations(t)
}

func TestSync_WalksGapInOrder(t *testing.T) {
	ctx := context.Background()
	g := storage.NewMemoryGateway()
	key := types.CheckpointKey(types.ChainEth, types.Mainnet)
	assert.NoError(t, g.SetCheckpoint(ctx, key, 100))

	adapter := &mocks.ChainAdapter{}
	adapter.On("ChainID").Return(testChainID)
	expectBlocks(adapter, 101, 103)

	p := newPipeline(adapter, g, 0)
	assert.NoError(t, p.Sync(ctx, 103))

	height, _, _ := g.GetCheckpoint(ctx, key)
	assert.Equal(t, uint64(103), height)

	adapter.AssertExpectations(t)
}

func TestSync_BatchWindowCapsOneTick(t *testing.T) {
	ctx := context.Background()
	g := storage.NewMemoryGateway()
	key := types.CheckpointKey(types.ChainEth, types.Mainnet)
	assert.NoError(t, g.SetCheckpoint(ctx, key, 100))

	adapter := &mocks.ChainAdapter{}
	adapter.On("ChainID").Return(testChainID)
	expectBlocks(adapter, 101, 105)

	p := newPipeline(adapter, g, 5)
	assert.NoError(t, p.Sync(ctx, 200))

	// The rest of the gap is left for the next tick.
	height, _, _ := g.GetCheckpoint(ctx, key)
	assert.Equal(t, uint64(105), height)

	adapter.AssertExpectations(t)
}

func TestSync_StopsAtMissingBlock(t *testing.T) {
	ctx := context.Background()
	g := storage.NewMemoryGateway()
	key := types.CheckpointKey(types.ChainEth, types.Mainnet)
	assert.NoError(t, g.SetCheckpoint(ctx, key, 100))

	adapter := &mocks.ChainAdapter{}
	adapter.On("ChainID").Return(testChainID)
	expectBlocks(adapter, 101, 101)
	adapter.On("FetchBlock", mock.Anything, uint64(102)).
		Return(nil, types.ErrBlockNotFound).Once()

	p := newPipeline(adapter, g, 0)
	assert.NoError(t, p.Sync(ctx, 103))

	// The checkpoint holds at the last complete block.
	height, _, _ := g.GetCheckpoint(ctx, key)
	assert.Equal(t, uint64(101), height)

	adapter.AssertExpectations(t)
}

func TestSync_NothingToDo(t *testing.T) {
	ctx := context.Background()
	g := storage.NewMemoryGateway()
	key := types.CheckpointKey(types.ChainEth, types.Mainnet)
	assert.NoError(t, g.SetCheckpoint(ctx, key, 500))

	adapter := &mocks.ChainAdapter{}
	adapter.On("ChainID").Return(testChainID)

	p := newPipeline(adapter, g, 0)
	assert.NoError(t, p.Sync(ctx, 500))

	adapter.AssertNotCalled(t, "FetchBlock", mock.Anything, mock.Anything)
}

func TestSync_BoundsEachNodeCall(t *testing.T) {
	ctx := context.Background()
	g := storage.NewMemoryGateway()
	key := types.CheckpointKey(types.ChainEth, types.Mainnet)
	assert.NoError(t, g.SetCheckpoint(ctx, key, 100))

	adapter := &mocks.ChainAdapter{}
	adapter.On("ChainID").Return(testChainID)
	adapter.On("FetchBlock", mock.Anything, uint64(101)).
		Run(func(args mock.Arguments) {
			callCtx := args.Get(0).(context.Context)
			_, bounded := callCtx.Deadline()
			assert.True(t, bounded)
			<-callCtx.Done()
		}).
		Return(nil, context.DeadlineExceeded).Once()

	cfg := configuration.ChainConfig{
		Chain:      types.ChainEth,
		Network:    types.Mainnet,
		RPCTimeout: 20 * time.Millisecond,
	}
	filter := NewFilter(g, 0, zap.NewNop(), nil)
	p := NewPipeline(adapter, filter, g, cfg, zap.NewNop(), nil)

	// The stalled call is cut off at the timeout; the tick errors out
	// instead of hanging.
	err := p.Sync(ctx, 101)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	height, _, _ := g.GetCheckpoint(ctx, key)
	assert.Equal(t, uint64(100), height)
}

func TestRPCErrorKind(t *testing.T) {
	assert.Equal(t, "rate_limited", rpcErrorKind(types.RateLimited(errors.New("403"))))
	assert.Equal(t, "transient", rpcErrorKind(types.Transient(errors.New("timeout"))))
	assert.Equal(t, "fatal", rpcErrorKind(errors.New("corrupt payload")))
}

// droppedWriteGateway swallows checkpoint writes so the read-back check
// trips.
type droppedWriteGateway struct {
	*storage.MemoryGateway
}

func (g *droppedWriteGateway) SetCheckpoint(_ context.Context, _ string, _ uint64) error {
	return nil
}

func TestSync_CheckpointVerifyMismatch(t *testing.T) {
	ctx := context.Background()
	g := &droppedWriteGateway{MemoryGateway: storage.NewMemoryGateway()}

	adapter := &mocks.ChainAdapter{}
	adapter.On("ChainID").Return(testChainID)
	expectBlocks(adapter, 500, 500)

	p := newPipeline(adapter, g, 0)
	err := p.Sync(ctx, 500)
	assert.ErrorIs(t, err, types.ErrCheckpointMismatch)
}
