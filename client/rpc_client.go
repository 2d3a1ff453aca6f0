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

package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

// JSONRPC is the interface for accessing go-ethereum's JSON RPC endpoint.
// https://github.com/ethereum/go-ethereum/blob/0169d579d0eed4f6366697985a7b0f0b99402783/rpc/client.go#L308
type JSONRPC interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
	BatchCallContext(ctx context.Context, b []rpc.BatchElem) error
	Close()
}

// RPCClient wraps a JSONRPC connection to an EVM node.
type RPCClient struct {
	JSONRPC
}

const (
	// DefaultHTTPTimeout is the default timeout for
	// HTTP requests.
	DefaultHTTPTimeout = 120 * time.Second

	// DefaultIdleConnTimeout is the maximum amount of time an idle
	// (keep-alive) connection will remain idle before closing
	// itself.
	DefaultIdleConnTimeout = 30 * time.Second

	// DefaultMaxConnections limits the number of concurrent
	// connections we will attempt to make. Most OS's have a
	// default connection limit of 128, so we set the default
	// below that.
	DefaultMaxConnections = 120
)

// NewHTTPClient returns an *http.Client with tuned idle-connection
// settings, shared by every HTTP-speaking adapter.
func NewHTTPClient() *http.Client {
	// Override transport idle connection settings
	//
	// See this conversation around why `.Clone()` is used here:
	// https://github.com/golang/go/issues/26013
	defaultTransport := http.DefaultTransport.(*http.Transport).Clone()
	defaultTransport.IdleConnTimeout = DefaultIdleConnTimeout
	defaultTransport.MaxIdleConns = DefaultMaxConnections
	defaultTransport.MaxIdleConnsPerHost = DefaultMaxConnections

	return &http.Client{
		Timeout:   DefaultHTTPTimeout,
		Transport: defaultTransport,
	}
}

// NewRPCClient connects a client to the given URL. WebSocket URLs get a
// subscription-capable connection; HTTP URLs get the tuned transport.
func NewRPCClient(ctx context.Context, endpoint string) (*RPCClient, error) {
	if isWebsocket(endpoint) {
		client, err := rpc.DialContext(ctx, endpoint)
		if err != nil {
			return nil, fmt.Errorf("%w: unable to dial node", err)
		}
		return &RPCClient{client}, nil
	}

	client, err := rpc.DialHTTPWithClient(endpoint, NewHTTPClient())
	if err != nil {
		return nil, fmt.Errorf("%w: unable to dial node", err)
	}
	return &RPCClient{client}, nil
}

func isWebsocket(endpoint string) bool {
	return len(endpoint) >= 5 && (endpoint[:5] == "ws://" || endpoint[:5] == "wss:/")
}
