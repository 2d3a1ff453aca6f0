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

import "github.com/shopspring/decimal"

// rpcBlock is the wire shape of getblock at verbosity 2.
type rpcBlock struct {
	Hash   string  `json:"hash"`
	Height uint64  `json:"height"`
	Tx     []rpcTx `json:"tx"`
}

type rpcTx struct {
	Txid string    `json:"txid"`
	Vin  []rpcVin  `json:"vin"`
	Vout []rpcVout `json:"vout"`
}

type rpcVin struct {
	Coinbase string `json:"coinbase,omitempty"`
	Txid     string `json:"txid,omitempty"`

	// Prevout is only present at verbosity 3; when available it supplies
	// the sending address.
	Prevout *rpcPrevout `json:"prevout,omitempty"`
}

type rpcPrevout struct {
	ScriptPubKey rpcScriptPubKey `json:"scriptPubKey"`
}

// rpcVout keeps the output value as an exact decimal. btcjson decodes the
// same field into float64, which loses satoshi precision on large values.
type rpcVout struct {
	Value        decimal.Decimal `json:"value"`
	N            uint32          `json:"n"`
	ScriptPubKey rpcScriptPubKey `json:"scriptPubKey"`
}

type rpcScriptPubKey struct {
	Type string `json:"type"`

	// Address replaced Addresses in Bitcoin Core 22; both forms are
	// accepted.
	Address   string   `json:"address,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
}

// addressList returns every address the output pays. Bare multisig
// outputs list more than one.
func (s rpcScriptPubKey) addressList() []string {
	if s.Address != "" {
		return []string{s.Address}
	}
	return s.Addresses
}

func (s rpcScriptPubKey) address() string {
	list := s.addressList()
	if len(list) == 0 {
		return ""
	}
	return list[0]
}
