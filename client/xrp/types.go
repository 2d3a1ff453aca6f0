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

package xrp

import "encoding/json"

const (
	txTypePayment    = "Payment"
	resultSuccess    = "tesSUCCESS"
	errLedgerMissing = "lgrNotFound"
)

// wsRequest is one rippled WebSocket API command.
type wsRequest struct {
	ID           uint64 `json:"id"`
	Command      string `json:"command"`
	LedgerIndex  uint64 `json:"ledger_index,omitempty"`
	Transactions bool   `json:"transactions,omitempty"`
	Expand       bool   `json:"expand,omitempty"`
}

// wsResponse is the envelope every command response arrives in. Stream
// messages carry no ID and are skipped by the correlation loop.
type wsResponse struct {
	ID     uint64          `json:"id"`
	Type   string          `json:"type"`
	Status string          `json:"status"`
	Error  string          `json:"error"`
	Result json.RawMessage `json:"result"`
}

type serverInfoResult struct {
	Info struct {
		ValidatedLedger struct {
			Seq uint64 `json:"seq"`
		} `json:"validated_ledger"`
	} `json:"info"`
}

type ledgerResult struct {
	Ledger struct {
		LedgerHash   string            `json:"ledger_hash"`
		Transactions []json.RawMessage `json:"transactions"`
	} `json:"ledger"`
}

// ledgerTx is one expanded transaction. Amount is a tagged union: a string
// of drops for native XRP, an object for issued currencies.
type ledgerTx struct {
	TransactionType string          `json:"TransactionType"`
	Account         string          `json:"Account"`
	Destination     string          `json:"Destination"`
	Amount          json.RawMessage `json:"Amount"`
	Hash            string          `json:"hash"`
	MetaData        *txMeta         `json:"metaData"`
}

type txMeta struct {
	TransactionResult string          `json:"TransactionResult"`
	DeliveredAmount   json.RawMessage `json:"delivered_amount,omitempty"`
}

// issuedAmount is the object form of an Amount.
type issuedAmount struct {
	Currency string `json:"currency"`
	Issuer   string `json:"issuer"`
	Value    string `json:"value"`
}
