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

package tron

import "encoding/json"

const (
	// NativeDecimals is the precision of TRX (1 TRX = 1e6 sun).
	NativeDecimals = 6

	contractTransfer      = "TransferContract"
	contractTransferAsset = "TransferAssetContract"

	contractRetSuccess = "SUCCESS"
)

// rpcBlock is the wire shape of wallet/getblockbynum and wallet/getnowblock.
type rpcBlock struct {
	BlockID      string    `json:"blockID"`
	BlockHeader  rpcHeader `json:"block_header"`
	Transactions []rpcTx   `json:"transactions"`
}

type rpcHeader struct {
	RawData struct {
		Number uint64 `json:"number"`
	} `json:"raw_data"`
}

type rpcTx struct {
	TxID    string   `json:"txID"`
	Ret     []rpcRet `json:"ret"`
	RawData struct {
		Contract []rpcContract `json:"contract"`
	} `json:"raw_data"`
}

type rpcRet struct {
	ContractRet string `json:"contractRet"`
}

type rpcContract struct {
	Type      string `json:"type"`
	Parameter struct {
		Value json.RawMessage `json:"value"`
	} `json:"parameter"`
}

// transferValue covers both TransferContract and TransferAssetContract
// parameter payloads; AssetName is only present on the latter.
type transferValue struct {
	Amount       int64  `json:"amount"`
	OwnerAddress string `json:"owner_address"`
	ToAddress    string `json:"to_address"`
	AssetName    string `json:"asset_name,omitempty"`
}
