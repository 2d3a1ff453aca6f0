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

package evm

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	EthTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// NativeDecimals is the precision of the base asset on every
	// supported EVM chain.
	NativeDecimals = 18

	// NumTopicsERC20Transfer: event logs that look like an ERC-20
	// transfer but do not carry exactly 3 topics are ignored.
	NumTopicsERC20Transfer = 3

	// receiptBatchSize caps one eth_getTransactionReceipt batch call.
	receiptBatchSize = 50
)

// Erc20TransferLogTopic is the topic0 of Transfer(address,address,uint256).
var Erc20TransferLogTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// RPCBlock is the wire shape of eth_getBlockByNumber(_, true).
type RPCBlock struct {
	Hash         common.Hash      `json:"hash"`
	Transactions []RPCTransaction `json:"transactions"`
}

// TxExtraInfo carries the block-context fields the node appends to each
// embedded transaction object.
type TxExtraInfo struct {
	BlockNumber *string         `json:"blockNumber,omitempty"`
	BlockHash   *common.Hash    `json:"blockHash,omitempty"`
	From        *common.Address `json:"from,omitempty"`
	TxHash      *common.Hash    `json:"hash,omitempty"`
}

// RPCTransaction is a transaction plus its block context.
type RPCTransaction struct {
	Tx *EthTypes.Transaction
	TxExtraInfo
}

// UnmarshalJSON populates both the transaction and the extra info from the
// same JSON object.
func (tx *RPCTransaction) UnmarshalJSON(msg []byte) error {
	if err := json.Unmarshal(msg, &tx.Tx); err != nil {
		return err
	}
	return json.Unmarshal(msg, &tx.TxExtraInfo)
}

// ConvertEVMTopicHashToAddress uses the last 20 bytes of a common.Hash to create a common.Address
func ConvertEVMTopicHashToAddress(hash *common.Hash) *common.Address {
	if hash == nil {
		return nil
	}
	address := common.BytesToAddress(hash[12:32])
	return &address
}
