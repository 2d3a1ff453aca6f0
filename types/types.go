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

package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// ChainKey is the normalized short code for a monitored blockchain.
// It is the form used in checkpoint keys, queues and log lines.
type ChainKey string

const (
	ChainEth ChainKey = "eth"
	ChainBsc ChainKey = "bsc"
	ChainBtc ChainKey = "btc"
	ChainTrx ChainKey = "trx"
	ChainXrp ChainKey = "xrp"
)

// Network identifies which deployment of a chain a monitor runs against.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// ChainKeys lists every supported chain in a stable order.
var ChainKeys = []ChainKey{ChainEth, ChainBsc, ChainBtc, ChainTrx, ChainXrp}

// NormalizeChainKey maps an external chain name to its stored key.
// The only aliased name is "bitcoin", which is stored as "btc"; this
// mapping must be applied at every storage boundary.
func NormalizeChainKey(name string) (ChainKey, error) {
	switch name {
	case "bitcoin":
		return ChainBtc, nil
	case string(ChainEth), string(ChainBsc), string(ChainBtc), string(ChainTrx), string(ChainXrp):
		return ChainKey(name), nil
	}
	return "", fmt.Errorf("unknown chain %q", name)
}

// IsEVM reports whether the chain uses Ethereum transaction semantics.
func (c ChainKey) IsEVM() bool {
	return c == ChainEth || c == ChainBsc
}

// ChainID is the unique identity of one monitored target.
type ChainID struct {
	Chain   ChainKey
	Network Network
}

func (id ChainID) String() string {
	return string(id.Chain) + "/" + string(id.Network)
}

// CheckpointKey returns the system_settings key holding the last fully
// processed block for a (chain, network) pair.
func CheckpointKey(chain ChainKey, network Network) string {
	return fmt.Sprintf("last_processed_block_%s_%s", chain, network)
}

// NetworkVersion describes the asset standard a token follows on its chain.
type NetworkVersion string

const (
	VersionNative NetworkVersion = "NATIVE"
	VersionERC20  NetworkVersion = "ERC20"
	VersionBEP20  NetworkVersion = "BEP20"
	VersionTRC20  NetworkVersion = "TRC20"
)

// DepositStatus is the confirmation state machine of a deposit.
// pending -> confirming -> confirmed; confirmed is terminal. orphaned is
// only entered by operator tooling when a block is abandoned.
type DepositStatus string

const (
	StatusPending    DepositStatus = "pending"
	StatusConfirming DepositStatus = "confirming"
	StatusConfirmed  DepositStatus = "confirmed"
	StatusOrphaned   DepositStatus = "orphaned"
)

// Wallet is an exchange-owned deposit address. The tracker only reads
// wallets; it never creates or mutates them.
type Wallet struct {
	ID      int64
	UserID  int64
	Address string
	Chain   ChainKey
	Network Network
}

// Token is an asset the exchange tracks. Only active tokens may produce
// deposits.
type Token struct {
	ID              int64
	Symbol          string
	BaseSymbol      string
	Blockchain      ChainKey
	ContractAddress string
	NetworkVersion  NetworkVersion
	Decimals        int32
	IsActive        bool
	Metadata        map[string]interface{}
}

// CreditSymbol is the symbol the wallet balance row is keyed by.
func (t *Token) CreditSymbol() string {
	if t.BaseSymbol != "" {
		return t.BaseSymbol
	}
	return t.Symbol
}

// DepositMetadata is the free-form context persisted alongside a deposit.
type DepositMetadata struct {
	From            string `json:"from,omitempty"`
	ContractAddress string `json:"contractAddress,omitempty"`
	BlockHash       string `json:"blockHash,omitempty"`
}

// Deposit is one detected on-chain transfer to an exchange wallet.
// (TxHash, WalletID, TokenID) uniquely identifies a deposit.
type Deposit struct {
	ID             int64
	UserID         int64
	WalletID       int64
	TokenID        int64
	TxHash         string
	Amount         decimal.Decimal
	Blockchain     ChainKey
	Network        Network
	NetworkVersion NetworkVersion
	BlockNumber    uint64
	Status         DepositStatus
	Confirmations  uint64
	Metadata       DepositMetadata
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Block is a chain-agnostic view of one block or ledger.
type Block struct {
	Height uint64
	Hash   string
	Txs    []Tx
}

// Tx is one normalized transaction. Payload is a tagged union; downstream
// code dispatches on the concrete type, never on raw JSON shape.
type Tx struct {
	Hash    string
	Payload TxPayload
}

// PayloadKind tags the members of the TxPayload union.
type PayloadKind string

const (
	KindNativeTransfer PayloadKind = "native_transfer"
	KindTokenTransfer  PayloadKind = "token_transfer"
	KindMultiOutput    PayloadKind = "multi_output"
	KindPayment        PayloadKind = "payment"
)

// TxPayload is the discriminated union of normalized transfer shapes.
type TxPayload interface {
	Kind() PayloadKind
}

// NativeTransfer is a value transfer of the chain's base asset.
type NativeTransfer struct {
	From      string
	To        string
	AmountRaw *big.Int
	Decimals  int32
}

func (NativeTransfer) Kind() PayloadKind { return KindNativeTransfer }

// TokenTransfer is a transfer of a contract-defined asset (ERC-20, BEP-20,
// TRC-20 or TRON asset). ContractAddress is empty for TRON assets, which
// are identified by Symbol instead.
type TokenTransfer struct {
	From            string
	To              string
	ContractAddress string
	Symbol          string
	AmountRaw       *big.Int
	Decimals        int32
	Standard        NetworkVersion
}

func (TokenTransfer) Kind() PayloadKind { return KindTokenTransfer }

// TxOutput is one output of a UTXO transaction. Amount is already the
// human decimal value as reported by the node.
type TxOutput struct {
	Address string
	Amount  decimal.Decimal
}

// MultiOutput is a UTXO transaction; one transaction may credit several
// wallets through distinct outputs.
type MultiOutput struct {
	Outputs           []TxOutput
	InputFirstAddress string
}

func (MultiOutput) Kind() PayloadKind { return KindMultiOutput }

// IssuedAmount is an XRP Ledger issued-currency amount.
type IssuedAmount struct {
	Currency string
	Issuer   string
	Value    decimal.Decimal
}

// Payment is an XRP Ledger Payment transaction. Exactly one of AmountDrops
// (native XRP, in drops) and AmountToken (issued currency) is set.
type Payment struct {
	From        string
	To          string
	AmountDrops string
	AmountToken *IssuedAmount
}

func (Payment) Kind() PayloadKind { return KindPayment }

// AmountFromRaw converts a smallest-unit integer amount into its human
// decimal form using the token's precision. The conversion is exact; no
// step passes through binary floating point.
func AmountFromRaw(raw *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -decimals)
}
