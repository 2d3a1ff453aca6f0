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

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/coinbase/deposit-tracker-sdk/types"
)

const (
	defaultMaxOpenConns    = 16
	defaultConnMaxIdleTime = 5 * time.Minute
)

// PostgresGateway implements Gateway on top of Postgres. Deposit amounts
// and balances are stored as NUMERIC so no precision is lost in transit.
type PostgresGateway struct {
	db *sql.DB
}

// NewPostgresGateway opens and pings a connection pool for the given DSN.
func NewPostgresGateway(ctx context.Context, dsn string) (*PostgresGateway, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to open database", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: unable to reach database", err)
	}

	return &PostgresGateway{db: db}, nil
}

func (g *PostgresGateway) Close() error { return g.db.Close() }

func (g *PostgresGateway) FindWallets(ctx context.Context, chain types.ChainKey, network types.Network) ([]types.Wallet, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT id, user_id, address, chain, network
		FROM wallets
		WHERE chain = $1 AND network = $2`,
		chain, network,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to query wallets", err)
	}
	defer rows.Close()

	var wallets []types.Wallet
	for rows.Next() {
		var w types.Wallet
		if err := rows.Scan(&w.ID, &w.UserID, &w.Address, &w.Chain, &w.Network); err != nil {
			return nil, fmt.Errorf("%w: unable to scan wallet", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

func (g *PostgresGateway) FindToken(ctx context.Context, filter TokenFilter) (*types.Token, error) {
	query := `
		SELECT id, symbol, COALESCE(base_symbol, ''), blockchain,
		       COALESCE(contract_address, ''), network_version, decimals,
		       is_active, COALESCE(metadata, '{}')
		FROM tokens
		WHERE blockchain = $1 AND is_active`
	args := []interface{}{filter.Blockchain}

	switch {
	case filter.ContractAddress != "":
		query += ` AND LOWER(contract_address) = LOWER($2)`
		args = append(args, filter.ContractAddress)
	case filter.Symbol != "":
		query += ` AND symbol = $2`
		args = append(args, filter.Symbol)
	default:
		query += ` AND network_version = $2`
		args = append(args, filter.NetworkVersion)
	}

	var t types.Token
	var metadata []byte
	err := g.db.QueryRowContext(ctx, query, args...).Scan(
		&t.ID, &t.Symbol, &t.BaseSymbol, &t.Blockchain,
		&t.ContractAddress, &t.NetworkVersion, &t.Decimals,
		&t.IsActive, &metadata,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: unable to query token", err)
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("%w: unable to decode token metadata", err)
		}
	}
	return &t, nil
}

func (g *PostgresGateway) FindTokenByID(ctx context.Context, id int64) (*types.Token, error) {
	var t types.Token
	var metadata []byte
	err := g.db.QueryRowContext(ctx, `
		SELECT id, symbol, COALESCE(base_symbol, ''), blockchain,
		       COALESCE(contract_address, ''), network_version, decimals,
		       is_active, COALESCE(metadata, '{}')
		FROM tokens
		WHERE id = $1`,
		id,
	).Scan(
		&t.ID, &t.Symbol, &t.BaseSymbol, &t.Blockchain,
		&t.ContractAddress, &t.NetworkVersion, &t.Decimals,
		&t.IsActive, &metadata,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: unable to query token %d", err, id)
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("%w: unable to decode token metadata", err)
		}
	}
	return &t, nil
}

func (g *PostgresGateway) InsertDeposit(ctx context.Context, deposit *types.Deposit) (bool, error) {
	metadata, err := json.Marshal(deposit.Metadata)
	if err != nil {
		return false, fmt.Errorf("%w: unable to encode deposit metadata", err)
	}

	var id int64
	err = g.db.QueryRowContext(ctx, `
		INSERT INTO deposits (
			user_id, wallet_id, token_id, tx_hash, amount,
			blockchain, network, network_version, block_number,
			status, confirmations, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (tx_hash, wallet_id, token_id) DO NOTHING
		RETURNING id`,
		deposit.UserID, deposit.WalletID, deposit.TokenID, deposit.TxHash,
		deposit.Amount.String(), deposit.Blockchain, deposit.Network,
		deposit.NetworkVersion, deposit.BlockNumber, deposit.Status,
		deposit.Confirmations, metadata,
	).Scan(&id)
	if err == sql.ErrNoRows {
		// Conflict: the deposit was already recorded.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: unable to insert deposit", err)
	}

	deposit.ID = id
	return true, nil
}

func (g *PostgresGateway) RaiseConfirmations(ctx context.Context, id int64, confirmations uint64, status types.DepositStatus) error {
	_, err := g.db.ExecContext(ctx, `
		UPDATE deposits
		SET confirmations = GREATEST(confirmations, $2),
		    status = $3,
		    updated_at = now()
		WHERE id = $1 AND status != 'confirmed'`,
		id, confirmations, status,
	)
	if err != nil {
		return fmt.Errorf("%w: unable to update deposit %d", err, id)
	}
	return nil
}

func (g *PostgresGateway) FindUnconfirmedDeposits(ctx context.Context, chain types.ChainKey, network types.Network) ([]types.Deposit, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT id, user_id, wallet_id, token_id, tx_hash, amount,
		       blockchain, network, network_version, block_number,
		       status, confirmations, COALESCE(metadata, '{}'),
		       created_at, updated_at
		FROM deposits
		WHERE blockchain = $1 AND network = $2
		  AND status IN ('pending', 'confirming')
		ORDER BY block_number ASC`,
		chain, network,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to query deposits", err)
	}
	defer rows.Close()

	var deposits []types.Deposit
	for rows.Next() {
		var d types.Deposit
		var amount string
		var metadata []byte
		err := rows.Scan(
			&d.ID, &d.UserID, &d.WalletID, &d.TokenID, &d.TxHash, &amount,
			&d.Blockchain, &d.Network, &d.NetworkVersion, &d.BlockNumber,
			&d.Status, &d.Confirmations, &metadata,
			&d.CreatedAt, &d.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: unable to scan deposit", err)
		}
		if d.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("%w: invalid stored amount for deposit %d", err, d.ID)
		}
		if err := json.Unmarshal(metadata, &d.Metadata); err != nil {
			return nil, fmt.Errorf("%w: unable to decode deposit metadata", err)
		}
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}

// ConfirmAndCredit claims the deposit with a compare-and-set on its status
// and credits the balance in the same transaction, so a crash between the
// two statements cannot double-credit or half-credit.
func (g *PostgresGateway) ConfirmAndCredit(ctx context.Context, deposit *types.Deposit, symbol string) (bool, error) {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%w: unable to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE deposits
		SET status = 'confirmed',
		    confirmations = GREATEST(confirmations, $2),
		    updated_at = now()
		WHERE id = $1 AND status != 'confirmed'`,
		deposit.ID, deposit.Confirmations,
	)
	if err != nil {
		return false, fmt.Errorf("%w: unable to confirm deposit %d", err, deposit.ID)
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if claimed == 0 {
		// Another worker already credited this deposit.
		return false, nil
	}

	// Deposits always land on the spot balance.
	res, err = tx.ExecContext(ctx, `
		UPDATE wallet_balances
		SET balance = balance + $3,
		    updated_at = now()
		WHERE user_id = $1 AND symbol = $2 AND type = 'spot'`,
		deposit.UserID, symbol, deposit.Amount.String(),
	)
	if err != nil {
		return false, fmt.Errorf("%w: unable to credit user %d", err, deposit.UserID)
	}
	credited, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if credited == 0 {
		// Keep the deposit confirmed so it is not retried; the missing
		// balance row needs an operator.
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("%w: unable to commit confirmation", err)
		}
		return false, fmt.Errorf("%w: user %d symbol %s", types.ErrBalanceNotFound, deposit.UserID, symbol)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: unable to commit credit", err)
	}
	return true, nil
}

func (g *PostgresGateway) GetCheckpoint(ctx context.Context, key string) (uint64, bool, error) {
	var value string
	err := g.db.QueryRowContext(ctx,
		`SELECT value FROM system_settings WHERE key = $1`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: unable to read checkpoint %s", err, key)
	}

	height, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: corrupt checkpoint %s", err, key)
	}
	return height, true, nil
}

func (g *PostgresGateway) SetCheckpoint(ctx context.Context, key string, height uint64) error {
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO system_settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now()`,
		key, strconv.FormatUint(height, 10),
	)
	if err != nil {
		return fmt.Errorf("%w: unable to write checkpoint %s", err, key)
	}
	return nil
}
