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

	"github.com/DataDog/datadog-go/statsd"
	"go.uber.org/zap"

	"github.com/coinbase/deposit-tracker-sdk/configuration"
	"github.com/coinbase/deposit-tracker-sdk/stats"
	"github.com/coinbase/deposit-tracker-sdk/storage"
	"github.com/coinbase/deposit-tracker-sdk/types"
)

// Checker drives the deposit confirmation state machine for one chain.
// A deposit in the tip block has zero confirmations; a tip behind the
// deposit's block (stale node answers) also counts as zero and never
// lowers the stored count.
type Checker struct {
	gateway storage.Gateway
	cfg     configuration.ChainConfig
	log     *zap.Logger
	statsd  *statsd.Client
}

// NewChecker builds a confirmation checker for one (chain, network) pair.
func NewChecker(gateway storage.Gateway, cfg configuration.ChainConfig, log *zap.Logger, statsdClient *statsd.Client) *Checker {
	return &Checker{
		gateway: gateway,
		cfg:     cfg,
		log:     log,
		statsd:  statsdClient,
	}
}

// Check recomputes confirmations for every open deposit against tip and
// credits those that reached the chain's threshold.
func (c *Checker) Check(ctx context.Context, tip uint64) error {
	deposits, err := c.gateway.FindUnconfirmedDeposits(ctx, c.cfg.Chain, c.cfg.Network)
	if err != nil {
		return err
	}

	for i := range deposits {
		deposit := deposits[i]

		var confirmations uint64
		if tip > deposit.BlockNumber {
			confirmations = tip - deposit.BlockNumber
		}

		if confirmations < c.cfg.RequiredConfirmations {
			if confirmations > deposit.Confirmations {
				if err := c.gateway.RaiseConfirmations(ctx, deposit.ID, confirmations, types.StatusConfirming); err != nil {
					return err
				}
			}
			continue
		}

		if err := c.credit(ctx, deposit, confirmations); err != nil {
			return err
		}
	}

	return nil
}

func (c *Checker) credit(ctx context.Context, deposit types.Deposit, confirmations uint64) error {
	token, err := c.gateway.FindTokenByID(ctx, deposit.TokenID)
	if err != nil {
		return err
	}
	if token == nil {
		c.log.Error("deposit references unknown token",
			zap.Int64("deposit_id", deposit.ID),
			zap.Int64("token_id", deposit.TokenID),
		)
		return nil
	}

	deposit.Confirmations = confirmations
	credited, err := c.gateway.ConfirmAndCredit(ctx, &deposit, token.CreditSymbol())
	if errors.Is(err, types.ErrBalanceNotFound) {
		// Confirmed but uncredited; flag for an operator instead of
		// retrying forever.
		c.log.Error("balance row missing for confirmed deposit",
			zap.Int64("deposit_id", deposit.ID),
			zap.Int64("user_id", deposit.UserID),
			zap.String("symbol", token.CreditSymbol()),
			zap.Error(err),
		)
		return nil
	}
	if err != nil {
		return err
	}
	if !credited {
		return nil
	}

	stats.Incr(c.statsd, stats.MetricDepositCredit,
		stats.TagChain, string(c.cfg.Chain), stats.TagNetwork, string(c.cfg.Network))
	c.log.Info("deposit credited",
		zap.Int64("deposit_id", deposit.ID),
		zap.Int64("user_id", deposit.UserID),
		zap.String("symbol", token.CreditSymbol()),
		zap.String("amount", deposit.Amount.String()),
		zap.Uint64("confirmations", confirmations),
	)
	return nil
}
