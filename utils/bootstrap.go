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

package utils

import (
	"context"
	"fmt"
	"net/http"

	"github.com/neilotoole/errgroup"
	"go.uber.org/zap"

	"github.com/coinbase/deposit-tracker-sdk/configuration"
	"github.com/coinbase/deposit-tracker-sdk/services"
	"github.com/coinbase/deposit-tracker-sdk/stats"
	"github.com/coinbase/deposit-tracker-sdk/storage"
)

// BootStrap starts every configured chain monitor and the health server,
// and blocks until ctx is cancelled or a component fails.
func BootStrap(ctx context.Context, cfg *configuration.Configuration, gateway storage.Gateway, log *zap.Logger) error {
	statsdClient, err := stats.InitStatsd(cfg.StatsdAddress, map[string]string{
		"service": "deposit-tracker",
	})
	if err != nil {
		return fmt.Errorf("%w: could not initialize statsd", err)
	}

	coordinator, err := services.NewCoordinator(ctx, cfg, gateway, log, statsdClient)
	if err != nil {
		return fmt.Errorf("%w: could not initialize coordinator", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: services.NewHealthHandler(coordinator.Health()),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return coordinator.Run(gctx)
	})

	g.Go(func() error {
		log.Info("health server listening", zap.Int("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		// If we don't shutdown server in errgroup, it will
		// never stop because server.ListenAndServe doesn't
		// take any context.
		<-gctx.Done()

		return server.Shutdown(context.Background())
	})

	return g.Wait()
}
