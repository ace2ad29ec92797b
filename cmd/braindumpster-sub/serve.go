// Copyright (c) 2025, the Braindumpster contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/furkancekic/braindumpster-ios-sub000/internal/api"
	"github.com/furkancekic/braindumpster-ios-sub000/internal/backend"
	"github.com/furkancekic/braindumpster-ios-sub000/internal/buildinfo"
	"github.com/furkancekic/braindumpster-ios-sub000/internal/config"
	"github.com/furkancekic/braindumpster-ios-sub000/internal/entitlement"
	"github.com/furkancekic/braindumpster-ios-sub000/internal/logger"
	"github.com/furkancekic/braindumpster-ios-sub000/internal/store"
)

// premiumProducts is the store catalog the bridge serves. A zero period
// marks a lifetime product.
var premiumProducts = map[string]time.Duration{
	"premium.monthly":  30 * 24 * time.Hour,
	"premium.yearly":   365 * 24 * time.Hour,
	"premium.lifetime": 0,
}

func RunServeCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the entitlement engine and local API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.New(configDir, buildinfo.Version)
			if err != nil {
				return err
			}

			if err := cfg.Config.Validate(); err != nil {
				return err
			}

			logger.Setup(cfg.Config)

			log.Info().
				Str("version", buildinfo.Version).
				Str("environment", string(cfg.Config.Env())).
				Msg("starting braindumpster-sub")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			bridge := store.NewBridge()
			for productID, period := range premiumProducts {
				bridge.RegisterProduct(productID, period)
			}

			backendClient := backend.NewClient(
				backend.WithBaseURL(cfg.Config.BackendURL),
				backend.WithUserAgent(buildinfo.UserAgent()),
				backend.WithBundleID(cfg.Config.BundleID),
				backend.WithTokenProvider(backend.StaticToken(cfg.Config.AuthToken)),
				backend.WithRetryPolicy(backend.RetryPolicy{
					MaxAttempts:   uint(cfg.Config.RetryMaxAttempts),
					DelaySchedule: cfg.Config.RetryDelays(),
				}),
			)

			coordinator := backend.NewCoordinator(backendClient, bridge, cfg.Config.Env(), cfg.Config.UserID)

			svc := entitlement.NewService(entitlement.Config{
				ExpirationCheckInterval: cfg.Config.ExpirationCheckInterval(),
			}, bridge, coordinator)

			if err := svc.Start(ctx); err != nil {
				return err
			}

			srv := api.NewServer(cfg.Config, svc, bridge, backendClient)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				svc.Stop()
				bridge.Close()
				return err
			case <-ctx.Done():
			}

			log.Info().Msg("shutdown signal received")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("server shutdown failed")
			}

			svc.Stop()
			bridge.Close()
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory holding config.toml (defaults to the OS config dir)")

	return cmd
}
