// Copyright (c) 2025, the Braindumpster contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/furkancekic/braindumpster-ios-sub000/internal/api/handlers"
	"github.com/furkancekic/braindumpster-ios-sub000/internal/api/middleware"
	"github.com/furkancekic/braindumpster-ios-sub000/internal/backend"
	"github.com/furkancekic/braindumpster-ios-sub000/internal/domain"
	"github.com/furkancekic/braindumpster-ios-sub000/internal/entitlement"
	"github.com/furkancekic/braindumpster-ios-sub000/internal/store"
)

// Server hosts the local observer API for the UI shell: purchase state,
// purchase/restore triggers, the store bridge inbound, health and metrics.
type Server struct {
	cfg           *domain.Config
	svc           *entitlement.Service
	bridge        *store.Bridge
	backendClient *backend.Client

	httpServer *http.Server
	registry   *prometheus.Registry
}

func NewServer(cfg *domain.Config, svc *entitlement.Service, bridge *store.Bridge, backendClient *backend.Client) *Server {
	s := &Server{
		cfg:           cfg,
		svc:           svc,
		bridge:        bridge,
		backendClient: backendClient,
	}

	if cfg.MetricsEnabled {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			entitlement.NewMetricsCollector(svc),
			backend.NewMetricsCollector(),
		)
	}

	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(middleware.ThrottleBacklog(50, 50, time.Second))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*", "capacitor://*", "ionic://*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	r.Use(corsHandler.Handler)

	healthHandler := handlers.NewHealthHandler()
	healthHandler.Routes(r)

	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		handlers.NewVersionHandler().Routes(r)
		handlers.NewSubscriptionHandler(s.svc, s.backendClient, s.cfg.UserID).Routes(r)
		if s.bridge != nil {
			handlers.NewStoreBridgeHandler(s.bridge).Routes(r)
		}
	})

	return r
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("api: server listening")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	log.Info().Msg("api: shutting down server")
	return s.httpServer.Shutdown(ctx)
}
