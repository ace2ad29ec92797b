// Copyright (c) 2025, the Braindumpster contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/furkancekic/braindumpster-ios-sub000/internal/backend"
	"github.com/furkancekic/braindumpster-ios-sub000/internal/entitlement"
)

// SubscriptionHandler exposes the live purchase state to the UI shell and
// relays user-initiated purchase and restore flows. Backend verification
// problems never surface here; only what the platform store itself reports.
type SubscriptionHandler struct {
	svc     *entitlement.Service
	backend *backend.Client
	userID  string
}

func NewSubscriptionHandler(svc *entitlement.Service, backendClient *backend.Client, userID string) *SubscriptionHandler {
	return &SubscriptionHandler{
		svc:     svc,
		backend: backendClient,
		userID:  userID,
	}
}

func (h *SubscriptionHandler) Routes(r chi.Router) {
	r.Route("/subscription", func(r chi.Router) {
		r.Get("/status", h.handleStatus)
		r.Post("/purchase", h.handlePurchase)
		r.Post("/restore", h.handleRestore)
		r.Get("/backend-status", h.handleBackendStatus)
		r.Post("/cancel", h.handleCancel)
	})
}

func (h *SubscriptionHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.svc.State())
}

type purchaseRequest struct {
	ProductID string `json:"productId"`
}

type purchaseResponse struct {
	Status string                    `json:"status"`
	State  entitlement.PurchaseState `json:"state"`
}

func (h *SubscriptionHandler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		RespondError(w, http.StatusBadRequest, "productId is required")
		return
	}

	status, err := h.svc.Purchase(r.Context(), req.ProductID)
	if err != nil {
		log.Error().Err(err).Str("productId", req.ProductID).Msg("api: purchase failed at the store")
		RespondError(w, http.StatusBadGateway, "Store purchase failed")
		return
	}

	RespondJSON(w, http.StatusOK, purchaseResponse{
		Status: string(status),
		State:  h.svc.State(),
	})
}

func (h *SubscriptionHandler) handleRestore(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Restore(r.Context()); err != nil {
		log.Error().Err(err).Msg("api: restore failed at the store")
		RespondError(w, http.StatusBadGateway, "Store restore failed")
		return
	}

	RespondJSON(w, http.StatusOK, h.svc.State())
}

func (h *SubscriptionHandler) handleBackendStatus(w http.ResponseWriter, r *http.Request) {
	if h.backend == nil {
		RespondError(w, http.StatusServiceUnavailable, "Backend client not configured")
		return
	}

	status, err := h.backend.FetchStatus(r.Context(), h.userID)
	if err != nil {
		log.Warn().Err(err).Msg("api: backend status fetch failed")
		RespondError(w, http.StatusBadGateway, "Backend unavailable")
		return
	}

	RespondJSON(w, http.StatusOK, status)
}

func (h *SubscriptionHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	if h.backend == nil {
		RespondError(w, http.StatusServiceUnavailable, "Backend client not configured")
		return
	}

	if err := h.backend.CancelSubscription(r.Context(), h.userID); err != nil {
		log.Warn().Err(err).Msg("api: backend cancellation request failed")
		RespondError(w, http.StatusBadGateway, "Backend unavailable")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "cancellation requested"})
}
