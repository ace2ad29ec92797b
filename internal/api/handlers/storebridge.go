// Copyright (c) 2025, the Braindumpster contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/furkancekic/braindumpster-ios-sub000/internal/store"
	"github.com/furkancekic/braindumpster-ios-sub000/pkg/redact"
)

const maxReceiptBytes = 1 << 20

// StoreBridgeHandler is the inbound side of the store bridge: the app shell
// posts transaction records and the current receipt blob here, which feeds
// the entitlement listener exactly like SDK-pushed updates would.
type StoreBridgeHandler struct {
	bridge *store.Bridge
}

func NewStoreBridgeHandler(bridge *store.Bridge) *StoreBridgeHandler {
	return &StoreBridgeHandler{bridge: bridge}
}

func (h *StoreBridgeHandler) Routes(r chi.Router) {
	r.Route("/store", func(r chi.Router) {
		r.Post("/transactions", h.handlePushTransaction)
		r.Put("/receipt", h.handleSetReceipt)
	})
}

type pushTransactionRequest struct {
	TransactionID  string     `json:"transactionId"`
	ProductID      string     `json:"productId"`
	PurchaseDate   time.Time  `json:"purchaseDate"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	RevokedAt      *time.Time `json:"revokedAt,omitempty"`
	Environment    string     `json:"environment,omitempty"`
	InBillingRetry bool       `json:"inBillingRetry"`
	Verified       bool       `json:"verified"`
	FailureReason  string     `json:"failureReason,omitempty"`
}

func (h *StoreBridgeHandler) handlePushTransaction(w http.ResponseWriter, r *http.Request) {
	var req pushTransactionRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.TransactionID == "" || req.ProductID == "" {
		RespondError(w, http.StatusBadRequest, "transactionId and productId are required")
		return
	}

	state := store.VerificationStateVerified
	if !req.Verified {
		state = store.VerificationStateUnverified
	}

	h.bridge.Push(store.RawTransaction{
		Transaction: store.Transaction{
			ID:             req.TransactionID,
			ProductID:      req.ProductID,
			PurchaseDate:   req.PurchaseDate,
			ExpiresAt:      req.ExpiresAt,
			RevokedAt:      req.RevokedAt,
			Environment:    req.Environment,
			InBillingRetry: req.InBillingRetry,
		},
		State:         state,
		FailureReason: req.FailureReason,
	})

	log.Debug().
		Str("transactionId", req.TransactionID).
		Str("productId", req.ProductID).
		Bool("verified", req.Verified).
		Msg("api: transaction pushed through store bridge")

	RespondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *StoreBridgeHandler) handleSetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := io.ReadAll(io.LimitReader(r.Body, maxReceiptBytes))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "Failed to read receipt body")
		return
	}
	if len(receipt) == 0 {
		RespondError(w, http.StatusBadRequest, "Receipt body is empty")
		return
	}

	h.bridge.SetReceipt(receipt)

	log.Debug().
		Str("receipt", redact.ReceiptDigest(receipt)).
		Int("bytes", len(receipt)).
		Msg("api: receipt updated through store bridge")

	RespondJSON(w, http.StatusOK, map[string]string{"status": "stored"})
}
