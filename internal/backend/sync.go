// Copyright (c) 2025, the Braindumpster contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package backend

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/furkancekic/braindumpster-ios-sub000/internal/domain"
	"github.com/furkancekic/braindumpster-ios-sub000/internal/entitlement"
	"github.com/furkancekic/braindumpster-ios-sub000/pkg/redact"
)

// ReceiptSource yields the platform-held receipt blob. RefreshReceipt asks
// the store for a new one and is invoked at most once per sync.
type ReceiptSource interface {
	Receipt(ctx context.Context) ([]byte, error)
	RefreshReceipt(ctx context.Context) ([]byte, error)
}

// Coordinator pushes each reconciled purchase state to the backend. The
// backend is advisory: every error on either path is logged and swallowed,
// and nothing that comes back can downgrade the local state.
type Coordinator struct {
	client   *Client
	receipts ReceiptSource
	env      domain.Environment
	userID   string
}

func NewCoordinator(client *Client, receipts ReceiptSource, env domain.Environment, userID string) *Coordinator {
	return &Coordinator{
		client:   client,
		receipts: receipts,
		env:      env,
		userID:   userID,
	}
}

// Sync implements entitlement.Syncer. Production and TestFlight builds
// send the cryptographic receipt; sandbox builds, and any build whose
// receipt path failed, send the plain status payload instead.
func (co *Coordinator) Sync(ctx context.Context, state entitlement.PurchaseState, active *entitlement.Entitlement) {
	syncsTotal.Add(1)

	if co.env.UsesReceiptPath() {
		err := co.syncViaReceipt(ctx, state)
		if err == nil {
			return
		}
		receiptSyncFailures.Add(1)
		log.Warn().Err(redact.URLError(err)).
			Str("environment", string(co.env)).
			Msg("backend: receipt sync failed, falling back to direct status")
	}

	if err := co.syncDirect(ctx, state, active); err != nil {
		directSyncFailures.Add(1)
		log.Warn().Err(redact.URLError(err)).
			Bool("isPremium", state.IsPremium).
			Msg("backend: direct status sync failed, local state remains authoritative")
	}
}

func (co *Coordinator) syncViaReceipt(ctx context.Context, state entitlement.PurchaseState) error {
	receipt, err := co.receipts.Receipt(ctx)
	if err != nil || len(receipt) == 0 {
		// One refresh attempt, never a loop.
		receipt, err = co.receipts.RefreshReceipt(ctx)
		if err != nil {
			return err
		}
	}
	if len(receipt) == 0 {
		return ErrNoReceiptAvailable
	}

	resp, err := co.client.VerifyReceipt(ctx, receipt, co.userID)
	if err != nil {
		return err
	}

	if resp.IsPremium != state.IsPremium {
		log.Info().
			Bool("localPremium", state.IsPremium).
			Bool("backendPremium", resp.IsPremium).
			Str("receipt", redact.ReceiptDigest(receipt)).
			Msg("backend: verification disagrees with local state, keeping local")
	} else {
		log.Debug().
			Str("receipt", redact.ReceiptDigest(receipt)).
			Msg("backend: receipt verified")
	}
	return nil
}

func (co *Coordinator) syncDirect(ctx context.Context, state entitlement.PurchaseState, active *entitlement.Entitlement) error {
	status := SubscriptionStatus{
		IsPremium:      state.IsPremium,
		Tier:           state.Tier(),
		IsActive:       state.IsPremium,
		WillRenew:      active != nil && !active.IsLifetime(),
		ExpirationDate: state.ExpirationDate,
	}
	if state.ActiveProductID != nil {
		status.ProductID = *state.ActiveProductID
	}

	err := co.client.SyncStatus(ctx, SyncStatusRequest{
		UserID:             co.userID,
		Timestamp:          time.Now().UTC(),
		SubscriptionStatus: status,
	})
	if err != nil {
		return err
	}

	log.Debug().Str("tier", status.Tier).Msg("backend: status synced")
	return nil
}
