// Copyright (c) 2025, the Braindumpster contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package entitlement

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/furkancekic/braindumpster-ios-sub000/internal/store"
	"github.com/furkancekic/braindumpster-ios-sub000/pkg/redact"
)

// ReconcileResult carries the replacement PurchaseState plus the winning
// entitlement it was derived from, for the backend sync coordinator.
type ReconcileResult struct {
	State  PurchaseState
	Active *Entitlement
}

// Reconcile computes the aggregate PurchaseState from a full entitlement
// snapshot. Pure and idempotent: the same snapshot and clock always yield
// the same state, regardless of call count or trigger order.
//
// Records failing verification are logged and discarded, never fatal. The
// active entitlement is chosen by lifetime-wins first, then latest
// expiration date.
func Reconcile(now time.Time, snapshot []store.RawTransaction) ReconcileResult {
	verified := make([]Entitlement, 0, len(snapshot))
	inBillingRetry := false

	for _, raw := range snapshot {
		ent, err := VerifyTransaction(raw)
		if err != nil {
			log.Warn().Err(err).
				Str("transactionId", redact.Key(raw.Transaction.ID)).
				Msg("entitlement: discarding unverified record from snapshot")
			recordVerificationFailure()
			continue
		}
		if ent.RevokedAt != nil {
			log.Debug().
				Str("productId", ent.ProductID).
				Time("revokedAt", *ent.RevokedAt).
				Msg("entitlement: skipping revoked entitlement")
			continue
		}

		verified = append(verified, ent)
		if ent.InBillingRetry {
			inBillingRetry = true
		}
	}

	recordReconciliation()

	if len(verified) == 0 {
		return ReconcileResult{State: PurchaseState{}}
	}

	active := selectActive(verified)

	state := PurchaseState{
		IsPremium:       true,
		ActiveProductID: &active.ProductID,
		InBillingRetry:  inBillingRetry,
	}
	if active.ExpiresAt != nil {
		exp := *active.ExpiresAt
		days := daysUntil(now, exp)
		state.ExpirationDate = &exp
		state.DaysUntilExpiration = &days
	}

	return ReconcileResult{State: state, Active: active}
}

// selectActive picks the winning entitlement: any lifetime purchase beats
// any expiring one; among expiring entitlements the latest expiration wins.
// Lifetime ties resolve to the earliest purchase for determinism.
func selectActive(ents []Entitlement) *Entitlement {
	winner := &ents[0]
	for i := 1; i < len(ents); i++ {
		cand := &ents[i]
		switch {
		case cand.IsLifetime() && !winner.IsLifetime():
			winner = cand
		case !cand.IsLifetime() && winner.IsLifetime():
			// keep winner
		case cand.IsLifetime() && winner.IsLifetime():
			if cand.PurchaseDate.Before(winner.PurchaseDate) {
				winner = cand
			}
		default:
			if cand.ExpiresAt.After(*winner.ExpiresAt) {
				winner = cand
			}
		}
	}
	return winner
}

// daysUntil returns the whole days remaining until exp, rounding partial
// days up and clamping already-passed expirations to zero.
func daysUntil(now, exp time.Time) int {
	remaining := exp.Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := int((remaining + 24*time.Hour - 1) / (24 * time.Hour))
	return days
}
