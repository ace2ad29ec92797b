// Copyright (c) 2025, the Braindumpster contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package entitlement

import (
	"fmt"

	"github.com/furkancekic/braindumpster-ios-sub000/internal/store"
)

// VerificationError reports a transaction record whose platform signature
// check failed.
type VerificationError struct {
	TransactionID string
	Reason        string
}

func (e *VerificationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transaction %s failed verification", e.TransactionID)
	}
	return fmt.Sprintf("transaction %s failed verification: %s", e.TransactionID, e.Reason)
}

// VerifyTransaction unwraps the platform SDK's signature check on a raw
// record into an Entitlement. Every record entering the reconciler passes
// through this gate; it has no side effects.
func VerifyTransaction(raw store.RawTransaction) (Entitlement, error) {
	if raw.State != store.VerificationStateVerified {
		return Entitlement{}, &VerificationError{
			TransactionID: raw.Transaction.ID,
			Reason:        raw.FailureReason,
		}
	}

	tx := raw.Transaction
	return Entitlement{
		ProductID:      tx.ProductID,
		TransactionID:  tx.ID,
		PurchaseDate:   tx.PurchaseDate,
		ExpiresAt:      tx.ExpiresAt,
		RevokedAt:      tx.RevokedAt,
		Environment:    tx.Environment,
		InBillingRetry: tx.InBillingRetry,
	}, nil
}
