// Copyright (c) 2025, the Braindumpster contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package entitlement maintains the single authoritative premium state of
// the user by reconciling verified purchase records from the platform
// store. Local cryptographic verification alone unlocks premium; backend
// verification is advisory and can never downgrade a verified purchase.
package entitlement

import (
	"time"
)

// Entitlement is a platform-attested record that a purchase is currently
// active. A nil ExpiresAt denotes a non-expiring (lifetime) purchase.
type Entitlement struct {
	ProductID      string     `json:"productId"`
	TransactionID  string     `json:"transactionId"`
	PurchaseDate   time.Time  `json:"purchaseDate"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	RevokedAt      *time.Time `json:"revokedAt,omitempty"`
	Environment    string     `json:"environment"`
	InBillingRetry bool       `json:"inBillingRetry"`
}

// IsLifetime reports whether the entitlement never expires.
func (e *Entitlement) IsLifetime() bool {
	return e.ExpiresAt == nil
}

// PurchaseState is the aggregate premium truth exposed to observers. It is
// always produced as a full replacement of the previous state, never merged
// field by field.
type PurchaseState struct {
	IsPremium           bool       `json:"isPremium"`
	ActiveProductID     *string    `json:"activeProductId,omitempty"`
	ExpirationDate      *time.Time `json:"expirationDate,omitempty"`
	DaysUntilExpiration *int       `json:"daysUntilExpiration,omitempty"`
	InBillingRetry      bool       `json:"inBillingRetry"`
}

// Tier names the subscription tier for backend status payloads.
func (s PurchaseState) Tier() string {
	if s.IsPremium {
		return "premium"
	}
	return "free"
}
