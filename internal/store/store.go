// Copyright (c) 2025, the Braindumpster contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package store abstracts the platform purchase store as an opaque event
// source and verification oracle. The real store SDK lives in the mobile
// shell; this package defines the surface the entitlement engine consumes
// and a push-fed bridge implementation the shell (or tests) drive.
package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrStoreClosed    = errors.New("platform store is closed")
	ErrUnknownProduct = errors.New("unknown product")
)

// VerificationState reflects the platform SDK's cryptographic signature
// check on a transaction record.
type VerificationState string

const (
	VerificationStateVerified   VerificationState = "verified"
	VerificationStateUnverified VerificationState = "unverified"
)

// Transaction is the decoded claim set of a signed transaction record.
type Transaction struct {
	ID             string     `json:"id"`
	ProductID      string     `json:"productId"`
	PurchaseDate   time.Time  `json:"purchaseDate"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	RevokedAt      *time.Time `json:"revokedAt,omitempty"`
	Environment    string     `json:"environment"`
	InBillingRetry bool       `json:"inBillingRetry"`
}

// RawTransaction is one signed purchase record as delivered by the store,
// carrying the SDK's verification outcome alongside the decoded claims.
type RawTransaction struct {
	Transaction   Transaction       `json:"transaction"`
	State         VerificationState `json:"state"`
	FailureReason string            `json:"failureReason,omitempty"`
}

// PurchaseStatus is the platform-reported outcome of a purchase call.
type PurchaseStatus string

const (
	PurchaseStatusSuccess   PurchaseStatus = "success"
	PurchaseStatusCancelled PurchaseStatus = "cancelled"
	PurchaseStatusPending   PurchaseStatus = "pending"
)

// PurchaseOutcome is returned by PlatformStore.Purchase. Transaction is set
// only on success.
type PurchaseOutcome struct {
	Status      PurchaseStatus  `json:"status"`
	Transaction *RawTransaction `json:"transaction,omitempty"`
}

// PlatformStore is the capability surface the entitlement engine needs from
// the platform purchase store.
type PlatformStore interface {
	// CurrentEntitlements re-enumerates the full set of currently active
	// entitlements. I/O-bound; called fresh on every reconciliation.
	CurrentEntitlements(ctx context.Context) ([]RawTransaction, error)

	// TransactionUpdates returns the store-pushed event stream: renewals,
	// refunds, family-sharing grants, deferred approvals. The channel is
	// closed when the store shuts down.
	TransactionUpdates() <-chan RawTransaction

	// Purchase starts a purchase for productID and reports the
	// platform-level outcome.
	Purchase(ctx context.Context, productID string) (*PurchaseOutcome, error)

	// Restore asks the store to refresh its entitlement records; the caller
	// re-enumerates afterwards.
	Restore(ctx context.Context) error

	// Finish acknowledges a delivered transaction so the platform stops
	// redelivering it. Idempotent.
	Finish(ctx context.Context, transactionID string) error

	// Receipt returns the platform-held receipt blob, if any.
	Receipt(ctx context.Context) ([]byte, error)

	// RefreshReceipt asks the store to fetch a fresh receipt. Callers must
	// not loop this.
	RefreshReceipt(ctx context.Context) ([]byte, error)
}
