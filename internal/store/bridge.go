// Copyright (c) 2025, the Braindumpster contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Bridge is an in-memory PlatformStore fed by pushed transaction records.
// In sandbox mode it stands in for the store SDK entirely; in production
// the app shell forwards real store events into it over the local API.
type Bridge struct {
	mu           sync.Mutex
	entitlements map[string]RawTransaction // keyed by productID, latest record wins
	receipt      []byte
	products     map[string]time.Duration // productID -> subscription period, 0 = lifetime
	updates      chan RawTransaction
	finished     map[string]int
	purchaseSeq  int
	closed       bool
}

// NewBridge creates an empty store bridge.
func NewBridge() *Bridge {
	return &Bridge{
		entitlements: make(map[string]RawTransaction),
		products:     make(map[string]time.Duration),
		updates:      make(chan RawTransaction, 16),
		finished:     make(map[string]int),
	}
}

// RegisterProduct makes productID purchasable through the bridge. A zero
// period denotes a lifetime (non-expiring) product.
func (b *Bridge) RegisterProduct(productID string, period time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.products[productID] = period
}

// Push delivers a store event, updating the live entitlement set before the
// event hits the update stream. Revoked records drop the product from the
// set; unverified records are delivered but never enter the set.
func (b *Bridge) Push(raw RawTransaction) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	if raw.State == VerificationStateVerified {
		if raw.Transaction.RevokedAt != nil {
			delete(b.entitlements, raw.Transaction.ProductID)
		} else {
			b.entitlements[raw.Transaction.ProductID] = raw
		}
	}
	b.mu.Unlock()

	select {
	case b.updates <- raw:
	default:
		log.Warn().Str("transactionId", raw.Transaction.ID).Msg("store: update stream full, dropping event")
	}
}

// SetReceipt installs the opaque receipt blob the bridge hands out.
func (b *Bridge) SetReceipt(receipt []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receipt = receipt
}

func (b *Bridge) CurrentEntitlements(_ context.Context) ([]RawTransaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrStoreClosed
	}

	snapshot := make([]RawTransaction, 0, len(b.entitlements))
	for _, raw := range b.entitlements {
		snapshot = append(snapshot, raw)
	}
	return snapshot, nil
}

func (b *Bridge) TransactionUpdates() <-chan RawTransaction {
	return b.updates
}

func (b *Bridge) Purchase(_ context.Context, productID string) (*PurchaseOutcome, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrStoreClosed
	}

	period, ok := b.products[productID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}

	b.purchaseSeq++
	now := time.Now()
	tx := Transaction{
		ID:           fmt.Sprintf("bridge-%d", b.purchaseSeq),
		ProductID:    productID,
		PurchaseDate: now,
		Environment:  "Sandbox",
	}
	if period > 0 {
		expires := now.Add(period)
		tx.ExpiresAt = &expires
	}

	raw := RawTransaction{Transaction: tx, State: VerificationStateVerified}
	b.entitlements[productID] = raw

	return &PurchaseOutcome{Status: PurchaseStatusSuccess, Transaction: &raw}, nil
}

// Restore is a no-op for the bridge: its entitlement set is already live.
func (b *Bridge) Restore(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrStoreClosed
	}
	return nil
}

func (b *Bridge) Finish(_ context.Context, transactionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrStoreClosed
	}
	b.finished[transactionID]++
	return nil
}

// FinishCount reports how many times a transaction was acknowledged.
func (b *Bridge) FinishCount(transactionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finished[transactionID]
}

func (b *Bridge) Receipt(_ context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrStoreClosed
	}
	return b.receipt, nil
}

// RefreshReceipt mirrors Receipt for the bridge; a real store would reach
// out to the platform here.
func (b *Bridge) RefreshReceipt(_ context.Context) ([]byte, error) {
	return b.Receipt(context.Background())
}

// Close shuts the bridge down and closes the update stream.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.updates)
}
