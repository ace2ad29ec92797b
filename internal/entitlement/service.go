// Copyright (c) 2025, the Braindumpster contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package entitlement

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/furkancekic/braindumpster-ios-sub000/internal/store"
	"github.com/furkancekic/braindumpster-ios-sub000/pkg/redact"
)

var (
	ErrAlreadyStarted = errors.New("entitlement service already started")
	ErrNotStarted     = errors.New("entitlement service not started")
)

// Listener states. The transaction update listener moves Idle -> Listening
// on Start and terminates in Cancelled exactly once at Stop.
const (
	listenerIdle int32 = iota
	listenerListening
	listenerCancelled
)

// Syncer pushes a freshly reconciled state to the backend. Implementations
// must swallow their own errors; sync is advisory telemetry and never
// affects local state.
type Syncer interface {
	Sync(ctx context.Context, state PurchaseState, active *Entitlement)
}

// Config holds configuration for the entitlement service.
type Config struct {
	// ExpirationCheckInterval is how often the expiration monitor
	// re-evaluates time-based expiry.
	ExpirationCheckInterval time.Duration

	// SyncTimeout bounds each fire-and-forget backend sync.
	SyncTimeout time.Duration

	// AckTimeout bounds transaction acknowledgments, including the one
	// allowed to finish during shutdown.
	AckTimeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ExpirationCheckInterval: 24 * time.Hour,
		SyncTimeout:             30 * time.Second,
		AckTimeout:              10 * time.Second,
	}
}

// Service owns the process-wide PurchaseState. Every writer (the update
// listener, the expiration monitor, Purchase, Restore) funnels through
// Reconcile, which reads a fresh snapshot outside the lock and swaps the
// state wholesale under it.
type Service struct {
	cfg    Config
	store  store.PlatformStore
	syncer Syncer

	mu     sync.RWMutex
	state  PurchaseState
	active *Entitlement

	listenerState atomic.Int32

	subMu   sync.Mutex
	subs    map[int]chan PurchaseState
	nextSub int

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// NewService creates the entitlement service. syncer may be nil to disable
// backend sync entirely.
func NewService(cfg Config, platformStore store.PlatformStore, syncer Syncer) *Service {
	def := DefaultConfig()
	if cfg.ExpirationCheckInterval <= 0 {
		cfg.ExpirationCheckInterval = def.ExpirationCheckInterval
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = def.SyncTimeout
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = def.AckTimeout
	}

	return &Service{
		cfg:    cfg,
		store:  platformStore,
		syncer: syncer,
		subs:   make(map[int]chan PurchaseState),
	}
}

// Start performs the initial reconciliation and launches the transaction
// update listener and the expiration monitor.
func (s *Service) Start(ctx context.Context) error {
	if !s.listenerState.CompareAndSwap(listenerIdle, listenerListening) {
		return ErrAlreadyStarted
	}

	s.runCtx, s.runCancel = context.WithCancel(ctx)

	if _, err := s.Reconcile(s.runCtx); err != nil {
		// Not fatal: the listener or the next monitor tick self-corrects.
		log.Error().Err(err).Msg("entitlement: initial reconciliation failed")
	}

	s.wg.Add(2)
	go s.runListener()
	go s.runExpirationMonitor()

	log.Info().Msg("entitlement: service started")
	return nil
}

// Stop cancels the listener exactly once and waits for both background
// tasks. An acknowledgment already in flight is allowed to complete.
func (s *Service) Stop() {
	if !s.listenerState.CompareAndSwap(listenerListening, listenerCancelled) {
		return
	}
	s.runCancel()
	s.wg.Wait()
	log.Info().Msg("entitlement: service stopped")
}

// State returns the current purchase state.
func (s *Service) State() PurchaseState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ActiveEntitlement returns the entitlement backing the current state, or
// nil when not premium.
func (s *Service) ActiveEntitlement() *Entitlement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return nil
	}
	ent := *s.active
	return &ent
}

// Subscribe registers an observer for state replacements. The returned
// cancel func must be called to release the channel. Slow observers miss
// intermediate states rather than blocking writers.
func (s *Service) Subscribe() (<-chan PurchaseState, func()) {
	ch := make(chan PurchaseState, 8)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
	return ch, cancel
}

// Reconcile re-enumerates the platform's current entitlements and replaces
// the purchase state with the result. Safe to invoke concurrently: the
// snapshot read and verification happen outside the lock, and whichever
// reconciliation completes last wins with a state derived from a single
// real snapshot.
func (s *Service) Reconcile(ctx context.Context) (PurchaseState, error) {
	snapshot, err := s.store.CurrentEntitlements(ctx)
	if err != nil {
		return s.State(), errors.Wrap(err, "failed to enumerate current entitlements")
	}

	res := Reconcile(time.Now(), snapshot)
	s.publish(res)

	log.Debug().
		Bool("isPremium", res.State.IsPremium).
		Bool("inBillingRetry", res.State.InBillingRetry).
		Int("snapshotSize", len(snapshot)).
		Msg("entitlement: reconciled purchase state")

	s.requestSync(res)

	return res.State, nil
}

// Purchase runs a user-initiated purchase. Only platform-reported failures
// surface to the caller; backend sync problems never do.
func (s *Service) Purchase(ctx context.Context, productID string) (store.PurchaseStatus, error) {
	outcome, err := s.store.Purchase(ctx, productID)
	if err != nil {
		return "", errors.Wrapf(err, "purchase failed for product %s", productID)
	}

	switch outcome.Status {
	case store.PurchaseStatusSuccess:
		s.handleVerifiedPurchase(ctx, outcome.Transaction)
	case store.PurchaseStatusPending:
		log.Info().Str("productId", productID).Msg("entitlement: purchase pending approval")
	case store.PurchaseStatusCancelled:
		log.Debug().Str("productId", productID).Msg("entitlement: purchase cancelled by user")
	}

	return outcome.Status, nil
}

func (s *Service) handleVerifiedPurchase(ctx context.Context, raw *store.RawTransaction) {
	if raw == nil {
		log.Error().Msg("entitlement: successful purchase delivered no transaction")
		return
	}

	ent, err := VerifyTransaction(*raw)
	if err != nil {
		log.Warn().Err(err).Msg("entitlement: purchased transaction failed verification, leaving for store retry")
		return
	}

	if _, err := s.Reconcile(ctx); err != nil {
		log.Error().Err(err).Msg("entitlement: post-purchase reconciliation failed")
	}

	s.acknowledge(ent.TransactionID)
}

// Restore triggers a store-side refresh followed by a full reconciliation.
func (s *Service) Restore(ctx context.Context) error {
	if err := s.store.Restore(ctx); err != nil {
		return errors.Wrap(err, "store restore failed")
	}

	_, err := s.Reconcile(ctx)
	return err
}

// publish swaps in the replacement state under the lock and fans it out to
// observers.
func (s *Service) publish(res ReconcileResult) {
	s.mu.Lock()
	s.state = res.State
	s.active = res.Active
	s.mu.Unlock()

	s.notify(res.State)
}

func (s *Service) notify(state PurchaseState) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- state:
		default:
		}
	}
}

// requestSync fires the backend sync without ever blocking or failing the
// reconciliation that produced the state.
func (s *Service) requestSync(res ReconcileResult) {
	if s.syncer == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SyncTimeout)
		defer cancel()
		s.syncer.Sync(ctx, res.State, res.Active)
	}()
}

// runListener consumes the store-pushed transaction stream until cancelled
// or the stream closes.
func (s *Service) runListener() {
	defer s.wg.Done()

	updates := s.store.TransactionUpdates()
	log.Info().Msg("entitlement: transaction update listener started")

	for {
		select {
		case <-s.runCtx.Done():
			return
		case raw, ok := <-updates:
			if !ok {
				log.Info().Msg("entitlement: transaction update stream closed")
				return
			}
			s.handleTransactionUpdate(raw)
		}
	}
}

// handleTransactionUpdate verifies a pushed record, reconciles over a fresh
// full snapshot (not just the delivered event) and acknowledges it. Records
// failing verification are skipped without acknowledgment so the platform
// keeps redelivering them.
func (s *Service) handleTransactionUpdate(raw store.RawTransaction) {
	ent, err := VerifyTransaction(raw)
	if err != nil {
		log.Warn().Err(err).
			Str("transactionId", redact.Key(raw.Transaction.ID)).
			Msg("entitlement: skipping unverified transaction update")
		recordVerificationFailure()
		return
	}

	log.Debug().
		Str("productId", ent.ProductID).
		Str("transactionId", redact.Key(ent.TransactionID)).
		Msg("entitlement: handling transaction update")

	if _, err := s.Reconcile(s.runCtx); err != nil {
		log.Error().Err(err).Msg("entitlement: reconciliation after transaction update failed")
	}

	s.acknowledge(ent.TransactionID)
}

// acknowledge finishes a transaction with a background context so an ack in
// flight at shutdown can still complete.
func (s *Service) acknowledge(transactionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.AckTimeout)
	defer cancel()

	if err := s.store.Finish(ctx, transactionID); err != nil {
		log.Error().Err(err).
			Str("transactionId", redact.Key(transactionID)).
			Msg("entitlement: failed to acknowledge transaction")
	}
}

// runExpirationMonitor fires once immediately and then on a fixed interval.
func (s *Service) runExpirationMonitor() {
	defer s.wg.Done()

	s.checkExpiration()

	ticker := time.NewTicker(s.cfg.ExpirationCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.runCtx.Done():
			return
		case <-ticker.C:
			s.checkExpiration()
		}
	}
}

// checkExpiration re-evaluates time-based expiry of the current state. A
// past expiration forces a full reconciliation because the next platform
// snapshot will no longer include the expired entitlement.
func (s *Service) checkExpiration() {
	state := s.State()
	if state.ExpirationDate == nil {
		return
	}

	now := time.Now()
	if !state.ExpirationDate.After(now) {
		log.Info().
			Time("expirationDate", *state.ExpirationDate).
			Msg("entitlement: subscription expired, forcing reconciliation")
		s.setDaysUntilExpiration(0)
		if _, err := s.Reconcile(s.runCtx); err != nil {
			log.Error().Err(err).Msg("entitlement: expiration reconciliation failed")
		}
		return
	}

	s.setDaysUntilExpiration(daysUntil(now, *state.ExpirationDate))
}

// setDaysUntilExpiration replaces the state with a copy carrying the
// recomputed countdown. Still a full replacement, never a partial write.
func (s *Service) setDaysUntilExpiration(days int) {
	s.mu.Lock()
	state := s.state
	state.DaysUntilExpiration = &days
	s.state = state
	s.mu.Unlock()

	s.notify(state)
}
