// Copyright (c) 2025, the Braindumpster contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package entitlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/furkancekic/braindumpster-ios-sub000/internal/store"
)

// fakeStore is a controllable PlatformStore double.
type fakeStore struct {
	mu         sync.Mutex
	snapshot   []store.RawTransaction
	updates    chan store.RawTransaction
	finished   map[string]int
	restoreErr error
	purchase   *store.PurchaseOutcome
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		updates:  make(chan store.RawTransaction, 16),
		finished: make(map[string]int),
	}
}

func (f *fakeStore) setSnapshot(snapshot []store.RawTransaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = snapshot
}

func (f *fakeStore) CurrentEntitlements(_ context.Context) ([]store.RawTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.RawTransaction, len(f.snapshot))
	copy(out, f.snapshot)
	return out, nil
}

func (f *fakeStore) TransactionUpdates() <-chan store.RawTransaction { return f.updates }

func (f *fakeStore) Purchase(_ context.Context, _ string) (*store.PurchaseOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.purchase == nil {
		return &store.PurchaseOutcome{Status: store.PurchaseStatusCancelled}, nil
	}
	return f.purchase, nil
}

func (f *fakeStore) Restore(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restoreErr
}

func (f *fakeStore) Finish(_ context.Context, transactionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished[transactionID]++
	return nil
}

func (f *fakeStore) finishCount(transactionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finished[transactionID]
}

func (f *fakeStore) Receipt(_ context.Context) ([]byte, error)        { return nil, nil }
func (f *fakeStore) RefreshReceipt(_ context.Context) ([]byte, error) { return nil, nil }

// recordingSyncer counts sync invocations without doing anything.
type recordingSyncer struct {
	mu    sync.Mutex
	calls int
	last  PurchaseState
}

func (r *recordingSyncer) Sync(_ context.Context, state PurchaseState, _ *Entitlement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.last = state
}

func (r *recordingSyncer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func startService(t *testing.T, f *fakeStore, syncer Syncer) *Service {
	t.Helper()

	svc := NewService(Config{ExpirationCheckInterval: time.Hour}, f, syncer)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(svc.Stop)
	return svc
}

func TestService_StartReconcilesInitialSnapshot(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	now := time.Now()
	f.setSnapshot([]store.RawTransaction{
		verifiedTx("tx-1", "premium.yearly", now.Add(-time.Hour), timePtr(now.Add(200*24*time.Hour))),
	})

	svc := startService(t, f, nil)

	state := svc.State()
	assert.True(t, state.IsPremium)
	require.NotNil(t, state.ActiveProductID)
	assert.Equal(t, "premium.yearly", *state.ActiveProductID)

	active := svc.ActiveEntitlement()
	require.NotNil(t, active)
	assert.Equal(t, "tx-1", active.TransactionID)
}

func TestService_StartTwiceFails(t *testing.T) {
	t.Parallel()

	svc := NewService(Config{}, newFakeStore(), nil)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	assert.ErrorIs(t, svc.Start(context.Background()), ErrAlreadyStarted)
}

func TestService_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	svc := NewService(Config{}, newFakeStore(), nil)
	require.NoError(t, svc.Start(context.Background()))

	svc.Stop()
	svc.Stop() // second stop is a no-op
}

func TestService_ListenerEventReconcilesAndAcknowledges(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	svc := startService(t, f, nil)

	assert.False(t, svc.State().IsPremium)

	now := time.Now()
	renewal := verifiedTx("tx-renew", "premium.monthly", now, timePtr(now.Add(30*24*time.Hour)))
	f.setSnapshot([]store.RawTransaction{renewal})
	f.updates <- renewal

	require.Eventually(t, func() bool {
		return svc.State().IsPremium && f.finishCount("tx-renew") == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestService_ListenerSkipsUnverifiedWithoutAck(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	svc := startService(t, f, nil)

	f.updates <- store.RawTransaction{
		Transaction:   store.Transaction{ID: "tx-bad", ProductID: "premium.monthly"},
		State:         store.VerificationStateUnverified,
		FailureReason: "invalid signature",
	}

	// Give the listener a moment; the record must be left unacknowledged
	// for platform-level redelivery.
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, f.finishCount("tx-bad"))
	assert.False(t, svc.State().IsPremium)
}

func TestService_PurchaseSuccessUnlocksPremium(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	now := time.Now()
	tx := verifiedTx("tx-buy", "premium.lifetime", now, nil)
	f.purchase = &store.PurchaseOutcome{Status: store.PurchaseStatusSuccess, Transaction: &tx}
	f.setSnapshot([]store.RawTransaction{tx})

	syncer := &recordingSyncer{}
	svc := startService(t, f, syncer)

	status, err := svc.Purchase(context.Background(), "premium.lifetime")
	require.NoError(t, err)
	assert.Equal(t, store.PurchaseStatusSuccess, status)
	assert.True(t, svc.State().IsPremium)

	require.Eventually(t, func() bool {
		return f.finishCount("tx-buy") >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestService_PurchaseCancelledLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	f.purchase = &store.PurchaseOutcome{Status: store.PurchaseStatusCancelled}
	svc := startService(t, f, nil)

	status, err := svc.Purchase(context.Background(), "premium.monthly")
	require.NoError(t, err)
	assert.Equal(t, store.PurchaseStatusCancelled, status)
	assert.False(t, svc.State().IsPremium)
}

func TestService_RestoreReconciles(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	svc := startService(t, f, nil)

	now := time.Now()
	f.setSnapshot([]store.RawTransaction{
		verifiedTx("tx-restored", "premium.yearly", now.Add(-time.Hour), timePtr(now.Add(100*24*time.Hour))),
	})

	require.NoError(t, svc.Restore(context.Background()))
	assert.True(t, svc.State().IsPremium)
}

func TestService_ExpirationTickForcesReconcile(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	now := time.Now()
	expired := verifiedTx("tx-exp", "premium.monthly", now.Add(-31*24*time.Hour), timePtr(now.Add(-time.Second)))
	f.setSnapshot([]store.RawTransaction{expired})

	syncer := &recordingSyncer{}
	svc := startService(t, f, syncer)

	before := syncer.callCount()
	svc.checkExpiration()

	state := svc.State()
	require.NotNil(t, state.DaysUntilExpiration)
	assert.Equal(t, 0, *state.DaysUntilExpiration)

	// The tick issued a fresh reconciliation, visible as another sync.
	require.Eventually(t, func() bool {
		return syncer.callCount() > before
	}, 2*time.Second, 10*time.Millisecond)
}

func TestService_ExpirationTickFutureDateUpdatesCountdown(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	now := time.Now()
	f.setSnapshot([]store.RawTransaction{
		verifiedTx("tx-1", "premium.monthly", now.Add(-time.Hour), timePtr(now.Add(72*time.Hour))),
	})

	svc := startService(t, f, nil)
	svc.checkExpiration()

	state := svc.State()
	require.NotNil(t, state.DaysUntilExpiration)
	assert.Equal(t, 3, *state.DaysUntilExpiration)
}

func TestService_ExpirationTickLifetimeIsNoop(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	f.setSnapshot([]store.RawTransaction{
		verifiedTx("tx-life", "premium.lifetime", time.Now().Add(-time.Hour), nil),
	})

	svc := startService(t, f, nil)
	svc.checkExpiration()

	state := svc.State()
	assert.True(t, state.IsPremium)
	assert.Nil(t, state.DaysUntilExpiration)
}

func TestService_ConcurrentReconcileNeverMixesSnapshots(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	svc := startService(t, f, nil)

	now := time.Now()
	monthlyExp := now.Add(30 * 24 * time.Hour)
	snapA := []store.RawTransaction{
		verifiedTx("tx-a", "premium.monthly", now.Add(-time.Hour), &monthlyExp),
	}
	snapB := []store.RawTransaction{
		verifiedTx("tx-b", "premium.lifetime", now.Add(-time.Hour), nil),
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.setSnapshot(snapA)
			_, _ = svc.Reconcile(context.Background())
		}()
		go func() {
			defer wg.Done()
			f.setSnapshot(snapB)
			_, _ = svc.Reconcile(context.Background())
		}()
	}
	wg.Wait()

	// The final state must match one real snapshot, never a blend.
	state := svc.State()
	require.True(t, state.IsPremium)
	require.NotNil(t, state.ActiveProductID)

	switch *state.ActiveProductID {
	case "premium.monthly":
		require.NotNil(t, state.ExpirationDate)
		assert.True(t, state.ExpirationDate.Equal(monthlyExp))
	case "premium.lifetime":
		assert.Nil(t, state.ExpirationDate)
		assert.Nil(t, state.DaysUntilExpiration)
	default:
		t.Fatalf("unexpected active product %q", *state.ActiveProductID)
	}
}

func TestService_SubscribeObservesReplacements(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	svc := startService(t, f, nil)

	ch, cancel := svc.Subscribe()
	defer cancel()

	now := time.Now()
	f.setSnapshot([]store.RawTransaction{
		verifiedTx("tx-1", "premium.yearly", now.Add(-time.Hour), timePtr(now.Add(200*24*time.Hour))),
	})
	_, err := svc.Reconcile(context.Background())
	require.NoError(t, err)

	select {
	case state := <-ch:
		assert.True(t, state.IsPremium)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a state notification")
	}
}

func TestService_SyncerReceivesReconciledState(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	now := time.Now()
	f.setSnapshot([]store.RawTransaction{
		verifiedTx("tx-1", "premium.yearly", now.Add(-time.Hour), timePtr(now.Add(200*24*time.Hour))),
	})

	syncer := &recordingSyncer{}
	startService(t, f, syncer)

	// The initial reconciliation at start fires the first sync.
	require.Eventually(t, func() bool {
		return syncer.callCount() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	syncer.mu.Lock()
	defer syncer.mu.Unlock()
	assert.True(t, syncer.last.IsPremium)
}
