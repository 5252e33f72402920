package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coinchartfun/coinchart-backend/app/models"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/keylock"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/retry"
	"gorm.io/gorm"
)

// fakeStore is an in-memory Store with the same version semantics as the GORM
// one, plus injectable write conflicts.
type fakeStore struct {
	mu     sync.Mutex
	users  map[uint]*models.User
	nextID uint

	conflictsLeft int // next N UpdateVersioned calls fail with ErrWriteConflict
	findErr       error

	creates int
	updates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[uint]*models.User), nextID: 1}
}

func (f *fakeStore) seed(u models.User) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.ID = f.nextID
	f.nextID++
	c := u
	f.users[u.ID] = &c
	return &u
}

func (f *fakeStore) find(match func(*models.User) bool) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, u := range f.users {
		if match(u) {
			c := *u
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) FindByCustomerID(_ context.Context, id string) (*models.User, error) {
	return f.find(func(u *models.User) bool {
		return u.CustomerID != nil && *u.CustomerID == id
	})
}

func (f *fakeStore) FindBySubscriptionID(_ context.Context, id string) (*models.User, error) {
	return f.find(func(u *models.User) bool {
		return u.Subscription.SubscriptionID != nil && *u.Subscription.SubscriptionID == id
	})
}

func (f *fakeStore) FindByWallet(_ context.Context, wallet string) (*models.User, error) {
	wallet = models.NormalizeWallet(wallet)
	return f.find(func(u *models.User) bool { return u.WalletAddress == wallet })
}

func (f *fakeStore) Create(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	user.ID = f.nextID
	f.nextID++
	c := *user
	f.users[user.ID] = &c
	return nil
}

func (f *fakeStore) UpdateVersioned(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return ErrWriteConflict
	}
	stored, ok := f.users[user.ID]
	if !ok || stored.Version != user.Version {
		return ErrWriteConflict
	}
	f.updates++
	user.Version++
	c := *user
	f.users[user.ID] = &c
	return nil
}

func (f *fakeStore) get(id uint) models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.users[id]
}

func newTestService(store Store, opts ...Option) *Service {
	opts = append([]Option{WithRetryPolicy(3, time.Millisecond)}, opts...)
	return NewService(store, keylock.NewManager(), opts...)
}

func TestServiceApply_CreatesNewPaidCustomer(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	end := time.Now().AddDate(0, 1, 0)
	err := svc.Apply(context.Background(), SubscriptionUpdate{
		Op:              OpApply,
		CustomerID:      "cus_new",
		SubscriptionID:  "sub_new",
		WalletAddress:   "0xABCDEF",
		Status:          models.SubscriptionStatusPremium,
		PeriodEnd:       &end,
		ForceRenewal:    true,
		CreateIfMissing: true,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if store.creates != 1 {
		t.Fatalf("creates = %d, want 1", store.creates)
	}

	u, err := store.FindByCustomerID(context.Background(), "cus_new")
	if err != nil {
		t.Fatalf("FindByCustomerID: %v", err)
	}
	if u.WalletAddress != "0xabcdef" {
		t.Fatalf("wallet must be stored lowercased, got %q", u.WalletAddress)
	}
	if u.Subscription.Status != models.SubscriptionStatusPremium {
		t.Fatalf("status = %q", u.Subscription.Status)
	}
	if u.Subscription.CancelAtPeriodEnd {
		t.Fatalf("new paid customer must have auto-renewal on")
	}
}

func TestServiceApply_NewCustomerWithoutWalletGetsPlaceholder(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	err := svc.Apply(context.Background(), SubscriptionUpdate{
		Op:              OpApply,
		CustomerID:      "cus_nw",
		Status:          models.SubscriptionStatusActive,
		CreateIfMissing: true,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	u, err := store.FindByCustomerID(context.Background(), "cus_nw")
	if err != nil {
		t.Fatalf("FindByCustomerID: %v", err)
	}
	if !models.IsPlaceholderWallet(u.WalletAddress) {
		t.Fatalf("expected placeholder wallet, got %q", u.WalletAddress)
	}
}

func TestServiceApply_DuplicateDeliveryWritesOnce(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	store.seed(models.User{WalletAddress: "0xdup", Subscription: models.Subscription{Status: models.SubscriptionStatusFree}})

	end := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	upd := SubscriptionUpdate{
		Op:            OpApply,
		WalletAddress: "0xdup",
		Status:        models.SubscriptionStatusPremium,
		PeriodEnd:     &end,
	}

	for i := 0; i < 3; i++ {
		if err := svc.Apply(context.Background(), upd); err != nil {
			t.Fatalf("Apply #%d: %v", i+1, err)
		}
	}
	if store.updates != 1 {
		t.Fatalf("updates = %d, want exactly 1 for three identical deliveries", store.updates)
	}
}

func TestServiceApply_SubscriptionIDFallbackBackfillsCustomerID(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	subID := "sub_fb"
	seeded := store.seed(models.User{
		WalletAddress: "0xfb",
		Subscription: models.Subscription{
			Status:         models.SubscriptionStatusPremium,
			SubscriptionID: &subID,
		},
	})

	cancel := true
	err := svc.Apply(context.Background(), SubscriptionUpdate{
		Op:                OpApply,
		CustomerID:        "cus_fb",
		SubscriptionID:    subID,
		CancelAtPeriodEnd: &cancel,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	u := store.get(seeded.ID)
	if u.CustomerID == nil || *u.CustomerID != "cus_fb" {
		t.Fatalf("customer id was not backfilled: %+v", u.CustomerID)
	}
	if !u.Subscription.CancelAtPeriodEnd {
		t.Fatalf("cancel flag was not applied")
	}
}

func TestServiceApply_MissingRecordWithoutCreateIsNoOp(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	err := svc.Apply(context.Background(), SubscriptionUpdate{
		Op:         OpApply,
		CustomerID: "cus_ghost",
		Status:     models.SubscriptionStatusPremium,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if store.creates != 0 || store.updates != 0 {
		t.Fatalf("ghost event must not write: creates=%d updates=%d", store.creates, store.updates)
	}
}

func TestServiceApply_ResetUnknownCustomerIsNoOp(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	if err := svc.Apply(context.Background(), SubscriptionUpdate{Op: OpReset, CustomerID: "cus_ghost"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if store.creates != 0 {
		t.Fatalf("reset must never create a record")
	}
}

func TestServiceApply_CancelThenReactivate(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	subID := "sub_cr"
	custID := "cus_cr"
	end := time.Now().AddDate(0, 1, 0)
	seeded := store.seed(models.User{
		WalletAddress: "0xcr",
		CustomerID:    &custID,
		Subscription: models.Subscription{
			Status:         models.SubscriptionStatusPremium,
			SubscriptionID: &subID,
			PeriodEndAt:    &end,
			ExpiryDate:     &end,
		},
	})

	if err := svc.Apply(context.Background(), SubscriptionUpdate{Op: OpReset, CustomerID: custID}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	u := store.get(seeded.ID)
	if u.Subscription.Status != models.SubscriptionStatusFree || !u.Subscription.CancelAtPeriodEnd {
		t.Fatalf("after reset: %+v", u.Subscription)
	}

	newEnd := time.Now().AddDate(0, 2, 0)
	err := svc.Apply(context.Background(), SubscriptionUpdate{
		Op:           OpApply,
		CustomerID:   custID,
		Status:       models.SubscriptionStatusPremium,
		PeriodEnd:    &newEnd,
		ForceRenewal: true,
	})
	if err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	u = store.get(seeded.ID)
	if u.Subscription.Status != models.SubscriptionStatusPremium || u.Subscription.CancelAtPeriodEnd {
		t.Fatalf("after reactivation: %+v", u.Subscription)
	}
	if u.WalletAddress != "0xcr" {
		t.Fatalf("wallet must survive the cycle, got %q", u.WalletAddress)
	}
}

func TestServiceApply_RetriesWriteConflict(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	store.seed(models.User{WalletAddress: "0xwc", Subscription: models.Subscription{Status: models.SubscriptionStatusFree}})
	store.conflictsLeft = 2

	end := time.Now().AddDate(0, 1, 0)
	err := svc.Apply(context.Background(), SubscriptionUpdate{
		Op:            OpApply,
		WalletAddress: "0xwc",
		Status:        models.SubscriptionStatusPremium,
		PeriodEnd:     &end,
	})
	if err != nil {
		t.Fatalf("Apply should succeed on the third attempt: %v", err)
	}
	if store.updates != 1 {
		t.Fatalf("updates = %d, want 1", store.updates)
	}
}

func TestServiceApply_ExhaustsRetries(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	store.seed(models.User{WalletAddress: "0xex", Subscription: models.Subscription{Status: models.SubscriptionStatusFree}})
	store.conflictsLeft = 3

	end := time.Now().AddDate(0, 1, 0)
	err := svc.Apply(context.Background(), SubscriptionUpdate{
		Op:            OpApply,
		WalletAddress: "0xex",
		Status:        models.SubscriptionStatusPremium,
		PeriodEnd:     &end,
	})
	if !errors.Is(err, retry.ErrExhausted) {
		t.Fatalf("err = %v, want retry exhaustion", err)
	}
	if !errors.Is(err, ErrWriteConflict) {
		t.Fatalf("exhaustion must wrap the conflict, got %v", err)
	}
}

func TestServiceApply_StoreErrorIsNotRetried(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	store.findErr = ErrStoreUnavailable

	err := svc.Apply(context.Background(), SubscriptionUpdate{
		Op:         OpApply,
		CustomerID: "cus_down",
	})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
}

func TestServiceApply_NoneAndEmptyKey(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	if err := svc.Apply(context.Background(), SubscriptionUpdate{Op: OpNone}); err != nil {
		t.Fatalf("OpNone must be acked: %v", err)
	}
	err := svc.Apply(context.Background(), SubscriptionUpdate{Op: OpApply})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("err = %v, want ErrInvalidPayload for an update with no key", err)
	}
}

func TestServiceApply_ConcurrentSameCustomerSerializes(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	custID := "cus_conc"
	seeded := store.seed(models.User{
		WalletAddress: "0xconc",
		CustomerID:    &custID,
		Subscription:  models.Subscription{Status: models.SubscriptionStatusFree},
	})

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			end := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, i, 0)
			errs <- svc.Apply(context.Background(), SubscriptionUpdate{
				Op:         OpApply,
				CustomerID: custID,
				Status:     models.SubscriptionStatusPremium,
				PeriodEnd:  &end,
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Apply: %v", err)
		}
	}

	// Serialized applies never see a stale version, so every distinct update
	// lands as exactly one write.
	u := store.get(seeded.ID)
	if u.Version != uint64(store.updates) {
		t.Fatalf("version = %d, updates = %d; writes must be serialized", u.Version, store.updates)
	}
	if u.Subscription.Status != models.SubscriptionStatusPremium {
		t.Fatalf("status = %q", u.Subscription.Status)
	}
}

func TestStatusByWallet(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	svc := newTestService(store, WithClock(fixedClock(now)))

	end := now.AddDate(0, 1, 0)
	store.seed(models.User{
		WalletAddress: "0xactive",
		Subscription: models.Subscription{
			Status:      models.SubscriptionStatusPremium,
			PeriodEndAt: &end,
			ExpiryDate:  &end,
		},
	})
	past := now.AddDate(0, -1, 0)
	store.seed(models.User{
		WalletAddress: "0xexpired",
		Subscription: models.Subscription{
			Status:      models.SubscriptionStatusPremium,
			PeriodEndAt: &past,
			ExpiryDate:  &past,
		},
	})

	st, err := svc.StatusByWallet(context.Background(), "0xACTIVE")
	if err != nil {
		t.Fatalf("StatusByWallet: %v", err)
	}
	if !st.IsActive || st.Status != models.SubscriptionStatusPremium {
		t.Fatalf("active wallet: %+v", st)
	}

	st, err = svc.StatusByWallet(context.Background(), "0xexpired")
	if err != nil {
		t.Fatalf("StatusByWallet: %v", err)
	}
	if st.IsActive || st.Status != models.SubscriptionStatusFree {
		t.Fatalf("expired wallet: %+v", st)
	}

	st, err = svc.StatusByWallet(context.Background(), "0xunknown")
	if err != nil {
		t.Fatalf("StatusByWallet: %v", err)
	}
	if st.IsActive || st.Status != models.SubscriptionStatusFree {
		t.Fatalf("unknown wallet must read as Free: %+v", st)
	}
}
