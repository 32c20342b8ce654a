package market

import (
	"context"
	"errors"
	"sync"
	"testing"

	"agrimandi/internal/model"
)

// memAlertStore 是内存版 AlertStore，条件插入语义与 GormStore 一致。
type memAlertStore struct {
	mu      sync.Mutex
	rows    []BelowMSPListing
	alerts  map[uint]*model.UserAlert
	nextID  uint
	listErr error
}

func newMemAlertStore(rows ...BelowMSPListing) *memAlertStore {
	return &memAlertStore{
		rows:   rows,
		alerts: make(map[uint]*model.UserAlert),
	}
}

func (m *memAlertStore) ListAvailableWithMSP(ctx context.Context, season string) ([]BelowMSPListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]BelowMSPListing, len(m.rows))
	copy(out, m.rows)
	return out, nil
}

func (m *memAlertStore) CreateAlertIfAbsent(ctx context.Context, alert *model.UserAlert) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if !a.IsRead && a.UserID == alert.UserID && a.ListingID == alert.ListingID && a.AlertType == alert.AlertType {
			return false, nil
		}
	}
	m.nextID++
	alert.ID = m.nextID
	cp := *alert
	m.alerts[alert.ID] = &cp
	return true, nil
}

func (m *memAlertStore) GetAlert(ctx context.Context, id uint) (*model.UserAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAlertStore) MarkAlertRead(ctx context.Context, alertID, userID uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[alertID]
	if !ok || a.UserID != userID {
		return false, nil
	}
	a.IsRead = true
	return true, nil
}

func (m *memAlertStore) unreadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.alerts {
		if !a.IsRead {
			n++
		}
	}
	return n
}

type mockNotifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockNotifier) SendBelowMSPAlert(ctx context.Context, toEmail, cropName string, listingPrice, mspPrice float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.err
}

func TestCheckBelowMSP_CreatesAlert(t *testing.T) {
	store := newMemAlertStore(BelowMSPListing{
		ListingID:    1,
		FarmerID:     10,
		FarmerEmail:  "farmer@example.com",
		CropName:     "Wheat",
		Unit:         "quintal",
		Quantity:     5,
		PricePerUnit: 100,
		MSPPrice:     120,
	})
	gen := NewGenerator(store, nil, "2024-25", testLogger())

	created, err := gen.CheckBelowMSP(context.Background())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 alert created, got %d", created)
	}

	alert := store.alerts[1]
	if alert == nil {
		t.Fatalf("expected alert stored")
	}
	if alert.UserID != 10 || alert.ListingID != 1 || alert.AlertType != model.AlertTypeBelowMSP {
		t.Fatalf("unexpected alert: %+v", alert)
	}
	want := "Your Wheat listing is priced below MSP. Current MSP: ₹120"
	if alert.Message != want {
		t.Fatalf("message mismatch:\n got: %s\nwant: %s", alert.Message, want)
	}
	if alert.IsRead {
		t.Fatalf("new alert must be unread")
	}
}

func TestCheckBelowMSP_SkipsAtOrAboveMSP(t *testing.T) {
	store := newMemAlertStore(
		BelowMSPListing{ListingID: 1, FarmerID: 10, CropName: "Wheat", PricePerUnit: 2125, MSPPrice: 2125},
		BelowMSPListing{ListingID: 2, FarmerID: 10, CropName: "Rice", PricePerUnit: 2500, MSPPrice: 2100},
	)
	gen := NewGenerator(store, nil, "2024-25", testLogger())

	created, err := gen.CheckBelowMSP(context.Background())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if created != 0 || len(store.alerts) != 0 {
		t.Fatalf("expected no alerts, created=%d stored=%d", created, len(store.alerts))
	}
}

func TestCheckBelowMSP_RepeatedRunsSingleUnread(t *testing.T) {
	store := newMemAlertStore(BelowMSPListing{
		ListingID: 1, FarmerID: 10, CropName: "Wheat", PricePerUnit: 100, MSPPrice: 120,
	})
	gen := NewGenerator(store, nil, "2024-25", testLogger())

	for i := 0; i < 3; i++ {
		if _, err := gen.CheckBelowMSP(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if got := store.unreadCount(); got != 1 {
		t.Fatalf("expected exactly one unread alert, got %d", got)
	}
}

func TestCheckBelowMSP_ReissuesAfterRead(t *testing.T) {
	store := newMemAlertStore(BelowMSPListing{
		ListingID: 1, FarmerID: 10, CropName: "Wheat", PricePerUnit: 100, MSPPrice: 120,
	})
	gen := NewGenerator(store, nil, "2024-25", testLogger())

	if _, err := gen.CheckBelowMSP(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := gen.Dismiss(context.Background(), 1, 10); err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	// 标记已读后价格仍然偏低，下一轮应重新生成提醒
	created, err := gen.CheckBelowMSP(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if created != 1 || store.unreadCount() != 1 {
		t.Fatalf("expected fresh unread alert, created=%d unread=%d", created, store.unreadCount())
	}
}

func TestCheckBelowMSP_EmailFailureDoesNotAbort(t *testing.T) {
	store := newMemAlertStore(
		BelowMSPListing{ListingID: 1, FarmerID: 10, FarmerEmail: "a@example.com", CropName: "Wheat", PricePerUnit: 100, MSPPrice: 120},
		BelowMSPListing{ListingID: 2, FarmerID: 11, FarmerEmail: "b@example.com", CropName: "Rice", PricePerUnit: 2000, MSPPrice: 2100},
	)
	notifier := &mockNotifier{err: errors.New("smtp down")}
	gen := NewGenerator(store, notifier, "2024-25", testLogger())

	created, err := gen.CheckBelowMSP(context.Background())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if created != 2 {
		t.Fatalf("expected both alerts despite email failures, got %d", created)
	}
	if notifier.calls != 2 {
		t.Fatalf("expected 2 email attempts, got %d", notifier.calls)
	}
}

func TestCheckBelowMSP_StoreError(t *testing.T) {
	store := newMemAlertStore()
	store.listErr = ErrStoreUnavailable
	gen := NewGenerator(store, nil, "2024-25", testLogger())

	if _, err := gen.CheckBelowMSP(context.Background()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestDismiss(t *testing.T) {
	store := newMemAlertStore(BelowMSPListing{
		ListingID: 1, FarmerID: 10, CropName: "Wheat", PricePerUnit: 100, MSPPrice: 120,
	})
	gen := NewGenerator(store, nil, "2024-25", testLogger())
	if _, err := gen.CheckBelowMSP(context.Background()); err != nil {
		t.Fatalf("check: %v", err)
	}

	if err := gen.Dismiss(context.Background(), 1, 99); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := gen.Dismiss(context.Background(), 1, 10); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	// 重复已读是无害的
	if err := gen.Dismiss(context.Background(), 1, 10); err != nil {
		t.Fatalf("repeat dismiss: %v", err)
	}
	if err := gen.Dismiss(context.Background(), 42, 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
