package entitlement

import (
	"context"
	"fmt"
	"testing"
	"time"

	"littlefidan/internal/domain"
	"littlefidan/internal/store"
)

var day0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store  *store.MemoryStore
	now    time.Time
	logSeq int
}

func newFixture() *fixture {
	return &fixture{store: store.NewMemoryStore(), now: day0}
}

func (f *fixture) checker() *Checker {
	return NewCheckerWithClock(f.store, func() time.Time { return f.now })
}

func (f *fixture) addProduct(t *testing.T, id string, ptype domain.ProductType, access domain.AccessType) {
	t.Helper()
	err := f.store.SaveProduct(context.Background(), domain.Product{
		ID:         id,
		Name:       id,
		Slug:       id,
		Type:       ptype,
		AccessType: access,
		Currency:   "EUR",
		Published:  true,
		CreatedAt:  day0,
		UpdatedAt:  day0,
	})
	if err != nil {
		t.Fatalf("save product %s: %v", id, err)
	}
}

func (f *fixture) addFile(t *testing.T, id, productID string, preview bool, override domain.AccessType) {
	t.Helper()
	err := f.store.SaveProductFile(context.Background(), domain.ProductFile{
		ID:             id,
		ProductID:      productID,
		Name:           id + ".pdf",
		StorageKey:     "files/" + id + ".pdf",
		SizeBytes:      1024,
		MimeType:       "application/pdf",
		IsPreview:      preview,
		AccessOverride: override,
		CreatedAt:      day0,
	})
	if err != nil {
		t.Fatalf("save file %s: %v", id, err)
	}
}

func (f *fixture) addBundleItem(t *testing.T, bundleID, productID string) {
	t.Helper()
	err := f.store.SaveBundleItem(context.Background(), domain.BundleItem{
		ID:        bundleID + "-" + productID,
		BundleID:  bundleID,
		ProductID: productID,
		CreatedAt: day0,
	})
	if err != nil {
		t.Fatalf("save bundle item: %v", err)
	}
}

func (f *fixture) addPaidOrder(t *testing.T, orderID, userID string, createdAt time.Time, productIDs ...string) {
	t.Helper()
	items := make([]domain.OrderItem, 0, len(productIDs))
	for _, pid := range productIDs {
		items = append(items, domain.OrderItem{
			ID:        orderID + "-" + pid,
			ProductID: pid,
			Quantity:  1,
		})
	}
	err := f.store.CreateOrder(context.Background(), domain.Order{
		ID:        orderID,
		UserID:    userID,
		Status:    domain.OrderPaid,
		Currency:  "EUR",
		Email:     userID + "@example.com",
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}, items)
	if err != nil {
		t.Fatalf("create order %s: %v", orderID, err)
	}
}

func (f *fixture) logDownload(t *testing.T, userID, fileID, productID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		f.logSeq++
		err := f.store.AppendDownload(context.Background(), domain.DownloadLog{
			ID:        fmt.Sprintf("dl-%d", f.logSeq),
			UserID:    userID,
			FileID:    fileID,
			ProductID: productID,
			CreatedAt: f.now,
		})
		if err != nil {
			t.Fatalf("append download: %v", err)
		}
	}
}

func mustCheck(t *testing.T, c *Checker, userID, fileID string) Decision {
	t.Helper()
	d, err := c.Check(context.Background(), userID, fileID)
	if err != nil {
		t.Fatalf("check %s/%s: %v", userID, fileID, err)
	}
	return d
}

func TestFreeFileGrantedWithoutPurchaseOrIdentity(t *testing.T) {
	f := newFixture()
	f.addProduct(t, "p-free", domain.ProductSingle, domain.AccessFree)
	f.addFile(t, "file-free", "p-free", false, "")

	for _, userID := range []string{"", "user-1"} {
		d := mustCheck(t, f.checker(), userID, "file-free")
		if !d.Granted {
			t.Fatalf("free file should be granted for user %q, got %+v", userID, d)
		}
		if d.Remaining != Uncapped {
			t.Fatalf("free file remaining should be uncapped, got %d", d.Remaining)
		}
	}
}

func TestPreviewFileBypassesAllChecks(t *testing.T) {
	f := newFixture()
	f.addProduct(t, "p-paid", domain.ProductSingle, domain.AccessPaid)
	f.addFile(t, "file-preview", "p-paid", true, "")

	d := mustCheck(t, f.checker(), "", "file-preview")
	if !d.Granted || d.Remaining != Uncapped {
		t.Fatalf("preview file should be granted uncapped, got %+v", d)
	}
}

func TestFileOverrideBeatsProductAccessType(t *testing.T) {
	f := newFixture()
	f.addProduct(t, "p-mixed", domain.ProductSingle, domain.AccessMixed)
	f.addFile(t, "file-open", "p-mixed", false, domain.AccessFree)
	f.addFile(t, "file-locked", "p-mixed", false, domain.AccessPaid)

	if d := mustCheck(t, f.checker(), "", "file-open"); !d.Granted {
		t.Fatalf("free-override file should be granted, got %+v", d)
	}
	d := mustCheck(t, f.checker(), "user-1", "file-locked")
	if d.Granted || d.Reason != ReasonNotPurchased {
		t.Fatalf("paid-override file without order should be not_purchased, got %+v", d)
	}
}

func TestAnonymousDeniedForPaidFile(t *testing.T) {
	f := newFixture()
	f.addProduct(t, "p-paid", domain.ProductSingle, domain.AccessPaid)
	f.addFile(t, "file-1", "p-paid", false, "")

	d := mustCheck(t, f.checker(), "", "file-1")
	if d.Granted || d.Reason != ReasonNotAuthenticated {
		t.Fatalf("anonymous paid access should be not_authenticated, got %+v", d)
	}
}

func TestUnknownFileAndOrphanedFile(t *testing.T) {
	f := newFixture()
	d := mustCheck(t, f.checker(), "user-1", "no-such-file")
	if d.Granted || d.Reason != ReasonNotFound {
		t.Fatalf("missing file should be not_found, got %+v", d)
	}

	f.addFile(t, "orphan", "no-such-product", false, "")
	d = mustCheck(t, f.checker(), "user-1", "orphan")
	if d.Granted || d.Reason != ReasonNotFound {
		t.Fatalf("file with missing product should be not_found, got %+v", d)
	}
}

func TestPaidFileWithoutOrderIsNotPurchased(t *testing.T) {
	f := newFixture()
	f.addProduct(t, "p-paid", domain.ProductSingle, domain.AccessPaid)
	f.addFile(t, "file-1", "p-paid", false, "")
	f.addPaidOrder(t, "o-other", "someone-else", day0, "p-paid")

	d := mustCheck(t, f.checker(), "user-1", "file-1")
	if d.Granted || d.Reason != ReasonNotPurchased {
		t.Fatalf("expected not_purchased, got %+v", d)
	}
}

func TestPendingOrderDoesNotGrant(t *testing.T) {
	f := newFixture()
	f.addProduct(t, "p-paid", domain.ProductSingle, domain.AccessPaid)
	f.addFile(t, "file-1", "p-paid", false, "")
	err := f.store.CreateOrder(context.Background(), domain.Order{
		ID:        "o-pending",
		UserID:    "user-1",
		Status:    domain.OrderPending,
		Currency:  "EUR",
		Email:     "user-1@example.com",
		CreatedAt: day0,
		UpdatedAt: day0,
	}, []domain.OrderItem{{ID: "oi-1", ProductID: "p-paid", Quantity: 1}})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	d := mustCheck(t, f.checker(), "user-1", "file-1")
	if d.Granted || d.Reason != ReasonNotPurchased {
		t.Fatalf("pending order must not grant, got %+v", d)
	}
}

func TestAccessWindowBoundaries(t *testing.T) {
	f := newFixture()
	f.addProduct(t, "p-paid", domain.ProductSingle, domain.AccessPaid)
	f.addFile(t, "file-1", "p-paid", false, "")
	f.addPaidOrder(t, "o-1", "user-1", day0, "p-paid")

	cases := []struct {
		name    string
		at      time.Time
		granted bool
	}{
		{"day 29", day0.Add(29 * 24 * time.Hour), true},
		{"exactly day 30", day0.Add(AccessWindow), true},
		{"one second past day 30", day0.Add(AccessWindow + time.Second), false},
		{"day 31", day0.Add(31 * 24 * time.Hour), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f.now = tc.at
			d := mustCheck(t, f.checker(), "user-1", "file-1")
			if d.Granted != tc.granted {
				t.Fatalf("at %s expected granted=%v, got %+v", tc.at, tc.granted, d)
			}
			if !tc.granted && d.Reason != ReasonExpired {
				t.Fatalf("expected expired, got %+v", d)
			}
		})
	}
}

func TestEarliestPurchaseStartsTheClock(t *testing.T) {
	f := newFixture()
	f.addProduct(t, "p-paid", domain.ProductSingle, domain.AccessPaid)
	f.addFile(t, "file-1", "p-paid", false, "")
	f.addPaidOrder(t, "o-early", "user-1", day0, "p-paid")
	f.addPaidOrder(t, "o-late", "user-1", day0.Add(10*24*time.Hour), "p-paid")

	// 35 days after the first order, 25 after the repurchase: the earlier
	// order governs, so access is expired.
	f.now = day0.Add(35 * 24 * time.Hour)
	d := mustCheck(t, f.checker(), "user-1", "file-1")
	if d.Granted || d.Reason != ReasonExpired {
		t.Fatalf("earliest purchase must govern the window, got %+v", d)
	}
	if want := day0.Add(AccessWindow); !d.ExpiresAt.Equal(want) {
		t.Fatalf("expiry should derive from the earliest order: want %s, got %s", want, d.ExpiresAt)
	}
}

func TestDownloadLimitExactlyFiveGrants(t *testing.T) {
	f := newFixture()
	f.addProduct(t, "p-paid", domain.ProductSingle, domain.AccessPaid)
	f.addFile(t, "file-1", "p-paid", false, "")
	f.addPaidOrder(t, "o-1", "user-1", day0, "p-paid")
	f.now = day0.Add(24 * time.Hour)

	for i := 0; i < DownloadLimit; i++ {
		d := mustCheck(t, f.checker(), "user-1", "file-1")
		if !d.Granted {
			t.Fatalf("download %d should be granted, got %+v", i+1, d)
		}
		if want := DownloadLimit - i; d.Remaining != want {
			t.Fatalf("download %d: want remaining %d, got %d", i+1, want, d.Remaining)
		}
		f.logDownload(t, "user-1", "file-1", "p-paid", 1)
	}

	d := mustCheck(t, f.checker(), "user-1", "file-1")
	if d.Granted || d.Reason != ReasonLimitReached {
		t.Fatalf("sixth attempt should be limit_reached, got %+v", d)
	}
}

func TestCountIsPerFileNotPerProduct(t *testing.T) {
	f := newFixture()
	f.addProduct(t, "p-paid", domain.ProductSingle, domain.AccessPaid)
	f.addFile(t, "file-a", "p-paid", false, "")
	f.addFile(t, "file-b", "p-paid", false, "")
	f.addPaidOrder(t, "o-1", "user-1", day0, "p-paid")
	f.now = day0.Add(24 * time.Hour)

	f.logDownload(t, "user-1", "file-a", "p-paid", DownloadLimit)

	if d := mustCheck(t, f.checker(), "user-1", "file-a"); d.Granted {
		t.Fatalf("exhausted file should be denied, got %+v", d)
	}
	d := mustCheck(t, f.checker(), "user-1", "file-b")
	if !d.Granted || d.Remaining != DownloadLimit {
		t.Fatalf("sibling file has its own counter, got %+v", d)
	}
}

func TestBundlePurchaseGrantsComponentFiles(t *testing.T) {
	f := newFixture()
	f.addProduct(t, "bundle-a", domain.ProductBundle, domain.AccessPaid)
	f.addProduct(t, "comp-b", domain.ProductSingle, domain.AccessPaid)
	f.addProduct(t, "comp-c", domain.ProductSingle, domain.AccessPaid)
	f.addBundleItem(t, "bundle-a", "comp-b")
	f.addBundleItem(t, "bundle-a", "comp-c")
	f.addFile(t, "file-b", "comp-b", false, "")
	f.addFile(t, "file-c", "comp-c", false, "")
	f.addPaidOrder(t, "o-bundle", "user-1", day0, "bundle-a")

	f.now = day0.Add(24 * time.Hour)
	for _, fileID := range []string{"file-b", "file-c"} {
		d := mustCheck(t, f.checker(), "user-1", fileID)
		if !d.Granted || d.Remaining != DownloadLimit {
			t.Fatalf("bundle purchase should grant %s like a direct purchase, got %+v", fileID, d)
		}
	}
}

func TestBundleScenarioDay25AndDay31(t *testing.T) {
	f := newFixture()
	f.addProduct(t, "bundle-a", domain.ProductBundle, domain.AccessPaid)
	f.addProduct(t, "comp-b", domain.ProductSingle, domain.AccessPaid)
	f.addProduct(t, "comp-c", domain.ProductSingle, domain.AccessPaid)
	f.addBundleItem(t, "bundle-a", "comp-b")
	f.addBundleItem(t, "bundle-a", "comp-c")
	f.addFile(t, "file-b", "comp-b", false, "")
	f.addFile(t, "file-c", "comp-c", false, "")
	f.addPaidOrder(t, "o-bundle", "user-1", day0, "bundle-a")

	// Day 25, fourth request for C's file: three prior downloads logged.
	f.logDownload(t, "user-1", "file-c", "comp-c", 3)
	f.now = day0.Add(25 * 24 * time.Hour)
	d := mustCheck(t, f.checker(), "user-1", "file-c")
	if !d.Granted {
		t.Fatalf("day 25 fourth request should be granted, got %+v", d)
	}
	if d.Remaining != 2 {
		t.Fatalf("three logged downloads leave remaining 2 before serving, got %d", d.Remaining)
	}

	// Day 31: everything under the bundle is expired.
	f.now = day0.Add(31 * 24 * time.Hour)
	for _, fileID := range []string{"file-b", "file-c"} {
		d := mustCheck(t, f.checker(), "user-1", fileID)
		if d.Granted || d.Reason != ReasonExpired {
			t.Fatalf("day 31 request for %s should be expired, got %+v", fileID, d)
		}
	}
}

func TestRefundedOrderDoesNotGrant(t *testing.T) {
	f := newFixture()
	f.addProduct(t, "p-paid", domain.ProductSingle, domain.AccessPaid)
	f.addFile(t, "file-1", "p-paid", false, "")
	f.addPaidOrder(t, "o-1", "user-1", day0, "p-paid")
	if err := f.store.SetOrderStatus(context.Background(), "o-1", domain.OrderRefunded); err != nil {
		t.Fatalf("set order status: %v", err)
	}

	d := mustCheck(t, f.checker(), "user-1", "file-1")
	if d.Granted || d.Reason != ReasonNotPurchased {
		t.Fatalf("refunded order must not grant, got %+v", d)
	}
}
