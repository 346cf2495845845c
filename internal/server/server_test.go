package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"littlefidan/internal/app"
	"littlefidan/internal/domain"
	"littlefidan/internal/entitlement"
	"littlefidan/internal/mailer"
	"littlefidan/internal/storage"
	"littlefidan/internal/store"
)

const testWebhookSecret = "whsec-test"

type serverFixture struct {
	t       *testing.T
	srv     *httptest.Server
	app     *app.App
	store   *store.MemoryStore
	objects *storage.MemoryObjectStore
	now     time.Time
	seq     int
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	f := &serverFixture{
		t:       t,
		store:   store.NewMemoryStore(),
		objects: storage.NewMemoryObjectStore(),
		now:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	a, err := app.New(app.Config{
		JWTSecret:  "0123456789abcdef0123456789abcdef",
		SessionTTL: time.Hour,
		LibraryURL: "https://shop.test/library",
		Store:      f.store,
		Objects:    f.objects,
		Mailer:     mailer.New(mailer.NewRecordingSender(), "Test Shop"),
		Now:        func() time.Time { return f.now },
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	f.app = a
	s, err := New(Config{App: a, WebhookSecret: testWebhookSecret})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	f.srv = httptest.NewServer(s.Router())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *serverFixture) id(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *serverFixture) signUp(email string) (domain.User, string) {
	f.t.Helper()
	user, token, err := f.app.SignUp(context.Background(), email, "password123")
	if err != nil {
		f.t.Fatalf("sign up %s: %v", email, err)
	}
	return user, token
}

func (f *serverFixture) addProduct(typ domain.ProductType, access domain.AccessType, priceCents int64, published bool) domain.Product {
	f.t.Helper()
	p := domain.Product{
		ID:         f.id("prod"),
		Name:       "Product " + f.id("n"),
		Slug:       f.id("slug"),
		Type:       typ,
		AccessType: access,
		PriceCents: priceCents,
		Currency:   "EUR",
		Published:  published,
		CreatedAt:  f.now,
		UpdatedAt:  f.now,
	}
	if err := f.store.SaveProduct(context.Background(), p); err != nil {
		f.t.Fatalf("save product: %v", err)
	}
	return p
}

func (f *serverFixture) addFile(productID string) domain.ProductFile {
	f.t.Helper()
	pf := domain.ProductFile{
		ID:         f.id("file"),
		ProductID:  productID,
		Name:       "sheet.pdf",
		StorageKey: "products/" + productID + "/" + f.id("key") + ".pdf",
		SizeBytes:  4,
		MimeType:   "application/pdf",
		CreatedAt:  f.now,
	}
	if err := f.store.SaveProductFile(context.Background(), pf); err != nil {
		f.t.Fatalf("save file: %v", err)
	}
	if err := f.objects.Put(context.Background(), pf.StorageKey, strings.NewReader("%PDF"), 4, pf.MimeType); err != nil {
		f.t.Fatalf("put object: %v", err)
	}
	return pf
}

func (f *serverFixture) do(method, path, token string, body any) (*http.Response, []byte) {
	f.t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			f.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	if err != nil {
		f.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		f.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		f.t.Fatalf("read response: %v", err)
	}
	return resp, data
}

func TestHealthz(t *testing.T) {
	f := newServerFixture(t)
	resp, body := f.do(http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
}

func TestAuthFlowOverHTTP(t *testing.T) {
	f := newServerFixture(t)
	resp, body := f.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    "owner@example.com",
		"password": "password123",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup expected 201, got %d: %s", resp.StatusCode, body)
	}
	var signup struct {
		Token string      `json:"token"`
		User  domain.User `json:"user"`
	}
	if err := json.Unmarshal(body, &signup); err != nil {
		t.Fatalf("decode signup: %v", err)
	}
	if signup.User.Role != domain.RoleAdmin {
		t.Fatalf("first signup should be admin, got %s", signup.User.Role)
	}

	resp, body = f.do(http.MethodGet, "/api/users/me", signup.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me expected 200, got %d: %s", resp.StatusCode, body)
	}

	resp, _ = f.do(http.MethodGet, "/api/users/me", "garbage-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token expected 401, got %d", resp.StatusCode)
	}

	resp, body = f.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    "owner@example.com",
		"password": "password123",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate signup expected 409, got %d: %s", resp.StatusCode, body)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	f := newServerFixture(t)
	_, adminToken := f.signUp("owner@example.com")
	_, userToken := f.signUp("buyer@example.com")

	resp, _ := f.do(http.MethodGet, "/api/admin/products", userToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("regular user expected 403, got %d", resp.StatusCode)
	}
	resp, _ = f.do(http.MethodGet, "/api/admin/products", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous expected 401, got %d", resp.StatusCode)
	}
	resp, _ = f.do(http.MethodGet, "/api/admin/products", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin expected 200, got %d", resp.StatusCode)
	}
}

func TestStorefrontHidesUnpublishedProducts(t *testing.T) {
	f := newServerFixture(t)
	published := f.addProduct(domain.ProductSingle, domain.AccessPaid, 499, true)
	hidden := f.addProduct(domain.ProductSingle, domain.AccessPaid, 499, false)

	resp, body := f.do(http.MethodGet, "/api/products", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var list struct {
		Items []domain.Product `json:"items"`
		Count int              `json:"count"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Count != 1 || list.Items[0].ID != published.ID {
		t.Fatalf("storefront should list only published products, got %+v", list)
	}

	resp, _ = f.do(http.MethodGet, "/api/products/"+hidden.Slug, "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unpublished product detail expected 404, got %d", resp.StatusCode)
	}
}

func TestCheckoutWebhookDownloadFlow(t *testing.T) {
	f := newServerFixture(t)
	f.signUp("owner@example.com")
	_, userToken := f.signUp("buyer@example.com")
	product := f.addProduct(domain.ProductSingle, domain.AccessPaid, 499, true)
	file := f.addFile(product.ID)

	resp, body := f.do(http.MethodPost, "/api/checkout", userToken, map[string]any{
		"items": []map[string]any{{"productId": product.ID, "quantity": 1}},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("checkout expected 201, got %d: %s", resp.StatusCode, body)
	}
	var checkout app.OrderWithItems
	if err := json.Unmarshal(body, &checkout); err != nil {
		t.Fatalf("decode checkout: %v", err)
	}

	// Pending orders do not grant downloads yet.
	resp, body = f.do(http.MethodGet, "/api/downloads/"+file.ID, userToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("pending order download expected 403, got %d: %s", resp.StatusCode, body)
	}

	// The webhook requires the shared secret.
	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/api/payments/webhook",
		strings.NewReader(fmt.Sprintf(`{"orderRef":%q,"status":"paid"}`, checkout.Order.ID)))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("webhook without signature: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unsigned webhook expected 401, got %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodPost, f.srv.URL+"/api/payments/webhook",
		strings.NewReader(fmt.Sprintf(`{"orderRef":%q,"status":"paid"}`, checkout.Order.ID)))
	req.Header.Set("X-Webhook-Signature", testWebhookSecret)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("signed webhook: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signed webhook expected 200, got %d", resp.StatusCode)
	}

	resp, body = f.do(http.MethodGet, "/api/downloads/"+file.ID, userToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("paid download expected 200, got %d: %s", resp.StatusCode, body)
	}
	var download downloadResponse
	if err := json.Unmarshal(body, &download); err != nil {
		t.Fatalf("decode download: %v", err)
	}
	if !download.Granted || download.Remaining != entitlement.DownloadLimit-1 {
		t.Fatalf("first download should leave %d, got %+v", entitlement.DownloadLimit-1, download)
	}
	if download.URL == "" {
		t.Fatal("granted download must carry a url")
	}
}

func TestDownloadDenialStatusCodes(t *testing.T) {
	f := newServerFixture(t)
	product := f.addProduct(domain.ProductSingle, domain.AccessPaid, 499, true)
	file := f.addFile(product.ID)

	resp, body := f.do(http.MethodGet, "/api/downloads/"+file.ID, "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous paid download expected 401, got %d: %s", resp.StatusCode, body)
	}
	var download downloadResponse
	if err := json.Unmarshal(body, &download); err != nil {
		t.Fatalf("decode denial: %v", err)
	}
	if download.Reason != entitlement.ReasonNotAuthenticated {
		t.Fatalf("expected not_authenticated, got %q", download.Reason)
	}

	resp, _ = f.do(http.MethodGet, "/api/downloads/missing-file", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown file expected 404, got %d", resp.StatusCode)
	}

	// The status endpoint reports without consuming and always answers 200.
	resp, body = f.do(http.MethodGet, "/api/downloads/"+file.ID+"/status", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status endpoint expected 200, got %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &download); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if download.Granted || download.Reason != entitlement.ReasonNotAuthenticated {
		t.Fatalf("unexpected status payload %+v", download)
	}
}

func TestFreeFileDownloadableAnonymously(t *testing.T) {
	f := newServerFixture(t)
	product := f.addProduct(domain.ProductSingle, domain.AccessFree, 0, true)
	file := f.addFile(product.ID)

	resp, body := f.do(http.MethodGet, "/api/downloads/"+file.ID, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("free download expected 200, got %d: %s", resp.StatusCode, body)
	}
	var download downloadResponse
	if err := json.Unmarshal(body, &download); err != nil {
		t.Fatalf("decode download: %v", err)
	}
	if !download.Granted || download.Remaining != entitlement.Uncapped {
		t.Fatalf("free download should be uncapped, got %+v", download)
	}
}

func TestAdminSettingsRoundTrip(t *testing.T) {
	f := newServerFixture(t)
	_, adminToken := f.signUp("owner@example.com")

	req, _ := http.NewRequest(http.MethodPut, f.srv.URL+"/api/admin/settings/bundle_discount_percent", strings.NewReader("25"))
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put setting: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put setting expected 200, got %d", resp.StatusCode)
	}

	resp, body := f.do(http.MethodGet, "/api/admin/settings/bundle_discount_percent", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get setting expected 200, got %d", resp.StatusCode)
	}
	var setting domain.Setting
	if err := json.Unmarshal(body, &setting); err != nil {
		t.Fatalf("decode setting: %v", err)
	}
	if string(setting.Value) != "25" {
		t.Fatalf("setting value = %s, want 25", setting.Value)
	}
}
