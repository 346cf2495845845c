package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"littlefidan/internal/app"
	"littlefidan/internal/mailer"
	"littlefidan/internal/storage"
	"littlefidan/internal/store"
)

func TestLoginRateLimit(t *testing.T) {
	memStore := store.NewMemoryStore()
	a, err := app.New(app.Config{
		JWTSecret:  "0123456789abcdef0123456789abcdef",
		SessionTTL: time.Hour,
		Store:      memStore,
		Objects:    storage.NewMemoryObjectStore(),
		Mailer:     mailer.New(mailer.NewRecordingSender(), "Test Shop"),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	redis := miniredis.RunT(t)

	s, err := New(Config{
		App:                    a,
		WebhookSecret:          testWebhookSecret,
		RedisAddr:              redis.Addr(),
		AuthRateLimitPerMinute: 1,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	body := `{"email":"u@example.com","password":"password123"}`
	resp1, err := http.Post(srv.URL+"/api/auth/login", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("first login request failed: %v", err)
	}
	resp1.Body.Close()
	if resp1.StatusCode == http.StatusTooManyRequests {
		t.Fatalf("first request must not be rate limited")
	}

	resp2, err := http.Post(srv.URL+"/api/auth/login", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("second login request failed: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", resp2.StatusCode)
	}
}

func TestRateLimitingDisabledWithoutRedis(t *testing.T) {
	a, err := app.New(app.Config{
		JWTSecret:  "0123456789abcdef0123456789abcdef",
		SessionTTL: time.Hour,
		Store:      store.NewMemoryStore(),
		Objects:    storage.NewMemoryObjectStore(),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	s, err := New(Config{App: a, WebhookSecret: testWebhookSecret})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	for i := 0; i < 5; i++ {
		resp, err := http.Post(srv.URL+"/api/auth/login", "application/json",
			strings.NewReader(`{"email":"u@example.com","password":"password123"}`))
		if err != nil {
			t.Fatalf("login request %d failed: %v", i+1, err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			t.Fatalf("request %d rate limited with limiting disabled", i+1)
		}
	}
}
