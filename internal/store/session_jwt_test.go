package store

import (
	"testing"
	"time"
)

func TestJWTSessionRoundTrip(t *testing.T) {
	s, err := NewJWTSessionStore("0123456789abcdef0123456789abcdef", time.Hour)
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	userID, ok, err := s.GetUserIDByToken(token)
	if err != nil || !ok {
		t.Fatalf("token should validate, ok=%v err=%v", ok, err)
	}
	if userID != "user-1" {
		t.Fatalf("subject = %q, want user-1", userID)
	}
}

func TestJWTSessionRejectsWrongSecret(t *testing.T) {
	issuer, _ := NewJWTSessionStore("0123456789abcdef0123456789abcdef", time.Hour)
	verifier, _ := NewJWTSessionStore("ffffffffffffffffffffffffffffffff", time.Hour)
	token, err := issuer.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, _ := verifier.GetUserIDByToken(token); ok {
		t.Fatal("token signed with another secret must not validate")
	}
}

func TestJWTSessionRejectsGarbage(t *testing.T) {
	s, _ := NewJWTSessionStore("0123456789abcdef0123456789abcdef", time.Hour)
	if _, ok, _ := s.GetUserIDByToken("not-a-jwt"); ok {
		t.Fatal("garbage token must not validate")
	}
}

func TestJWTSessionRequiresSecret(t *testing.T) {
	if _, err := NewJWTSessionStore("  ", time.Hour); err == nil {
		t.Fatal("empty secret should be rejected")
	}
}
