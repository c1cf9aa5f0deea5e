package store

import (
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewSessionRoundTrip(t *testing.T) {
	s, err := NewJWTSessionStore(testSecret, NewMemoryTokenRevoker(), JWTOptions{TTL: time.Hour})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	uid, ok, err := s.GetUserIDByToken(token)
	if err != nil || !ok {
		t.Fatalf("validate token: ok=%v err=%v", ok, err)
	}
	if uid != "user-1" {
		t.Fatalf("subject = %q, want user-1", uid)
	}
}

func TestGetUserIDByTokenRejectsGarbageAndWrongSecret(t *testing.T) {
	s, err := NewJWTSessionStore(testSecret, nil, JWTOptions{})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	if _, ok, _ := s.GetUserIDByToken("not-a-jwt"); ok {
		t.Fatalf("garbage token must not validate")
	}

	other, err := NewJWTSessionStore(strings.Repeat("x", 32), nil, JWTOptions{})
	if err != nil {
		t.Fatalf("new other store: %v", err)
	}
	token, err := other.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, _ := s.GetUserIDByToken(token); ok {
		t.Fatalf("token signed with another secret must not validate")
	}
}

func TestGetUserIDByTokenRejectsExpired(t *testing.T) {
	s, err := NewJWTSessionStore(testSecret, nil, JWTOptions{
		TTL:    -2 * time.Minute,
		Leeway: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, _ := s.GetUserIDByToken(token); ok {
		t.Fatalf("expired token must not validate")
	}
}

func TestDeleteSessionRevokesToken(t *testing.T) {
	s, err := NewJWTSessionStore(testSecret, NewMemoryTokenRevoker(), JWTOptions{TTL: time.Hour})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, _ := s.GetUserIDByToken(token); ok {
		t.Fatalf("revoked token must not validate")
	}
	// Deleting again stays a no-op.
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("second delete session: %v", err)
	}
}

func TestDeleteSessionWithRedisRevoker(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewJWTSessionStore(testSecret, NewRedisTokenRevoker(mr.Addr(), ""), JWTOptions{TTL: time.Hour})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, err := s.GetUserIDByToken(token); !ok || err != nil {
		t.Fatalf("validate before revoke: ok=%v err=%v", ok, err)
	}
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, _ := s.GetUserIDByToken(token); ok {
		t.Fatalf("revoked token must not validate")
	}
}

func TestNewJWTSessionStoreRejectsShortSecret(t *testing.T) {
	if _, err := NewJWTSessionStore("too-short", nil, JWTOptions{}); err == nil {
		t.Fatalf("expected error for short secret")
	}
}
