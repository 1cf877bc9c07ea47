package utils

import (
	"net/http/httptest"
	"testing"
)

func TestRealClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.7:5123"
	if got := RealClientIP(req); got != "10.0.0.7" {
		t.Fatalf("expected remote host, got %q", got)
	}

	req.Header.Set("X-Real-IP", "192.0.2.9")
	if got := RealClientIP(req); got != "192.0.2.9" {
		t.Fatalf("expected X-Real-IP, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.4, 10.0.0.1")
	if got := RealClientIP(req); got != "203.0.113.4" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}
}

func TestNewRequestIDUnique(t *testing.T) {
	a, b := NewRequestID(), NewRequestID()
	if a == "" || a == b {
		t.Fatalf("expected distinct ids, got %q and %q", a, b)
	}
}
