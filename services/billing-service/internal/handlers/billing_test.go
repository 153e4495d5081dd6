package handlers

import (
	"net/http/httptest"
	"testing"
)

func TestSalonScopeOwnerBoundToOwnSalon(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Role", "owner")
	r.Header.Set("X-Salon-Id", "salon-1")

	got, ok := salonScope(r, "")
	if !ok || got != "salon-1" {
		t.Fatalf("salonScope = %q, %v; want salon-1, true", got, ok)
	}

	if _, ok := salonScope(r, "salon-2"); ok {
		t.Fatal("owner must not act on another salon")
	}

	got, ok = salonScope(r, "salon-1")
	if !ok || got != "salon-1" {
		t.Fatalf("explicit own salon rejected: %q, %v", got, ok)
	}
}

func TestSalonScopeAdminMayNameAnySalon(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Role", "admin")
	r.Header.Set("X-Salon-Id", "salon-1")

	got, ok := salonScope(r, "salon-9")
	if !ok || got != "salon-9" {
		t.Fatalf("salonScope = %q, %v; want salon-9, true", got, ok)
	}

	got, ok = salonScope(r, "")
	if !ok || got != "salon-1" {
		t.Fatalf("admin fallback = %q, %v; want salon-1, true", got, ok)
	}
}

func TestSalonScopeUnauthenticatedUsesRequested(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)

	got, ok := salonScope(r, "salon-3")
	if !ok || got != "salon-3" {
		t.Fatalf("salonScope = %q, %v; want salon-3, true", got, ok)
	}

	if _, ok := salonScope(r, ""); ok {
		t.Fatal("no salon anywhere must not resolve")
	}
}
