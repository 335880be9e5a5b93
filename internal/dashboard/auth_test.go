package dashboard

import (
	"net/http/httptest"
	"testing"
)

func TestDashboardAuthenticatorAllowsAllWhenSecretEmpty(t *testing.T) {
	a := newDashboardAuthenticator("")
	r := httptest.NewRequest("GET", "/dashboard/ws", nil)
	r.RemoteAddr = "10.0.0.1:5000"
	id, err := a.authenticate(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "10.0.0.1:5000" {
		t.Fatalf("expected remote addr fallback id, got %q", id)
	}
}

func TestDashboardAuthenticatorRejectsMissingToken(t *testing.T) {
	a := newDashboardAuthenticator("topsecret")
	r := httptest.NewRequest("GET", "/dashboard/ws", nil)
	if _, err := a.authenticate(r); err == nil {
		t.Fatalf("expected error for missing token")
	}
}

func TestDashboardAuthenticatorRejectsBadToken(t *testing.T) {
	a := newDashboardAuthenticator("topsecret")
	r := httptest.NewRequest("GET", "/dashboard/ws?auth_token=not-a-jwt", nil)
	if _, err := a.authenticate(r); err == nil {
		t.Fatalf("expected error for malformed token")
	}
}
