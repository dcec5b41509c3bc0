package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUserIDContextRoundTrip(t *testing.T) {
	ctx := WithUserID(context.Background(), "user-42")
	if got := UserID(ctx); got != "user-42" {
		t.Errorf("UserID = %q, want user-42", got)
	}
	if got := UserID(context.Background()); got != DefaultUserID {
		t.Errorf("UserID on empty context = %q, want %q", got, DefaultUserID)
	}
}

func TestDisabledVerifierInjectsDefaultUser(t *testing.T) {
	v, err := NewVerifier(context.Background(), "")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	if v.Enabled() {
		t.Error("verifier with empty JWKS URL should be disabled")
	}

	var gotUser string
	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/drafts", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if gotUser != DefaultUserID {
		t.Errorf("user = %q, want %q", gotUser, DefaultUserID)
	}
}

func TestEnabledVerifierRejectsMissingToken(t *testing.T) {
	// An enabled verifier can be built without fetching the JWKS; the fetch
	// only happens on verification.
	v, err := NewVerifier(context.Background(), "https://example.com/.well-known/jwks.json")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	if !v.Enabled() {
		t.Fatal("verifier should be enabled with a JWKS URL")
	}

	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run without a token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/drafts", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/drafts", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("non-bearer status = %d, want 401", rec.Code)
	}
}
