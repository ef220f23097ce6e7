package authgate

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheckTokenHeader(t *testing.T) {
	g := New("secret-token")
	r := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	r.Header.Set(HeaderName, "secret-token")
	if err := g.CheckToken(r); err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
}

func TestCheckTokenPathSegment(t *testing.T) {
	g := New("secret-token")
	r := httptest.NewRequest(http.MethodGet, "/secret-token/api/state", nil)
	if err := g.CheckToken(r); err != nil {
		t.Fatalf("expected valid token via path segment, got %v", err)
	}
}

func TestCheckTokenMissing(t *testing.T) {
	g := New("secret-token")
	r := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	if err := g.CheckToken(r); err != ErrMissingToken {
		t.Fatalf("got %v, want ErrMissingToken", err)
	}
}

func TestCheckTokenInvalid(t *testing.T) {
	g := New("secret-token")
	r := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	r.Header.Set(HeaderName, "wrong")
	if err := g.CheckToken(r); err != ErrInvalidToken {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}

func TestMiddlewareRejectsWithoutCallingNext(t *testing.T) {
	g := New("secret-token")
	called := false
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	r := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if called {
		t.Fatal("expected next handler not to be called on auth failure")
	}
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", w.Code)
	}
}

func TestIssueTokenVerifiesAsBearer(t *testing.T) {
	g := New("signing-secret")
	tok, err := g.IssueToken(0)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	r := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	if err := g.CheckToken(r); err != nil {
		t.Fatalf("expected minted bearer token to verify, got %v", err)
	}
}

func TestIssueTokenRejectsWrongSecret(t *testing.T) {
	issuer := New("secret-a")
	tok, err := issuer.IssueToken(0)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	verifier := New("secret-b")
	r := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	r.Header.Set(HeaderName, tok)
	if err := verifier.CheckToken(r); err != ErrInvalidToken {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}

func TestCheckTokenRevokedRawToken(t *testing.T) {
	g := New("new-token", "old-token")
	r := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	r.Header.Set(HeaderName, "old-token")
	if err := g.CheckToken(r); err != ErrRevokedToken {
		t.Fatalf("got %v, want ErrRevokedToken", err)
	}
}

func TestCheckTokenRevokedBearerJWT(t *testing.T) {
	oldGate := New("old-token")
	tok, err := oldGate.IssueToken(0)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	g := New("new-token", "old-token")
	r := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	if err := g.CheckToken(r); err != ErrRevokedToken {
		t.Fatalf("got %v, want ErrRevokedToken", err)
	}
}

func TestMiddlewareRevokedTokenReturns403(t *testing.T) {
	g := New("new-token", "old-token")
	called := false
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	r := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	r.Header.Set(HeaderName, "old-token")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if called {
		t.Fatal("expected next handler not to be called on auth failure")
	}
	if w.Code != http.StatusForbidden {
		t.Fatalf("got status %d, want 403", w.Code)
	}
}

func TestPasscodeHashRoundTrip(t *testing.T) {
	hash, err := HashPasscode("correct-horse")
	if err != nil {
		t.Fatalf("HashPasscode: %v", err)
	}
	if !VerifyPasscode(hash, "correct-horse") {
		t.Fatal("expected matching passcode to verify")
	}
	if VerifyPasscode(hash, "wrong") {
		t.Fatal("expected non-matching passcode to fail")
	}
}
