package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// okHandler writes 200 "ok".
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
})

func call(t *testing.T, h http.Handler, header, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/healthz", nil)
	if key != "" {
		req.Header.Set(header, key)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAPIKeyMiddleware_ModeNone_PassesThrough(t *testing.T) {
	h := APIKeyMiddleware("none", "x-api-key", "secret")(okHandler)
	// No key in request — should still pass because mode != "apikey".
	if rr := call(t, h, "", ""); rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
}

func TestAPIKeyMiddleware_EmptyKey_PassesThrough(t *testing.T) {
	// key="" means auth is not configured → allow all.
	h := APIKeyMiddleware("apikey", "x-api-key", "")(okHandler)
	if rr := call(t, h, "", ""); rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
}

func TestAPIKeyMiddleware_CorrectKey_Passes(t *testing.T) {
	h := APIKeyMiddleware("apikey", "x-api-key", "supersecret")(okHandler)
	rr := call(t, h, "x-api-key", "supersecret")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if rr.Body.String() != "ok" {
		t.Errorf("body: got %q, want ok", rr.Body.String())
	}
}

func TestAPIKeyMiddleware_WrongKey_Rejected(t *testing.T) {
	h := APIKeyMiddleware("apikey", "x-api-key", "supersecret")(okHandler)
	if rr := call(t, h, "x-api-key", "wrong"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want 401", rr.Code)
	}
}

func TestAPIKeyMiddleware_MissingKey_Rejected(t *testing.T) {
	h := APIKeyMiddleware("apikey", "x-api-key", "supersecret")(okHandler)
	if rr := call(t, h, "", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want 401", rr.Code)
	}
}

func TestAPIKeyMiddleware_CustomHeader(t *testing.T) {
	h := APIKeyMiddleware("apikey", "x-kestrel-key", "supersecret")(okHandler)
	if rr := call(t, h, "x-kestrel-key", "supersecret"); rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	// Key in the wrong header counts as missing.
	if rr := call(t, h, "x-api-key", "supersecret"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong header status: got %d, want 401", rr.Code)
	}
}
