package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/slotbook/slotbook-api/internal/pkg/jwt"
)

func TestAuthMiddlewareAllowsValidAccessToken(t *testing.T) {
	jwtSvc := jwt.NewService("secret", time.Minute)
	userID := uuid.New()
	token, err := jwtSvc.GenerateAccessToken(userID, "customer")
	if err != nil {
		t.Fatalf("token gen failed: %v", err)
	}

	var seen uuid.UUID
	protected := Auth(jwtSvc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	protected.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if seen != userID {
		t.Fatalf("expected user %s in context, got %s", userID, seen)
	}
}

func TestAuthMiddlewareRejectsMissingAndForeignTokens(t *testing.T) {
	jwtSvc := jwt.NewService("secret", time.Minute)
	other := jwt.NewService("other-secret", time.Minute)
	foreign, _ := other.GenerateAccessToken(uuid.New(), "owner")

	protected := Auth(jwtSvc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for name, header := range map[string]string{
		"missing": "",
		"foreign": "Bearer " + foreign,
		"scheme":  "Basic abc",
	} {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, w.Code)
		}
	}
}

func TestAuthMiddlewareQueryTokenOnlyForWebsocket(t *testing.T) {
	jwtSvc := jwt.NewService("secret", time.Minute)
	token, _ := jwtSvc.GenerateAccessToken(uuid.New(), "customer")

	protected := Auth(jwtSvc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	w := httptest.NewRecorder()
	protected.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for plain request with query token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	req.Header.Set("Upgrade", "websocket")
	w = httptest.NewRecorder()
	protected.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for upgrade with query token, got %d", w.Code)
	}
}
