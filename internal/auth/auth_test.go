package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireAuth(t *testing.T) {
	store := NewKeyStore(map[string]string{"k-alpha": "owner-a", "k-beta": "owner-b", "": "nobody"})

	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = OwnerFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := store.RequireAuth(next)

	tests := []struct {
		name   string
		header string
		status int
		owner  string
	}{
		{"valid key", "Bearer k-beta", http.StatusNoContent, "owner-b"},
		{"lowercase scheme", "bearer k-alpha", http.StatusNoContent, "owner-a"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic k-alpha", http.StatusUnauthorized, ""},
		{"unknown key", "Bearer nope", http.StatusUnauthorized, ""},
		{"empty key", "Bearer ", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/api/campaigns", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.owner, seen)
			if tt.status == http.StatusUnauthorized {
				assert.JSONEq(t, `{"error":"unauthorized","code":"unauthorized"}`, w.Body.String())
			}
		})
	}
}

func TestOwnerFromContext(t *testing.T) {
	_, ok := OwnerFromContext(context.Background())
	assert.False(t, ok)

	owner, ok := OwnerFromContext(WithOwner(context.Background(), "owner-1"))
	assert.True(t, ok)
	assert.Equal(t, "owner-1", owner)
}
