package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ignite/bulkmail/internal/pkg/httputil"
)

type ctxKey struct{}

// KeyStore maps API keys to the owner ids they act for.
type KeyStore struct {
	keys map[string]string
}

// NewKeyStore creates a store from a key → owner map.
func NewKeyStore(keys map[string]string) *KeyStore {
	cp := make(map[string]string, len(keys))
	for k, v := range keys {
		if k != "" && v != "" {
			cp[k] = v
		}
	}
	return &KeyStore{keys: cp}
}

// Owner returns the owner for key. Every stored key is compared so the
// lookup time does not depend on which key matched.
func (s *KeyStore) Owner(key string) (string, bool) {
	owner := ""
	for k, v := range s.keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			owner = v
		}
	}
	return owner, owner != ""
}

// RequireAuth is middleware that requires an "Authorization: Bearer <key>"
// header naming a known key, and puts the owner on the request context.
func (s *KeyStore) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := bearer(r)
		if !ok {
			httputil.Unauthorized(w)
			return
		}
		owner, ok := s.Owner(key)
		if !ok {
			httputil.Unauthorized(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
	})
}

// WithOwner returns ctx carrying owner.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ctxKey{}, owner)
}

// OwnerFromContext returns the authenticated owner, if any.
func OwnerFromContext(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(ctxKey{}).(string)
	return owner, ok && owner != ""
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
