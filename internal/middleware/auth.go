package middleware

import (
	"net/http"
	"strings"

	"github.com/casedesk/messaging/internal/storage"
)

// PartyAuth resolves a bearer token to a party id via the session store.
// Session creation belongs to the embedding application's auth service; an
// unknown token is simply unauthorized. WebSocket clients cannot set headers
// from the browser, so the token is also accepted as a query parameter.
func PartyAuth(store storage.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			partyID, err := store.PartyForToken(r.Context(), token)
			if err != nil {
				http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
				return
			}
			if partyID == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPartyID(r.Context(), partyID)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
