package server

import (
	"context"
	"net/http"
	"strconv"
)

type ctxKey int

const userIDKey ctxKey = 0

// RequireUser extracts the caller identity injected by the upstream gateway.
// Authentication and entitlement gating happen before these handlers run;
// this middleware only refuses requests that arrive without an identity.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-User-ID")
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid user identity"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, id)))
	})
}

// UserID returns the authenticated caller's id from the request context.
func UserID(r *http.Request) uint64 {
	id, _ := r.Context().Value(userIDKey).(uint64)
	return id
}
