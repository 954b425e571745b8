package idempotency

import (
	"context"
	"net/http"
	"strings"

	"github.com/dmehra2102/checkout-orchestrator/internal/platform/httpio"
)

const (
	Header = "Idempotency-Key"

	maxKeyLength = 255
)

type ctxKey struct{}

// FromRequest returns the trimmed Idempotency-Key header, or "".
func FromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(Header))
}

// FromContext returns the key stored by Middleware, or "".
func FromContext(ctx context.Context) string {
	key, _ := ctx.Value(ctxKey{}).(string)
	return key
}

// Middleware validates an optional Idempotency-Key header and stores it in the
// request context. Requests with an oversized or non-printable key are rejected.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := FromRequest(r)
		if key != "" {
			if !valid(key) {
				httpio.WriteError(w, http.StatusBadRequest, "invalid_idempotency_key", nil)
				return
			}
			r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, key))
		}
		next.ServeHTTP(w, r)
	})
}

func valid(key string) bool {
	if len(key) > maxKeyLength {
		return false
	}
	for _, c := range key {
		if c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}
