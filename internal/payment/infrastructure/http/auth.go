package http

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/dmehra2102/payment-reconciler/pkg/metrics"
	"github.com/go-chi/chi/v5/middleware"
)

// Authenticate reports whether header is exactly "Bearer <secret>". An empty
// secret authenticates nobody.
func Authenticate(header, secret string) bool {
	if secret == "" {
		return false
	}
	want := "Bearer " + secret
	return subtle.ConstantTimeCompare([]byte(header), []byte(want)) == 1
}

// BearerAuth rejects requests without the shared gateway secret before any of
// the body is read.
func BearerAuth(log *slog.Logger, secret string, m *metrics.Webhook) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if Authenticate(r.Header.Get("Authorization"), secret) {
				next.ServeHTTP(w, r)
				return
			}

			log.Warn("webhook authentication rejected",
				"remote_addr", r.RemoteAddr,
				"forwarded_for", r.Header.Get("X-Forwarded-For"),
				"user_agent", r.UserAgent(),
				"path", r.URL.Path,
				"has_authorization", r.Header.Get("Authorization") != "",
				"request_id", middleware.GetReqID(r.Context()),
			)
			m.Observe(metrics.ResultUnauthorized)
			writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "Unauthorized"})
		})
	}
}
