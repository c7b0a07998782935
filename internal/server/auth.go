package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/askdocs-go/internal/logging"
)

// authMiddleware returns an HTTP middleware that enforces authentication.
// Two schemes are accepted, each enabled independently:
//
//	Authorization: Bearer <apiKey>             (when apiKey is set)
//	Authorization: Basic <user:password>       (when user or password is set)
//
// A request passes if it satisfies any enabled scheme. With both disabled
// the middleware is a no-op and a warning is logged at server startup.
//
// Rejected requests receive 401 Unauthorized with a challenge for the
// enabled scheme, Basic first so browsers prompt for credentials.
// Presented credentials are never logged.
func authMiddleware(apiKey, user, password string, next http.Handler) http.Handler {
	basicEnabled := user != "" || password != ""
	if apiKey == "" && !basicEnabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiKey != "" {
			if token := bearerToken(r); token != "" && secureEqual(token, apiKey) {
				next.ServeHTTP(w, r)
				return
			}
		}
		if basicEnabled {
			if u, p, ok := r.BasicAuth(); ok && secureEqual(u, user) && secureEqual(p, password) {
				next.ServeHTTP(w, r)
				return
			}
		}

		logging.FromContext(r.Context()).Warn("auth: rejected request",
			slog.String("path", r.URL.Path),
			slog.Bool("credentials_present", r.Header.Get("Authorization") != ""),
		)
		if basicEnabled {
			w.Header().Set("WWW-Authenticate", `Basic realm="askdocs", charset="UTF-8"`)
		} else {
			w.Header().Set("WWW-Authenticate", `Bearer realm="askdocs"`)
		}
		http.Error(w, "authorization required", http.StatusUnauthorized)
	})
}

// secureEqual compares two secrets in constant time.
func secureEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Returns an empty string if the header is absent or malformed.
func bearerToken(r *http.Request) string {
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return ""
	}
	parts := strings.SplitN(hdr, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
