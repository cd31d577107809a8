package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/logging"
)

// APIKeyHeader carries the client key.
const APIKeyHeader = "X-API-Key"

var (
	errMissingAPIKey = errors.New("missing api key")
	errInvalidAPIKey = errors.New("invalid api key")
)

// APIKeyAuth returns middleware that validates the X-API-Key header against
// keys. When required is false every request passes. When required is true
// and keys is empty every request is rejected.
func APIKeyAuth(required bool, keys []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !required {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(APIKeyHeader)
			var err error
			status := http.StatusUnauthorized
			switch {
			case key == "":
				err = errMissingAPIKey
			case !isValidAPIKey(key, keys):
				err = errInvalidAPIKey
				status = http.StatusForbidden
			}
			if err != nil {
				logging.FromContext(r.Context()).Warn("auth rejected",
					"reason", err.Error(),
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				WriteError(w, err, status)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isValidAPIKey compares key against every configured key in constant time.
func isValidAPIKey(key string, validKeys []string) bool {
	valid := 0
	for _, validKey := range validKeys {
		valid |= subtle.ConstantTimeCompare([]byte(key), []byte(validKey))
	}
	return valid == 1
}
