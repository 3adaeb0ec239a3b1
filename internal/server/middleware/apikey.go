package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/fitcoach/internal/logging"
	"github.com/dmitrijs2005/fitcoach/internal/server/observability"
)

// APIKeyOptions configures the shared-secret perimeter check.
type APIKeyOptions struct {
	Enabled        bool
	HeaderName     string
	Key            string
	BypassPrefixes []string
}

// APIKey rejects requests whose header does not equal the configured key,
// byte for byte. Paths starting with a bypass prefix skip the check
// entirely and rely on rate limiting and the auth logic alone.
func APIKey(opts APIKeyOptions, log logging.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	log = log.With("module", "api_key_gate")
	key := []byte(opts.Key)

	return func(next http.Handler) http.Handler {
		if !opts.Enabled {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range opts.BypassPrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			got := r.Header.Get(opts.HeaderName)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), key) != 1 {
				log.Warn(r.Context(), "api key rejected", "path", r.URL.Path, "present", got != "")
				metrics.APIKeyRejected()
				writeError(w, http.StatusUnauthorized, msgAPIKeyMissing)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
