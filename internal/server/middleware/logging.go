package middleware

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/dmitrijs2005/fitcoach/internal/common"
	"github.com/dmitrijs2005/fitcoach/internal/logging"
	"github.com/dmitrijs2005/fitcoach/internal/server/observability"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// requestInfo is shared between RequestLogger, which runs outside the
// router, and RouteTemplate, which runs inside it after route matching.
type requestInfo struct {
	id    string
	route string
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// RequestLogger assigns a request id, echoes it in X-Request-ID, and logs
// and measures every request once it completes. Bodies are never logged.
func RequestLogger(log logging.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	log = log.With("module", "http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id := r.Header.Get(common.RequestIDHeaderName)
			if id == "" || len(id) > 64 {
				id = uuid.NewString()
			}
			w.Header().Set(common.RequestIDHeaderName, id)

			info := &requestInfo{id: id, route: "unmatched"}
			ctx := context.WithValue(r.Context(), requestInfoKey, info)
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r.WithContext(ctx))

			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			elapsed := time.Since(start)
			metrics.ObserveHTTP(r.Method, info.route, rec.status, elapsed)
			log.Info(ctx, "request",
				"request_id", id,
				"method", r.Method,
				"route", info.route,
				"status", rec.status,
				"duration_ms", elapsed.Milliseconds(),
				"client_ip", ClientIP(r),
			)
		})
	}
}

// RouteTemplate records the matched gorilla/mux path template so metrics
// use "/admin/users/{id}/approve" rather than raw ids. Install it with
// router.Use.
func RouteTemplate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if info, ok := r.Context().Value(requestInfoKey).(*requestInfo); ok {
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					info.route = tpl
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequestID returns the id assigned by RequestLogger, or "".
func RequestID(ctx context.Context) string {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		return info.id
	}
	return ""
}

// Recover turns a handler panic into a logged 500.
func Recover(log logging.Logger) func(http.Handler) http.Handler {
	log = log.With("module", "recover")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					log.Error(r.Context(), "panic recovered",
						"panic", p,
						"stack", string(debug.Stack()),
						"path", r.URL.Path,
					)
					writeError(w, http.StatusInternalServerError, msgInternal)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
