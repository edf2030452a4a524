package httphandler

import (
	"log/slog"
	"net/http"
	"time"
)

// responseRecorder captures what a handler sent so the access log can
// report it.
type responseRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (rr *responseRecorder) WriteHeader(status int) {
	rr.status = status
	rr.ResponseWriter.WriteHeader(status)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	n, err := rr.ResponseWriter.Write(b)
	rr.size += n
	return n, err
}

// accessLog logs one line per request, keyed by the matched route pattern so
// requests for different runs or issues group together. Server errors are
// logged at warn.
func accessLog(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		// The mux fills in r.Pattern while routing; it stays empty on a 404.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(r.Context(), level, "api request",
			"route", route,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.size,
			"elapsed", time.Since(start).Round(time.Microsecond),
		)
	})
}

// recoverPanics answers a panicking handler with a JSON 500.
func recoverPanics(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error("handler panic", "panic", v, "route", r.Pattern, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
