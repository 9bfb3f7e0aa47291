package util

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// responseRecorder captures what a handler wrote.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	if r.status == 0 {
		r.status = statusCode
	}
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// levelForStatus: 5xx warn, 4xx info, everything else debug.
func levelForStatus(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelWarn
	case status >= http.StatusBadRequest:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// WithRequestLog logs one line per request through the context logger, which
// WithRequestID has already tagged with request_id.
func WithRequestLog(component string, next http.Handler) http.Handler {
	component = strings.TrimSpace(component)
	if component == "" {
		component = "http"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		LoggerFromContext(r.Context()).Log(r.Context(), levelForStatus(status),
			"request handled",
			"component", component,
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"response_bytes", rec.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
