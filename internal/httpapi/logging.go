package httpapi

import (
	"context"
	"expvar"
	"net/http"
	"time"

	"hostelcare/internal/session"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	requestsTotal  = expvar.NewInt("requests_total")
	requestsErrors = expvar.NewInt("requests_errors_total")
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

type logInfoKey struct{}

// logInfo is filled in by handlers further down the chain.
type logInfo struct {
	user string
}

func noteUser(ctx context.Context, user session.User) {
	if info, ok := ctx.Value(logInfoKey{}).(*logInfo); ok {
		info.user = user.Email
	}
}

// LoggingMiddleware assigns a request id when the caller sent none, counts
// requests and writes one log line per request.
func LoggingMiddleware(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := requestIDFromRequest(r)
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set("X-Request-ID", requestID)
		}
		w.Header().Set("X-Request-ID", requestID)

		info := &logInfo{}
		writer := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(writer, r.WithContext(context.WithValue(r.Context(), logInfoKey{}, info)))

		requestsTotal.Add(1)
		if writer.status >= http.StatusBadRequest {
			requestsErrors.Add(1)
		}
		log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("user", info.user),
			zap.String("request_id", requestID))
	})
}
