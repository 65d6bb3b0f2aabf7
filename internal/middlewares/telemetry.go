package middlewares

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sbilibin2017/currency-converter/internal/models"
)

// UsageLogger records one handled request's telemetry.
type UsageLogger interface {
	LogAPIUsage(u models.APIUsage) (string, error)
}

// TelemetryMiddleware returns a middleware that records endpoint, method,
// latency, status and client agent for every handled request. Recording
// failures are logged and never affect the response.
func TelemetryMiddleware(usage UsageLogger, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			userAgent := r.UserAgent()
			if userAgent == "" {
				userAgent = "unknown"
			}

			if _, err := usage.LogAPIUsage(models.APIUsage{
				Endpoint:     r.URL.Path,
				Method:       r.Method,
				ResponseTime: time.Since(start).Milliseconds(),
				StatusCode:   rw.statusCode,
				UserAgent:    userAgent,
			}); err != nil {
				log.Errorw("failed to record API usage", "error", err)
			}
		})
	}
}
