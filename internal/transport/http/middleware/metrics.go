package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/go-task-tracker/internal/metrics"
)

// Metrics собирает prometheus-метрики для HTTP запросов.
// В качестве label path используется шаблон маршрута chi,
// чтобы не плодить кардинальность на конкретных значениях.
func Metrics() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			metrics.HTTPRequestsInFlight.Inc()
			defer metrics.HTTPRequestsInFlight.Dec()

			start := time.Now()
			sw := newStatusWriter(w)

			defer func() {
				duration := time.Since(start).Seconds()
				method := r.Method
				path := r.URL.Path
				if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
					path = rctx.RoutePattern()
				}
				status := sw.status
				if status == 0 {
					status = http.StatusOK
				}

				metrics.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
				metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
			}()

			next.ServeHTTP(sw, r)
		})
	}
}
