package httptransport

import (
	"net/http"
	"strconv"
	"time"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wellness",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"route", "method", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "wellness",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	authRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wellness",
		Subsystem: "http",
		Name:      "auth_rejections_total",
		Help:      "Requests rejected with 401 or 403.",
	}, []string{"reason"})

	rateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "wellness",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the per-client rate limiter.",
	})
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, authRejections, rateLimited)
}

// RequestLogger logs one line per request and counts 401/403 responses.
// It sits outside the auth middleware, so it sees rejections the router never does.
func RequestLogger(logger zerolog.Logger, clients *ClientResolver) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			switch rw.status {
			case http.StatusUnauthorized:
				authRejections.WithLabelValues("unauthorized").Inc()
			case http.StatusForbidden:
				authRejections.WithLabelValues("forbidden").Inc()
			}

			event := logger.Info()
			if rw.status >= http.StatusInternalServerError {
				event = logger.Error()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rw.status).
				Int("bytes", rw.bytes).
				Dur("duration", time.Since(start)).
				Str("remote", clients.ClientIP(r)).
				Msg("http request")
		})
	}
}

// Monitor records request counts and latency labelled by route template.
// Install it with mux.Router.Use so the matched route is on the request.
func Monitor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := routeLabel(r)
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rw.status)).Inc()
		httpRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// routeLabel uses the mux path template so IDs in paths do not explode label cardinality.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// CORS allows browser clients from origins. An empty list allows any origin.
func CORS(origins []string) Middleware {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins(origins),
		gorillahandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		gorillahandlers.ExposedHeaders([]string{"Content-Length"}),
		gorillahandlers.MaxAge(600),
	)
}
