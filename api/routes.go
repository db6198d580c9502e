package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"streamfinder/handlers"
	"streamfinder/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ctxKey int

const requestIDKey ctxKey = iota

// RequestID returns the id assigned to the request by the router.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// NewRouter returns the base router with request id, metrics and access log
// middleware installed.
func NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware, metricsMiddleware, accessLogMiddleware)
	return r
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}

func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("[http] %s %s %d %s id=%s", r.Method, r.URL.RequestURI(), rec.status, time.Since(start).Round(time.Millisecond), RequestID(r.Context()))
	})
}

// corsMiddleware handles CORS for API routes
func corsMiddleware(origin string) mux.MiddlewareFunc {
	if origin == "" {
		origin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			if origin != "*" {
				w.Header().Add("Vary", "Origin")
			}

			// Handle preflight requests
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// handleOptions handles OPTIONS requests for CORS preflight
func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Register mounts the pages, the JSON API and the metrics endpoint.
func Register(
	r *mux.Router,
	frontendOrigin string,
	pagesHandler *handlers.PagesHandler,
	searchHandler *handlers.SearchAPIHandler,
	healthHandler *handlers.HealthHandler,
) {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware(frontendOrigin))

	api.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)
	api.HandleFunc("/search/view", searchHandler.View).Methods(http.MethodGet)
	api.HandleFunc("/sessions", searchHandler.CreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", searchHandler.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", searchHandler.DeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/actions", searchHandler.ApplyAction).Methods(http.MethodPost)
	api.PathPrefix("/").HandlerFunc(handleOptions).Methods(http.MethodOptions)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/", pagesHandler.Home).Methods(http.MethodGet)
	r.HandleFunc("/search", pagesHandler.Search).Methods(http.MethodGet)
	r.HandleFunc("/platforms", pagesHandler.Platforms).Methods(http.MethodGet)
	r.HandleFunc("/platforms/{key}", pagesHandler.Platform).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(pagesHandler.NotFound)
}
