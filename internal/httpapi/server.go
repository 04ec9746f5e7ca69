package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"collectord/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Status() types.StatusResponse
	Ready() bool
	OnEventReceived(raw []byte)
	OnPullRequest(identifier string) []byte
}

// Mounts are optional handlers served next to the JSON API.
type Mounts struct {
	// Bus serves subscriber websocket connections on /ws.
	Bus http.Handler
	// Producers serves producer websocket connections on /producers.
	Producers http.Handler
	// Swagger enables /swagger/*.
	Swagger bool
}

// EmptyHeader is set on pull responses carrying the empty sentinel.
const EmptyHeader = "X-Event-Empty"

func NewMux(svc Service, m Mounts) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}

	// Websocket endpoints stay outside the compressed group.
	if m.Bus != nil {
		r.Handle("/ws", m.Bus)
	}
	if m.Producers != nil {
		r.Handle("/producers", m.Producers)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))
		// Security headers
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Content-Type-Options", "nosniff")
				next.ServeHTTP(w, r)
			})
		})

		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, r, http.StatusOK, svc.Status())
		})

		r.Get("/events/raw", func(w http.ResponseWriter, r *http.Request) {
			sub := r.URL.Query().Get("sub")
			b := svc.OnPullRequest(sub)
			w.Header().Set("Content-Type", "application/octet-stream")
			if types.IsEmptySentinel(b) {
				w.Header().Set(EmptyHeader, "true")
			} else {
				observeEvent("pull", len(b))
			}
			if z := requestEvent(r, LevelDebug); z != nil {
				z.Str("sub", sub).Int("bytes", len(b)).Msg("event pull")
			}
			_, _ = w.Write(b)
		})

		r.Post("/events/raw", func(w http.ResponseWriter, r *http.Request) {
			if !svc.Ready() {
				incrementRejected("not_running")
				writeJSONError(w, r, http.StatusServiceUnavailable, "collector is not running")
				return
			}
			start := time.Now()
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			b, err := io.ReadAll(r.Body)
			if err != nil {
				var mbe *http.MaxBytesError
				if errors.As(err, &mbe) {
					incrementRejected("body_too_large")
					writeJSONError(w, r, http.StatusRequestEntityTooLarge, "event exceeds body limit")
					return
				}
				writeJSONError(w, r, http.StatusBadRequest, "failed to read body")
				return
			}
			if len(b) == 0 {
				incrementRejected("empty_body")
				writeJSONError(w, r, http.StatusBadRequest, "empty event")
				return
			}
			svc.OnEventReceived(b)
			observeEvent("push", len(b))
			if z := requestEvent(r, LevelInfo); z != nil {
				z.Int("bytes", len(b)).Dur("dur", time.Since(start)).Msg("event push")
			}
			w.WriteHeader(http.StatusAccepted)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("stopped"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	if m.Swagger {
		MountSwagger(r)
	}

	return r
}
