// Package app wires the HTTP router, readiness probes and background jobs.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fairyhunter13/llm-response-evaluator/internal/adapter/httpserver"
	"github.com/fairyhunter13/llm-response-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/llm-response-evaluator/internal/config"
)

const defaultRequestTimeout = 30 * time.Second

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// manualTimeout covers one judge call and one detector call.
func manualTimeout(cfg config.Config) time.Duration {
	if cfg.AITimeout <= 0 {
		return 2 * defaultRequestTimeout
	}
	return 2*cfg.AITimeout + 10*time.Second
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
// The upload route carries no request deadline of its own; a batch is bounded
// by the server write timeout.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.RequestID())
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	origins := ParseOrigins(cfg.CORSAllowOrigins)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "If-None-Match", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "ETag", "Retry-After", "Content-Disposition"},
		AllowCredentials: len(origins) > 0 && origins[0] != "*",
		MaxAge:           300,
	}))

	limitByIP := httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute)
	quick := httpserver.TimeoutMiddleware(defaultRequestTimeout)

	r.Route("/v1/auth", func(ar chi.Router) {
		ar.With(limitByIP, quick).Post("/signup", srv.SignupHandler())
		ar.With(limitByIP, quick).Post("/login", srv.LoginHandler())
		ar.With(quick).Get("/verify", srv.VerifyHandler())
		ar.Post("/logout", srv.LogoutHandler())
		ar.With(srv.RequireIdentity).Get("/me", srv.MeHandler())
	})
	r.Get("/v1/parameters", srv.ParametersHandler())

	r.Route("/v1/evaluations", func(er chi.Router) {
		er.Use(srv.RequireIdentity)
		er.Group(func(wr chi.Router) {
			wr.Use(limitByIP)
			wr.With(httpserver.TimeoutMiddleware(manualTimeout(cfg))).Post("/manual", srv.ManualHandler())
			wr.Post("/upload", srv.UploadHandler())
			wr.With(quick).Delete("/current", srv.DiscardHandler())
		})
		er.Group(func(rr chi.Router) {
			rr.Use(quick)
			rr.Get("/current", srv.CurrentHandler())
			rr.Get("/current/report.pdf", srv.ReportHandler())
			rr.Get("/history", srv.HistoryHandler())
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", srv.ReadyzHandler())
	r.Handle("/metrics", promhttp.Handler())

	return httpserver.SecurityHeaders(r)
}
