package main

import (
	"net/http"
	"time"

	"github.com/AdamBeresnev/tourney/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

func (app *application) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	if len(app.cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   app.cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Use(app.auth.Authenticate)

	r.Get("/healthz", app.healthz)
	r.Method(http.MethodGet, "/metrics", app.metrics.Handler())

	r.Route("/tournaments", func(r chi.Router) {
		r.With(middleware.RequireAuth).Post("/", app.createTournament)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", app.getTournament)
			r.Get("/participants", app.listParticipants)
			r.Get("/bracket", app.getBracket)
			r.Get("/winners", app.getWinners)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth)
				r.Post("/participants", app.register)
				r.Put("/participants/{pid}/score", app.setSeedingScore)
				r.Post("/bracket", app.generateBracket)
			})
		})
	})

	reportLimiter := middleware.NewKeyedRateLimiter(rate.Limit(app.cfg.ReportRateLimit), app.cfg.ReportRateBurst)

	r.Route("/matches/{id}", func(r chi.Router) {
		r.Get("/", app.getMatch)
		r.With(middleware.RequireAuth, middleware.RateLimit(reportLimiter)).Post("/", app.reportResult)
	})

	return r
}
