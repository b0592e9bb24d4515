package main

import (
	"log/slog"

	"github.com/AdamBeresnev/tourney/internal/config"
	"github.com/AdamBeresnev/tourney/internal/events"
	"github.com/AdamBeresnev/tourney/internal/metrics"
	"github.com/AdamBeresnev/tourney/internal/middleware"
	"github.com/AdamBeresnev/tourney/internal/service"
	"github.com/AdamBeresnev/tourney/internal/store"
	"github.com/jmoiron/sqlx"
)

type application struct {
	cfg         *config.Config
	logger      *slog.Logger
	db          *sqlx.DB
	metrics     *metrics.Recorder
	publisher   events.Publisher
	auth        *middleware.Authenticator
	tournaments *service.TournamentService
	generation  *service.BracketGeneration
	matches     *service.MatchService
	gate        *service.ReadinessGate
}

func newApplication(cfg *config.Config, database *sqlx.DB, publisher events.Publisher, logger *slog.Logger) *application {
	tournamentStore := store.NewTournamentStore(database)
	m := metrics.New()
	generation := service.NewBracketGeneration(database, tournamentStore, logger, m, publisher)

	return &application{
		cfg:         cfg,
		logger:      logger,
		db:          database,
		metrics:     m,
		publisher:   publisher,
		auth:        middleware.NewAuthenticator(cfg.JWTSecretKey),
		tournaments: service.NewTournamentService(database, tournamentStore, logger),
		generation:  generation,
		matches:     service.NewMatchService(database, tournamentStore, logger, m, publisher),
		gate:        service.NewReadinessGate(service.SystemClock{}, tournamentStore, generation, cfg.SchedulerConcurrency, logger),
	}
}

// connectPublisher falls back to a no-op publisher when NATS is not configured.
func connectPublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, error) {
	if cfg.NATSURL == "" {
		logger.Info("NATS_URL not set, events will not be published")
		return events.Nop{}, nil
	}
	publisher, err := events.Connect(cfg.NATSURL, cfg.NATSSubjectPrefix)
	if err != nil {
		return nil, err
	}
	logger.Info("publishing events to NATS", "url", cfg.NATSURL, "prefix", cfg.NATSSubjectPrefix)
	return publisher, nil
}
