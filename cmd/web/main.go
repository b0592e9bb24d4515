package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AdamBeresnev/tourney/internal/config"
	"github.com/AdamBeresnev/tourney/internal/db"
	"github.com/AdamBeresnev/tourney/internal/middleware"
	"github.com/AdamBeresnev/tourney/internal/scheduler"
	users "github.com/AdamBeresnev/tourney/internal/user"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v2"
)

const dbTimeout = 5 * time.Second

func main() {
	cliApp := &cli.App{
		Name:   "tourney",
		Usage:  "tournament bracket engine",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the readiness scheduler",
				Action: serve,
			},
			newMigrateCommand(),
			{
				Name:  "generate",
				Usage: "generate the bracket of one tournament",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "tournament", Aliases: []string{"t"}, Required: true},
				},
				Action: generate,
			},
			{
				Name:   "sweep",
				Usage:  "generate brackets for every tournament whose registration has closed",
				Action: sweep,
			},
			{
				Name:  "token",
				Usage: "issue an access token for local testing",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Required: true},
					&cli.StringFlag{Name: "name"},
					&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
				},
				Action: issueToken,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// setup loads the configuration and installs the JSON logger as the default.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func openDB(cfg *config.Config) (*sqlx.DB, error) {
	database, err := db.Open(cfg.DatabaseDriver, cfg.DatabaseURL, dbTimeout)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return database, nil
}

func serve(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if err := cfg.RequireJWT(); err != nil {
		return err
	}

	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	publisher, err := connectPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	app := newApplication(cfg, database, publisher, logger)

	sched, err := scheduler.New(cfg.SchedulerInterval, app.gate, logger)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() {
		if err := sched.Stop(); err != nil {
			logger.Error("failed to stop scheduler", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      app.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  time.Minute,
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newMigrateCommand() *cli.Command {
	run := func(step func(*sqlx.DB) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			database, err := db.Open(cfg.DatabaseDriver, cfg.DatabaseURL, dbTimeout)
			if err != nil {
				return err
			}
			defer database.Close()
			return step(database)
		}
	}

	return &cli.Command{
		Name:  "migrate",
		Usage: "database migrations",
		Subcommands: []*cli.Command{
			{Name: "up", Usage: "apply all migrations", Action: run(db.MigrateUp)},
			{Name: "down", Usage: "roll back all migrations", Action: run(db.MigrateDown)},
		},
	}
}

func generate(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	publisher, err := connectPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	app := newApplication(cfg, database, publisher, logger)
	id := c.Int64("tournament")

	generated, err := app.generation.GenerateBracket(c.Context, id)
	if err != nil {
		return err
	}
	if !generated {
		return fmt.Errorf("tournament %d needs at least two participants", id)
	}
	fmt.Printf("Generated bracket for tournament %d\n", id)
	return nil
}

func sweep(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	publisher, err := connectPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	report, err := newApplication(cfg, database, publisher, logger).gate.Sweep(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("Eligible: %d, generated: %d, skipped: %d, failed: %d\n",
		report.Eligible, len(report.Generated), len(report.Skipped), len(report.Failed))
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d tournaments failed", len(report.Failed))
	}
	return nil
}

func issueToken(c *cli.Context) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	if err := cfg.RequireJWT(); err != nil {
		return err
	}

	token, err := middleware.NewAuthenticator(cfg.JWTSecretKey).IssueToken(users.User{
		ID:       c.String("user"),
		Username: c.String("name"),
	}, c.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
