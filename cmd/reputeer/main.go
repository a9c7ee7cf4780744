package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hubwatch/reputeer/internal/export"
	"github.com/hubwatch/reputeer/internal/rest"
	"github.com/hubwatch/reputeer/internal/setup"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/hubwatch/reputeer/internal/database/migrations"
)

// ShutdownTimeout bounds graceful HTTP server shutdown.
const ShutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "reputeer",
		Usage: "Reputation event-scoring engine",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the scoring engine and its HTTP surface",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "Run pending database migrations",
				Action: runMigrations,
			},
			{
				Name:  "export",
				Usage: "Export a community's audit history for compliance handoff",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "community", Usage: "community ID", Required: true},
					&cli.StringFlag{Name: "format", Usage: "csv or sqlite", Value: "csv"},
					&cli.StringFlag{Name: "out", Usage: "output directory", Value: "."},
					&cli.StringFlag{Name: "start", Usage: "window start (RFC3339)"},
					&cli.StringFlag{Name: "end", Usage: "window end (RFC3339)"},
				},
				Action: runExport,
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

func serve(ctx context.Context, _ *cli.Command) error {
	app, err := setup.InitializeApp(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.Background())

	handler := rest.NewServer(rest.Deps{
		DB:              app.DB,
		Processor:       app.Processor,
		Resolver:        app.Resolver,
		Policies:        app.Policies,
		WeightBroadcast: app.WeightBroadcast,
		PolicyBroadcast: app.PolicyBroadcast,
		Logger:          app.Logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", app.Config.Server.Host, app.Config.Server.Port),
		Handler:      handler,
		ReadTimeout:  time.Duration(app.Config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(app.Config.Server.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		app.Logger.Info("HTTP server listening", zap.String("addr", server.Addr))

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		app.Logger.Info("Shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	return nil
}

func runMigrations(ctx context.Context, _ *cli.Command) error {
	app, err := setup.InitializeApp(ctx, false)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.Background())

	migrator := migrate.NewMigrator(app.DB.DB(), migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	if err := migrator.Lock(ctx); err != nil {
		return err
	}
	defer migrator.Unlock(ctx) //nolint:errcheck

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}

	if group.IsZero() {
		app.Logger.Info("No new migrations to run (database is up to date)")
		return nil
	}

	app.Logger.Info("Successfully migrated", zap.String("group", group.String()))

	return nil
}

func runExport(ctx context.Context, cmd *cli.Command) error {
	app, err := setup.InitializeApp(ctx, false)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.Background())

	start, end := time.Time{}, time.Now()

	if raw := cmd.String("start"); raw != "" {
		if start, err = time.Parse(time.RFC3339, raw); err != nil {
			return fmt.Errorf("invalid start time: %w", err)
		}
	}

	if raw := cmd.String("end"); raw != "" {
		if end, err = time.Parse(time.RFC3339, raw); err != nil {
			return fmt.Errorf("invalid end time: %w", err)
		}
	}

	exporter := export.New(app.DB.Model().Audit(), app.Logger)

	return exporter.Export(ctx,
		cmd.Uint("community"), start, end, cmd.String("format"), cmd.String("out"))
}
