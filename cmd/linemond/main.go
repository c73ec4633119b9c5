package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"linemon-backend/config"
	"linemon-backend/internal/api"
	"linemon-backend/internal/db"
	"linemon-backend/internal/notification"
	"linemon-backend/internal/report"
	"linemon-backend/internal/retention"
	"linemon-backend/internal/sim"
	"linemon-backend/internal/store"
)

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("linemond failed")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:           "linemond",
		Short:         "Production line simulator and monitoring API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "./config/config.yaml"
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", defaultPath, "Path to the YAML configuration file")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("load configuration from %s: %w", configPath, err)
		}
		log.Info().Str("path", configPath).Msg("configuration loaded")
		return cfg, nil
	}

	cmd.AddCommand(newServeCommand(load))
	cmd.AddCommand(newTickCommand(load))
	cmd.AddCommand(newMigrateCommand(load))
	return cmd
}

type loader func() (*config.Config, error)

func openDatabase(cfg *config.Config) (*gorm.DB, func(), error) {
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize database: %w", err)
	}
	closeDB := func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Error().Err(err).Msg("close database")
			}
		}
	}
	return gormDB, closeDB, nil
}

func newMigrateCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			_, closeDB, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			closeDB()
			return nil
		},
	}
}

func newTickCommand(load loader) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run a number of simulator ticks back to back and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1, got %d", count)
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			gormDB, closeDB, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			params := sim.ParamsFromConfig(cfg.Simulator)
			fleet := sim.NewFleet(params, sim.NewRandSampler(cfg.Simulator.Seed))
			engine := sim.NewEngine(cfg.Simulator, fleet, store.NewGormStore(gormDB))

			// Ticks are spaced one interval apart in simulated time, ending now.
			start := time.Now().Add(-time.Duration(count-1) * cfg.Simulator.Interval)
			for i := 0; i < count; i++ {
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				at := start.Add(time.Duration(i) * cfg.Simulator.Interval)
				tick, err := engine.Step(cmd.Context(), at)
				if err != nil {
					return fmt.Errorf("tick %d: %w", i+1, err)
				}
				log.Info().Int("tick", i+1).Time("at", tick.At).Msg(tick.String())
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "count", 1, "Number of ticks to run")
	return cmd
}

func newServeCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the tick loop, the alert workers and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	gormDB, closeDB, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	appStore := store.NewGormStore(gormDB)
	log.Info().Msg("data store initialized")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	engineOpts := []sim.Option{sim.WithRegisterer(registry)}
	var webpushOptions *webpush.Options
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		workers := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions)
		workers.Start(ctx)
		engineOpts = append(engineOpts, sim.WithAlerter(workers))
		log.Info().Int("workers", cfg.WorkerPool.Size).Msg("push alerts enabled")
	} else {
		log.Warn().Msg("VAPID keys are not configured; push alerts are disabled")
	}

	params := sim.ParamsFromConfig(cfg.Simulator)
	fleet := sim.NewFleet(params, sim.NewRandSampler(cfg.Simulator.Seed))
	engine := sim.NewEngine(cfg.Simulator, fleet, appStore, engineOpts...)
	go engine.Run(ctx)

	if err := retention.NewPurger(cfg.Retention, appStore).Start(ctx); err != nil {
		return err
	}

	router := api.NewRouter(api.RouterOptions{
		Server:   cfg.Server,
		Store:    appStore,
		Reports:  report.NewService(cfg, appStore),
		WebPush:  webpushOptions,
		Registry: registry,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received, stopping services")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("HTTP server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}

	log.Info().Msg("server gracefully stopped")
	return nil
}
