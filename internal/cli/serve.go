package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/handler"
	"github.com/iliyamo/table-reservation/internal/logging"
	"github.com/iliyamo/table-reservation/internal/middleware"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/router"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, log, true)
			if err != nil {
				return err
			}
			defer a.Close()

			e := echo.New()
			e.HideBanner = true
			e.HidePort = true
			e.Use(echomw.Recover())
			e.Use(echomw.RequestID())
			e.Use(middleware.RequestLogger(logging.Component(log, "http")))

			router.RegisterRoutes(e)
			h := handler.NewReservationHandler(a.sched, cfg.BookingTimeout, logging.Component(log, "http"))
			router.RegisterReservations(e, h, router.Middleware{
				RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), a.rdb, logging.Component(log, "ratelimit")),
				Cache:     middleware.NewRedisCache(config.LoadCacheConfig(), a.rdb, logging.Component(log, "cache")),
			})

			addr := ":" + cfg.Port
			errCh := make(chan error, 1)
			go func() { errCh <- e.Start(addr) }()
			log.Info().
				Str("addr", addr).
				Str("env", cfg.Env).
				Str("store", cfg.StoreDriver).
				Str("locks", cfg.LockBackend).
				Bool("events", cfg.EventsEnabled).
				Msg("listening")

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return e.Shutdown(shutdownCtx)
		},
	}
}

func newConsumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Journal reservation events from RabbitMQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info().Str("queue", cfg.EventsQueue).Str("path", cfg.EventsLogPath).Msg("consumer starting")
			return queue.StartConsumer(ctx, queue.ConsumerConfig{
				URL:     cfg.RabbitURL,
				Queue:   cfg.EventsQueue,
				LogPath: cfg.EventsLogPath,
			}, logging.Component(log, "consumer"))
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema for the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			h, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer h.Close()

			applied, err := applySchema(cmd.Context(), h)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case cfg.StoreDriver == config.DriverMemory:
				fmt.Fprintln(out, "memory store has no schema")
			case len(applied) == 0:
				fmt.Fprintln(out, "schema up to date")
			default:
				for _, f := range applied {
					fmt.Fprintln(out, "applied", f)
				}
			}
			return nil
		},
	}
}
