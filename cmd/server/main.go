package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/boxoffice"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/config"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/database"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/handler"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/jobs"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/logging"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/queue"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/repository"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/router"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/seatcache"
	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	rdb, err := config.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("seat cache not reachable at startup")
	}
	defer rdb.Close()

	bo := boxoffice.New(boxoffice.Config{
		BaseURL:        cfg.BoxOffice.BaseURL,
		Token:          cfg.BoxOffice.Token,
		ServiceSecret:  cfg.BoxOffice.ServiceSecret,
		ConnectTimeout: cfg.BoxOffice.ConnectTimeout,
		ReadTimeout:    cfg.BoxOffice.ReadTimeout,
	})

	var notifier service.SaleNotifier
	var publisher *queue.SalePublisher
	if cfg.RabbitMQ.URL != "" {
		publisher = queue.NewSalePublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.SalesQueue)
		defer publisher.Close()
		notifier = publisher
	}

	sessionRepo := repository.NewSessionRepo(db)
	saleRepo := repository.NewSaleRepo(db)
	eventRepo := repository.NewEventRepo(db)

	sessions := service.NewSessionService(sessionRepo, bo, cfg.Schedule.SessionTTL)
	sales := service.NewSaleService(saleRepo, eventRepo, sessions, bo, notifier, service.RetryPolicy{
		MaxAttempts: cfg.Schedule.SaleRetryMaxAttempts,
		BaseBackoff: cfg.Schedule.SaleRetryBackoff,
		MaxBackoff:  cfg.Schedule.SaleRetryMaxBackoff,
		// A claimed sale must stay claimed for as long as its box office call can last.
		Lease: max(cfg.Schedule.SaleRetryLease, cfg.BoxOffice.ConnectTimeout+cfg.BoxOffice.ReadTimeout),
	})
	events := service.NewEventSyncService(eventRepo, bo)
	seats := seatcache.NewResolver(rdb)

	runner, err := jobs.NewRunner(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler")
	}
	if err := runner.Add(jobs.SessionSweep, cfg.Schedule.SessionSweepEvery, jobs.SessionSweepTask(sessions)); err != nil {
		log.Fatal().Err(err).Msg("scheduler")
	}
	if err := runner.Add(jobs.SaleRetry, cfg.Schedule.SaleRetryEvery, jobs.SaleRetryTask(sales)); err != nil {
		log.Fatal().Err(err).Msg("scheduler")
	}

	e := router.New(router.Handlers{
		Health:   handler.Health(db),
		Sessions: &handler.SessionHandler{Sessions: sessions},
		Sales:    &handler.SaleHandler{Sales: sales},
		Events:   &handler.EventHandler{Events: events, Seats: seats},
	}, cfg.JWTSecret)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
		if err := runner.Shutdown(); err != nil {
			log.Error().Err(err).Msg("scheduler shutdown")
		}
		return nil
	})

	runner.Start()

	if cfg.RabbitMQ.URL != "" {
		consumer := queue.NewChangeConsumer(cfg.RabbitMQ.URL, cfg.RabbitMQ.ChangesQueue, events)
		g.Go(func() error { return consumer.Run(gctx) })
	} else {
		log.Warn().Msg("RABBITMQ_URL not set, change notifications and sale events disabled")
	}

	if cfg.ResyncOnStartup {
		g.Go(func() error {
			report, err := events.FullResync(gctx)
			if err != nil {
				log.Warn().Err(err).Int("applied", report.Applied).Int("failed", report.Failed).Msg("startup resync incomplete")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		return
	}
	log.Info().Msg("server stopped")
}
