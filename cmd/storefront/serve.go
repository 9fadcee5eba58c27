package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Ibrahimalmari/storefront-core/internal/cache"
	"github.com/Ibrahimalmari/storefront-core/internal/httpapi"
	"github.com/Ibrahimalmari/storefront-core/internal/ledger"
	"github.com/Ibrahimalmari/storefront-core/internal/logger"
	"github.com/Ibrahimalmari/storefront-core/internal/navigation"
	"github.com/Ibrahimalmari/storefront-core/internal/notify"
	"github.com/Ibrahimalmari/storefront-core/internal/repository"
	"github.com/Ibrahimalmari/storefront-core/internal/service"
	"github.com/Ibrahimalmari/storefront-core/internal/tracking"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func serve(c *cli.Context) error {
	cfg := configFrom(c)
	log := logger.L()

	ctx, stop := signalContext(c)
	defer stop()

	otel.SetTextMapPropagator(propagation.TraceContext{})

	rdb, err := newRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()
	redisCache := cache.NewRedisCache(rdb)

	saved, err := repository.Open(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := saved.Close(context.Background()); err != nil {
			log.WithError(err).Warn("error disconnecting from MongoDB")
		}
	}()

	led, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer led.Close()
	if err := led.RunMigrations(); err != nil {
		return err
	}

	client := newBackend(cfg)

	nav := navigation.NewKafkaNavigator(cfg.Kafka.NavigationTopic, cfg.Kafka.Brokers...)
	defer func() {
		if err := nav.Close(); err != nil {
			log.WithError(err).Warn("error closing navigation writer")
		}
	}()

	registry := service.NewRegistry(service.Deps{
		Backend:   client,
		Cache:     redisCache,
		Saved:     saved,
		Navigator: nav,
	})
	estimator := newEstimator(cfg, client, redisCache)

	tracker := tracking.NewTracker(ctx, tracking.Config{
		Fetcher:   client,
		Interval:  cfg.Tracking.PollInterval,
		Ledger:    led,
		Navigator: nav,
	})
	defer tracker.StopAll()

	consumer := notify.NewConsumer(tracker.Push, cfg.Kafka.StatusTopic, cfg.Kafka.ConsumerGroupID, cfg.Kafka.Brokers...)
	defer consumer.Close()
	go consumer.Run(ctx)

	srv := &http.Server{
		Addr: ":" + cfg.HTTP.Port,
		Handler: httpapi.NewRouter(httpapi.RouterConfig{
			Carts:          registry,
			Estimator:      estimator,
			Stores:         client,
			Tracker:        tracker,
			Fetcher:        client,
			Feedback:       led,
			RequestTimeout: cfg.HTTP.RequestTimeout,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.HTTP.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.HTTP.Port).Info("storefront API starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}
