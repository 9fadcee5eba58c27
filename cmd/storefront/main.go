package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ibrahimalmari/storefront-core/internal/backend"
	"github.com/Ibrahimalmari/storefront-core/internal/cache"
	"github.com/Ibrahimalmari/storefront-core/internal/config"
	"github.com/Ibrahimalmari/storefront-core/internal/domain"
	"github.com/Ibrahimalmari/storefront-core/internal/estimate"
	"github.com/Ibrahimalmari/storefront-core/internal/ledger"
	"github.com/Ibrahimalmari/storefront-core/internal/logger"
	"github.com/Ibrahimalmari/storefront-core/internal/navigation"
	"github.com/Ibrahimalmari/storefront-core/internal/session"
	"github.com/Ibrahimalmari/storefront-core/internal/tracking"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "storefront",
		Usage: "cart, delivery estimate and order tracking core",
		Before: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := logger.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
				return fmt.Errorf("configure logger: %w", err)
			}
			c.App.Metadata = map[string]interface{}{"config": cfg}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the status consumer",
				Action: serve,
			},
			{
				Name:  "estimate",
				Usage: "print the delivery estimate for a store",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "store-id", Required: true},
					&cli.StringFlag{Name: "lat", Usage: "origin latitude, defaults to the configured device location"},
					&cli.StringFlag{Name: "lon", Usage: "origin longitude"},
				},
				Action: estimateCmd,
			},
			{
				Name:      "track",
				Usage:     "follow an order until it is delivered",
				ArgsUsage: "<order-id>",
				Action:    trackCmd,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.L().WithError(err).Fatal("storefront failed")
	}
}

func configFrom(c *cli.Context) *config.Config {
	return c.App.Metadata["config"].(*config.Config)
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
}

func newBackend(cfg *config.Config) *backend.HTTPClient {
	return backend.NewHTTPClient(backend.Options{
		BaseURL:         cfg.Backend.BaseURL,
		Timeout:         cfg.Backend.Timeout,
		BreakerFailures: cfg.Backend.BreakerFailures,
		BreakerCooldown: cfg.Backend.BreakerCooldown,
	})
}

func newRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func newEstimator(cfg *config.Config, stores estimate.StoreLocator, coords cache.StoreCoordinates) *estimate.Estimator {
	rates := estimate.Rates{
		RatePerKm:           cfg.Delivery.RatePerKm,
		AverageSpeedKmh:     cfg.Delivery.AverageSpeedKmh,
		BaseHandlingMinutes: cfg.Delivery.BaseHandlingMinutes,
	}
	device := estimate.StaticLocator{
		Coordinate: estimate.ParseCoordinate(cfg.Delivery.Latitude, cfg.Delivery.Longitude),
	}
	return estimate.New(rates, device, stores, coords)
}

func estimateCmd(c *cli.Context) error {
	cfg := configFrom(c)
	ctx, cancel := context.WithTimeout(c.Context, cfg.Backend.Timeout)
	defer cancel()

	var coords cache.StoreCoordinates
	if rdb, err := newRedis(ctx, cfg); err != nil {
		logger.L().WithError(err).Warn("coordinate cache disabled")
	} else {
		defer rdb.Close()
		coords = cache.NewRedisCache(rdb)
	}

	estimator := newEstimator(cfg, newBackend(cfg), coords)

	storeID := c.String("store-id")
	var est domain.DeliveryEstimate
	if c.IsSet("lat") || c.IsSet("lon") {
		origin := estimate.ParseCoordinate(c.String("lat"), c.String("lon"))
		if origin == nil {
			return cli.Exit("lat and lon must be valid decimal degrees", 2)
		}
		est = estimator.EstimateFrom(ctx, origin, storeID)
	} else {
		est = estimator.EstimateForStore(ctx, storeID)
	}

	fmt.Fprintln(c.App.Writer, estimate.Label(est))
	return json.NewEncoder(c.App.Writer).Encode(est)
}

// trackCmd polls one order with the session the login flow stored in Redis
// and exits once feedback has been requested.
func trackCmd(c *cli.Context) error {
	cfg := configFrom(c)
	orderID := c.Args().First()
	if orderID == "" {
		return cli.Exit("order id is required", 2)
	}

	ctx, stop := signalContext(c)
	defer stop()

	rdb, err := newRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	sess, err := session.Load(ctx, session.NewRedisStore(rdb))
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	led, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer led.Close()
	if err := led.RunMigrations(); err != nil {
		return err
	}

	nav := &navigation.Recorder{}
	poller := tracking.NewPoller(tracking.Config{
		Fetcher:   newBackend(cfg),
		Session:   sess,
		Interval:  cfg.Tracking.PollInterval,
		Ledger:    led,
		Navigator: nav,
	})
	if err := poller.Start(ctx, orderID); err != nil {
		return err
	}
	defer poller.Stop()

	log := logger.L().WithField("order_id", orderID)
	ticker := time.NewTicker(cfg.Tracking.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case prompt := <-poller.Feedback():
			log.WithField("delivered_at", prompt.DeliveredAt).Info("order delivered, feedback requested")
			return nil
		case <-poller.Done():
			if poller.State() == tracking.StateDelivered {
				select {
				case prompt := <-poller.Feedback():
					log.WithField("delivered_at", prompt.DeliveredAt).Info("order delivered, feedback requested")
				case <-time.After(5 * time.Second):
					log.Info("order delivered")
				}
				return nil
			}
			log.WithField("status", poller.Status().String()).Info("tracking ended")
			return nil
		case <-ticker.C:
			log.WithFields(logrus.Fields{
				"status": poller.Status().String(),
				"state":  poller.State().String(),
			}).Debug("tracking")
		}
	}
}
