package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"ms-storefront/internal/analytics"
	analytics_api "ms-storefront/internal/analytics/api"
	"ms-storefront/internal/config"
	"ms-storefront/internal/kafka"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/notification"
	"ms-storefront/internal/order"
	"ms-storefront/internal/order/db"
	"ms-storefront/internal/order/order_api"
	orderredis "ms-storefront/internal/order/redis"
	"ms-storefront/internal/sse"
)

// Serve runs the storefront API, the notification dispatcher and the
// pending-order expiry watcher until ctx is cancelled.
func Serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	bunDB, err := OpenPostgres(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer bunDB.Close()

	redisClient, err := OpenRedis(ctx, cfg.Redis, log)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	if err := orderredis.EnableExpiryEvents(ctx, redisClient); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Failed to enable keyspace notifications: %v", err))
	}

	verifier, err := NewVerifier(ctx, cfg.Auth, log)
	if err != nil {
		return err
	}

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()
	topics := []string{notification.TopicNotifications, notification.TopicNotificationsFailed}
	if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, topics, log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	}

	renderer, err := notification.NewRenderer(notification.RendererConfig{
		StoreName:     cfg.Email.StoreName,
		BaseURL:       cfg.Email.StoreBaseURL,
		MerchantEmail: cfg.Email.MerchantEmail,
		OperatorEmail: cfg.Email.OperatorEmail,
	})
	if err != nil {
		return err
	}
	dispatcher := notification.NewDispatcher(producer, cfg.Notification.BufferSize, log).
		WithPublishTimeout(cfg.Notification.PublishTimeout)
	events := sse.NewOrderEventEmitter()
	notifier := sse.NewBroadcastingNotifier(notification.NewOrderNotifier(renderer, dispatcher, log), events)

	signer := NewSigner(cfg.PayHere)
	if signer == nil {
		log.Warn("PAYHERE", "PayHere credentials not set, online checkout disabled")
	}

	service := order.NewOrderService(
		&db.DB{Bun: bunDB},
		orderredis.NewPendingStore(redisClient, cfg.Redis.PendingTTL),
		orderredis.NewGuard(redisClient, cfg.Redis.LockTTL),
		signer,
		notifier,
		log,
	)
	handler := order_api.NewHandler(service, events, cfg.Auth.AdminRole, log)
	reports := analytics_api.NewHandler(analytics.NewService(bunDB), cfg.Auth.AdminRole, log)
	router := NewRouter(verifier, log, map[string]HealthCheck{
		"postgres": func(ctx context.Context) error { return bunDB.PingContext(ctx) },
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}, handler, reports)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP", fmt.Sprintf("Storefront API running on %s", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		return orderredis.WatchExpiredPending(gctx, redisClient, func(orderNumber string) {
			log.LogPayment("EXPIRED", orderNumber, "payment window closed without a notification")
		})
	})

	err = g.Wait()
	if spilled := dispatcher.Spilled(); spilled > 0 {
		log.Warn("NOTIFY", fmt.Sprintf("%d notifications bypassed the full buffer during this run", spilled))
	}
	if dropped := dispatcher.Dropped(); dropped > 0 {
		log.Warn("NOTIFY", fmt.Sprintf("%d notifications were dropped during this run", dropped))
	}
	log.Info("APP", "Storefront shutdown complete")
	return err
}
