package main

import (
	"context"
	"os/signal"
	"syscall"

	"ms-storefront/internal/app"
	"ms-storefront/internal/config"
	"ms-storefront/internal/logger"
)

func main() {
	log := logger.NewLogger()
	defer log.Close()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("CONFIG", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunNotifier(ctx, cfg, log); err != nil {
		log.Fatal("NOTIFIER", err.Error())
	}
	log.Info("NOTIFIER", "Notification worker stopped")
}
