package app

import (
	"context"

	"ms-storefront/internal/config"
	"ms-storefront/internal/kafka"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/notification"
)

// RunNotifier consumes rendered notifications and delivers them over SMTP
// until ctx is cancelled.
func RunNotifier(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	sender := notification.NewSMTPSender(notification.SMTPConfig{
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.SMTPUsername,
		Password: cfg.Email.SMTPPassword,
		From:     cfg.Email.From,
	})
	worker := notification.NewWorker(sender, producer, cfg.Notification.MaxAttempts, log)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, notification.TopicNotifications, cfg.Kafka.GroupID, log)
	defer consumer.Close()

	log.LogProcess("NOTIFIER", "delivering storefront notifications")
	return consumer.Start(ctx, worker.HandleMessage)
}
