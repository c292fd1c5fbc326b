// Package notification renders order emails, queues them without blocking
// the order path, ships them through Kafka and delivers them over SMTP.
package notification

import "time"

type Category string

const (
	CategoryOrderConfirmation Category = "ORDER_CONFIRMATION"
	CategoryMerchantNewOrder  Category = "MERCHANT_NEW_ORDER"
	CategoryStatusUpdate      Category = "ORDER_STATUS"
	CategoryOperatorAlert     Category = "OPERATOR_ALERT"
)

// Message is one rendered email. Body is sanitized HTML.
type Message struct {
	ID          string    `json:"id"`
	Category    Category  `json:"category"`
	Recipient   string    `json:"recipient"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	OrderNumber string    `json:"orderNumber,omitempty"`
	Attempt     int       `json:"attempt"`
	CreatedAt   time.Time `json:"createdAt"`
	LastError   string    `json:"lastError,omitempty"`
}
