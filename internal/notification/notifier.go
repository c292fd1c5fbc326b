package notification

import (
	"fmt"

	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
)

type Enqueuer interface {
	Enqueue(msg Message) bool
}

// OrderNotifier renders order events and enqueues them. Every method only
// logs on failure; order processing never waits on email.
type OrderNotifier struct {
	renderer *Renderer
	queue    Enqueuer
	log      *logger.Logger
}

func NewOrderNotifier(renderer *Renderer, queue Enqueuer, log *logger.Logger) *OrderNotifier {
	return &OrderNotifier{renderer: renderer, queue: queue, log: log}
}

// OrderPlaced sends the customer confirmation and the merchant alert.
func (n *OrderNotifier) OrderPlaced(order *models.Order) {
	n.send(n.renderer.OrderConfirmation(order))
	n.send(n.renderer.MerchantNewOrder(order))
}

func (n *OrderNotifier) StatusChanged(order *models.Order) {
	if !NotifiableStatus(order.Status) {
		return
	}
	n.send(n.renderer.StatusUpdate(order))
}

func (n *OrderNotifier) ReconciliationAnomaly(anomaly *models.ReconciliationAnomaly) {
	n.send(n.renderer.ReconciliationAlert(anomaly))
}

func (n *OrderNotifier) send(msg Message, err error) {
	if err != nil {
		n.log.Error("NOTIFY", fmt.Sprintf("render failed: %v", err))
		return
	}
	n.queue.Enqueue(msg)
}
