package sse

import "ms-storefront/internal/models"

// OrderNotifier matches the order service's notification hook.
type OrderNotifier interface {
	OrderPlaced(o *models.Order)
	StatusChanged(o *models.Order)
	ReconciliationAnomaly(a *models.ReconciliationAnomaly)
}

// BroadcastingNotifier forwards to next and mirrors order changes onto the
// event stream.
type BroadcastingNotifier struct {
	next    OrderNotifier
	emitter *OrderEventEmitter
}

func NewBroadcastingNotifier(next OrderNotifier, emitter *OrderEventEmitter) *BroadcastingNotifier {
	return &BroadcastingNotifier{next: next, emitter: emitter}
}

func (n *BroadcastingNotifier) OrderPlaced(o *models.Order) {
	n.next.OrderPlaced(o)
	n.emitter.Emit(newOrderEvent("created", o))
}

func (n *BroadcastingNotifier) StatusChanged(o *models.Order) {
	n.next.StatusChanged(o)
	n.emitter.Emit(newOrderEvent("status", o))
}

func (n *BroadcastingNotifier) ReconciliationAnomaly(a *models.ReconciliationAnomaly) {
	n.next.ReconciliationAnomaly(a)
}
