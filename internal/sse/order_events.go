package sse

import (
	"context"
	"sync"
	"time"

	"ms-storefront/internal/models"
)

const clientBuffer = 10

// OrderEvent is the payload streamed to tracking pages and the admin feed.
type OrderEvent struct {
	Type           string               `json:"type"`
	OrderID        string               `json:"orderId"`
	OrderNumber    string               `json:"orderNumber"`
	Status         models.OrderStatus   `json:"status"`
	PaymentMethod  models.PaymentMethod `json:"paymentMethod"`
	TrackingNumber string               `json:"trackingNumber,omitempty"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

func newOrderEvent(eventType string, o *models.Order) OrderEvent {
	return OrderEvent{
		Type:           eventType,
		OrderID:        o.ID,
		OrderNumber:    o.OrderNumber,
		Status:         o.Status,
		PaymentMethod:  o.PaymentMethod,
		TrackingNumber: o.TrackingNumber,
		UpdatedAt:      o.UpdatedAt,
	}
}

// OrderEventEmitter fans order events out to per-order subscribers and to
// subscribers of the whole feed.
type OrderEventEmitter struct {
	mu           sync.RWMutex
	orderClients map[string][]chan OrderEvent
	feedClients  []chan OrderEvent
}

func NewOrderEventEmitter() *OrderEventEmitter {
	return &OrderEventEmitter{
		orderClients: make(map[string][]chan OrderEvent),
	}
}

// SubscribeToOrder streams events for one order number until ctx is done.
func (e *OrderEventEmitter) SubscribeToOrder(ctx context.Context, orderNumber string) <-chan OrderEvent {
	ch := make(chan OrderEvent, clientBuffer)

	e.mu.Lock()
	e.orderClients[orderNumber] = append(e.orderClients[orderNumber], ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.mu.Lock()
		defer e.mu.Unlock()
		e.orderClients[orderNumber] = remove(e.orderClients[orderNumber], ch)
		if len(e.orderClients[orderNumber]) == 0 {
			delete(e.orderClients, orderNumber)
		}
		close(ch)
	}()
	return ch
}

// SubscribeToFeed streams every order event until ctx is done.
func (e *OrderEventEmitter) SubscribeToFeed(ctx context.Context) <-chan OrderEvent {
	ch := make(chan OrderEvent, clientBuffer)

	e.mu.Lock()
	e.feedClients = append(e.feedClients, ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.mu.Lock()
		defer e.mu.Unlock()
		e.feedClients = remove(e.feedClients, ch)
		close(ch)
	}()
	return ch
}

// Emit never blocks; a subscriber with a full buffer misses the event.
func (e *OrderEventEmitter) Emit(event OrderEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, ch := range e.orderClients[event.OrderNumber] {
		select {
		case ch <- event:
		default:
		}
	}
	for _, ch := range e.feedClients {
		select {
		case ch <- event:
		default:
		}
	}
}

func (e *OrderEventEmitter) OrderClientCount(orderNumber string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.orderClients[orderNumber])
}

func (e *OrderEventEmitter) FeedClientCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.feedClients)
}

func remove(clients []chan OrderEvent, target chan OrderEvent) []chan OrderEvent {
	for i, ch := range clients {
		if ch == target {
			return append(clients[:i], clients[i+1:]...)
		}
	}
	return clients
}
