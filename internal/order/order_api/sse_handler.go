package order_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/sse"
)

// StreamOrderEvents streams status changes for one order to its tracking
// page. Access follows the same rule as TrackOrder.
func (h *Handler) StreamOrderEvents(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")
	o, err := h.OrderService.TrackGuestOrder(r.Context(), orderNumber, r.URL.Query().Get("token"), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, "StreamOrderEvents", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	events := h.Events.SubscribeToOrder(ctx, orderNumber)

	setupSSEHeaders(w)
	fmt.Fprintf(w, "event: connected\ndata: {\"status\":%q,\"orderNumber\":%q}\n\n", o.Status, orderNumber)
	flusher.Flush()
	h.Logger.Debug("SSE", fmt.Sprintf("Client connected to order events for %s", orderNumber))

	h.stream(w, flusher, events, r)
}

// StreamOrderFeed streams every order event to the admin dashboard.
func (h *Handler) StreamOrderFeed(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	events := h.Events.SubscribeToFeed(r.Context())

	setupSSEHeaders(w)
	fmt.Fprint(w, "event: connected\ndata: {\"status\":\"connected\"}\n\n")
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Admin %s connected to the order feed", auth.UserID(r.Context())))

	h.stream(w, flusher, events, r)
}

func (h *Handler) stream(w http.ResponseWriter, flusher http.Flusher, events <-chan sse.OrderEvent, r *http.Request) {
	ctx := r.Context()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize order event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: order\ndata: %s\n\n", data)
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", "Client disconnected from order events")
			return
		}
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Referrer-Policy", "no-referrer")
}
