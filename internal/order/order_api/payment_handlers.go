package order_api

import (
	"errors"
	"fmt"
	"net/http"

	"ms-storefront/internal/order"
)

// maxNotificationBytes caps the PayHere form body.
const maxNotificationBytes = 64 << 10

// PayHereNotify handles the PayHere server-to-server payment notification.
// A 200 tells PayHere to stop retrying.
func (h *Handler) PayHereNotify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxNotificationBytes)
	if err := r.ParseForm(); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("PayHereNotify: unreadable form: %v", err))
		http.Error(w, "Invalid notification", http.StatusBadRequest)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("PayHereNotify: order_id=%s status_code=%s", r.PostForm.Get("order_id"), r.PostForm.Get("status_code")))

	err := h.OrderService.HandlePayHereNotification(r.Context(), r.PostForm)
	if err != nil {
		var webhookErr *order.WebhookError
		if errors.As(err, &webhookErr) {
			h.Logger.Info("API", fmt.Sprintf("PayHereNotify: category=%s status=%d: %s",
				webhookErr.Category, webhookErr.StatusCode, webhookErr.InternalError))
			http.Error(w, webhookErr.PublicError, webhookErr.StatusCode)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("PayHereNotify: %v", err))
		http.Error(w, "Webhook processing error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
