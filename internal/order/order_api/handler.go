package order_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/order"
	"ms-storefront/internal/order/ordererr"
	"ms-storefront/internal/sse"
	"ms-storefront/internal/utils"
)

// OrderService is the slice of *order.OrderService the HTTP layer calls.
type OrderService interface {
	PreviewCheckout(ctx context.Context, userID string, items []models.CartLine, code string) (*models.CheckoutPreview, error)
	ValidateCoupon(ctx context.Context, userID string, req models.CouponValidationRequest) (*models.CouponValidationResponse, error)
	PlaceOrder(ctx context.Context, userID string, req models.OrderRequest) (*models.OrderResponse, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	TrackGuestOrder(ctx context.Context, orderNumber, token, userID string) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, req models.StatusUpdateRequest) (*models.Order, error)
	ListAnomalies(ctx context.Context, includeResolved bool) ([]models.ReconciliationAnomaly, error)
	HandlePayHereNotification(ctx context.Context, form url.Values) error
}

type Handler struct {
	OrderService OrderService
	Events       *sse.OrderEventEmitter
	Logger       *logger.Logger
	AdminRole    string
}

func NewHandler(orderService OrderService, events *sse.OrderEventEmitter, adminRole string, log *logger.Logger) *Handler {
	return &Handler{
		OrderService: orderService,
		Events:       events,
		Logger:       log,
		AdminRole:    adminRole,
	}
}

// RegisterRoutes mounts the storefront API under /api.
func (h *Handler) RegisterRoutes(r chi.Router, verifier auth.Verifier) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/payments/payhere/notify", h.PayHereNotify)

		r.Group(func(r chi.Router) {
			r.Use(auth.Optional(verifier))
			r.Post("/checkout/preview", h.PreviewCheckout)
			r.Post("/coupons/validate", h.ValidateCoupon)
			r.Post("/orders", h.PlaceOrder)
			r.Get("/orders/track/{orderNumber}", h.TrackOrder)
			r.Get("/orders/track/{orderNumber}/events", h.StreamOrderEvents)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Required(verifier))
			r.Get("/orders/me", h.ListMyOrders)
			r.Get("/orders/{orderId}", h.GetOrder)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.Required(verifier))
			r.Use(auth.RequireRole(h.AdminRole))
			r.Patch("/orders/{orderId}/status", h.UpdateOrderStatus)
			r.Get("/orders/events", h.StreamOrderFeed)
			r.Get("/anomalies", h.ListAnomalies)
		})
	})
}

type previewRequest struct {
	Items      []models.CartLine `json:"items"`
	CouponCode string            `json:"couponCode,omitempty"`
}

func (h *Handler) PreviewCheckout(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !h.decode(w, r, "PreviewCheckout", &req) {
		return
	}
	preview, err := h.OrderService.PreviewCheckout(r.Context(), auth.UserID(r.Context()), req.Items, req.CouponCode)
	if err != nil {
		h.writeError(w, "PreviewCheckout", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Checkout priced", preview))
}

func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req models.CouponValidationRequest
	if !h.decode(w, r, "ValidateCoupon", &req) {
		return
	}
	result, err := h.OrderService.ValidateCoupon(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		h.writeError(w, "ValidateCoupon", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Coupon applied", result))
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req models.OrderRequest
	if !h.decode(w, r, "PlaceOrder", &req) {
		return
	}
	h.Logger.Debug("API", fmt.Sprintf("PlaceOrder: %d lines, method %s", len(req.Items), req.PaymentMethod))

	resp, err := h.OrderService.PlaceOrder(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		h.writeError(w, "PlaceOrder", err)
		return
	}
	message := "Order placed"
	if resp.Payment != nil {
		message = "Proceed to payment"
	}
	h.Logger.Info("API", fmt.Sprintf("PlaceOrder: %s (%s)", resp.OrderNumber, message))
	h.writeJSON(w, http.StatusCreated, utils.SuccessResponse(message, resp))
}

func (h *Handler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")
	o, err := h.OrderService.TrackGuestOrder(r.Context(), orderNumber, r.URL.Query().Get("token"), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, "TrackOrder", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Order found", o))
}

func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.OrderService.ListOrdersByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, "ListMyOrders", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%d orders", len(orders)), orders))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Info("API", fmt.Sprintf("GetOrder: orderId=%s", orderID))

	o, err := h.OrderService.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeError(w, "GetOrder", err)
		return
	}
	if o.UserID != auth.UserID(r.Context()) && !auth.HasRole(r.Context(), h.AdminRole) {
		h.writeError(w, "GetOrder", ordererr.ErrOrderNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Order found", o))
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	var req models.StatusUpdateRequest
	if !h.decode(w, r, "UpdateOrderStatus", &req) {
		return
	}
	o, err := h.OrderService.UpdateOrderStatus(r.Context(), orderID, req)
	if err != nil {
		h.writeError(w, "UpdateOrderStatus", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("UpdateOrderStatus: %s is %s", o.OrderNumber, o.Status))
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Order updated", o))
}

func (h *Handler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	includeResolved, _ := strconv.ParseBool(r.URL.Query().Get("includeResolved"))
	anomalies, err := h.OrderService.ListAnomalies(r.Context(), includeResolved)
	if err != nil {
		h.writeError(w, "ListAnomalies", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%d anomalies", len(anomalies)), anomalies))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, op string, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("%s: failed to decode request body: %v", op, err))
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	if err := utils.WriteJSON(w, status, body); err != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode response: %v", err))
	}
}

// writeError maps the order error taxonomy onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		h.writeJSON(w, status, utils.ErrorResponse(message, "internal error"))
		return
	}
	h.Logger.Warn("API", fmt.Sprintf("%s: %v", op, err))
	h.writeJSON(w, status, utils.ErrorResponse(message, err.Error()))
}

func statusFor(err error) (int, string) {
	var (
		validation *ordererr.ValidationError
		coupon     *ordererr.CouponRejectedError
		webhook    *order.WebhookError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, "Validation failed"
	case errors.As(err, &coupon):
		return http.StatusBadRequest, coupon.Reason
	case errors.Is(err, ordererr.ErrInsufficientStock):
		return http.StatusConflict, "Not enough stock"
	case errors.Is(err, ordererr.ErrProductUnavailable):
		return http.StatusConflict, "Product unavailable"
	case errors.Is(err, ordererr.ErrInvalidStatusTransition):
		return http.StatusConflict, "Invalid status transition"
	case errors.Is(err, ordererr.ErrOrderNotFound), errors.Is(err, ordererr.ErrProductNotFound):
		return http.StatusNotFound, "Not found"
	case errors.As(err, &webhook):
		return webhook.StatusCode, webhook.PublicError
	default:
		return http.StatusInternalServerError, "Something went wrong"
	}
}
