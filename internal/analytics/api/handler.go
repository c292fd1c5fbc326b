package analytics_api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-storefront/internal/analytics"
	"ms-storefront/internal/auth"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/utils"
)

const (
	dateLayout       = "2006-01-02"
	defaultRangeDays = 30
)

// SalesReporter is the slice of *analytics.Service the HTTP layer calls.
type SalesReporter interface {
	GetSalesSummary(ctx context.Context, from, to time.Time) (*analytics.SalesSummary, error)
	GetCouponUsage(ctx context.Context, from, to time.Time) ([]analytics.CouponUsage, error)
	GetTopProducts(ctx context.Context, from, to time.Time, limit int) ([]analytics.ProductSales, error)
}

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service   SalesReporter
	Logger    *logger.Logger
	AdminRole string
	now       func() time.Time
}

// NewHandler creates a new analytics handler
func NewHandler(service SalesReporter, adminRole string, log *logger.Logger) *Handler {
	return &Handler{
		Service:   service,
		Logger:    log,
		AdminRole: adminRole,
		now:       time.Now,
	}
}

// RegisterRoutes mounts the admin analytics routes
func (h *Handler) RegisterRoutes(r chi.Router, verifier auth.Verifier) {
	r.Route("/api/admin/analytics", func(r chi.Router) {
		r.Use(auth.Required(verifier))
		r.Use(auth.RequireRole(h.AdminRole))
		r.Get("/summary", h.GetSalesSummary)
		r.Get("/coupons", h.GetCouponUsage)
		r.Get("/products", h.GetTopProducts)
	})
}

func (h *Handler) sendJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	if err := utils.WriteJSON(w, status, data); err != nil {
		h.Logger.Error("ANALYTICS", "Failed to encode response: "+err.Error())
	}
}

// dateRange reads ?from=YYYY-MM-DD&to=YYYY-MM-DD. Both days are inclusive;
// the returned upper bound is exclusive. Missing bounds default to the last
// thirty days.
func (h *Handler) dateRange(r *http.Request) (time.Time, time.Time, error) {
	today := h.now().UTC().Truncate(24 * time.Hour)
	to := today.AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -defaultRangeDays)

	q := r.URL.Query()
	if raw := q.Get("to"); raw != "" {
		day, err := time.Parse(dateLayout, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("to: expected YYYY-MM-DD, got %q", raw)
		}
		to = day.AddDate(0, 0, 1)
		from = to.AddDate(0, 0, -defaultRangeDays)
	}
	if raw := q.Get("from"); raw != "" {
		day, err := time.Parse(dateLayout, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("from: expected YYYY-MM-DD, got %q", raw)
		}
		from = day
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("from must not be after to")
	}
	return from, to, nil
}

// GetSalesSummary handles the revenue summary request
func (h *Handler) GetSalesSummary(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.dateRange(r)
	if err != nil {
		h.sendJSONResponse(w, http.StatusBadRequest, utils.ErrorResponse("Invalid date range", err.Error()))
		return
	}

	summary, err := h.Service.GetSalesSummary(r.Context(), from, to)
	if err != nil {
		h.Logger.Error("ANALYTICS", "Error getting sales summary: "+err.Error())
		h.sendJSONResponse(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to get analytics", "internal error"))
		return
	}

	h.sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Sales summary", summary))
}

// GetCouponUsage handles the coupon redemption report
func (h *Handler) GetCouponUsage(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.dateRange(r)
	if err != nil {
		h.sendJSONResponse(w, http.StatusBadRequest, utils.ErrorResponse("Invalid date range", err.Error()))
		return
	}

	usage, err := h.Service.GetCouponUsage(r.Context(), from, to)
	if err != nil {
		h.Logger.Error("ANALYTICS", "Error getting coupon usage: "+err.Error())
		h.sendJSONResponse(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to get analytics", "internal error"))
		return
	}

	h.sendJSONResponse(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%d coupons", len(usage)), usage))
}

// GetTopProducts handles the best-seller ranking request
func (h *Handler) GetTopProducts(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.dateRange(r)
	if err != nil {
		h.sendJSONResponse(w, http.StatusBadRequest, utils.ErrorResponse("Invalid date range", err.Error()))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.sendJSONResponse(w, http.StatusBadRequest, utils.ErrorResponse("Invalid limit", "limit must be a non-negative integer"))
			return
		}
	}

	products, err := h.Service.GetTopProducts(r.Context(), from, to, limit)
	if err != nil {
		h.Logger.Error("ANALYTICS", "Error getting top products: "+err.Error())
		h.sendJSONResponse(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to get analytics", "internal error"))
		return
	}

	h.sendJSONResponse(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%d products", len(products)), products))
}
