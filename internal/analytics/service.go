package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-storefront/internal/models"
)

// Orders in these statuses never count towards revenue.
var nonRevenueStatuses = []models.OrderStatus{
	models.OrderStatusCancelled,
	models.OrderStatusReturned,
	models.OrderStatusRefunded,
}

// DefaultTopProducts caps the product ranking when the caller passes zero.
const DefaultTopProducts = 10

// Service handles analytics operations
type Service struct {
	db *DB
}

// NewService creates a new analytics service
func NewService(db *bun.DB) *Service {
	return &Service{db: NewDB(db)}
}

// SalesSummary aggregates storefront sales over a date range
type SalesSummary struct {
	From              time.Time           `json:"from"`
	To                time.Time           `json:"to"`
	OrderCount        int                 `json:"orderCount"`
	Revenue           decimal.Decimal     `json:"revenue"`
	DiscountTotal     decimal.Decimal     `json:"discountTotal"`
	AverageOrderValue decimal.Decimal     `json:"averageOrderValue"`
	ByStatus          []StatusMetrics     `json:"byStatus"`
	ByPaymentMethod   []MethodMetrics     `json:"byPaymentMethod"`
	DailySales        []DailySalesMetrics `json:"dailySales"`
}

// StatusMetrics counts orders in one status, revenue-bearing or not
type StatusMetrics struct {
	Status     models.OrderStatus `json:"status"`
	OrderCount int                `json:"orderCount"`
	Amount     decimal.Decimal    `json:"amount"`
}

// MethodMetrics splits revenue by payment method
type MethodMetrics struct {
	PaymentMethod models.PaymentMethod `json:"paymentMethod"`
	OrderCount    int                  `json:"orderCount"`
	Revenue       decimal.Decimal      `json:"revenue"`
}

// DailySalesMetrics contains metrics for a single day
type DailySalesMetrics struct {
	Date       string          `json:"date"`
	Revenue    decimal.Decimal `json:"revenue"`
	Discount   decimal.Decimal `json:"discount"`
	OrderCount int             `json:"orderCount"`
}

// CouponUsage tracks redemptions of one coupon code
type CouponUsage struct {
	CouponCode    string          `json:"couponCode"`
	UsageCount    int             `json:"usageCount"`
	TotalDiscount decimal.Decimal `json:"totalDiscount"`
}

// ProductSales ranks a product (per size) by units sold
type ProductSales struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Size      string          `json:"size,omitempty"`
	UnitsSold int             `json:"unitsSold"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// GetSalesSummary returns totals, per-status counts and daily revenue for
// orders created in [from, to).
func (s *Service) GetSalesSummary(ctx context.Context, from, to time.Time) (*SalesSummary, error) {
	from, to = from.UTC(), to.UTC()
	if !to.After(from) {
		return nil, fmt.Errorf("empty range: %s is not before %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	statuses, err := s.db.GetStatusCounts(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	methods, err := s.db.GetSalesByPaymentMethod(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("payment method sales: %w", err)
	}
	daily, err := s.db.GetDailySales(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("daily sales: %w", err)
	}

	result := &SalesSummary{
		From:            from,
		To:              to,
		Revenue:         decimal.Zero,
		DiscountTotal:   decimal.Zero,
		ByStatus:        make([]StatusMetrics, 0, len(statuses)),
		ByPaymentMethod: make([]MethodMetrics, 0, len(methods)),
		DailySales:      make([]DailySalesMetrics, 0, len(daily)),
	}

	for _, st := range statuses {
		result.ByStatus = append(result.ByStatus, StatusMetrics{
			Status:     st.Status,
			OrderCount: st.OrderCount,
			Amount:     st.Amount,
		})
	}

	for _, m := range methods {
		result.OrderCount += m.OrderCount
		result.Revenue = result.Revenue.Add(m.Revenue)
		result.ByPaymentMethod = append(result.ByPaymentMethod, MethodMetrics{
			PaymentMethod: m.PaymentMethod,
			OrderCount:    m.OrderCount,
			Revenue:       m.Revenue,
		})
	}

	for _, ds := range daily {
		result.DiscountTotal = result.DiscountTotal.Add(ds.DailyDiscount)
		result.DailySales = append(result.DailySales, DailySalesMetrics{
			Date:       ds.SalesDate,
			Revenue:    ds.DailyRevenue,
			Discount:   ds.DailyDiscount,
			OrderCount: ds.DailyOrders,
		})
	}

	result.AverageOrderValue = decimal.Zero
	if result.OrderCount > 0 {
		result.AverageOrderValue = result.Revenue.
			Div(decimal.NewFromInt(int64(result.OrderCount))).
			Round(2)
	}

	return result, nil
}

// GetCouponUsage returns per-code redemption totals for revenue-bearing orders
func (s *Service) GetCouponUsage(ctx context.Context, from, to time.Time) ([]CouponUsage, error) {
	rows, err := s.db.GetCouponUsage(ctx, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}

	usage := make([]CouponUsage, 0, len(rows))
	for _, row := range rows {
		usage = append(usage, CouponUsage{
			CouponCode:    row.CouponCode,
			UsageCount:    row.CodeUsageCount,
			TotalDiscount: row.DiscountAmountSum,
		})
	}
	return usage, nil
}

// GetTopProducts ranks products by units sold, then by revenue.
func (s *Service) GetTopProducts(ctx context.Context, from, to time.Time, limit int) ([]ProductSales, error) {
	if limit <= 0 {
		limit = DefaultTopProducts
	}

	orders, err := s.db.GetRevenueOrderItems(ctx, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}

	type key struct{ productID, size string }
	totals := map[key]*ProductSales{}
	for _, items := range orders {
		for _, item := range items {
			k := key{item.ProductID, item.Size}
			ps, ok := totals[k]
			if !ok {
				ps = &ProductSales{ProductID: item.ProductID, Name: item.Name, Size: item.Size, Revenue: decimal.Zero}
				totals[k] = ps
			}
			ps.UnitsSold += item.Quantity
			ps.Revenue = ps.Revenue.Add(item.LineTotal())
		}
	}

	ranked := make([]ProductSales, 0, len(totals))
	for _, ps := range totals {
		ranked = append(ranked, *ps)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].UnitsSold != ranked[j].UnitsSold {
			return ranked[i].UnitsSold > ranked[j].UnitsSold
		}
		if c := ranked[i].Revenue.Cmp(ranked[j].Revenue); c != 0 {
			return c > 0
		}
		if ranked[i].ProductID != ranked[j].ProductID {
			return ranked[i].ProductID < ranked[j].ProductID
		}
		return ranked[i].Size < ranked[j].Size
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}
