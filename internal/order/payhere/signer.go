// Package payhere builds signed checkout requests and verifies server
// notifications for the PayHere payment gateway.
package payhere

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"ms-storefront/internal/models"
	"ms-storefront/internal/order/ordererr"
)

const (
	LiveCheckoutURL    = "https://www.payhere.lk/pay/checkout"
	SandboxCheckoutURL = "https://sandbox.payhere.lk/pay/checkout"
)

type Config struct {
	MerchantID     string
	MerchantSecret string
	Currency       string
	ReturnURL      string
	CancelURL      string
	NotifyURL      string
	Sandbox        bool
}

type Signer struct {
	cfg        Config
	secretHash string
}

func NewSigner(cfg Config) *Signer {
	if cfg.Currency == "" {
		cfg.Currency = "LKR"
	}
	return &Signer{cfg: cfg, secretHash: md5Upper(cfg.MerchantSecret)}
}

func (s *Signer) Currency() string { return s.cfg.Currency }

// FormatAmount renders amounts the way the gateway hashes them.
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// CheckoutHash is UPPER(MD5(merchant_id + order_id + amount + currency + UPPER(MD5(secret)))).
func (s *Signer) CheckoutHash(orderID string, amount decimal.Decimal, currency string) string {
	return md5Upper(s.cfg.MerchantID + orderID + FormatAmount(amount) + currency + s.secretHash)
}

// Checkout builds the form the client posts to the gateway for p.
func (s *Signer) Checkout(p *models.PendingOrder) *models.PayHereCheckout {
	action := LiveCheckoutURL
	if s.cfg.Sandbox {
		action = SandboxCheckoutURL
	}
	currency := p.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}
	addr := p.ShippingAddress
	street := strings.TrimSpace(addr.Line1 + " " + addr.Line2)

	return &models.PayHereCheckout{
		ActionURL:  action,
		MerchantID: s.cfg.MerchantID,
		ReturnURL:  s.cfg.ReturnURL,
		CancelURL:  s.cfg.CancelURL,
		NotifyURL:  s.cfg.NotifyURL,
		OrderID:    p.OrderNumber,
		Items:      itemsLabel(p.Items),
		Currency:   currency,
		Amount:     FormatAmount(p.TotalAmount),
		FirstName:  addr.FirstName,
		LastName:   addr.LastName,
		Email:      p.Email,
		Phone:      addr.Phone,
		Address:    street,
		City:       addr.City,
		Country:    addr.Country,
		Hash:       s.CheckoutHash(p.OrderNumber, p.TotalAmount, currency),
	}
}

// NotificationSignature is UPPER(MD5(merchant_id + order_id + payhere_amount +
// payhere_currency + status_code + UPPER(MD5(secret)))).
func (s *Signer) NotificationSignature(n models.PayHereNotification) string {
	return md5Upper(n.MerchantID + n.OrderID + n.Amount + n.Currency + n.StatusCode + s.secretHash)
}

// Verify checks the merchant id and the md5sig in constant time.
func (s *Signer) Verify(n models.PayHereNotification) error {
	if n.MerchantID != s.cfg.MerchantID {
		return fmt.Errorf("merchant id %q: %w", n.MerchantID, ordererr.ErrInvalidSignature)
	}
	expected := s.NotificationSignature(n)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToUpper(n.MD5Sig))) != 1 {
		return fmt.Errorf("order %s: %w", n.OrderID, ordererr.ErrInvalidSignature)
	}
	return nil
}

// ParseNotification reads the gateway's form fields.
func ParseNotification(form url.Values) models.PayHereNotification {
	return models.PayHereNotification{
		MerchantID:    form.Get("merchant_id"),
		OrderID:       form.Get("order_id"),
		PaymentID:     form.Get("payment_id"),
		Amount:        form.Get("payhere_amount"),
		Currency:      form.Get("payhere_currency"),
		StatusCode:    form.Get("status_code"),
		StatusMessage: form.Get("status_message"),
		Method:        form.Get("method"),
		MD5Sig:        form.Get("md5sig"),
	}
}

func itemsLabel(items []models.OrderItem) string {
	if len(items) == 0 {
		return ""
	}
	if len(items) == 1 {
		return items[0].Name
	}
	return fmt.Sprintf("%s and %d more", items[0].Name, len(items)-1)
}

func md5Upper(s string) string {
	sum := md5.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
