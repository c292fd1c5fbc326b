package notification

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"text/template"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"ms-storefront/internal/models"
)

const (
	confirmationTemplate = `# Thank you for your order, {{ text .Order.ShippingAddress.FirstName }}!

Your order **#{{ .Order.OrderNumber }}** has been received and is **{{ .Order.Status }}**.

| Item | Qty | Price |
| --- | ---: | ---: |
{{- range .Order.Items }}
| {{ text .Name }}{{ if .Size }} ({{ text .Size }}){{ end }} | {{ .Quantity }} | {{ money .LineTotal }} |
{{- end }}

Subtotal: {{ money .Order.Subtotal }}
{{- if .Order.CouponCode }}
Discount ({{ text .Order.CouponCode }}): -{{ money .Order.DiscountAmount }}
{{- end }}

**Total: {{ money .Order.TotalAmount }}** ({{ .Order.PaymentMethod }})

Shipping to: {{ text .Address }}

[Track your order]({{ .TrackingURL }})

![Tracking QR code]({{ .QRCode }})
`

	merchantTemplate = `# New order #{{ .Order.OrderNumber }}

- Customer: {{ text .Order.Email }}
- Payment: {{ .Order.PaymentMethod }}
- Status: {{ .Order.Status }}
- Total: {{ money .Order.TotalAmount }}

{{ range .Order.Items -}}
- {{ .Quantity }} x {{ text .Name }}{{ if .Size }} ({{ text .Size }}){{ end }}
{{ end }}`

	statusTemplate = `# Order #{{ .Order.OrderNumber }} update

{{ .Headline }}
{{- if .Order.TrackingNumber }}

Tracking number: **{{ text .Order.TrackingNumber }}**
{{- end }}

[View your order]({{ .TrackingURL }})
`

	anomalyTemplate = `# Payment received but order not created

Order **#{{ .Anomaly.OrderNumber }}** was paid (transaction {{ text .Anomaly.TransactionID }}) but could not be committed.

Reason: {{ text .Anomaly.Reason }}

- Customer: {{ text .Anomaly.Snapshot.Email }}
- Amount: {{ money .Anomaly.Snapshot.TotalAmount }} {{ .Anomaly.Snapshot.Currency }}

Review it in the anomalies queue and refund or fulfil manually.
`
)

var statusHeadlines = map[models.OrderStatus]string{
	models.OrderStatusProcessing: "We are preparing your order.",
	models.OrderStatusShipped:    "Your order is on its way.",
	models.OrderStatusDelivered:  "Your order has been delivered.",
	models.OrderStatusCancelled:  "Your order has been cancelled.",
	models.OrderStatusReturned:   "Your return has been received.",
	models.OrderStatusRefunded:   "Your payment has been refunded.",
}

// NotifiableStatus reports whether customers are emailed on entering s.
func NotifiableStatus(s models.OrderStatus) bool {
	_, ok := statusHeadlines[s]
	return ok
}

type RendererConfig struct {
	StoreName     string
	BaseURL       string
	MerchantEmail string
	OperatorEmail string
}

type Renderer struct {
	cfg       RendererConfig
	markdown  goldmark.Markdown
	policy    *bluemonday.Policy
	strict    *bluemonday.Policy
	templates *template.Template
	now       func() time.Time
	newID     func() string
}

func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	policy := bluemonday.UGCPolicy()
	policy.AllowDataURIImages()

	r := &Renderer{
		cfg:      cfg,
		markdown: goldmark.New(goldmark.WithExtensions(extension.Table)),
		policy:   policy,
		strict:   bluemonday.StrictPolicy(),
		now:      time.Now,
		newID:    func() string { return ulid.Make().String() },
	}
	if r.cfg.StoreName == "" {
		r.cfg.StoreName = "Storefront"
	}

	funcs := template.FuncMap{
		"text":  r.plain,
		"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	}
	tmpl := template.New("notification").Funcs(funcs)
	for name, body := range map[string]string{
		"confirmation": confirmationTemplate,
		"merchant":     merchantTemplate,
		"status":       statusTemplate,
		"anomaly":      anomalyTemplate,
	} {
		if _, err := tmpl.New(name).Parse(body); err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
	}
	r.templates = tmpl
	return r, nil
}

// TrackingURL is the guest tracking link for o.
func (r *Renderer) TrackingURL(o *models.Order) string {
	base := strings.TrimRight(r.cfg.BaseURL, "/")
	return fmt.Sprintf("%s/orders/track/%s?token=%s", base, url.PathEscape(o.OrderNumber), url.QueryEscape(o.GuestToken))
}

func (r *Renderer) OrderConfirmation(o *models.Order) (Message, error) {
	trackingURL := r.TrackingURL(o)
	png, err := qrcode.Encode(trackingURL, qrcode.Medium, 256)
	if err != nil {
		return Message{}, fmt.Errorf("encode tracking qr for %s: %w", o.OrderNumber, err)
	}
	data := map[string]interface{}{
		"Order":       o,
		"Address":     formatAddress(o.ShippingAddress),
		"TrackingURL": trackingURL,
		"QRCode":      "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}
	subject := fmt.Sprintf("%s order #%s confirmed", r.cfg.StoreName, o.OrderNumber)
	return r.build(CategoryOrderConfirmation, o.Email, subject, o.OrderNumber, "confirmation", data)
}

func (r *Renderer) MerchantNewOrder(o *models.Order) (Message, error) {
	subject := fmt.Sprintf("New %s order #%s", o.PaymentMethod, o.OrderNumber)
	return r.build(CategoryMerchantNewOrder, r.cfg.MerchantEmail, subject, o.OrderNumber, "merchant", map[string]interface{}{"Order": o})
}

func (r *Renderer) StatusUpdate(o *models.Order) (Message, error) {
	headline, ok := statusHeadlines[o.Status]
	if !ok {
		return Message{}, fmt.Errorf("no customer notification for status %s", o.Status)
	}
	data := map[string]interface{}{
		"Order":       o,
		"Headline":    headline,
		"TrackingURL": r.TrackingURL(o),
	}
	subject := fmt.Sprintf("Order #%s is %s", o.OrderNumber, strings.ToLower(string(o.Status)))
	return r.build(CategoryStatusUpdate, o.Email, subject, o.OrderNumber, "status", data)
}

func (r *Renderer) ReconciliationAlert(a *models.ReconciliationAnomaly) (Message, error) {
	subject := fmt.Sprintf("[ACTION REQUIRED] paid order #%s needs review", a.OrderNumber)
	return r.build(CategoryOperatorAlert, r.cfg.OperatorEmail, subject, a.OrderNumber, "anomaly", map[string]interface{}{"Anomaly": a})
}

func (r *Renderer) build(category Category, recipient, subject, orderNumber, name string, data interface{}) (Message, error) {
	if recipient == "" {
		return Message{}, fmt.Errorf("%s for %s: no recipient", category, orderNumber)
	}

	var md bytes.Buffer
	if err := r.templates.ExecuteTemplate(&md, name, data); err != nil {
		return Message{}, fmt.Errorf("execute %s template: %w", name, err)
	}
	var html bytes.Buffer
	if err := r.markdown.Convert(md.Bytes(), &html); err != nil {
		return Message{}, fmt.Errorf("render %s markdown: %w", name, err)
	}

	return Message{
		ID:          r.newID(),
		Category:    category,
		Recipient:   recipient,
		Subject:     subject,
		Body:        r.policy.Sanitize(html.String()),
		OrderNumber: orderNumber,
		CreatedAt:   r.now().UTC(),
	}, nil
}

// plain strips markup from customer-supplied text and neutralises the
// markdown characters that would change the layout.
func (r *Renderer) plain(s string) string {
	s = r.strict.Sanitize(s)
	return markdownEscaper.Replace(s)
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`, "|", `\|`, "#", `\#`, "\n", " ",
)

func formatAddress(a models.Address) string {
	parts := []string{}
	for _, p := range []string{strings.TrimSpace(a.FirstName + " " + a.LastName), a.Line1, a.Line2, a.City, a.PostalCode, a.Country} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
