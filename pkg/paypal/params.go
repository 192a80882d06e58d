package paypal

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderCreateParams describes a new payment intent. AmountLocal is in local
// currency minor-free units (whole rupiah); conversion to USD happens inside
// the client.
type OrderCreateParams struct {
	ReferenceID string
	CustomID    string
	AmountLocal int64
}

// Intent is the client-facing view of a created gateway order.
type Intent struct {
	ID         string
	Status     string
	ApproveURL string
}

// Capture is the result of finalizing an approved intent.
type Capture struct {
	CaptureID string
	Status    string
}

// Converter turns local currency amounts into USD strings at a fixed rate.
// The gateway only accepts USD, so every outbound amount passes through here.
type Converter struct {
	localPerUSD decimal.Decimal
}

// NewConverter parses the configured rate. The rate is how many local units
// buy one US dollar and must be positive.
func NewConverter(rate string) (*Converter, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(rate))
	if err != nil {
		return nil, fmt.Errorf("parse local-per-usd rate %q: %w", rate, err)
	}
	if !parsed.IsPositive() {
		return nil, fmt.Errorf("local-per-usd rate must be positive, got %s", parsed)
	}
	return &Converter{localPerUSD: parsed}, nil
}

// LocalToUSD converts a local amount to a two-decimal USD string, rounding
// half up. 16000 local at rate 16000 yields "1.00".
func (c *Converter) LocalToUSD(amountLocal int64) string {
	usd := decimal.NewFromInt(amountLocal).DivRound(c.localPerUSD, 2)
	return usd.StringFixed(2)
}

// Wire types for the Orders v2 API. Only the fields this client reads or
// writes are declared.

type orderCreateRequest struct {
	Intent        string         `json:"intent"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
	PaymentSource paymentSource  `json:"payment_source"`
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id,omitempty"`
	CustomID    string `json:"custom_id,omitempty"`
	Amount      amount `json:"amount"`
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paymentSource struct {
	PayPal paypalSource `json:"paypal"`
}

type paypalSource struct {
	ExperienceContext experienceContext `json:"experience_context"`
}

type experienceContext struct {
	ReturnURL string `json:"return_url,omitempty"`
	CancelURL string `json:"cancel_url,omitempty"`
}

type orderResponse struct {
	ID            string              `json:"id"`
	Status        string              `json:"status"`
	Links         []link              `json:"links"`
	PurchaseUnits []purchaseUnitReply `json:"purchase_units"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type purchaseUnitReply struct {
	CustomID string    `json:"custom_id"`
	Payments *payments `json:"payments"`
}

type payments struct {
	Captures []captureReply `json:"captures"`
}

type captureReply struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type apiErrorBody struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (r orderResponse) link(rel string) string {
	for _, l := range r.Links {
		if l.Rel == rel {
			return l.Href
		}
	}
	return ""
}

func (r orderResponse) captureID() string {
	for _, unit := range r.PurchaseUnits {
		if unit.Payments == nil {
			continue
		}
		for _, c := range unit.Payments.Captures {
			if c.ID != "" {
				return c.ID
			}
		}
	}
	return ""
}
