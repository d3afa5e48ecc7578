package kiwify

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ledgerforgelabs/ledgerforge/internal/connector/domain"
	eventdomain "github.com/ledgerforgelabs/ledgerforge/internal/event/domain"
)

type Connector struct{}

func New() *Connector {
	return &Connector{}
}

func (c *Connector) Descriptor() domain.Descriptor {
	return domain.Descriptor{
		Key:         "kiwify",
		DisplayName: "Kiwify",
		Capabilities: domain.Capabilities{
			Webhooks:      true,
			Subscriptions: true,
			Disputes:      true,
			Refunds:       true,
			Installments:  true,
			Affiliates:    true,
		},
		Credentials: []domain.CredentialField{
			{Key: "webhook_secret", Label: "Webhook signing secret", Kind: domain.CredentialPassword, Required: true},
		},
		Verification: domain.VerificationQueryToken,
	}
}

// Verify checks the HMAC-SHA1 signature Kiwify places in the `signature`
// query parameter, computed over the raw body.
func (c *Connector) Verify(ctx context.Context, payload []byte, headers http.Header, query url.Values, secrets map[string]string) error {
	secret := strings.TrimSpace(secrets["webhook_secret"])
	if secret == "" {
		return domain.ErrMissingSecret
	}
	signature := strings.TrimSpace(query.Get("signature"))
	if signature == "" {
		return domain.ErrInvalidSignature
	}

	mac := hmac.New(sha1.New, []byte(secret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

type kiwifyEvent struct {
	OrderID          string `json:"order_id"`
	OrderRef         string `json:"order_ref"`
	OrderStatus      string `json:"order_status"`
	WebhookEventType string `json:"webhook_event_type"`
	PaymentMethod    string `json:"payment_method"`
	Installments     int    `json:"installments"`
	CreatedAt        string `json:"created_at"` // 2006-01-02 15:04
	Product          *struct {
		ProductName string `json:"product_name"`
	} `json:"Product"`
	Customer *struct {
		FullName string `json:"full_name"`
		Email    string `json:"email"`
	} `json:"Customer"`
	Commissions *struct {
		ChargeAmount   int64  `json:"charge_amount"` // already minor units
		CurrencyCode   string `json:"currency"`
		ProductBasePrice int64 `json:"product_base_price"`
	} `json:"Commissions"`
	Subscription *struct {
		ID   string `json:"id"`
		Plan *struct {
			Name string `json:"name"`
		} `json:"plan"`
	} `json:"Subscription"`
}

func (c *Connector) Normalize(ctx context.Context, payload []byte, nctx domain.NormalizeContext) ([]eventdomain.CanonicalEvent, error) {
	var event kiwifyEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	switch strings.TrimSpace(event.WebhookEventType) {
	case "order_approved":
		return c.normalizeOrderApproved(event, nctx)
	case "order_refunded":
		return c.normalizeSimple(event, nctx, eventdomain.ModuleSales, eventdomain.TypePaymentRefunded, true)
	case "chargeback":
		return c.normalizeSimple(event, nctx, eventdomain.ModuleDisputes, eventdomain.TypeDisputeOpened, false)
	case "subscription_canceled":
		return c.normalizeSubscription(event, nctx, eventdomain.TypeSubscriptionCanceled)
	case "subscription_renewed":
		return c.normalizeSubscription(event, nctx, eventdomain.TypeSubscriptionCharged)
	default:
		return nil, nil
	}
}

// normalizeOrderApproved fans a single approval out into order-created and
// payment-confirmed, mirroring what the provider reports as one event.
func (c *Connector) normalizeOrderApproved(event kiwifyEvent, nctx domain.NormalizeContext) ([]eventdomain.CanonicalEvent, error) {
	if strings.TrimSpace(event.OrderID) == "" {
		return nil, domain.ErrInvalidEvent
	}
	money, err := eventMoney(event)
	if err != nil {
		return nil, err
	}
	occurred := parseCreatedAt(event.CreatedAt)

	base := eventdomain.EventPayload{
		OrderID: eventdomain.Str(event.OrderID),
	}
	if event.OrderStatus != "" {
		base.Status = eventdomain.Str(event.OrderStatus)
	}
	if event.Customer != nil {
		if event.Customer.FullName != "" {
			base.CustomerName = eventdomain.Str(event.Customer.FullName)
		}
		if event.Customer.Email != "" {
			base.CustomerEmail = eventdomain.Str(event.Customer.Email)
		}
	}
	if event.Product != nil && event.Product.ProductName != "" {
		base.ProductName = eventdomain.Str(event.Product.ProductName)
	}
	if event.Installments > 0 {
		base.InstallmentCount = eventdomain.Int(event.Installments)
	}

	order := eventdomain.CanonicalEvent{
		Provider:        "kiwify",
		OrgID:           nctx.OrgID,
		ProjectID:       nctx.ProjectID,
		ExternalEventID: event.OrderID,
		OccurredAt:      occurred,
		Module:          eventdomain.ModuleSales,
		Type:            eventdomain.TypeOrderCreated,
		Payload:         base,
		Money:           money,
		ExternalRefs:    externalRefs(event),
	}

	paymentPayload := eventdomain.EventPayload{
		PaymentID: eventdomain.Str(event.OrderID),
		OrderID:   eventdomain.Str(event.OrderID),
	}
	if event.PaymentMethod != "" {
		paymentPayload.PaymentMethod = eventdomain.Str(event.PaymentMethod)
	}
	payment := eventdomain.CanonicalEvent{
		Provider:        "kiwify",
		OrgID:           nctx.OrgID,
		ProjectID:       nctx.ProjectID,
		ExternalEventID: event.OrderID,
		OccurredAt:      occurred,
		Module:          eventdomain.ModuleSales,
		Type:            eventdomain.TypePaymentConfirmed,
		Payload:         paymentPayload,
		Money:           money,
		ExternalRefs:    externalRefs(event),
	}
	return []eventdomain.CanonicalEvent{order, payment}, nil
}

func (c *Connector) normalizeSimple(event kiwifyEvent, nctx domain.NormalizeContext, module, canonicalType string, requireAmount bool) ([]eventdomain.CanonicalEvent, error) {
	if strings.TrimSpace(event.OrderID) == "" {
		return nil, domain.ErrInvalidEvent
	}
	out := eventdomain.CanonicalEvent{
		Provider:        "kiwify",
		OrgID:           nctx.OrgID,
		ProjectID:       nctx.ProjectID,
		ExternalEventID: event.OrderID + ":" + event.WebhookEventType,
		OccurredAt:      parseCreatedAt(event.CreatedAt),
		Module:          module,
		Type:            canonicalType,
		Payload: eventdomain.EventPayload{
			PaymentID: eventdomain.Str(event.OrderID),
			OrderID:   eventdomain.Str(event.OrderID),
		},
		ExternalRefs: externalRefs(event),
	}
	money, err := eventMoney(event)
	if err != nil {
		if requireAmount {
			return nil, err
		}
	} else {
		out.Money = money
	}
	return []eventdomain.CanonicalEvent{out}, nil
}

func (c *Connector) normalizeSubscription(event kiwifyEvent, nctx domain.NormalizeContext, canonicalType string) ([]eventdomain.CanonicalEvent, error) {
	if event.Subscription == nil || strings.TrimSpace(event.Subscription.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}
	out := eventdomain.CanonicalEvent{
		Provider:        "kiwify",
		OrgID:           nctx.OrgID,
		ProjectID:       nctx.ProjectID,
		ExternalEventID: event.Subscription.ID + ":" + event.WebhookEventType,
		OccurredAt:      parseCreatedAt(event.CreatedAt),
		Module:          eventdomain.ModuleSubscriptions,
		Type:            canonicalType,
		Payload: eventdomain.EventPayload{
			SubscriptionID: eventdomain.Str(event.Subscription.ID),
		},
		ExternalRefs: []eventdomain.ExternalRef{{Kind: "subscription", Value: event.Subscription.ID}},
	}
	if event.Subscription.Plan != nil && event.Subscription.Plan.Name != "" {
		out.Payload.PlanName = eventdomain.Str(event.Subscription.Plan.Name)
	}
	if canonicalType == eventdomain.TypeSubscriptionCharged {
		money, err := eventMoney(event)
		if err != nil {
			return nil, err
		}
		out.Money = money
		if event.OrderID != "" {
			out.Payload.PaymentID = eventdomain.Str(event.OrderID)
		}
	}
	return []eventdomain.CanonicalEvent{out}, nil
}

// eventMoney reads the charge amount, which Kiwify already reports in minor
// units.
func eventMoney(event kiwifyEvent) (*eventdomain.Money, error) {
	if event.Commissions == nil || event.Commissions.ChargeAmount <= 0 {
		return nil, domain.ErrMissingAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(event.Commissions.CurrencyCode))
	if currency == "" {
		currency = "BRL"
	}
	return &eventdomain.Money{
		AmountCents: event.Commissions.ChargeAmount,
		Currency:    currency,
	}, nil
}

func externalRefs(event kiwifyEvent) []eventdomain.ExternalRef {
	refs := []eventdomain.ExternalRef{{Kind: "order", Value: event.OrderID}}
	if event.OrderRef != "" {
		refs = append(refs, eventdomain.ExternalRef{Kind: "order_ref", Value: event.OrderRef})
	}
	return refs
}

func parseCreatedAt(value string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}
