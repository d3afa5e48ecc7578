package hotmart

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
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
		Key:         "hotmart",
		DisplayName: "Hotmart",
		Capabilities: domain.Capabilities{
			Webhooks:      true,
			Subscriptions: true,
			Disputes:      true,
			Refunds:       true,
			Installments:  true,
			Commissions:   true,
			Affiliates:    true,
		},
		Credentials: []domain.CredentialField{
			{Key: "hottok", Label: "Webhook token (hottok)", Kind: domain.CredentialPassword, Required: true},
		},
		Verification: domain.VerificationHeaderToken,
	}
}

func (c *Connector) Verify(ctx context.Context, payload []byte, headers http.Header, query url.Values, secrets map[string]string) error {
	secret := strings.TrimSpace(secrets["hottok"])
	if secret == "" {
		return domain.ErrMissingSecret
	}
	got := strings.TrimSpace(headers.Get("X-Hotmart-Hottok"))
	if got == "" {
		return domain.ErrInvalidSignature
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
		return domain.ErrInvalidSignature
	}
	return nil
}

type hotmartEvent struct {
	ID           string      `json:"id"`
	Event        string      `json:"event"`
	CreationDate int64       `json:"creation_date"` // epoch millis
	Data         hotmartData `json:"data"`
}

type hotmartData struct {
	Purchase     *hotmartPurchase     `json:"purchase"`
	Buyer        *hotmartBuyer        `json:"buyer"`
	Product      *hotmartProduct      `json:"product"`
	Subscription *hotmartSubscription `json:"subscription"`
	Commissions  []hotmartCommission  `json:"commissions"`
}

type hotmartPurchase struct {
	Transaction string `json:"transaction"`
	OrderDate   int64  `json:"order_date"`
	Status      string `json:"status"`
	Price       *struct {
		Value         float64 `json:"value"`
		CurrencyValue string  `json:"currency_value"`
	} `json:"price"`
	Payment *struct {
		Type               string `json:"type"`
		InstallmentsNumber int    `json:"installments_number"`
	} `json:"payment"`
}

type hotmartBuyer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type hotmartProduct struct {
	Name string `json:"name"`
}

type hotmartSubscription struct {
	SubscriberCode string `json:"subscriber_code"`
	Status         string `json:"status"`
	Plan           *struct {
		Name string `json:"name"`
	} `json:"plan"`
}

type hotmartCommission struct {
	Value         float64 `json:"value"`
	CurrencyValue string  `json:"currency_value"`
	Source        string  `json:"source"`
}

func (c *Connector) Normalize(ctx context.Context, payload []byte, nctx domain.NormalizeContext) ([]eventdomain.CanonicalEvent, error) {
	var event hotmartEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	switch strings.TrimSpace(event.Event) {
	case "PURCHASE_COMPLETE", "PURCHASE_APPROVED":
		return c.normalizePurchaseComplete(event, nctx)
	case "PURCHASE_REFUNDED":
		return c.normalizePurchaseTerminal(event, nctx, eventdomain.TypePaymentRefunded)
	case "PURCHASE_CANCELED":
		return c.normalizeOrderCanceled(event, nctx)
	case "PURCHASE_PROTEST", "PURCHASE_CHARGEBACK":
		return c.normalizeDispute(event, nctx)
	case "SUBSCRIPTION_CANCELLATION":
		return c.normalizeSubscriptionCanceled(event, nctx)
	default:
		return nil, nil
	}
}

// normalizePurchaseComplete emits both an order-created and a
// payment-confirmed event for a single purchase notification; both share the
// transaction code as external id. Affiliate commissions carried on the same
// notification are emitted as separate commission events.
func (c *Connector) normalizePurchaseComplete(event hotmartEvent, nctx domain.NormalizeContext) ([]eventdomain.CanonicalEvent, error) {
	purchase := event.Data.Purchase
	if purchase == nil || strings.TrimSpace(purchase.Transaction) == "" {
		return nil, domain.ErrInvalidEvent
	}
	money, err := purchaseMoney(purchase)
	if err != nil {
		return nil, err
	}
	occurredAt := occurredAt(purchase.OrderDate, event.CreationDate)

	base := eventdomain.EventPayload{
		OrderID: eventdomain.Str(purchase.Transaction),
	}
	if purchase.Status != "" {
		base.Status = eventdomain.Str(purchase.Status)
	}
	if event.Data.Buyer != nil {
		if event.Data.Buyer.Name != "" {
			base.CustomerName = eventdomain.Str(event.Data.Buyer.Name)
		}
		if event.Data.Buyer.Email != "" {
			base.CustomerEmail = eventdomain.Str(event.Data.Buyer.Email)
		}
	}
	if event.Data.Product != nil && event.Data.Product.Name != "" {
		base.ProductName = eventdomain.Str(event.Data.Product.Name)
	}

	order := eventdomain.CanonicalEvent{
		Provider:        "hotmart",
		OrgID:           nctx.OrgID,
		ProjectID:       nctx.ProjectID,
		ExternalEventID: purchase.Transaction,
		OccurredAt:      occurredAt,
		Module:          eventdomain.ModuleSales,
		Type:            eventdomain.TypeOrderCreated,
		Payload:         base,
		Money:           money,
		ExternalRefs:    []eventdomain.ExternalRef{{Kind: "transaction", Value: purchase.Transaction}},
	}
	if purchase.Payment != nil && purchase.Payment.InstallmentsNumber > 0 {
		order.Payload.InstallmentCount = eventdomain.Int(purchase.Payment.InstallmentsNumber)
	}

	paymentPayload := eventdomain.EventPayload{
		PaymentID: eventdomain.Str(purchase.Transaction),
		OrderID:   eventdomain.Str(purchase.Transaction),
	}
	if purchase.Payment != nil && purchase.Payment.Type != "" {
		paymentPayload.PaymentMethod = eventdomain.Str(purchase.Payment.Type)
	}
	payment := eventdomain.CanonicalEvent{
		Provider:        "hotmart",
		OrgID:           nctx.OrgID,
		ProjectID:       nctx.ProjectID,
		ExternalEventID: purchase.Transaction,
		OccurredAt:      occurredAt,
		Module:          eventdomain.ModuleSales,
		Type:            eventdomain.TypePaymentConfirmed,
		Payload:         paymentPayload,
		Money:           money,
		ExternalRefs:    []eventdomain.ExternalRef{{Kind: "transaction", Value: purchase.Transaction}},
	}

	out := []eventdomain.CanonicalEvent{order, payment}

	for _, commission := range event.Data.Commissions {
		if strings.EqualFold(commission.Source, "PRODUCER") || commission.Value <= 0 {
			continue
		}
		currency := commission.CurrencyValue
		if currency == "" {
			currency = money.Currency
		}
		out = append(out, eventdomain.CanonicalEvent{
			Provider:        "hotmart",
			OrgID:           nctx.OrgID,
			ProjectID:       nctx.ProjectID,
			ExternalEventID: fmt.Sprintf("%s:commission:%s", purchase.Transaction, strings.ToLower(commission.Source)),
			OccurredAt:      occurredAt,
			Module:          eventdomain.ModuleCommissions,
			Type:            eventdomain.TypeCommissionEarned,
			Payload: eventdomain.EventPayload{
				OrderID: eventdomain.Str(purchase.Transaction),
				Reason:  eventdomain.Str(commission.Source),
			},
			Money: &eventdomain.Money{
				AmountCents: eventdomain.Cents(commission.Value),
				Currency:    strings.ToUpper(currency),
			},
			ExternalRefs: []eventdomain.ExternalRef{{Kind: "transaction", Value: purchase.Transaction}},
		})
	}
	return out, nil
}

func (c *Connector) normalizePurchaseTerminal(event hotmartEvent, nctx domain.NormalizeContext, canonicalType string) ([]eventdomain.CanonicalEvent, error) {
	purchase := event.Data.Purchase
	if purchase == nil || strings.TrimSpace(purchase.Transaction) == "" {
		return nil, domain.ErrInvalidEvent
	}
	money, err := purchaseMoney(purchase)
	if err != nil {
		return nil, err
	}
	return []eventdomain.CanonicalEvent{{
		Provider:        "hotmart",
		OrgID:           nctx.OrgID,
		ProjectID:       nctx.ProjectID,
		ExternalEventID: purchase.Transaction,
		OccurredAt:      occurredAt(purchase.OrderDate, event.CreationDate),
		Module:          eventdomain.ModuleSales,
		Type:            canonicalType,
		Payload: eventdomain.EventPayload{
			PaymentID: eventdomain.Str(purchase.Transaction),
			OrderID:   eventdomain.Str(purchase.Transaction),
		},
		Money:        money,
		ExternalRefs: []eventdomain.ExternalRef{{Kind: "transaction", Value: purchase.Transaction}},
	}}, nil
}

func (c *Connector) normalizeOrderCanceled(event hotmartEvent, nctx domain.NormalizeContext) ([]eventdomain.CanonicalEvent, error) {
	purchase := event.Data.Purchase
	if purchase == nil || strings.TrimSpace(purchase.Transaction) == "" {
		return nil, domain.ErrInvalidEvent
	}
	return []eventdomain.CanonicalEvent{{
		Provider:        "hotmart",
		OrgID:           nctx.OrgID,
		ProjectID:       nctx.ProjectID,
		ExternalEventID: purchase.Transaction,
		OccurredAt:      occurredAt(purchase.OrderDate, event.CreationDate),
		Module:          eventdomain.ModuleSales,
		Type:            eventdomain.TypeOrderCanceled,
		Payload: eventdomain.EventPayload{
			OrderID: eventdomain.Str(purchase.Transaction),
		},
		ExternalRefs: []eventdomain.ExternalRef{{Kind: "transaction", Value: purchase.Transaction}},
	}}, nil
}

func (c *Connector) normalizeDispute(event hotmartEvent, nctx domain.NormalizeContext) ([]eventdomain.CanonicalEvent, error) {
	purchase := event.Data.Purchase
	if purchase == nil || strings.TrimSpace(purchase.Transaction) == "" {
		return nil, domain.ErrInvalidEvent
	}
	out := eventdomain.CanonicalEvent{
		Provider:        "hotmart",
		OrgID:           nctx.OrgID,
		ProjectID:       nctx.ProjectID,
		ExternalEventID: purchase.Transaction,
		OccurredAt:      occurredAt(purchase.OrderDate, event.CreationDate),
		Module:          eventdomain.ModuleDisputes,
		Type:            eventdomain.TypeDisputeOpened,
		Payload: eventdomain.EventPayload{
			PaymentID: eventdomain.Str(purchase.Transaction),
			Reason:    eventdomain.Str(strings.ToLower(strings.TrimSpace(event.Event))),
		},
		ExternalRefs: []eventdomain.ExternalRef{{Kind: "transaction", Value: purchase.Transaction}},
	}
	if money, err := purchaseMoney(purchase); err == nil {
		out.Money = money
	}
	return []eventdomain.CanonicalEvent{out}, nil
}

func (c *Connector) normalizeSubscriptionCanceled(event hotmartEvent, nctx domain.NormalizeContext) ([]eventdomain.CanonicalEvent, error) {
	sub := event.Data.Subscription
	if sub == nil || strings.TrimSpace(sub.SubscriberCode) == "" {
		return nil, domain.ErrInvalidEvent
	}
	out := eventdomain.CanonicalEvent{
		Provider:        "hotmart",
		OrgID:           nctx.OrgID,
		ProjectID:       nctx.ProjectID,
		ExternalEventID: fmt.Sprintf("%s:cancellation", sub.SubscriberCode),
		OccurredAt:      occurredAt(0, event.CreationDate),
		Module:          eventdomain.ModuleSubscriptions,
		Type:            eventdomain.TypeSubscriptionCanceled,
		Payload: eventdomain.EventPayload{
			SubscriptionID: eventdomain.Str(sub.SubscriberCode),
		},
		ExternalRefs: []eventdomain.ExternalRef{{Kind: "subscriber_code", Value: sub.SubscriberCode}},
	}
	if sub.Status != "" {
		out.Payload.Status = eventdomain.Str(sub.Status)
	}
	if sub.Plan != nil && sub.Plan.Name != "" {
		out.Payload.PlanName = eventdomain.Str(sub.Plan.Name)
	}
	return []eventdomain.CanonicalEvent{out}, nil
}

func purchaseMoney(purchase *hotmartPurchase) (*eventdomain.Money, error) {
	if purchase.Price == nil || purchase.Price.Value <= 0 {
		return nil, domain.ErrMissingAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(purchase.Price.CurrencyValue))
	if currency == "" {
		currency = "BRL"
	}
	return &eventdomain.Money{
		AmountCents: eventdomain.Cents(purchase.Price.Value),
		Currency:    currency,
	}, nil
}

func occurredAt(primaryMillis, fallbackMillis int64) time.Time {
	value := primaryMillis
	if value == 0 {
		value = fallbackMillis
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(value).UTC()
}
