package asaas

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
		Key:         "asaas",
		DisplayName: "Asaas",
		Capabilities: domain.Capabilities{
			Webhooks:      true,
			Backfill:      true,
			Subscriptions: true,
			Payouts:       true,
			Disputes:      true,
			Refunds:       true,
			Installments:  true,
		},
		Credentials: []domain.CredentialField{
			{Key: "api_key", Label: "API key", Kind: domain.CredentialPassword, Required: false},
			{Key: "webhook_token", Label: "Webhook access token", Kind: domain.CredentialPassword, Required: true},
		},
		Verification: domain.VerificationHeaderToken,
	}
}

func (c *Connector) Verify(ctx context.Context, payload []byte, headers http.Header, query url.Values, secrets map[string]string) error {
	secret := strings.TrimSpace(secrets["webhook_token"])
	if secret == "" {
		return domain.ErrMissingSecret
	}
	got := strings.TrimSpace(headers.Get("asaas-access-token"))
	if got == "" {
		return domain.ErrInvalidSignature
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
		return domain.ErrInvalidSignature
	}
	return nil
}

type asaasEvent struct {
	ID      string        `json:"id"`
	Event   string        `json:"event"`
	Payment *asaasPayment `json:"payment"`
}

type asaasPayment struct {
	ID                string  `json:"id"`
	Customer          string  `json:"customer"`
	Value             float64 `json:"value"`
	BillingType       string  `json:"billingType"`
	Status            string  `json:"status"`
	Description       string  `json:"description"`
	ExternalReference string  `json:"externalReference"`
	Subscription      string  `json:"subscription"`
	DueDate           string  `json:"dueDate"`     // 2006-01-02
	PaymentDate       string  `json:"paymentDate"` // 2006-01-02
	DateCreated       string  `json:"dateCreated"` // 2006-01-02
	InstallmentNumber int     `json:"installmentNumber"`
}

var eventTypes = map[string]struct {
	module string
	ctype  string
}{
	"PAYMENT_CREATED":              {eventdomain.ModuleSales, eventdomain.TypeOrderCreated},
	"PAYMENT_CONFIRMED":            {eventdomain.ModuleSales, eventdomain.TypePaymentConfirmed},
	"PAYMENT_RECEIVED":             {eventdomain.ModuleSales, eventdomain.TypePaymentConfirmed},
	"PAYMENT_REFUNDED":             {eventdomain.ModuleSales, eventdomain.TypePaymentRefunded},
	"PAYMENT_OVERDUE":              {eventdomain.ModuleSales, eventdomain.TypePaymentOverdue},
	"PAYMENT_CHARGEBACK_REQUESTED": {eventdomain.ModuleDisputes, eventdomain.TypeDisputeOpened},
}

func (c *Connector) Normalize(ctx context.Context, payload []byte, nctx domain.NormalizeContext) ([]eventdomain.CanonicalEvent, error) {
	var event asaasEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	mapping, ok := eventTypes[strings.TrimSpace(event.Event)]
	if !ok {
		return nil, nil
	}
	payment := event.Payment
	if payment == nil || strings.TrimSpace(payment.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}
	if payment.Value <= 0 {
		return nil, domain.ErrMissingAmount
	}

	// Asaas webhooks carry their own event id; older deliveries do not, so a
	// deterministic synthetic id keeps re-deliveries idempotent.
	externalID := strings.TrimSpace(event.ID)
	if externalID == "" {
		externalID = fmt.Sprintf("%s:%s", strings.ToLower(event.Event), payment.ID)
	}

	out := eventdomain.CanonicalEvent{
		Provider:        "asaas",
		OrgID:           nctx.OrgID,
		ProjectID:       nctx.ProjectID,
		ExternalEventID: externalID,
		OccurredAt:      occurredAt(payment),
		Module:          mapping.module,
		Type:            mapping.ctype,
		Payload: eventdomain.EventPayload{
			PaymentID: eventdomain.Str(payment.ID),
		},
		Money: &eventdomain.Money{
			AmountCents: eventdomain.Cents(payment.Value),
			Currency:    "BRL",
		},
		ExternalRefs: []eventdomain.ExternalRef{{Kind: "payment", Value: payment.ID}},
	}
	if mapping.ctype == eventdomain.TypeOrderCreated {
		out.Payload.OrderID = eventdomain.Str(payment.ID)
	}
	if payment.Status != "" {
		out.Payload.Status = eventdomain.Str(payment.Status)
	}
	if payment.BillingType != "" {
		out.Payload.PaymentMethod = eventdomain.Str(payment.BillingType)
	}
	if payment.Description != "" {
		out.Payload.ProductName = eventdomain.Str(payment.Description)
	}
	if payment.Subscription != "" {
		out.Payload.SubscriptionID = eventdomain.Str(payment.Subscription)
		out.ExternalRefs = append(out.ExternalRefs, eventdomain.ExternalRef{Kind: "subscription", Value: payment.Subscription})
	}
	if payment.InstallmentNumber > 0 {
		out.Payload.InstallmentCount = eventdomain.Int(payment.InstallmentNumber)
	}
	if payment.ExternalReference != "" {
		out.ExternalRefs = append(out.ExternalRefs, eventdomain.ExternalRef{Kind: "external_reference", Value: payment.ExternalReference})
	}
	return []eventdomain.CanonicalEvent{out}, nil
}

func occurredAt(payment *asaasPayment) time.Time {
	for _, candidate := range []string{payment.PaymentDate, payment.DueDate, payment.DateCreated} {
		if candidate == "" {
			continue
		}
		if t, err := time.Parse("2006-01-02", candidate); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}
