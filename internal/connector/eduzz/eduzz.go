package eduzz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ledgerforgelabs/ledgerforge/internal/connector/domain"
	eventdomain "github.com/ledgerforgelabs/ledgerforge/internal/event/domain"
)

// Connector for Eduzz, which offers no verifiable webhook scheme. The
// descriptor declares VerificationNone so the ingest layer flags every
// delivery as low trust.
type Connector struct{}

func New() *Connector {
	return &Connector{}
}

func (c *Connector) Descriptor() domain.Descriptor {
	return domain.Descriptor{
		Key:         "eduzz",
		DisplayName: "Eduzz",
		Capabilities: domain.Capabilities{
			Webhooks:      true,
			Subscriptions: true,
			Refunds:       true,
			Installments:  true,
			Commissions:   true,
		},
		Credentials:  []domain.CredentialField{},
		Verification: domain.VerificationNone,
	}
}

func (c *Connector) Verify(ctx context.Context, payload []byte, headers http.Header, query url.Values, secrets map[string]string) error {
	return nil
}

type eduzzEvent struct {
	EventName string `json:"event_name"`
	Data      struct {
		InvoiceID  int64   `json:"invoice_id"`
		Value      float64 `json:"value"`
		PaidAt     string  `json:"paid_at"` // 2006-01-02 15:04:05
		ContractID int64   `json:"contract_id"`
		Customer   *struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"customer"`
		Product *struct {
			Name string `json:"name"`
		} `json:"product"`
	} `json:"data"`
}

func (c *Connector) Normalize(ctx context.Context, payload []byte, nctx domain.NormalizeContext) ([]eventdomain.CanonicalEvent, error) {
	var event eduzzEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	switch strings.TrimSpace(event.EventName) {
	case "invoice_paid":
		return c.normalizeInvoicePaid(event, nctx)
	case "invoice_refunded":
		return c.normalizeInvoiceRefunded(event, nctx)
	case "contract_canceled":
		return c.normalizeContractCanceled(event, nctx)
	default:
		return nil, nil
	}
}

func (c *Connector) normalizeInvoicePaid(event eduzzEvent, nctx domain.NormalizeContext) ([]eventdomain.CanonicalEvent, error) {
	if event.Data.InvoiceID == 0 {
		return nil, domain.ErrInvalidEvent
	}
	if event.Data.Value <= 0 {
		return nil, domain.ErrMissingAmount
	}
	invoiceID := fmt.Sprintf("%d", event.Data.InvoiceID)
	money := &eventdomain.Money{
		AmountCents: eventdomain.Cents(event.Data.Value),
		Currency:    "BRL",
	}
	occurred := parsePaidAt(event.Data.PaidAt)

	base := eventdomain.EventPayload{OrderID: eventdomain.Str(invoiceID)}
	if event.Data.Customer != nil {
		if event.Data.Customer.Name != "" {
			base.CustomerName = eventdomain.Str(event.Data.Customer.Name)
		}
		if event.Data.Customer.Email != "" {
			base.CustomerEmail = eventdomain.Str(event.Data.Customer.Email)
		}
	}
	if event.Data.Product != nil && event.Data.Product.Name != "" {
		base.ProductName = eventdomain.Str(event.Data.Product.Name)
	}

	order := eventdomain.CanonicalEvent{
		Provider:        "eduzz",
		OrgID:           nctx.OrgID,
		ProjectID:       nctx.ProjectID,
		ExternalEventID: invoiceID,
		OccurredAt:      occurred,
		Module:          eventdomain.ModuleSales,
		Type:            eventdomain.TypeOrderCreated,
		Payload:         base,
		Money:           money,
		ExternalRefs:    []eventdomain.ExternalRef{{Kind: "invoice", Value: invoiceID}},
	}
	payment := eventdomain.CanonicalEvent{
		Provider:        "eduzz",
		OrgID:           nctx.OrgID,
		ProjectID:       nctx.ProjectID,
		ExternalEventID: invoiceID,
		OccurredAt:      occurred,
		Module:          eventdomain.ModuleSales,
		Type:            eventdomain.TypePaymentConfirmed,
		Payload: eventdomain.EventPayload{
			PaymentID: eventdomain.Str(invoiceID),
			OrderID:   eventdomain.Str(invoiceID),
		},
		Money:        money,
		ExternalRefs: []eventdomain.ExternalRef{{Kind: "invoice", Value: invoiceID}},
	}
	return []eventdomain.CanonicalEvent{order, payment}, nil
}

func (c *Connector) normalizeInvoiceRefunded(event eduzzEvent, nctx domain.NormalizeContext) ([]eventdomain.CanonicalEvent, error) {
	if event.Data.InvoiceID == 0 {
		return nil, domain.ErrInvalidEvent
	}
	if event.Data.Value <= 0 {
		return nil, domain.ErrMissingAmount
	}
	invoiceID := fmt.Sprintf("%d", event.Data.InvoiceID)
	return []eventdomain.CanonicalEvent{{
		Provider:        "eduzz",
		OrgID:           nctx.OrgID,
		ProjectID:       nctx.ProjectID,
		ExternalEventID: invoiceID + ":refund",
		OccurredAt:      parsePaidAt(event.Data.PaidAt),
		Module:          eventdomain.ModuleSales,
		Type:            eventdomain.TypePaymentRefunded,
		Payload: eventdomain.EventPayload{
			PaymentID: eventdomain.Str(invoiceID),
			OrderID:   eventdomain.Str(invoiceID),
		},
		Money: &eventdomain.Money{
			AmountCents: eventdomain.Cents(event.Data.Value),
			Currency:    "BRL",
		},
		ExternalRefs: []eventdomain.ExternalRef{{Kind: "invoice", Value: invoiceID}},
	}}, nil
}

func (c *Connector) normalizeContractCanceled(event eduzzEvent, nctx domain.NormalizeContext) ([]eventdomain.CanonicalEvent, error) {
	if event.Data.ContractID == 0 {
		return nil, domain.ErrInvalidEvent
	}
	contractID := fmt.Sprintf("%d", event.Data.ContractID)
	return []eventdomain.CanonicalEvent{{
		Provider:        "eduzz",
		OrgID:           nctx.OrgID,
		ProjectID:       nctx.ProjectID,
		ExternalEventID: contractID + ":canceled",
		OccurredAt:      parsePaidAt(event.Data.PaidAt),
		Module:          eventdomain.ModuleSubscriptions,
		Type:            eventdomain.TypeSubscriptionCanceled,
		Payload: eventdomain.EventPayload{
			SubscriptionID: eventdomain.Str(contractID),
		},
		ExternalRefs: []eventdomain.ExternalRef{{Kind: "contract", Value: contractID}},
	}}, nil
}

func parsePaidAt(value string) time.Time {
	if t, err := time.Parse("2006-01-02 15:04:05", value); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}
