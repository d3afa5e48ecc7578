package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
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
		Key:         "stripe",
		DisplayName: "Stripe",
		Capabilities: domain.Capabilities{
			Webhooks:      true,
			Backfill:      true,
			Subscriptions: true,
			Payouts:       true,
			Disputes:      true,
			Refunds:       true,
			Installments:  true,
			MultiCurrency: true,
		},
		Credentials: []domain.CredentialField{
			{Key: "api_key", Label: "API key", Kind: domain.CredentialPassword, Required: false},
			{Key: "webhook_secret", Label: "Webhook signing secret", Kind: domain.CredentialPassword, Required: true},
		},
		Verification: domain.VerificationHMAC,
	}
}

func (c *Connector) Verify(ctx context.Context, payload []byte, headers http.Header, query url.Values, secrets map[string]string) error {
	secret := strings.TrimSpace(secrets["webhook_secret"])
	if secret == "" {
		return domain.ErrMissingSecret
	}
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return domain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return domain.ErrInvalidSignature
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSession struct {
	ID            string `json:"id"`
	PaymentStatus string `json:"payment_status"`
	AmountTotal   int64  `json:"amount_total"`
	Currency      string `json:"currency"`
	Created       int64  `json:"created"`
	CustomerEmail string `json:"customer_email"`
}

type stripePaymentIntent struct {
	ID             string `json:"id"`
	Amount         int64  `json:"amount"`
	AmountReceived int64  `json:"amount_received"`
	Currency       string `json:"currency"`
	Created        int64  `json:"created"`
	PaymentMethod  string `json:"payment_method_types_display,omitempty"`
}

type stripeCharge struct {
	ID             string `json:"id"`
	Amount         int64  `json:"amount"`
	AmountRefunded int64  `json:"amount_refunded"`
	Currency       string `json:"currency"`
	Created        int64  `json:"created"`
}

type stripeSubscription struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	Created          int64  `json:"created"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
	Plan             struct {
		Nickname string `json:"nickname"`
	} `json:"plan"`
}

func (c *Connector) Normalize(ctx context.Context, payload []byte, nctx domain.NormalizeContext) ([]eventdomain.CanonicalEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "checkout.session.completed":
		return c.normalizeCheckoutSession(event, nctx)
	case "payment_intent.succeeded":
		return c.normalizePaymentIntent(event, nctx)
	case "charge.refunded":
		return c.normalizeRefund(event, nctx)
	case "customer.subscription.created":
		return c.normalizeSubscription(event, nctx, eventdomain.TypeSubscriptionStarted)
	case "customer.subscription.deleted":
		return c.normalizeSubscription(event, nctx, eventdomain.TypeSubscriptionCanceled)
	default:
		// Unknown and irrelevant provider events are common; dropping them
		// must not break ingestion.
		return nil, nil
	}
}

func (c *Connector) normalizeCheckoutSession(event stripeEvent, nctx domain.NormalizeContext) ([]eventdomain.CanonicalEvent, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if session.ID == "" {
		return nil, domain.ErrInvalidEvent
	}
	if session.AmountTotal <= 0 {
		return nil, domain.ErrMissingAmount
	}

	out := eventdomain.CanonicalEvent{
		Provider:        "stripe",
		OrgID:           nctx.OrgID,
		ProjectID:       nctx.ProjectID,
		ExternalEventID: event.ID,
		OccurredAt:      timestamp(session.Created, event.Created),
		Module:          eventdomain.ModuleSales,
		Type:            eventdomain.TypeOrderCreated,
		Payload: eventdomain.EventPayload{
			OrderID: eventdomain.Str(session.ID),
			Status:  eventdomain.Str(session.PaymentStatus),
		},
		Money: &eventdomain.Money{
			AmountCents: session.AmountTotal,
			Currency:    strings.ToUpper(strings.TrimSpace(session.Currency)),
		},
		ExternalRefs: []eventdomain.ExternalRef{{Kind: "checkout_session", Value: session.ID}},
	}
	if session.CustomerEmail != "" {
		out.Payload.CustomerEmail = eventdomain.Str(session.CustomerEmail)
	}
	return []eventdomain.CanonicalEvent{out}, nil
}

func (c *Connector) normalizePaymentIntent(event stripeEvent, nctx domain.NormalizeContext) ([]eventdomain.CanonicalEvent, error) {
	var intent stripePaymentIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if intent.ID == "" {
		return nil, domain.ErrInvalidEvent
	}

	amount := intent.AmountReceived
	if amount <= 0 {
		amount = intent.Amount
	}
	if amount <= 0 {
		return nil, domain.ErrMissingAmount
	}

	return []eventdomain.CanonicalEvent{{
		Provider:        "stripe",
		OrgID:           nctx.OrgID,
		ProjectID:       nctx.ProjectID,
		ExternalEventID: event.ID,
		OccurredAt:      timestamp(intent.Created, event.Created),
		Module:          eventdomain.ModuleSales,
		Type:            eventdomain.TypePaymentConfirmed,
		Payload: eventdomain.EventPayload{
			PaymentID: eventdomain.Str(intent.ID),
		},
		Money: &eventdomain.Money{
			AmountCents: amount,
			Currency:    strings.ToUpper(strings.TrimSpace(intent.Currency)),
		},
		ExternalRefs: []eventdomain.ExternalRef{{Kind: "payment_intent", Value: intent.ID}},
	}}, nil
}

func (c *Connector) normalizeRefund(event stripeEvent, nctx domain.NormalizeContext) ([]eventdomain.CanonicalEvent, error) {
	var charge stripeCharge
	if err := json.Unmarshal(event.Data.Object, &charge); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if charge.ID == "" {
		return nil, domain.ErrInvalidEvent
	}

	amount := charge.AmountRefunded
	if amount <= 0 {
		amount = charge.Amount
	}
	if amount <= 0 {
		return nil, domain.ErrMissingAmount
	}

	return []eventdomain.CanonicalEvent{{
		Provider:        "stripe",
		OrgID:           nctx.OrgID,
		ProjectID:       nctx.ProjectID,
		ExternalEventID: event.ID,
		OccurredAt:      timestamp(charge.Created, event.Created),
		Module:          eventdomain.ModuleSales,
		Type:            eventdomain.TypePaymentRefunded,
		Payload: eventdomain.EventPayload{
			PaymentID: eventdomain.Str(charge.ID),
		},
		Money: &eventdomain.Money{
			AmountCents: amount,
			Currency:    strings.ToUpper(strings.TrimSpace(charge.Currency)),
		},
		ExternalRefs: []eventdomain.ExternalRef{{Kind: "charge", Value: charge.ID}},
	}}, nil
}

func (c *Connector) normalizeSubscription(event stripeEvent, nctx domain.NormalizeContext, canonicalType string) ([]eventdomain.CanonicalEvent, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if sub.ID == "" {
		return nil, domain.ErrInvalidEvent
	}

	out := eventdomain.CanonicalEvent{
		Provider:        "stripe",
		OrgID:           nctx.OrgID,
		ProjectID:       nctx.ProjectID,
		ExternalEventID: event.ID,
		OccurredAt:      timestamp(sub.Created, event.Created),
		Module:          eventdomain.ModuleSubscriptions,
		Type:            canonicalType,
		Payload: eventdomain.EventPayload{
			SubscriptionID: eventdomain.Str(sub.ID),
			Status:         eventdomain.Str(sub.Status),
		},
		ExternalRefs: []eventdomain.ExternalRef{{Kind: "subscription", Value: sub.ID}},
	}
	if sub.Plan.Nickname != "" {
		out.Payload.PlanName = eventdomain.Str(sub.Plan.Nickname)
	}
	if sub.CurrentPeriodEnd > 0 {
		next := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		out.Payload.NextChargeAt = &next
	}
	return []eventdomain.CanonicalEvent{out}, nil
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("signature_mismatch")
	}
	return timestamp, signatures, nil
}

func timestamp(primary, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}
