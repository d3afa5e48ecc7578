package asaas

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/ledgerforgelabs/ledgerforge/internal/connector/domain"
	eventdomain "github.com/ledgerforgelabs/ledgerforge/internal/event/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyAccessToken(t *testing.T) {
	c := New()
	secrets := map[string]string{"webhook_token": "tok_asaas"}

	headers := http.Header{}
	headers.Set("asaas-access-token", "tok_asaas")
	assert.NoError(t, c.Verify(context.Background(), nil, headers, url.Values{}, secrets))

	headers.Set("asaas-access-token", "nope")
	assert.ErrorIs(t, c.Verify(context.Background(), nil, headers, url.Values{}, secrets), domain.ErrInvalidSignature)
}

func TestNormalizePaymentReceived(t *testing.T) {
	c := New()
	payload := []byte(`{
		"id": "evt_05b708f961d739ea7eba7e4db318f621",
		"event": "PAYMENT_RECEIVED",
		"payment": {
			"id": "pay_080225913252",
			"customer": "cus_G7Dvo4iphUNk",
			"value": 150.00,
			"billingType": "PIX",
			"status": "RECEIVED",
			"paymentDate": "2026-02-10"
		}
	}`)

	events, err := c.Normalize(context.Background(), payload, domain.NormalizeContext{})
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, eventdomain.TypePaymentConfirmed, e.Type)
	assert.Equal(t, "evt_05b708f961d739ea7eba7e4db318f621", e.ExternalEventID)
	assert.Equal(t, int64(15000), e.Money.AmountCents)
	assert.Equal(t, "BRL", e.Money.Currency)
	require.NotNil(t, e.Payload.PaymentMethod)
	assert.Equal(t, "PIX", *e.Payload.PaymentMethod)
	assert.Equal(t, "2026-02-10", e.OccurredAt.Format("2006-01-02"))
}

func TestNormalizeSyntheticEventID(t *testing.T) {
	c := New()
	payload := []byte(`{
		"event": "PAYMENT_CONFIRMED",
		"payment": {"id": "pay_1", "value": 99.9}
	}`)

	events, err := c.Normalize(context.Background(), payload, domain.NormalizeContext{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "payment_confirmed:pay_1", events[0].ExternalEventID)
	assert.Equal(t, int64(9990), events[0].Money.AmountCents)
}

func TestNormalizeRoundsDecimalAmounts(t *testing.T) {
	c := New()

	tests := []struct {
		value string
		cents int64
	}{
		{"150.00", 15000},
		{"0.01", 1},
		{"149.90", 14990},
		{"1234.56", 123456},
	}
	for _, tt := range tests {
		payload := []byte(`{"event":"PAYMENT_RECEIVED","payment":{"id":"pay_x","value":` + tt.value + `}}`)
		events, err := c.Normalize(context.Background(), payload, domain.NormalizeContext{})
		require.NoError(t, err)
		assert.Equal(t, tt.cents, events[0].Money.AmountCents, "value %s", tt.value)
	}
}

func TestNormalizeMissingValueIsHardError(t *testing.T) {
	c := New()
	payload := []byte(`{"event":"PAYMENT_RECEIVED","payment":{"id":"pay_1"}}`)
	_, err := c.Normalize(context.Background(), payload, domain.NormalizeContext{})
	assert.ErrorIs(t, err, domain.ErrMissingAmount)
}

func TestNormalizeDropsUnmappedEvents(t *testing.T) {
	c := New()
	payload := []byte(`{"event":"PAYMENT_BANK_SLIP_VIEWED","payment":{"id":"pay_1","value":10}}`)
	events, err := c.Normalize(context.Background(), payload, domain.NormalizeContext{})
	assert.NoError(t, err)
	assert.Empty(t, events)
}
