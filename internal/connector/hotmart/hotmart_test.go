package hotmart

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

const purchaseComplete = `{
	"id": "e4c5bd10-0a9f-4b3b-9a51-6a184e9a1a13",
	"event": "PURCHASE_COMPLETE",
	"creation_date": 1707574800000,
	"data": {
		"purchase": {
			"transaction": "HP17181920212223",
			"order_date": 1707574800000,
			"status": "COMPLETE",
			"price": {"value": 149.9, "currency_value": "BRL"},
			"payment": {"type": "PIX", "installments_number": 1}
		},
		"buyer": {"name": "Maria Silva", "email": "maria@example.com"},
		"product": {"name": "Curso de Fotografia"}
	}
}`

func TestVerifyHeaderToken(t *testing.T) {
	c := New()
	secrets := map[string]string{"hottok": "tok_abc"}

	headers := http.Header{}
	headers.Set("X-Hotmart-Hottok", "tok_abc")
	assert.NoError(t, c.Verify(context.Background(), nil, headers, url.Values{}, secrets))

	headers.Set("X-Hotmart-Hottok", "tok_wrong")
	assert.ErrorIs(t, c.Verify(context.Background(), nil, headers, url.Values{}, secrets), domain.ErrInvalidSignature)

	assert.ErrorIs(t, c.Verify(context.Background(), nil, http.Header{}, url.Values{}, secrets), domain.ErrInvalidSignature)
	assert.ErrorIs(t, c.Verify(context.Background(), nil, headers, url.Values{}, map[string]string{}), domain.ErrMissingSecret)
}

func TestNormalizePurchaseCompleteEmitsTwoEvents(t *testing.T) {
	c := New()
	events, err := c.Normalize(context.Background(), []byte(purchaseComplete), domain.NormalizeContext{})
	require.NoError(t, err)
	require.Len(t, events, 2)

	order, payment := events[0], events[1]
	assert.Equal(t, eventdomain.TypeOrderCreated, order.Type)
	assert.Equal(t, eventdomain.TypePaymentConfirmed, payment.Type)

	// Both share the transaction code as external id.
	assert.Equal(t, "HP17181920212223", order.ExternalEventID)
	assert.Equal(t, "HP17181920212223", payment.ExternalEventID)

	require.NotNil(t, order.Money)
	assert.Equal(t, int64(14990), order.Money.AmountCents)
	assert.Equal(t, "BRL", order.Money.Currency)

	require.NotNil(t, payment.Payload.PaymentMethod)
	assert.Equal(t, "PIX", *payment.Payload.PaymentMethod)
	require.NotNil(t, order.Payload.CustomerEmail)
	assert.Equal(t, "maria@example.com", *order.Payload.CustomerEmail)
}

func TestNormalizeAffiliateCommissionFanOut(t *testing.T) {
	c := New()
	payload := []byte(`{
		"event": "PURCHASE_COMPLETE",
		"creation_date": 1707574800000,
		"data": {
			"purchase": {
				"transaction": "HP555",
				"price": {"value": 100.0, "currency_value": "BRL"}
			},
			"commissions": [
				{"value": 60.0, "source": "PRODUCER"},
				{"value": 40.0, "source": "AFFILIATE", "currency_value": "BRL"}
			]
		}
	}`)

	events, err := c.Normalize(context.Background(), payload, domain.NormalizeContext{})
	require.NoError(t, err)
	require.Len(t, events, 3)

	commission := events[2]
	assert.Equal(t, eventdomain.ModuleCommissions, commission.Module)
	assert.Equal(t, eventdomain.TypeCommissionEarned, commission.Type)
	assert.Equal(t, "HP555:commission:affiliate", commission.ExternalEventID)
	assert.Equal(t, int64(4000), commission.Money.AmountCents)
}

func TestNormalizeMissingPriceIsHardError(t *testing.T) {
	c := New()
	payload := []byte(`{
		"event": "PURCHASE_COMPLETE",
		"data": {"purchase": {"transaction": "HP1"}}
	}`)

	_, err := c.Normalize(context.Background(), payload, domain.NormalizeContext{})
	assert.ErrorIs(t, err, domain.ErrMissingAmount)
}

func TestNormalizeDropsUnknownEvents(t *testing.T) {
	c := New()
	events, err := c.Normalize(context.Background(), []byte(`{"event":"CLUB_FIRST_ACCESS","data":{}}`), domain.NormalizeContext{})
	assert.NoError(t, err)
	assert.Empty(t, events)
}

func TestNormalizeSubscriptionCancellation(t *testing.T) {
	c := New()
	payload := []byte(`{
		"event": "SUBSCRIPTION_CANCELLATION",
		"creation_date": 1707574800000,
		"data": {"subscription": {"subscriber_code": "SUB99", "status": "CANCELLED", "plan": {"name": "Mensal"}}}
	}`)

	events, err := c.Normalize(context.Background(), payload, domain.NormalizeContext{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, eventdomain.ModuleSubscriptions, events[0].Module)
	assert.Equal(t, eventdomain.TypeSubscriptionCanceled, events[0].Type)
	assert.Equal(t, "SUB99:cancellation", events[0].ExternalEventID)
	assert.Nil(t, events[0].Money)
}
