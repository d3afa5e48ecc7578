package eduzz

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/ledgerforgelabs/ledgerforge/internal/connector/domain"
	eventdomain "github.com/ledgerforgelabs/ledgerforge/internal/event/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nctx(t *testing.T) domain.NormalizeContext {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return domain.NormalizeContext{OrgID: node.Generate()}
}

func TestVerifyAlwaysAccepts(t *testing.T) {
	c := New()
	assert.Equal(t, domain.VerificationNone, c.Descriptor().Verification)
	require.NoError(t, c.Verify(context.Background(), []byte("{}"), nil, nil, nil))
}

func TestInvoicePaidFansOut(t *testing.T) {
	c := New()
	body := `{
		"event_name": "invoice_paid",
		"data": {
			"invoice_id": 778899,
			"value": 97.00,
			"paid_at": "2026-02-10 14:30:00",
			"customer": {"name": "Maria Souza", "email": "maria@example.com"},
			"product": {"name": "Curso de Violão"}
		}
	}`

	events, err := c.Normalize(context.Background(), []byte(body), nctx(t))
	require.NoError(t, err)
	require.Len(t, events, 2)

	order, payment := events[0], events[1]
	assert.Equal(t, eventdomain.TypeOrderCreated, order.Type)
	assert.Equal(t, eventdomain.TypePaymentConfirmed, payment.Type)
	// Both events trace back to the same invoice.
	assert.Equal(t, "778899", order.ExternalEventID)
	assert.Equal(t, "778899", payment.ExternalEventID)
	require.NotNil(t, payment.Money)
	assert.Equal(t, int64(9700), payment.Money.AmountCents)
	assert.Equal(t, "BRL", payment.Money.Currency)
	assert.Equal(t, "Maria Souza", *order.Payload.CustomerName)
}

func TestInvoiceRefunded(t *testing.T) {
	c := New()
	body := `{"event_name":"invoice_refunded","data":{"invoice_id":778899,"value":97.00,"paid_at":"2026-02-12 09:00:00"}}`

	events, err := c.Normalize(context.Background(), []byte(body), nctx(t))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, eventdomain.TypePaymentRefunded, events[0].Type)
	assert.Equal(t, "778899:refund", events[0].ExternalEventID)
}

func TestContractCanceled(t *testing.T) {
	c := New()
	body := `{"event_name":"contract_canceled","data":{"contract_id":4455}}`

	events, err := c.Normalize(context.Background(), []byte(body), nctx(t))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, eventdomain.ModuleSubscriptions, events[0].Module)
	assert.Equal(t, eventdomain.TypeSubscriptionCanceled, events[0].Type)
	assert.Equal(t, "4455", *events[0].Payload.SubscriptionID)
}

func TestNormalizeErrors(t *testing.T) {
	c := New()
	ctx := context.Background()

	_, err := c.Normalize(ctx, []byte("not json"), nctx(t))
	require.ErrorIs(t, err, domain.ErrInvalidPayload)

	_, err = c.Normalize(ctx, []byte(`{"event_name":"invoice_paid","data":{"invoice_id":1,"value":0}}`), nctx(t))
	require.ErrorIs(t, err, domain.ErrMissingAmount)

	events, err := c.Normalize(ctx, []byte(`{"event_name":"cart_abandoned","data":{}}`), nctx(t))
	require.NoError(t, err)
	assert.Nil(t, events)
}
