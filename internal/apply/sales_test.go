package apply

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	eventdomain "github.com/ledgerforgelabs/ledgerforge/internal/event/domain"
	ledgerdomain "github.com/ledgerforgelabs/ledgerforge/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.Order{},
		&ledgerdomain.Payment{},
		&ledgerdomain.Subscription{},
	))
	return db
}

func paymentEvent(orgID snowflake.ID, occurredAt time.Time, amountCents int64) eventdomain.CanonicalEvent {
	return eventdomain.CanonicalEvent{
		Provider:        "asaas",
		OrgID:           orgID,
		ExternalEventID: "evt_1",
		OccurredAt:      occurredAt,
		Module:          eventdomain.ModuleSales,
		Type:            eventdomain.TypePaymentConfirmed,
		Payload: eventdomain.EventPayload{
			PaymentID:     eventdomain.Str("pay_1"),
			PaymentMethod: eventdomain.Str("PIX"),
		},
		Money: &eventdomain.Money{AmountCents: amountCents, Currency: "BRL"},
	}
}

func TestApplyPaymentTwiceConverges(t *testing.T) {
	db := newTestDB(t)
	node, _ := snowflake.NewNode(1)
	applier := NewSalesApplier(zap.NewNop(), node)

	orgID := node.Generate()
	event := paymentEvent(orgID, time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC), 15000)
	ctx := context.Background()

	applied, err := applier.Apply(ctx, db, event)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = applier.Apply(ctx, db, event)
	require.NoError(t, err)
	assert.True(t, applied)

	var payments []ledgerdomain.Payment
	require.NoError(t, db.Find(&payments).Error)
	require.Len(t, payments, 1, "reapplying must not create duplicate rows")
	assert.Equal(t, int64(15000), payments[0].AmountCents)
	assert.Equal(t, ledgerdomain.PaymentStatusConfirmed, payments[0].Status)
}

func TestApplyOrderingIsCommutative(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	t1 := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	finalState := func(first, second eventdomain.CanonicalEvent) ledgerdomain.Payment {
		db := newTestDB(t)
		applier := NewSalesApplier(zap.NewNop(), node)
		orgID := node.Generate()
		first.OrgID = orgID
		second.OrgID = orgID

		ctx := context.Background()
		_, err := applier.Apply(ctx, db, first)
		require.NoError(t, err)
		_, err = applier.Apply(ctx, db, second)
		require.NoError(t, err)

		var payment ledgerdomain.Payment
		require.NoError(t, db.First(&payment).Error)
		return payment
	}

	older := paymentEvent(0, t1, 15000)
	newer := paymentEvent(0, t2, 15000)
	newer.Type = eventdomain.TypePaymentRefunded

	inOrder := finalState(older, newer)
	outOfOrder := finalState(newer, older)

	assert.Equal(t, inOrder.Status, outOfOrder.Status)
	assert.Equal(t, ledgerdomain.PaymentStatusRefunded, outOfOrder.Status,
		"a delayed older event must not overwrite newer state")
	assert.Equal(t, inOrder.OccurredAt.UTC(), outOfOrder.OccurredAt.UTC())
}

func TestApplyStaleEventIsNoOp(t *testing.T) {
	db := newTestDB(t)
	node, _ := snowflake.NewNode(1)
	applier := NewSalesApplier(zap.NewNop(), node)
	orgID := node.Generate()
	ctx := context.Background()

	t2 := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	newer := paymentEvent(orgID, t2, 15000)
	newer.Type = eventdomain.TypePaymentRefunded
	_, err := applier.Apply(ctx, db, newer)
	require.NoError(t, err)

	older := paymentEvent(orgID, t2.Add(-time.Hour), 15000)
	applied, err := applier.Apply(ctx, db, older)
	require.NoError(t, err)
	assert.False(t, applied, "stale apply is a no-op, not an error")

	var payment ledgerdomain.Payment
	require.NoError(t, db.First(&payment).Error)
	assert.Equal(t, ledgerdomain.PaymentStatusRefunded, payment.Status)
}

func TestApplyOrderCreated(t *testing.T) {
	db := newTestDB(t)
	node, _ := snowflake.NewNode(1)
	applier := NewSalesApplier(zap.NewNop(), node)
	orgID := node.Generate()

	event := eventdomain.CanonicalEvent{
		Provider:        "hotmart",
		OrgID:           orgID,
		ExternalEventID: "HP123",
		OccurredAt:      time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
		Module:          eventdomain.ModuleSales,
		Type:            eventdomain.TypeOrderCreated,
		Payload: eventdomain.EventPayload{
			OrderID:       eventdomain.Str("HP123"),
			CustomerName:  eventdomain.Str("Maria Silva"),
			CustomerEmail: eventdomain.Str("maria@example.com"),
			ProductName:   eventdomain.Str("Curso"),
		},
		Money: &eventdomain.Money{AmountCents: 14990, Currency: "BRL"},
	}

	applied, err := applier.Apply(context.Background(), db, event)
	require.NoError(t, err)
	assert.True(t, applied)

	var order ledgerdomain.Order
	require.NoError(t, db.First(&order).Error)
	assert.Equal(t, "HP123", order.ProviderObjectID)
	assert.Equal(t, int64(14990), order.AmountCents)
	assert.Equal(t, "maria@example.com", order.CustomerEmail)
}

func TestPartialUpdateKeepsUncarriedFields(t *testing.T) {
	db := newTestDB(t)
	node, _ := snowflake.NewNode(1)
	applier := NewSalesApplier(zap.NewNop(), node)
	orgID := node.Generate()
	ctx := context.Background()

	t1 := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	full := eventdomain.CanonicalEvent{
		Provider:   "hotmart",
		OrgID:      orgID,
		OccurredAt: t1,
		Module:     eventdomain.ModuleSales,
		Type:       eventdomain.TypeOrderCreated,
		Payload: eventdomain.EventPayload{
			OrderID:      eventdomain.Str("HP1"),
			CustomerName: eventdomain.Str("Maria Silva"),
			ProductName:  eventdomain.Str("Curso"),
		},
		Money: &eventdomain.Money{AmountCents: 10000, Currency: "BRL"},
	}
	_, err := applier.Apply(ctx, db, full)
	require.NoError(t, err)

	// Later cancel event carries no customer fields.
	cancel := eventdomain.CanonicalEvent{
		Provider:   "hotmart",
		OrgID:      orgID,
		OccurredAt: t1.Add(time.Hour),
		Module:     eventdomain.ModuleSales,
		Type:       eventdomain.TypeOrderCanceled,
		Payload: eventdomain.EventPayload{
			OrderID: eventdomain.Str("HP1"),
		},
	}
	_, err = applier.Apply(ctx, db, cancel)
	require.NoError(t, err)

	var order ledgerdomain.Order
	require.NoError(t, db.First(&order).Error)
	assert.Equal(t, ledgerdomain.OrderStatusCanceled, order.Status)
	assert.Equal(t, "Maria Silva", order.CustomerName, "fields not carried by the event stay put")
	assert.Equal(t, int64(10000), order.AmountCents)
}

func TestRouterUnknownModule(t *testing.T) {
	db := newTestDB(t)
	node, _ := snowflake.NewNode(1)
	router := NewRouter(zap.NewNop(), NewSalesApplier(zap.NewNop(), node))

	event := eventdomain.CanonicalEvent{
		Module: eventdomain.ModulePayouts,
		Type:   "payout.settled",
	}
	applied, err := router.Apply(context.Background(), db, event)
	assert.NoError(t, err)
	assert.False(t, applied)
}
