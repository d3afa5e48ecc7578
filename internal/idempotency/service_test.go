package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	eventdomain "github.com/ledgerforgelabs/ledgerforge/internal/event/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Record{}))
	return db
}

func testEvent(orgID snowflake.ID) eventdomain.CanonicalEvent {
	return eventdomain.CanonicalEvent{
		Provider:        "asaas",
		OrgID:           orgID,
		ExternalEventID: "evt_1",
		Module:          eventdomain.ModuleSales,
		Type:            eventdomain.TypePaymentConfirmed,
		Payload: eventdomain.EventPayload{
			PaymentID: eventdomain.Str("pay_1"),
		},
		Money: &eventdomain.Money{AmountCents: 15000, Currency: "BRL"},
	}
}

func TestHashStableAcrossEnvelopes(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	orgID := node.Generate()

	a := testEvent(orgID)
	b := testEvent(orgID)
	// Wire-level receipt time differs between deliveries; the hash must not.
	a.OccurredAt = time.Now()
	b.OccurredAt = a.OccurredAt.Add(5 * time.Minute)

	assert.Equal(t, Hash(a), Hash(b))
}

func TestHashDistinguishesSemantics(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	orgID := node.Generate()

	base := testEvent(orgID)

	other := testEvent(orgID)
	other.Type = eventdomain.TypePaymentRefunded
	assert.NotEqual(t, Hash(base), Hash(other))

	other = testEvent(orgID)
	other.Money.AmountCents = 15001
	assert.NotEqual(t, Hash(base), Hash(other))

	other = testEvent(orgID)
	other.ExternalEventID = "evt_2"
	assert.NotEqual(t, Hash(base), Hash(other))
}

func TestReserveAppliesOnlyOnce(t *testing.T) {
	db := newTestDB(t)
	node, _ := snowflake.NewNode(1)
	svc := NewService(Params{Log: zap.NewNop(), GenID: node})

	event := testEvent(node.Generate())
	ctx := context.Background()

	first, err := svc.Reserve(ctx, db, event)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := svc.Reserve(ctx, db, event)
	require.NoError(t, err)
	assert.False(t, second, "duplicate delivery must lose the reserve")

	var count int64
	db.Model(&Record{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestReserveScopedByOrg(t *testing.T) {
	db := newTestDB(t)
	node, _ := snowflake.NewNode(1)
	svc := NewService(Params{Log: zap.NewNop(), GenID: node})
	ctx := context.Background()

	a := testEvent(node.Generate())
	b := a
	b.OrgID = node.Generate()

	okA, err := svc.Reserve(ctx, db, a)
	require.NoError(t, err)
	okB, err := svc.Reserve(ctx, db, b)
	require.NoError(t, err)

	assert.True(t, okA)
	assert.True(t, okB, "same hash under a different org is a distinct event")
}

func TestCacheFastPath(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	node, _ := snowflake.NewNode(1)
	svc := NewService(Params{Log: zap.NewNop(), GenID: node, Redis: client})

	event := testEvent(node.Generate())
	ctx := context.Background()

	assert.False(t, svc.Seen(ctx, event))
	svc.MarkSeen(ctx, event)
	assert.True(t, svc.Seen(ctx, event))
}

func TestCacheAbsenceDegrades(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	svc := NewService(Params{Log: zap.NewNop(), GenID: node})

	event := testEvent(node.Generate())
	assert.False(t, svc.Seen(context.Background(), event))
	svc.MarkSeen(context.Background(), event) // must not panic
}
