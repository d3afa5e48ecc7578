package apply

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	connectordomain "github.com/ledgerforgelabs/ledgerforge/internal/connector/domain"
	eventdomain "github.com/ledgerforgelabs/ledgerforge/internal/event/domain"
	ledgerdomain "github.com/ledgerforgelabs/ledgerforge/internal/ledger/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SubscriptionsApplier struct {
	log   *zap.Logger
	genID *snowflake.Node
	sales *SalesApplier
}

func NewSubscriptionsApplier(log *zap.Logger, genID *snowflake.Node, sales *SalesApplier) *SubscriptionsApplier {
	return &SubscriptionsApplier{
		log:   log.Named("apply.subscriptions"),
		genID: genID,
		sales: sales,
	}
}

func (a *SubscriptionsApplier) Module() string { return eventdomain.ModuleSubscriptions }

func (a *SubscriptionsApplier) Apply(ctx context.Context, tx *gorm.DB, event eventdomain.CanonicalEvent) (bool, error) {
	switch event.Type {
	case eventdomain.TypeSubscriptionStarted, eventdomain.TypeSubscriptionCanceled:
		return a.upsertSubscription(ctx, tx, event)
	case eventdomain.TypeSubscriptionCharged:
		applied, err := a.upsertSubscription(ctx, tx, event)
		if err != nil {
			return false, err
		}
		// A charge also lands in the payment ledger when the event carries a
		// payment identity.
		if event.Payload.PaymentID != nil && event.Money != nil {
			paymentEvent := event
			paymentEvent.Module = eventdomain.ModuleSales
			paymentEvent.Type = eventdomain.TypePaymentConfirmed
			if _, err := a.sales.upsertPayment(ctx, tx, paymentEvent); err != nil {
				return false, err
			}
		}
		return applied, nil
	default:
		a.log.Warn("unhandled subscription event type", zap.String("type", event.Type))
		return false, nil
	}
}

func (a *SubscriptionsApplier) upsertSubscription(ctx context.Context, tx *gorm.DB, event eventdomain.CanonicalEvent) (bool, error) {
	if event.Payload.SubscriptionID == nil || *event.Payload.SubscriptionID == "" {
		return false, connectordomain.ErrInvalidEvent
	}
	objectID := *event.Payload.SubscriptionID
	now := time.Now().UTC()

	var sub ledgerdomain.Subscription
	err := lockForUpdate(tx.WithContext(ctx)).
		Where("org_id = ? AND provider = ? AND provider_object_id = ?", event.OrgID, event.Provider, objectID).
		First(&sub).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return false, err
		}
		sub = ledgerdomain.Subscription{
			ID:               a.genID.Generate(),
			OrgID:            event.OrgID,
			Provider:         event.Provider,
			ProviderObjectID: objectID,
			Status:           subscriptionStatus(event.Type),
			OccurredAt:       event.OccurredAt,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		applySubscriptionFields(&sub, event)
		return true, tx.WithContext(ctx).Create(&sub).Error
	}

	if event.OccurredAt.Before(sub.OccurredAt) {
		a.log.Debug("stale subscription event ignored",
			zap.String("provider_object_id", objectID))
		return false, nil
	}

	sub.Status = subscriptionStatus(event.Type)
	sub.OccurredAt = event.OccurredAt
	sub.UpdatedAt = now
	applySubscriptionFields(&sub, event)
	return true, tx.WithContext(ctx).Save(&sub).Error
}

func subscriptionStatus(canonicalType string) string {
	if canonicalType == eventdomain.TypeSubscriptionCanceled {
		return ledgerdomain.SubscriptionStatusCanceled
	}
	return ledgerdomain.SubscriptionStatusActive
}

func applySubscriptionFields(sub *ledgerdomain.Subscription, event eventdomain.CanonicalEvent) {
	if event.Payload.PlanName != nil {
		sub.PlanName = *event.Payload.PlanName
	}
	if event.Payload.CustomerEmail != nil {
		sub.CustomerEmail = *event.Payload.CustomerEmail
	}
	if event.Payload.NextChargeAt != nil {
		sub.NextChargeAt = event.Payload.NextChargeAt
	}
}
