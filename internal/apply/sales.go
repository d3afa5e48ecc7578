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
	"gorm.io/gorm/clause"
)

type SalesApplier struct {
	log   *zap.Logger
	genID *snowflake.Node
}

func NewSalesApplier(log *zap.Logger, genID *snowflake.Node) *SalesApplier {
	return &SalesApplier{
		log:   log.Named("apply.sales"),
		genID: genID,
	}
}

func (a *SalesApplier) Module() string { return eventdomain.ModuleSales }

func (a *SalesApplier) Apply(ctx context.Context, tx *gorm.DB, event eventdomain.CanonicalEvent) (bool, error) {
	switch event.Type {
	case eventdomain.TypeOrderCreated, eventdomain.TypeOrderCanceled:
		return a.upsertOrder(ctx, tx, event)
	case eventdomain.TypePaymentConfirmed, eventdomain.TypePaymentRefunded, eventdomain.TypePaymentOverdue:
		return a.upsertPayment(ctx, tx, event)
	default:
		a.log.Warn("unhandled sales event type", zap.String("type", event.Type))
		return false, nil
	}
}

func (a *SalesApplier) upsertOrder(ctx context.Context, tx *gorm.DB, event eventdomain.CanonicalEvent) (bool, error) {
	if event.Payload.OrderID == nil || *event.Payload.OrderID == "" {
		return false, connectordomain.ErrInvalidEvent
	}
	objectID := *event.Payload.OrderID
	now := time.Now().UTC()

	var order ledgerdomain.Order
	err := lockForUpdate(tx.WithContext(ctx)).
		Where("org_id = ? AND provider = ? AND provider_object_id = ?", event.OrgID, event.Provider, objectID).
		First(&order).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return false, err
		}
		order = ledgerdomain.Order{
			ID:               a.genID.Generate(),
			OrgID:            event.OrgID,
			Provider:         event.Provider,
			ProviderObjectID: objectID,
			Status:           orderStatus(event),
			OccurredAt:       event.OccurredAt,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		applyOrderFields(&order, event)
		return true, tx.WithContext(ctx).Create(&order).Error
	}

	// A delayed event older than the stored state must not overwrite it.
	if event.OccurredAt.Before(order.OccurredAt) {
		a.log.Debug("stale order event ignored",
			zap.String("provider_object_id", objectID),
			zap.Time("event_occurred_at", event.OccurredAt),
			zap.Time("stored_occurred_at", order.OccurredAt))
		return false, nil
	}

	order.Status = orderStatus(event)
	order.OccurredAt = event.OccurredAt
	order.UpdatedAt = now
	applyOrderFields(&order, event)
	return true, tx.WithContext(ctx).Save(&order).Error
}

func (a *SalesApplier) upsertPayment(ctx context.Context, tx *gorm.DB, event eventdomain.CanonicalEvent) (bool, error) {
	if event.Payload.PaymentID == nil || *event.Payload.PaymentID == "" {
		return false, connectordomain.ErrInvalidEvent
	}
	if event.Money == nil {
		return false, connectordomain.ErrMissingAmount
	}
	objectID := *event.Payload.PaymentID
	now := time.Now().UTC()

	var payment ledgerdomain.Payment
	err := lockForUpdate(tx.WithContext(ctx)).
		Where("org_id = ? AND provider = ? AND provider_object_id = ?", event.OrgID, event.Provider, objectID).
		First(&payment).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return false, err
		}
		payment = ledgerdomain.Payment{
			ID:               a.genID.Generate(),
			OrgID:            event.OrgID,
			Provider:         event.Provider,
			ProviderObjectID: objectID,
			Status:           paymentStatus(event.Type),
			AmountCents:      event.Money.AmountCents,
			Currency:         event.Money.Currency,
			OccurredAt:       event.OccurredAt,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		applyPaymentFields(&payment, event)
		return true, tx.WithContext(ctx).Create(&payment).Error
	}

	if event.OccurredAt.Before(payment.OccurredAt) {
		a.log.Debug("stale payment event ignored",
			zap.String("provider_object_id", objectID))
		return false, nil
	}

	payment.Status = paymentStatus(event.Type)
	payment.AmountCents = event.Money.AmountCents
	payment.Currency = event.Money.Currency
	payment.OccurredAt = event.OccurredAt
	payment.UpdatedAt = now
	applyPaymentFields(&payment, event)
	return true, tx.WithContext(ctx).Save(&payment).Error
}

func orderStatus(event eventdomain.CanonicalEvent) string {
	if event.Type == eventdomain.TypeOrderCanceled {
		return ledgerdomain.OrderStatusCanceled
	}
	if event.Payload.Status != nil && *event.Payload.Status == "paid" {
		return ledgerdomain.OrderStatusPaid
	}
	return ledgerdomain.OrderStatusOpen
}

func paymentStatus(canonicalType string) string {
	switch canonicalType {
	case eventdomain.TypePaymentRefunded:
		return ledgerdomain.PaymentStatusRefunded
	case eventdomain.TypePaymentOverdue:
		return ledgerdomain.PaymentStatusOverdue
	default:
		return ledgerdomain.PaymentStatusConfirmed
	}
}

// applyOrderFields copies only the fields this event carries; absent optional
// fields leave stored values untouched.
func applyOrderFields(order *ledgerdomain.Order, event eventdomain.CanonicalEvent) {
	if event.Money != nil {
		order.AmountCents = event.Money.AmountCents
		order.Currency = event.Money.Currency
	}
	if event.Payload.CustomerName != nil {
		order.CustomerName = *event.Payload.CustomerName
	}
	if event.Payload.CustomerEmail != nil {
		order.CustomerEmail = *event.Payload.CustomerEmail
	}
	if event.Payload.ProductName != nil {
		order.ProductName = *event.Payload.ProductName
	}
	if event.Payload.InstallmentCount != nil {
		order.Installments = *event.Payload.InstallmentCount
	}
}

func applyPaymentFields(payment *ledgerdomain.Payment, event eventdomain.CanonicalEvent) {
	if event.Payload.PaymentMethod != nil {
		payment.Method = *event.Payload.PaymentMethod
	}
	if event.Payload.OrderID != nil {
		payment.OrderObjectID = *event.Payload.OrderID
	}
	if event.Type == eventdomain.TypePaymentConfirmed {
		paidAt := event.OccurredAt
		payment.PaidAt = &paidAt
	}
}

// lockForUpdate serializes concurrent applies to the same object. Row locks
// are a postgres feature; the sqlite test driver runs single-writer anyway.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
