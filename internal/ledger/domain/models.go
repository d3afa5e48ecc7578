package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	OrderStatusOpen     = "open"
	OrderStatusPaid     = "paid"
	OrderStatusCanceled = "canceled"

	PaymentStatusConfirmed = "confirmed"
	PaymentStatusRefunded  = "refunded"
	PaymentStatusOverdue   = "overdue"

	SubscriptionStatusActive   = "active"
	SubscriptionStatusCanceled = "canceled"
)

// Order is a tenant-scoped ledger row keyed by (org_id, provider,
// provider_object_id). Appliers upsert it; the same canonical event applied
// twice converges to the same row state.
type Order struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID            snowflake.ID `json:"org_id" gorm:"not null;uniqueIndex:ux_orders_org_provider_object"`
	Provider         string       `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_orders_org_provider_object"`
	ProviderObjectID string       `json:"provider_object_id" gorm:"type:text;not null;uniqueIndex:ux_orders_org_provider_object"`
	Status           string       `json:"status" gorm:"type:text;not null"`
	AmountCents      int64        `json:"amount_cents"`
	Currency         string       `json:"currency" gorm:"type:varchar(3)"`
	CustomerName     string       `json:"customer_name" gorm:"type:text"`
	CustomerEmail    string       `json:"customer_email" gorm:"type:text;index"`
	ProductName      string       `json:"product_name" gorm:"type:text"`
	Installments     int          `json:"installments"`
	OccurredAt       time.Time    `json:"occurred_at" gorm:"not null"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"not null"`
}

func (Order) TableName() string { return "orders" }

type Payment struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID            snowflake.ID `json:"org_id" gorm:"not null;uniqueIndex:ux_payments_org_provider_object"`
	Provider         string       `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_payments_org_provider_object"`
	ProviderObjectID string       `json:"provider_object_id" gorm:"type:text;not null;uniqueIndex:ux_payments_org_provider_object"`
	Status           string       `json:"status" gorm:"type:text;not null"`
	AmountCents      int64        `json:"amount_cents" gorm:"not null"`
	Currency         string       `json:"currency" gorm:"type:varchar(3);not null"`
	Method           string       `json:"method" gorm:"type:text"`
	OrderObjectID    string       `json:"order_object_id" gorm:"type:text;index"`
	PaidAt           *time.Time   `json:"paid_at"`
	Reconciled       bool         `json:"reconciled" gorm:"default:false;index"`
	OccurredAt       time.Time    `json:"occurred_at" gorm:"not null"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

type Subscription struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID            snowflake.ID `json:"org_id" gorm:"not null;uniqueIndex:ux_subscriptions_org_provider_object"`
	Provider         string       `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_subscriptions_org_provider_object"`
	ProviderObjectID string       `json:"provider_object_id" gorm:"type:text;not null;uniqueIndex:ux_subscriptions_org_provider_object"`
	Status           string       `json:"status" gorm:"type:text;not null"`
	PlanName         string       `json:"plan_name" gorm:"type:text"`
	CustomerEmail    string       `json:"customer_email" gorm:"type:text"`
	NextChargeAt     *time.Time   `json:"next_charge_at"`
	OccurredAt       time.Time    `json:"occurred_at" gorm:"not null"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"not null"`
}

func (Subscription) TableName() string { return "subscriptions" }
