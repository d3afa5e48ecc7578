package domain

import (
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Canonical modules. Every provider event is translated into exactly one of
// these before anything downstream sees it.
const (
	ModuleSales         = "sales"
	ModuleSubscriptions = "subscriptions"
	ModulePayouts       = "payouts"
	ModuleDisputes      = "disputes"
	ModuleCommissions   = "commissions"
	ModuleOpenFinance   = "open_finance"
)

// Canonical event types.
const (
	TypeOrderCreated         = "order.created"
	TypeOrderCanceled        = "order.canceled"
	TypePaymentConfirmed     = "payment.confirmed"
	TypePaymentRefunded      = "payment.refunded"
	TypePaymentOverdue       = "payment.overdue"
	TypeSubscriptionStarted  = "subscription.started"
	TypeSubscriptionCharged  = "subscription.charged"
	TypeSubscriptionCanceled = "subscription.canceled"
	TypeDisputeOpened        = "dispute.opened"
	TypeCommissionEarned     = "commission.earned"
)

// Money is always an integer amount of minor units. Normalizers convert
// provider decimals exactly once, at the boundary.
type Money struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// Cents converts a decimal amount in a 2-decimal currency to minor units,
// rounding half away from zero.
func Cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

type ExternalRef struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// EventPayload is the typed canonical payload. Fields are optional; a
// normalizer omits what the provider did not send rather than inventing
// values.
type EventPayload struct {
	OrderID          *string    `json:"order_id,omitempty"`
	PaymentID        *string    `json:"payment_id,omitempty"`
	SubscriptionID   *string    `json:"subscription_id,omitempty"`
	Status           *string    `json:"status,omitempty"`
	PaymentMethod    *string    `json:"payment_method,omitempty"`
	InstallmentCount *int       `json:"installment_count,omitempty"`
	CustomerName     *string    `json:"customer_name,omitempty"`
	CustomerEmail    *string    `json:"customer_email,omitempty"`
	ProductName      *string    `json:"product_name,omitempty"`
	PlanName         *string    `json:"plan_name,omitempty"`
	NextChargeAt     *time.Time `json:"next_charge_at,omitempty"`
	Reason           *string    `json:"reason,omitempty"`
}

// CanonicalEvent is the provider-agnostic representation of a business
// occurrence. One raw webhook may normalize into zero, one or several of
// these.
type CanonicalEvent struct {
	Provider        string
	OrgID           snowflake.ID
	ProjectID       snowflake.ID
	ExternalEventID string
	OccurredAt      time.Time
	Module          string
	Type            string
	Payload         EventPayload
	Money           *Money
	ExternalRefs    []ExternalRef
}

func Str(s string) *string { return &s }
func Int(i int) *int       { return &i }
