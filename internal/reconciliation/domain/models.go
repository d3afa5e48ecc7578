package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	BankTxStatusPending = "pending"
	BankTxStatusMatched = "matched"
	BankTxStatusIgnored = "ignored"
)

var (
	ErrTransactionNotFound       = errors.New("bank_transaction_not_found")
	ErrTransactionNotPending     = errors.New("bank_transaction_not_pending")
	ErrPaymentNotFound           = errors.New("payment_not_found")
	ErrPaymentAlreadyMatched     = errors.New("payment_already_matched")
	ErrTransactionAlreadyMatched = errors.New("bank_transaction_already_matched")
)

// BankTransaction is one line of an imported bank statement, scoped to the
// org that imported it. TransactionID is the bank's own identifier and keeps
// re-imports from duplicating lines.
type BankTransaction struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID         snowflake.ID `json:"org_id" gorm:"not null;uniqueIndex:ux_bank_tx_org_external"`
	TransactionID string       `json:"transaction_id" gorm:"type:text;not null;uniqueIndex:ux_bank_tx_org_external"`
	AmountCents   int64        `json:"amount_cents" gorm:"not null"`
	Currency      string       `json:"currency" gorm:"type:varchar(3);not null;default:BRL"`
	Date          time.Time    `json:"date" gorm:"not null;index"`
	Description   string       `json:"description" gorm:"type:text"`
	Status        string       `json:"status" gorm:"type:text;not null;default:pending;index"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"not null"`
}

func (BankTransaction) TableName() string { return "bank_transactions" }

// ReconciliationMatch links a bank transaction to a payment one-to-one. The
// unique indexes on both foreign keys are the exclusivity guarantee; the
// service relies on them rather than re-checking under races.
type ReconciliationMatch struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID             snowflake.ID `json:"org_id" gorm:"not null;index"`
	BankTransactionID snowflake.ID `json:"bank_transaction_id" gorm:"not null;uniqueIndex:ux_recon_match_bank_tx"`
	PaymentID         snowflake.ID `json:"payment_id" gorm:"not null;uniqueIndex:ux_recon_match_payment"`
	ConfirmedBy       string       `json:"confirmed_by" gorm:"type:text;not null"`
	ConfirmedAt       time.Time    `json:"confirmed_at" gorm:"not null"`
}

func (ReconciliationMatch) TableName() string { return "reconciliation_matches" }

// Candidate is a payment offered to the operator for a pending bank
// transaction, with its ranking inputs exposed.
type Candidate struct {
	PaymentID        snowflake.ID `json:"payment_id"`
	Provider         string       `json:"provider"`
	ProviderObjectID string       `json:"provider_object_id"`
	AmountCents      int64        `json:"amount_cents"`
	Currency         string       `json:"currency"`
	Method           string       `json:"method"`
	PaidAt           *time.Time   `json:"paid_at"`
	OccurredAt       time.Time    `json:"occurred_at"`
	DateDistanceDays int          `json:"date_distance_days"`
}
