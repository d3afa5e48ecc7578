package idempotency

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Record marks a canonical event as applied. Rows are created at apply time,
// never updated; the (org_id, canonical_hash) unique key is what closes the
// race between concurrent duplicate deliveries.
type Record struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID         snowflake.ID `json:"org_id" gorm:"not null;uniqueIndex:ux_idempotency_org_hash"`
	CanonicalHash string       `json:"canonical_hash" gorm:"type:varchar(64);not null;uniqueIndex:ux_idempotency_org_hash"`
	AppliedAt     time.Time    `json:"applied_at" gorm:"not null"`
}

func (Record) TableName() string { return "idempotency_records" }
