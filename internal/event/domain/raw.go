package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	RawStatusReceived  = "received"
	RawStatusRejected  = "rejected"
	RawStatusProcessed = "processed"
)

// RawInboundEvent stores the untouched webhook payload plus transport
// metadata, persisted before any interpretation. Only the status fields ever
// change after creation.
type RawInboundEvent struct {
	ID           snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrgID        snowflake.ID   `json:"org_id" gorm:"not null;index"`
	ProjectID    snowflake.ID   `json:"project_id" gorm:"index"`
	Provider     string         `json:"provider" gorm:"type:text;not null;index"`
	Body         []byte         `json:"-" gorm:"not null"`
	Headers      datatypes.JSON `json:"headers"`
	Status       string         `json:"status" gorm:"type:text;not null;default:received"`
	RejectReason string         `json:"reject_reason,omitempty" gorm:"type:text"`
	LowTrust     bool           `json:"low_trust" gorm:"default:false"`
	ReceivedAt   time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt  *time.Time     `json:"processed_at"`
}

func (RawInboundEvent) TableName() string { return "raw_inbound_events" }
