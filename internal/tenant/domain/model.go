package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

var (
	ErrConfigNotFound = errors.New("connector_config_not_found")
	ErrInvalidConfig  = errors.New("invalid_connector_config")
)

// ConnectorConfig is a per-tenant connector setup. Credentials holds the
// vault-encrypted blob of the fields declared by the connector's credential
// schema; it is never stored or logged in the clear.
type ConnectorConfig struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrgID       snowflake.ID   `json:"org_id" gorm:"not null;uniqueIndex:ux_connector_configs_org_provider"`
	Provider    string         `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_connector_configs_org_provider"`
	Credentials datatypes.JSON `json:"-" gorm:"not null"`
	IsActive    bool           `json:"is_active" gorm:"default:true"`
	Live        bool           `json:"live" gorm:"default:true"`
	CreatedAt   time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"not null"`
}

func (ConnectorConfig) TableName() string { return "connector_configs" }
