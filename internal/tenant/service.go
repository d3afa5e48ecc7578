package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ledgerforgelabs/ledgerforge/internal/security/vault"
	"github.com/ledgerforgelabs/ledgerforge/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Vault vault.Provider
	GenID *snowflake.Node
}

// Service resolves per-tenant connector credentials. Secrets are resolved per
// request from storage, never held as process-wide state.
type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	vault vault.Provider
	genID *snowflake.Node
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("tenant"),
		vault: p.Vault,
		genID: p.GenID,
	}
}

// Resolve returns the decrypted credential map for an org's active connector
// config.
func (s *Service) Resolve(ctx context.Context, orgID snowflake.ID, provider string) (map[string]string, error) {
	var row domain.ConnectorConfig
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND provider = ? AND is_active = ?", orgID, strings.ToLower(provider), true).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrConfigNotFound
		}
		return nil, err
	}

	if len(row.Credentials) == 0 {
		return map[string]string{}, nil
	}
	decrypted, err := s.vault.Decrypt(row.Credentials)
	if err != nil {
		return nil, domain.ErrInvalidConfig
	}
	var secrets map[string]string
	if err := json.Unmarshal(decrypted, &secrets); err != nil {
		return nil, domain.ErrInvalidConfig
	}
	return secrets, nil
}

// Save upserts an org's connector config, encrypting the credential map.
func (s *Service) Save(ctx context.Context, orgID snowflake.ID, provider string, secrets map[string]string) error {
	plain, err := json.Marshal(secrets)
	if err != nil {
		return err
	}
	encrypted, err := s.vault.Encrypt(plain)
	if err != nil {
		return err
	}

	provider = strings.ToLower(strings.TrimSpace(provider))
	now := time.Now().UTC()

	var existing domain.ConnectorConfig
	err = s.db.WithContext(ctx).
		Where("org_id = ? AND provider = ?", orgID, provider).
		First(&existing).Error
	if err == nil {
		existing.Credentials = encrypted
		existing.IsActive = true
		existing.UpdatedAt = now
		return s.db.WithContext(ctx).Save(&existing).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	return s.db.WithContext(ctx).Create(&domain.ConnectorConfig{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		Provider:    provider,
		Credentials: encrypted,
		IsActive:    true,
		Live:        true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}).Error
}

var Module = fx.Module("tenant",
	fx.Provide(NewService),
)
