package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ledgerforgelabs/ledgerforge/internal/migration"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var (
	ErrSchemaStateMissing     = errors.New("schema state missing, run migrations first")
	ErrSchemaVersionMismatch  = errors.New("schema version mismatch")
	ErrSchemaChecksumMismatch = errors.New("schema checksum mismatch")
)

// SchemaGate refuses to serve against a database whose schema does not match
// the migrations embedded in this binary.
type SchemaGate interface {
	MustBeCurrent(ctx context.Context) error
}

type schemaState struct {
	ID            bool      `gorm:"primaryKey"`
	SchemaVersion string    `gorm:"column:schema_version"`
	Checksum      string    `gorm:"column:checksum"`
	MigratedAt    time.Time `gorm:"column:migrated_at"`
}

func (schemaState) TableName() string { return "schema_state" }

type schemaGate struct {
	db               *gorm.DB
	expectedVersion  string
	expectedChecksum string
}

func NewSchemaGate(db *gorm.DB) (SchemaGate, error) {
	latest, err := migration.LatestVersion()
	if err != nil {
		return nil, err
	}
	checksum, err := migration.Checksum()
	if err != nil {
		return nil, err
	}
	return &schemaGate{
		db:               db,
		expectedVersion:  fmt.Sprintf("%d", latest),
		expectedChecksum: checksum,
	}, nil
}

func (g *schemaGate) MustBeCurrent(ctx context.Context) error {
	var state schemaState
	err := g.db.WithContext(ctx).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSchemaStateMissing
		}
		return err
	}
	if state.SchemaVersion != g.expectedVersion {
		return fmt.Errorf("%w: state=%s expected=%s", ErrSchemaVersionMismatch, state.SchemaVersion, g.expectedVersion)
	}
	if strings.TrimSpace(state.Checksum) != "" && state.Checksum != g.expectedChecksum {
		return fmt.Errorf("%w: state=%s expected=%s", ErrSchemaChecksumMismatch, state.Checksum, g.expectedChecksum)
	}
	return nil
}

func EnforceSchemaGate(lc fx.Lifecycle, gate SchemaGate) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return gate.MustBeCurrent(ctx)
		},
	})
}

var Module = fx.Module("bootstrap",
	fx.Provide(NewSchemaGate),
)
