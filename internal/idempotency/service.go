package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/ledgerforgelabs/ledgerforge/internal/event/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const cacheTTL = 48 * time.Hour

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Redis *redis.Client `optional:"true"`
}

// Service performs the atomic check-and-reserve that guarantees at-most-once
// application. The durable store is the authority; redis is a read-through
// fast path for hashes already known to be applied.
type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	redis *redis.Client
}

func NewService(p Params) *Service {
	return &Service{
		log:   p.Log.Named("idempotency"),
		genID: p.GenID,
		redis: p.Redis,
	}
}

// Seen consults the cache only. A true result means the event was already
// applied; false means nothing, the durable reserve still decides.
func (s *Service) Seen(ctx context.Context, event eventdomain.CanonicalEvent) bool {
	if s.redis == nil {
		return false
	}
	n, err := s.redis.Exists(ctx, cacheKey(event)).Result()
	if err != nil {
		// Cache trouble never blocks ingestion.
		s.log.Debug("idempotency cache unavailable", zap.Error(err))
		return false
	}
	return n > 0
}

// Reserve inserts the idempotency record inside the caller's transaction.
// A conflicting row means a concurrent or earlier delivery already won;
// that is the expected path for provider retries, not an error.
func (s *Service) Reserve(ctx context.Context, tx *gorm.DB, event eventdomain.CanonicalEvent) (bool, error) {
	record := Record{
		ID:            s.genID.Generate(),
		OrgID:         event.OrgID,
		CanonicalHash: Hash(event),
		AppliedAt:     time.Now().UTC(),
	}
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkSeen records a successfully applied event in the cache. Called after
// the reserving transaction commits.
func (s *Service) MarkSeen(ctx context.Context, event eventdomain.CanonicalEvent) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, cacheKey(event), 1, cacheTTL).Err(); err != nil {
		s.log.Debug("idempotency cache write failed", zap.Error(err))
	}
}

func cacheKey(event eventdomain.CanonicalEvent) string {
	return fmt.Sprintf("idem:%d:%s", event.OrgID, Hash(event))
}

var Module = fx.Module("idempotency",
	fx.Provide(NewService),
)
