package apply

import (
	"context"

	eventdomain "github.com/ledgerforgelabs/ledgerforge/internal/event/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Applier mutates the ledger for one canonical module. Apply runs inside the
// caller's transaction, alongside the idempotency reserve, so duplicate
// deliveries and partial failures roll back together.
type Applier interface {
	Module() string
	Apply(ctx context.Context, tx *gorm.DB, event eventdomain.CanonicalEvent) (bool, error)
}

type Router struct {
	log      *zap.Logger
	appliers map[string]Applier
}

func NewRouter(log *zap.Logger, appliers ...Applier) *Router {
	r := &Router{
		log:      log.Named("apply"),
		appliers: make(map[string]Applier, len(appliers)),
	}
	for _, a := range appliers {
		r.appliers[a.Module()] = a
	}
	return r
}

// Apply dispatches on the canonical module. A module without an applier is a
// recoverable condition (new module rollout ordering), not a failure.
func (r *Router) Apply(ctx context.Context, tx *gorm.DB, event eventdomain.CanonicalEvent) (bool, error) {
	applier, ok := r.appliers[event.Module]
	if !ok {
		r.log.Warn("no applier for module",
			zap.String("module", event.Module),
			zap.String("type", event.Type),
			zap.String("provider", event.Provider))
		return false, nil
	}
	return applier.Apply(ctx, tx, event)
}

var Module = fx.Module("apply",
	fx.Provide(NewSalesApplier),
	fx.Provide(NewSubscriptionsApplier),
	fx.Provide(func(log *zap.Logger, sales *SalesApplier, subs *SubscriptionsApplier) *Router {
		return NewRouter(log, sales, subs)
	}),
)
