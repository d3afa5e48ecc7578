package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/ledgerforgelabs/ledgerforge/internal/apply"
	"github.com/ledgerforgelabs/ledgerforge/internal/clock"
	"github.com/ledgerforgelabs/ledgerforge/internal/connector"
	connectordomain "github.com/ledgerforgelabs/ledgerforge/internal/connector/domain"
	eventdomain "github.com/ledgerforgelabs/ledgerforge/internal/event/domain"
	"github.com/ledgerforgelabs/ledgerforge/internal/idempotency"
	"github.com/ledgerforgelabs/ledgerforge/internal/tenant"
	tenantdomain "github.com/ledgerforgelabs/ledgerforge/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Reg     *connector.Registry
	Tenants *tenant.Service
	Idem    *idempotency.Service
	Router  *apply.Router
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *Metrics
}

// Service runs the webhook pipeline: persist raw, verify, normalize,
// idempotency-check, apply. Each request is stateless; the durable store is
// the only shared state.
type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	reg     *connector.Registry
	tenants *tenant.Service
	idem    *idempotency.Service
	router  *apply.Router
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("ingest"),
		reg:     p.Reg,
		tenants: p.Tenants,
		idem:    p.Idem,
		router:  p.Router,
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

// IngestWebhook processes one inbound delivery. It returns nil only after
// every emitted canonical event is durably applied or deliberately no-op'd;
// any error signals the caller to answer non-2xx so the provider retries.
func (s *Service) IngestWebhook(ctx context.Context, provider, orgRef string, body []byte, headers http.Header, query url.Values) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return connectordomain.ErrInvalidProvider
	}
	conn, ok := s.reg.Get(provider)
	if !ok {
		return connectordomain.ErrProviderNotFound
	}
	orgID, err := snowflake.ParseString(strings.TrimSpace(orgRef))
	if err != nil {
		return connectordomain.ErrInvalidOrganization
	}

	descriptor := conn.Descriptor()
	traceID := uuid.NewString()
	log := s.log.With(
		zap.String("provider", provider),
		zap.String("org_id", orgID.String()),
		zap.String("trace_id", traceID),
	)
	s.metrics.Received.WithLabelValues(provider).Inc()

	// The raw payload is stored verbatim before any interpretation, for audit
	// and replay. This happens even for deliveries that fail verification.
	raw, err := s.storeRaw(ctx, orgID, provider, body, headers, descriptor)
	if err != nil {
		return err
	}
	if raw.LowTrust {
		log.Warn("provider has no verifiable webhook scheme, accepting as low trust")
	}

	secrets, err := s.tenants.Resolve(ctx, orgID, provider)
	if err != nil {
		if errors.Is(err, tenantdomain.ErrConfigNotFound) {
			s.reject(ctx, raw, "config_not_found")
			s.metrics.Rejected.WithLabelValues(provider, "config_not_found").Inc()
			return err
		}
		return err
	}

	if err := conn.Verify(ctx, body, headers, query, secrets); err != nil {
		s.reject(ctx, raw, err.Error())
		s.metrics.Rejected.WithLabelValues(provider, "signature_mismatch").Inc()
		log.Warn("webhook verification failed", zap.Error(err))
		return connectordomain.ErrInvalidSignature
	}

	events, err := conn.Normalize(ctx, body, connectordomain.NormalizeContext{
		OrgID:   orgID,
		TraceID: traceID,
	})
	if err != nil {
		s.reject(ctx, raw, err.Error())
		s.metrics.Rejected.WithLabelValues(provider, "invalid_payload").Inc()
		log.Error("webhook normalization failed",
			zap.Error(err),
			zap.String("raw_event_id", raw.ID.String()))
		return err
	}
	if len(events) == 0 {
		s.metrics.Dropped.WithLabelValues(provider).Inc()
		log.Info("no canonical mapping for native event, dropped")
		return s.markProcessed(ctx, raw)
	}

	for _, event := range events {
		if err := s.applyOne(ctx, log, event); err != nil {
			return err
		}
	}
	return s.markProcessed(ctx, raw)
}

// applyOne reserves and applies a single canonical event atomically: the
// idempotency record and the ledger mutation commit or roll back together.
func (s *Service) applyOne(ctx context.Context, log *zap.Logger, event eventdomain.CanonicalEvent) error {
	if s.idem.Seen(ctx, event) {
		s.metrics.Duplicates.WithLabelValues(event.Provider).Inc()
		log.Info("duplicate event suppressed by cache", zap.String("type", event.Type))
		return nil
	}

	var applied bool
	var duplicate bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		fresh, err := s.idem.Reserve(ctx, tx, event)
		if err != nil {
			return err
		}
		if !fresh {
			duplicate = true
			return nil
		}
		applied, err = s.router.Apply(ctx, tx, event)
		return err
	})
	if err != nil {
		return err
	}

	switch {
	case duplicate:
		// Losing the reserve race is the expected path under provider
		// retries, not a failure.
		s.metrics.Duplicates.WithLabelValues(event.Provider).Inc()
		log.Info("duplicate event suppressed", zap.String("type", event.Type))
	case applied:
		s.metrics.Applied.WithLabelValues(event.Provider, event.Module).Inc()
		log.Info("event applied",
			zap.String("module", event.Module),
			zap.String("type", event.Type),
			zap.String("external_event_id", event.ExternalEventID))
		s.idem.MarkSeen(ctx, event)
	default:
		log.Warn("event reserved but not applied",
			zap.String("module", event.Module),
			zap.String("type", event.Type))
		s.idem.MarkSeen(ctx, event)
	}
	return nil
}

func (s *Service) storeRaw(ctx context.Context, orgID snowflake.ID, provider string, body []byte, headers http.Header, descriptor connectordomain.Descriptor) (*eventdomain.RawInboundEvent, error) {
	headerJSON, _ := json.Marshal(flattenHeaders(headers))
	raw := &eventdomain.RawInboundEvent{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		Provider:   provider,
		Body:       body,
		Headers:    headerJSON,
		Status:     eventdomain.RawStatusReceived,
		LowTrust:   descriptor.Verification == connectordomain.VerificationNone,
		ReceivedAt: s.clock.Now(ctx),
	}
	if err := s.db.WithContext(ctx).Create(raw).Error; err != nil {
		return nil, err
	}
	return raw, nil
}

func (s *Service) reject(ctx context.Context, raw *eventdomain.RawInboundEvent, reason string) {
	err := s.db.WithContext(ctx).Model(raw).Updates(map[string]any{
		"status":        eventdomain.RawStatusRejected,
		"reject_reason": reason,
	}).Error
	if err != nil {
		s.log.Error("failed to mark raw event rejected", zap.Error(err))
	}
}

func (s *Service) markProcessed(ctx context.Context, raw *eventdomain.RawInboundEvent) error {
	return s.db.WithContext(ctx).Model(raw).Updates(map[string]any{
		"status":       eventdomain.RawStatusProcessed,
		"processed_at": s.clock.Now(ctx),
	}).Error
}

func flattenHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) > 0 {
			out[key] = values[0]
		}
	}
	return out
}

var Module = fx.Module("ingest",
	fx.Provide(NewMetrics),
	fx.Provide(NewService),
)
