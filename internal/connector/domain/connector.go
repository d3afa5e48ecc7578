package domain

import (
	"context"
	"net/http"
	"net/url"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/ledgerforgelabs/ledgerforge/internal/event/domain"
)

type VerificationKind string

const (
	VerificationHMAC        VerificationKind = "hmac"
	VerificationHeaderToken VerificationKind = "header_token"
	VerificationQueryToken  VerificationKind = "query_token"
	// VerificationNone is an accepted product trade-off for providers without
	// a verifiable scheme; ingestion flags these deliveries as low trust.
	VerificationNone VerificationKind = "none"
)

type CredentialKind string

const (
	CredentialText     CredentialKind = "text"
	CredentialPassword CredentialKind = "password"
)

// CredentialField describes one credential the tenant must supply during
// connector setup.
type CredentialField struct {
	Key      string         `json:"key"`
	Label    string         `json:"label"`
	Kind     CredentialKind `json:"kind"`
	Required bool           `json:"required"`
}

// Capabilities is the static capability matrix of a provider.
type Capabilities struct {
	Webhooks      bool `json:"webhooks"`
	Backfill      bool `json:"backfill"`
	Subscriptions bool `json:"subscriptions"`
	Payouts       bool `json:"payouts"`
	Disputes      bool `json:"disputes"`
	Refunds       bool `json:"refunds"`
	Installments  bool `json:"installments"`
	Commissions   bool `json:"commissions"`
	Affiliates    bool `json:"affiliates"`
	MultiCurrency bool `json:"multi_currency"`
}

// Descriptor is the immutable per-provider metadata, loaded at process start.
type Descriptor struct {
	Key          string            `json:"key"`
	DisplayName  string            `json:"display_name"`
	Capabilities Capabilities      `json:"capabilities"`
	Credentials  []CredentialField `json:"credentials"`
	Verification VerificationKind  `json:"verification"`
}

// NormalizeContext carries the tenant scope a normalizer stamps onto the
// canonical events it emits.
type NormalizeContext struct {
	OrgID     snowflake.ID
	ProjectID snowflake.ID
	TraceID   string
}

// Connector is the per-provider bundle of setup metadata, authenticity
// verification and normalization. Verify operates on the raw byte sequence;
// Normalize is pure and performs no I/O.
type Connector interface {
	Descriptor() Descriptor
	Verify(ctx context.Context, payload []byte, headers http.Header, query url.Values, secrets map[string]string) error
	Normalize(ctx context.Context, payload []byte, nctx NormalizeContext) ([]eventdomain.CanonicalEvent, error)
}
