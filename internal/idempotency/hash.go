package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	eventdomain "github.com/ledgerforgelabs/ledgerforge/internal/event/domain"
)

// Hash computes the deterministic identity of a canonical event. It covers
// the normalized fields only, so the same logical event re-delivered under a
// different wire-level envelope hashes identically. Transport metadata and
// receipt timestamps are deliberately excluded.
func Hash(event eventdomain.CanonicalEvent) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|", event.Provider, event.ExternalEventID, event.Type)

	// EventPayload marshals with a fixed field order, which keeps the digest
	// stable across deliveries.
	payload, _ := json.Marshal(event.Payload)
	h.Write(payload)

	if event.Money != nil {
		fmt.Fprintf(h, "|%d|%s", event.Money.AmountCents, event.Money.Currency)
	}
	return hex.EncodeToString(h.Sum(nil))
}
