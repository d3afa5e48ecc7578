package domain

import "errors"

var (
	ErrInvalidProvider     = errors.New("invalid_provider")
	ErrProviderNotFound    = errors.New("provider_not_found")
	ErrInvalidSignature    = errors.New("signature_mismatch")
	ErrInvalidPayload      = errors.New("invalid_payload")
	ErrInvalidEvent        = errors.New("invalid_event")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrMissingSecret       = errors.New("missing_secret")
	// ErrMissingAmount is the hard-error case of a partial payload: a payment
	// event with no amount cannot be normalized.
	ErrMissingAmount = errors.New("missing_amount")
)
