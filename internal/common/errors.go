// Package common defines shared constants and sentinel errors used across
// the fulfillment subsystem. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Auth errors. ErrInvalidToken covers every verification failure so a
	// caller cannot tell a forged signature from a wrong issuer; the specific
	// cause is logged server-side only. ErrInsufficientScope is the one
	// distinct condition: the token verified but lacks a required scope.
	ErrInvalidToken      = errors.New("invalid or expired token")
	ErrInsufficientScope = errors.New("insufficient scope")

	// Webhook errors.
	ErrMissingSignature = errors.New("signature header is required")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrMalformedEvent   = errors.New("malformed event payload")
)
