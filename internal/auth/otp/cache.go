// Package otp stores short-lived one-time passcodes keyed by email. The
// cache is injected into the users service so the backing store (process
// memory or redis) is a deployment choice, not ambient global state.
package otp

import (
	"context"
	"time"
)

// DefaultTTL is how long a code stays verifiable.
const DefaultTTL = 10 * time.Minute

// Cache holds passcodes until they expire or are consumed.
type Cache interface {
	// Put stores the code for email, replacing any previous one.
	Put(ctx context.Context, email, code string, ttl time.Duration) error
	// Get returns the stored code, or ok=false when absent or expired.
	Get(ctx context.Context, email string) (code string, ok bool, err error)
	// Delete consumes the code for email.
	Delete(ctx context.Context, email string) error
}
