// Package cache holds the short-lived verification codes that gate
// confirmed transfers. Semantics are last-write-wins per key with an
// expiry: a Get after the TTL behaves exactly as if the code was never
// stored.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get for keys that are absent or expired.
var ErrNotFound = errors.New("verification code not found")

// Codes is the verification-code store contract.
type Codes interface {
	Put(ctx context.Context, key, code string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}
