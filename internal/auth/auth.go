// Package auth carries the identity-verification contract the ledger core
// consumes from the surrounding platform. The core never inspects keys or
// signatures itself; it only asks whether the current caller controls an
// identity.
package auth

import (
	"context"
	"errors"
)

// ErrUnverified is returned when the caller does not control the identity.
var ErrUnverified = errors.New("caller does not control identity")

// Verifier checks that the caller of an operation controls an identity.
type Verifier interface {
	Verify(ctx context.Context, identity string) error
}

// Static is a Verifier backed by a fixed identity set, for tests and local
// runs.
type Static map[string]bool

// Verify reports whether identity is in the set.
func (s Static) Verify(_ context.Context, identity string) error {
	if !s[identity] {
		return ErrUnverified
	}
	return nil
}

// AllowAll is a Verifier that accepts every identity.
type AllowAll struct{}

// Verify always succeeds.
func (AllowAll) Verify(context.Context, string) error { return nil }
