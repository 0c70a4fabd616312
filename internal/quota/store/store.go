// Package store provides the two usage-record stores behind the quota
// ledger: the authoritative remote adapter and the in-process fallback.
// Both expose the same three conditional primitives so the charge algorithm
// is written once against the interface.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps any transport, timeout or protocol failure of the
// remote store. The ledger treats it as the signal to degrade to the
// fallback store; it is never surfaced to callers of Charge.
var ErrUnavailable = errors.New("usage store unavailable")

// Snapshot is one observed state of an identity's usage row. Used together
// with LastChargeAt it doubles as the version tag for conditional updates.
type Snapshot struct {
	Exists       bool
	Used         int
	LastChargeAt *time.Time
}

// Store is the capability set the ledger requires.
//
// InsertIfAbsent and ConditionalUpdate must be atomic: a lost race returns
// false without error, and the caller re-reads and retries.
type Store interface {
	ReadSnapshot(ctx context.Context, identity, date string) (Snapshot, error)

	InsertIfAbsent(ctx context.Context, identity, date string, used int, lastChargeAt time.Time) (bool, error)

	// ConditionalUpdate advances the row only if its current used and
	// last_charge_at still match the expected snapshot exactly.
	ConditionalUpdate(ctx context.Context, identity, date string, expected Snapshot, newUsed int, newLastChargeAt time.Time) (bool, error)
}
