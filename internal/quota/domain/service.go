package domain

import (
	"context"
)

// Ledger gates access to downstream providers by charging the caller's
// daily quota. Charge never returns an error for store-level trouble: the
// decision is computed against a degraded local store instead. The only
// error is an unknown category, which is a configuration mistake callers
// are expected to rule out beforehand.
type Ledger interface {
	Charge(ctx context.Context, identity string, category Category) (ChargeResult, error)
}
