package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts time so the ledger's cooldown and day-rollover logic can
// be tested deterministically.
type Clock interface {
	Now() time.Time
}

var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)

type systemClock struct{}

func NewSystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}
