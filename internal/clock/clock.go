package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall time so quota rollover and resolution timestamps
// stay testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// New returns the system clock in UTC.
func New() Clock {
	return systemClock{}
}

var Module = fx.Module("clock",
	fx.Provide(New),
)
