package tracker

import (
	"time"

	"github.com/coder/quartz"
)

// DateKeyLayout formats UTC dates as year-month-day so keys sort chronologically.
const DateKeyLayout = "2006-01-02"

// DateKeyFor returns the day key for t.
func DateKeyFor(t time.Time) string {
	return t.UTC().Format(DateKeyLayout)
}

// Resolver derives the current day key and hour slot from a clock.
type Resolver struct {
	clock quartz.Clock
}

func NewResolver(clock quartz.Clock) *Resolver {
	return &Resolver{clock: clock}
}

// Now returns the current time in UTC.
func (r *Resolver) Now() time.Time {
	return r.clock.Now("tracker", "now").UTC()
}

// CurrentDateKey returns the key of the current UTC calendar day.
func (r *Resolver) CurrentDateKey() string {
	return DateKeyFor(r.Now())
}

// CurrentHourSlot returns the current UTC hour, 0 through 23.
func (r *Resolver) CurrentHourSlot() int {
	return r.Now().Hour()
}
