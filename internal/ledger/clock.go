package ledger

import "time"

// DateLayout is the calendar-day format used for check-in gating.
const DateLayout = "2006-01-02"

// Clock supplies wall-clock time in the zone the ledger is evaluated in.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now in a fixed location.
type SystemClock struct {
	Loc *time.Location
}

// NewSystemClock pins the clock to the named IANA zone ("Local" or "" keeps the process zone).
func NewSystemClock(zone string) (*SystemClock, error) {
	if zone == "" || zone == "Local" {
		return &SystemClock{Loc: time.Local}, nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, err
	}
	return &SystemClock{Loc: loc}, nil
}

func (c *SystemClock) Now() time.Time {
	return time.Now().In(c.Loc)
}

// FixedClock always returns the same instant. Used by tests and replays.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }

// Advance moves the fixed clock forward.
func (c *FixedClock) Advance(d time.Duration) { c.T = c.T.Add(d) }
