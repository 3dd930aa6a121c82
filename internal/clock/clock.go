package clock

import "time"

// Clock abstracts time operations for testability. The ledger core reads the
// clock once per operation; all window math runs on that single timestamp.
type Clock interface {
	Now() time.Time
}

// Real is a Clock backed by the system clock.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time { return time.Now() }

// Mock is a manually advanced Clock for tests.
type Mock struct {
	T time.Time
}

// At returns a Mock fixed at the given unix timestamp.
func At(unix int64) *Mock {
	return &Mock{T: time.Unix(unix, 0).UTC()}
}

// Now returns the mock's current time.
func (m *Mock) Now() time.Time { return m.T }

// Advance moves the mock forward by d.
func (m *Mock) Advance(d time.Duration) { m.T = m.T.Add(d) }
