package protocol

// Ticks is a free-running microsecond counter that wraps at 2^32.
// Compare ticks only through Elapsed or Reached.
type Ticks uint32

// Elapsed returns the time from since to now, correct across one wrap.
func Elapsed(now, since Ticks) uint32 {
	return uint32(now - since)
}

// Reached reports whether now is at or past deadline. Deadlines must be less
// than 2^31 microseconds (about 35 minutes) ahead.
func Reached(now, deadline Ticks) bool {
	return int32(now-deadline) >= 0
}

// Add returns t advanced by us microseconds.
func (t Ticks) Add(us uint32) Ticks {
	return t + Ticks(us)
}
