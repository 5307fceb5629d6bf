package ratecell

import "time"

// TimeSource supplies the current instant as nanoseconds since a fixed
// reference. Injecting it instead of reading the system clock directly keeps
// decisions deterministic under test.
type TimeSource interface {
	Now() int64
}

// WallClock reads the realtime clock. Persisted buckets keep their meaning
// across process failover, at the cost of being sensitive to operator clock
// changes.
type WallClock struct{}

func (WallClock) Now() int64 {
	return time.Now().UnixNano()
}

// MonotonicClock counts forward from the wall time observed at construction
// using the runtime's monotonic reading. It is immune to clock adjustments,
// but buckets persisted by one process are not meaningful to the next.
type MonotonicClock struct {
	start time.Time
	base  int64
}

func NewMonotonicClock() *MonotonicClock {
	now := time.Now()
	return &MonotonicClock{start: now, base: now.UnixNano()}
}

func (c *MonotonicClock) Now() int64 {
	return c.base + int64(time.Since(c.start))
}
