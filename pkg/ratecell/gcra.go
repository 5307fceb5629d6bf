package ratecell

import "time"

// retryNever is the sentinel for "this cost can never be admitted":
// a single request of this cost exceeds the bucket's entire tolerance,
// so no amount of waiting helps.
const retryNever = int64(-1)

// outcome is the raw nanosecond-precision result of one GCRA decision.
// The limiter converts it to a Decision using the unit-conversion law below.
type outcome struct {
	limited    bool
	remaining  int64
	retryAfter int64 // nanoseconds to wait, or retryNever
	ttl        int64 // nanoseconds until the bucket is fully idle again
	newArrival int64 // theoretical arrival time to persist
	persist    bool  // false when stored state must be left untouched
}

// decide runs one step of the Generic Cell Rate Algorithm.
//
// stored is the persisted theoretical arrival time for the bucket, or 0 when
// the bucket is fresh. now is the current instant. emission is the nominal
// interval between single-unit admissions, tolerance is the maximum backlog
// the bucket may accumulate (emission * (burst+1)), and cost is the number of
// units this request consumes. All values are nanoseconds on signed 64-bit
// integers.
//
// Preconditions (enforced by the limiter, not here): emission > 0,
// tolerance >= emission, cost >= 0, and emission*cost does not overflow.
// Given those, decide is total: it never fails.
//
// A denied request never persists. A cost of 0 probes the bucket: it is never
// denied and never discards unexpired backlog, since the new arrival time is
// max(now, stored).
func decide(stored, now, emission, tolerance, cost int64) outcome {
	arrival := stored
	if arrival == 0 {
		arrival = now
	}

	increment := emission * cost
	next := arrival
	if now > next {
		next = now
	}
	next += increment

	// The request draws next-now of backlog; it fits while that stays
	// within the tolerance.
	diff := now - (next - tolerance)

	out := outcome{retryAfter: retryNever}
	if diff < 0 {
		out.limited = true
		out.ttl = arrival - now
		if out.ttl < 0 {
			// Only reachable when increment > tolerance on an idle
			// bucket; the request is oversized, not backlogged.
			out.ttl = 0
		}
		if increment <= tolerance {
			out.retryAfter = -diff
		}
	} else {
		out.ttl = next - now
		out.newArrival = next
		out.persist = true
	}

	if headroom := tolerance - out.ttl; headroom > -emission {
		out.remaining = headroom / emission
	}
	return out
}

// The two functions below are the single authoritative unit-conversion law.
// Every nanosecond quantity leaves the engine through one of them: reported
// values truncate to whole seconds, and the expiry handed to a StateStore is
// the same nanosecond ttl as a native time.Duration. Keeping both on one path
// guarantees a stored expiry always agrees with the ttl reported alongside it.

// wholeSeconds truncates a nanosecond quantity toward zero to whole seconds.
func wholeSeconds(ns int64) int64 {
	return ns / int64(time.Second)
}

// storeExpiry converts a nanosecond ttl to the expiry passed to a StateStore.
func storeExpiry(ns int64) time.Duration {
	return time.Duration(ns)
}
