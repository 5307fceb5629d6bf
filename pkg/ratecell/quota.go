package ratecell

import (
	"math"
	"time"
)

// maxPeriodSeconds bounds the period so that period*1e9 fits in an int64.
const maxPeriodSeconds = math.MaxInt64 / int64(time.Second)

// Quota defines the admission policy for a bucket.
//
// CountPerPeriod admissions are allowed every PeriodSeconds at a steady pace,
// with Burst extra units of instantaneous overage on top. A quota of
// {Burst: 2, CountPerPeriod: 10, PeriodSeconds: 1} sustains 10 requests per
// second and lets up to 3 land at the same instant.
type Quota struct {
	// Burst is the maximum overage beyond the steady rate. Must be >= 0.
	Burst int64

	// CountPerPeriod is the number of admitted units per period. Must be > 0.
	CountPerPeriod int64

	// PeriodSeconds is the span over which CountPerPeriod applies. Must be > 0.
	PeriodSeconds int64
}

// Limit is the maximum number of units admitted in a single instant.
func (q Quota) Limit() int64 {
	return q.Burst + 1
}

// Validate checks the quota's ranges and derived arithmetic.
func (q Quota) Validate() error {
	if q.Burst < 0 {
		return ErrInvalidBurst
	}
	if q.CountPerPeriod <= 0 {
		return ErrInvalidRate
	}
	if q.PeriodSeconds <= 0 {
		return ErrInvalidPeriod
	}
	_, _, err := q.derive()
	return err
}

// derive computes the emission interval and delay variation tolerance in
// nanoseconds. The emission interval is the nominal time between single-unit
// admissions; the tolerance is the largest backlog the bucket may carry.
//
// This division is the only floating-point step in the engine; the int64 cast
// truncates toward zero. Everything downstream is integer arithmetic.
func (q Quota) derive() (emission, tolerance int64, err error) {
	if q.PeriodSeconds > maxPeriodSeconds {
		return 0, 0, ErrQuotaOverflow
	}
	emission = int64(float64(q.PeriodSeconds*int64(time.Second)) / float64(q.CountPerPeriod))
	if emission <= 0 {
		// The configured rate is finer than nanosecond resolution.
		return 0, 0, ErrQuotaOverflow
	}
	limit := q.Burst + 1
	if limit <= 0 {
		// Burst == MaxInt64 wraps the limit itself.
		return 0, 0, ErrQuotaOverflow
	}
	tolerance = emission * limit
	if tolerance <= 0 || tolerance/emission != limit {
		return 0, 0, ErrQuotaOverflow
	}
	return emission, tolerance, nil
}

// checkedIncrement validates that emission*cost stays within range.
func checkedIncrement(emission, cost int64) (int64, error) {
	if cost == 0 {
		return 0, nil
	}
	increment := emission * cost
	if increment/cost != emission {
		return 0, ErrQuotaOverflow
	}
	return increment, nil
}
