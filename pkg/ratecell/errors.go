package ratecell

import "errors"

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidBurst is returned when burst is negative
	ErrInvalidBurst = errors.New("burst must be non-negative")

	// ErrInvalidRate is returned when the count per period is not positive
	ErrInvalidRate = errors.New("count per period must be positive")

	// ErrInvalidPeriod is returned when the period is not positive
	ErrInvalidPeriod = errors.New("period must be positive")

	// ErrInvalidCost is returned when the request cost is negative
	ErrInvalidCost = errors.New("cost must be non-negative")

	// ErrQuotaOverflow is returned when the derived intervals leave the
	// 64-bit nanosecond range. Reported instead of wrapping silently,
	// since wrapped arithmetic would corrupt the rate guarantee.
	ErrQuotaOverflow = errors.New("quota arithmetic overflows the 64-bit nanosecond range")

	// ErrInvalidKey is returned when the rate limit key is invalid or empty
	ErrInvalidKey = errors.New("rate limit key cannot be empty")

	// ErrCorruptState is returned when a stored value cannot be parsed as a
	// bucket timestamp. Never masked as a fresh bucket.
	ErrCorruptState = errors.New("stored bucket state is corrupt")

	// ErrWrongType is returned when the key already holds unrelated data
	ErrWrongType = errors.New("key holds data of the wrong type")

	// ErrStoreFailed is returned when store operations fail
	ErrStoreFailed = errors.New("store operation failed")

	// ErrStoreContention is returned when an update loses the per-key
	// write race too many times in a row
	ErrStoreContention = errors.New("too many conflicting updates for key")

	// ErrKeyExtractionFailed is returned when key extraction from request fails
	ErrKeyExtractionFailed = errors.New("failed to extract key from request")
)
