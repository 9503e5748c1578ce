package repository

import "time"

// Bucket is the resolution of a ledger summary.
type Bucket string

const (
	Bucket1h Bucket = "1h"
	Bucket1d Bucket = "1d"
	Bucket1w Bucket = "1w"
)

// IsValidBucket returns true if b is a supported bucket.
func IsValidBucket(b Bucket) bool {
	switch b {
	case Bucket1h, Bucket1d, Bucket1w:
		return true
	default:
		return false
	}
}

// DefaultBucket returns the default bucket.
func DefaultBucket() Bucket { return Bucket1d }

// NormalizeBucket converts raw string to a valid bucket (or default).
func NormalizeBucket(s string) Bucket {
	if s == "" {
		return DefaultBucket()
	}
	b := Bucket(s)
	if IsValidBucket(b) {
		return b
	}
	return DefaultBucket()
}

// Duration is the width of one bucket.
func (b Bucket) Duration() time.Duration {
	switch b {
	case Bucket1h:
		return time.Hour
	case Bucket1w:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}
