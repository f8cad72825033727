// Package schedule drives periodic reconciliation: a ticker that runs the
// catch-up scan and a mutual-exclusion marker that keeps overlapping runs apart.
package schedule

import (
	"context"
	"time"
)

// DefaultMarkerName is the marker row (or key) guarding the reconcile scan
const DefaultMarkerName = "reconcile"

// Marker is a lease with a remembered watermark.
//
// Only one holder at a time may own it. A run that cannot acquire it gets
// errors.ErrMarkerHeld and must skip rather than wait. A lease whose ttl elapsed
// is free again, so a crashed holder blocks runs only until expiry.
type Marker interface {
	// Acquire takes the marker for holder until ttl elapses
	Acquire(ctx context.Context, holder string, ttl time.Duration) error

	// Watermark returns the start of the last successful run; zero if none
	Watermark(ctx context.Context) (time.Time, error)

	// Release frees the marker. A non-zero advance becomes the new watermark.
	Release(ctx context.Context, holder string, advance time.Time) error
}
