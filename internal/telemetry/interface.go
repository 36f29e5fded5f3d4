package telemetry

import (
	"context"

	"codeberg.org/mutker/netpulse/internal/sample"
)

// Recorder persists collected samples locally for on-host diagnostics,
// independent of the delivery queue.
type Recorder interface {
	Record(ctx context.Context, s *sample.Sample) error
	Close() error
}

// Repository defines the interface for history storage
type Repository interface {
	Store(ctx context.Context, s *sample.Sample) error
	Close() error
}
