package storage

import (
	"context"
	"errors"

	"github.com/roman-kulish/environmental-monitor/internal/sample"
)

var (
	// ErrNotFound is returned by Latest when the store holds no samples. It is not
	// a failure, an empty store is a valid state.
	ErrNotFound = errors.New("no samples stored")

	// ErrStoreWrite is returned when a sample cannot be durably appended.
	ErrStoreWrite = errors.New("store write failed")

	// ErrStoreRead is returned when a query cannot be answered.
	ErrStoreRead = errors.New("store read failed")
)

// Store is an append-only time series of environmental samples.
// Every method is an independent, atomically committed operation; no transaction
// spans two calls. A single writer is assumed, so insertion order equals timestamp
// order.
type Store interface {
	// Append durably inserts a sample in its own transaction.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - s: Complete sample, every field populated
	//
	// Returns:
	//   - error: Wrapping ErrStoreWrite if the sample is invalid, the database is
	//     unreachable or the transaction cannot commit
	Append(ctx context.Context, s *sample.Sample) error

	// Latest returns the most recent sample by timestamp.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//
	// Returns:
	//   - sample: The newest sample
	//   - error: ErrNotFound if the store is empty, or wrapping ErrStoreRead
	Latest(ctx context.Context) (*sample.Sample, error)

	// Recent returns up to n most recent samples, oldest first. Fewer than n are
	// returned when the store holds fewer samples; n <= 0 yields an empty result.
	// Samples sharing a timestamp are ordered by insertion, so repeated calls over
	// the same data return the same order.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - n: Maximum number of samples
	//
	// Returns:
	//   - samples: Ascending by timestamp
	//   - error: Wrapping ErrStoreRead
	Recent(ctx context.Context, n int) ([]sample.Sample, error)

	// Count returns the total number of stored samples.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//
	// Returns:
	//   - count: Number of rows
	//   - error: Wrapping ErrStoreRead
	Count(ctx context.Context) (int64, error)

	// Close releases all database connections and resources.
	// After Close is called, the store instance cannot be reused.
	// It is safe to call Close multiple times.
	//
	// Returns:
	//   - error: If closing fails or some resources cannot be released
	Close() error
}
