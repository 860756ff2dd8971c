// Package publish fans freshly stored samples out to external consumers.
package publish

import (
	"context"

	"github.com/roman-kulish/environmental-monitor/internal/sample"
)

// Publisher delivers a stored sample to an external system. Publishing is best
// effort: a failure never invalidates the stored sample.
type Publisher interface {
	// Name identifies the publisher in logs and metrics
	Name() string

	Publish(ctx context.Context, s sample.Sample) error

	Close() error
}
