package sampler

import (
	"time"
)

type Status string

const (
	StatusStarting Status = "starting" // No attempt made yet
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded" // Consecutive failures reached the threshold
)

// Health is a point-in-time view of the scheduler
type Health struct {
	Status              Status    `json:"status"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Stored              int64     `json:"stored"` // Samples stored since start
	LastSample          time.Time `json:"last_sample"`
	LastError           string    `json:"last_error,omitempty"`
}

// recordSuccess must be called with s.mu held
func (s *Scheduler) recordSuccess(ts time.Time) {
	s.attempted = true
	s.failures = 0
	s.stored++
	s.lastSample = ts
	s.lastErr = nil
}

// recordFailure must be called with s.mu held
func (s *Scheduler) recordFailure(err error) int {
	s.attempted = true
	s.failures++
	s.lastErr = err
	return s.failures
}

// Health returns the current scheduler status.
func (s *Scheduler) Health() Health {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := Health{
		Status:              StatusOK,
		ConsecutiveFailures: s.failures,
		Stored:              s.stored,
		LastSample:          s.lastSample,
	}
	if s.lastErr != nil {
		h.LastError = s.lastErr.Error()
	}

	switch {
	case !s.attempted:
		h.Status = StatusStarting
	case s.failures >= s.degradedThreshold:
		h.Status = StatusDegraded
	}
	return h
}
