package sampler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/roman-kulish/environmental-monitor/internal/metrics"
	"github.com/roman-kulish/environmental-monitor/internal/publish"
	"github.com/roman-kulish/environmental-monitor/internal/sample"
	"github.com/roman-kulish/environmental-monitor/internal/sensor"
)

const (
	DefaultCadence           = 2 * time.Second
	DefaultReadTimeout       = 5 * time.Second
	DefaultPollInterval      = 50 * time.Millisecond
	DefaultDegradedThreshold = 5
	DefaultPublishTimeout    = 500 * time.Millisecond

	backoffExponent = 2
)

// Appender is the write side of the time-series store
type Appender interface {
	Append(ctx context.Context, s *sample.Sample) error
}

// WithCadence sets the minimum interval between samples
func WithCadence(d time.Duration) func(*Scheduler) {
	return func(s *Scheduler) {
		s.cadence = d
	}
}

// WithReadTimeout bounds a single sensor array read
func WithReadTimeout(d time.Duration) func(*Scheduler) {
	return func(s *Scheduler) {
		s.readTimeout = d
	}
}

// WithPollInterval sets how often the loop checks whether a sample is due
func WithPollInterval(d time.Duration) func(*Scheduler) {
	return func(s *Scheduler) {
		s.pollInterval = d
	}
}

// WithPublishTimeout bounds the time spent handing one sample to all publishers
func WithPublishTimeout(d time.Duration) func(*Scheduler) {
	return func(s *Scheduler) {
		s.publishTimeout = d
	}
}

// WithTemperatureMode sets the Celsius to Fahrenheit conversion mode
func WithTemperatureMode(mode sample.TemperatureMode) func(*Scheduler) {
	return func(s *Scheduler) {
		s.temperatureMode = mode
	}
}

// WithIntegrationTime sets the UV sensor integration time used to derive the UV index
func WithIntegrationTime(it sample.IntegrationTime) func(*Scheduler) {
	return func(s *Scheduler) {
		s.integrationTime = it
	}
}

// WithBackoff enables exponential backoff between failed attempts, growing from
// minDelay to maxDelay. Without it, a failed attempt is retried at the next poll.
func WithBackoff(minDelay, maxDelay time.Duration) func(*Scheduler) {
	return func(s *Scheduler) {
		if minDelay > 0 && maxDelay >= minDelay {
			s.backoff = retry.ExpBackoff(minDelay, maxDelay, backoffExponent, false)
		}
	}
}

// WithDegradedThreshold sets the number of consecutive failures after which the
// scheduler reports itself degraded
func WithDegradedThreshold(n int) func(*Scheduler) {
	return func(s *Scheduler) {
		s.degradedThreshold = n
	}
}

// WithClock sets the time source
func WithClock(clk clock.Clock) func(*Scheduler) {
	return func(s *Scheduler) {
		s.clock = clk
	}
}

// WithLogger sets the logger for the scheduler
func WithLogger(logger *slog.Logger) func(*Scheduler) {
	return func(s *Scheduler) {
		s.logger = logger.With(slog.String("component", "sampler"))
	}
}

// WithPublisher adds a publisher notified of every stored sample
func WithPublisher(p publish.Publisher) func(*Scheduler) {
	return func(s *Scheduler) {
		s.publishers = append(s.publishers, p)
	}
}

// Scheduler periodically reads the sensor array, normalises the reading and
// appends it to the store. It is the only writer of the store.
type Scheduler struct {
	reader sensor.Reader
	store  Appender

	cadence           time.Duration
	readTimeout       time.Duration
	pollInterval      time.Duration
	publishTimeout    time.Duration
	temperatureMode   sample.TemperatureMode
	integrationTime   sample.IntegrationTime
	backoff           func(time.Duration, int) time.Duration
	degradedThreshold int
	publishers        []publish.Publisher
	clock             clock.Clock
	logger            *slog.Logger

	previous   time.Time // Time of the last stored sample, owned by the loop
	lastStored time.Time // Timestamp of the last stored sample, owned by the loop

	mu         sync.Mutex
	attempted  bool
	failures   int
	stored     int64
	lastSample time.Time
	lastErr    error
}

// New creates a new Scheduler with a discard logger
func New(reader sensor.Reader, store Appender, options ...func(*Scheduler)) (*Scheduler, error) {
	s := Scheduler{
		reader:            reader,
		store:             store,
		cadence:           DefaultCadence,
		readTimeout:       DefaultReadTimeout,
		pollInterval:      DefaultPollInterval,
		publishTimeout:    DefaultPublishTimeout,
		temperatureMode:   sample.TemperatureExact,
		integrationTime:   sample.Integration1T,
		degradedThreshold: DefaultDegradedThreshold,
		clock:             clock.WallClock,
		logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	if s.reader == nil || s.store == nil {
		return nil, fmt.Errorf("sampler: sensor reader and store are required")
	}
	if s.cadence <= 0 || s.readTimeout <= 0 || s.pollInterval <= 0 || s.publishTimeout <= 0 {
		return nil, fmt.Errorf("sampler: cadence, read timeout, poll interval and publish timeout must be positive")
	}
	if s.degradedThreshold <= 0 {
		return nil, fmt.Errorf("sampler: invalid degraded threshold: %d", s.degradedThreshold)
	}
	if err := s.temperatureMode.Validate(); err != nil {
		return nil, fmt.Errorf("sampler: %w", err)
	}
	if err := s.integrationTime.Validate(); err != nil {
		return nil, fmt.Errorf("sampler: %w", err)
	}

	return &s, nil
}

// Run samples until ctx is cancelled and returns ctx.Err(). Sensor and store
// failures are transient: they are logged, recorded in Health and retried.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("sampler started",
		slog.Duration("cadence", s.cadence),
		slog.Duration("readTimeout", s.readTimeout),
		slog.String("temperatureMode", s.temperatureMode.String()))

	s.previous = s.clock.Now()

	for {
		if err := ctx.Err(); err != nil {
			s.logger.Info("sampler stopped")
			return err
		}

		wait := s.pollInterval
		if _, err := s.step(ctx); err != nil && s.backoff != nil && ctx.Err() == nil {
			s.mu.Lock()
			failures := s.failures
			s.mu.Unlock()
			wait = max(wait, s.backoff(wait, failures))
		}

		timer := s.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.Chan():
		}
	}
}

// step takes and stores one sample if the cadence has elapsed since the previous
// stored sample. It reports whether a sample was stored.
func (s *Scheduler) step(ctx context.Context) (bool, error) {
	now := s.clock.Now()
	if now.Sub(s.previous) < s.cadence {
		return false, nil
	}

	smp, err := s.sample(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		metrics.SampleTicks.WithLabelValues(metrics.OutcomeReadFailed).Inc()
		s.fail(err)
		return false, err
	}

	// Stored timestamps never decrease. A reading older than the last stored
	// sample means the wall clock stepped backwards; it is discarded like any
	// other failed read until the clock catches up.
	if smp.Timestamp.Before(s.lastStored) {
		err = fmt.Errorf("%w: timestamp %s precedes last stored sample %s",
			sensor.ErrSensorRead, smp.Timestamp.Format(time.RFC3339Nano), s.lastStored.Format(time.RFC3339Nano))
		metrics.SampleTicks.WithLabelValues(metrics.OutcomeReadFailed).Inc()
		s.fail(err)
		return false, err
	}

	if err = s.store.Append(ctx, &smp); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		metrics.SampleTicks.WithLabelValues(metrics.OutcomeWriteFailed).Inc()
		s.fail(fmt.Errorf("dropping sample: %w", err))
		return false, err
	}

	s.previous = now
	s.lastStored = smp.Timestamp

	s.mu.Lock()
	s.recordSuccess(smp.Timestamp)
	s.mu.Unlock()

	metrics.SampleTicks.WithLabelValues(metrics.OutcomeStored).Inc()
	metrics.ConsecutiveFailures.Set(0)
	metrics.ObserveSample(smp)
	s.logger.Debug("sample stored", slog.String("sample", smp.String()))

	s.publish(ctx, smp)
	return true, nil
}

// sample reads the sensor array within the read timeout and normalises the result
func (s *Scheduler) sample(ctx context.Context) (sample.Sample, error) {
	readCtx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	start := time.Now()
	raw, err := s.reader.Read(readCtx)
	metrics.SensorReadDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return sample.Sample{}, fmt.Errorf("%w: read timed out after %s: %w", sensor.ErrSensorRead, s.readTimeout, err)
		}
		return sample.Sample{}, err
	}

	return s.normalise(raw), nil
}

func (s *Scheduler) normalise(raw sensor.RawReading) sample.Sample {
	ts := raw.Timestamp
	if ts.IsZero() {
		ts = s.clock.Now()
	}

	return sample.Sample{
		Timestamp:      ts.UTC(),
		TemperatureF:   sample.CelsiusToFahrenheit(raw.Celsius, s.temperatureMode),
		HumidityPct:    raw.HumidityPct,
		PressureHPa:    raw.PressureHPa,
		ECO2PPM:        raw.ECO2PPM,
		TVOCPPB:        raw.TVOCPPB,
		IlluminanceLux: raw.Lux,
		UVIndex:        sample.UVIndex(raw.UVRaw, s.integrationTime),
	}
}

func (s *Scheduler) fail(err error) {
	s.mu.Lock()
	failures := s.recordFailure(err)
	s.mu.Unlock()

	metrics.ConsecutiveFailures.Set(float64(failures))

	attrs := []any{slog.Int("consecutiveFailures", failures), slog.String("error", err.Error())}
	if failures == s.degradedThreshold {
		s.logger.Error("sampler degraded", attrs...)
		return
	}
	s.logger.Warn("sampling failed", attrs...)
}

func (s *Scheduler) publish(ctx context.Context, smp sample.Sample) {
	if len(s.publishers) == 0 {
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	for _, p := range s.publishers {
		if err := p.Publish(pubCtx, smp); err != nil {
			metrics.PublishErrors.WithLabelValues(p.Name()).Inc()
			s.logger.Warn("publishing sample failed",
				slog.String("publisher", p.Name()),
				slog.String("error", err.Error()))
		}
	}
}
