package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/roman-kulish/environmental-monitor/internal/metrics"
	"github.com/roman-kulish/environmental-monitor/internal/sample"
	"github.com/roman-kulish/environmental-monitor/internal/storage"
	"github.com/roman-kulish/environmental-monitor/internal/window"
)

const (
	DefaultTickInterval = 2 * time.Second
	DefaultSessionTTL   = 5 * time.Minute
)

var (
	// ErrNoData is returned by Latest when nothing has been stored yet
	ErrNoData = errors.New("no data available")

	// ErrUnavailable is returned when the store cannot be queried. Callers show
	// "no data" rather than stale or fabricated values.
	ErrUnavailable = errors.New("data unavailable")

	ErrUnknownSession = errors.New("unknown session")
	ErrSessionClosed  = errors.New("session closed")
)

// Reader is the read side of the time-series store
type Reader interface {
	Latest(ctx context.Context) (*sample.Sample, error)
	Recent(ctx context.Context, n int) ([]sample.Sample, error)
	Count(ctx context.Context) (int64, error)
}

// WithRollover sets the size of every session window
func WithRollover(n int) func(*Distributor) {
	return func(d *Distributor) {
		d.rollover = n
	}
}

// WithTickInterval sets how often Run refreshes a session
func WithTickInterval(interval time.Duration) func(*Distributor) {
	return func(d *Distributor) {
		d.tickInterval = interval
	}
}

// WithSessionTTL sets how long a session may go without being read or ticked
// before ReapIdle closes it
func WithSessionTTL(ttl time.Duration) func(*Distributor) {
	return func(d *Distributor) {
		d.sessionTTL = ttl
	}
}

// WithLogger sets the logger for the distributor
func WithLogger(logger *slog.Logger) func(*Distributor) {
	return func(d *Distributor) {
		d.logger = logger.With(slog.String("component", "stream"))
	}
}

// WithClock sets the time source
func WithClock(clk clock.Clock) func(*Distributor) {
	return func(d *Distributor) {
		d.clock = clk
	}
}

// Distributor serves the latest sample and per-session rolling windows from the
// store. It only ever reads the store.
type Distributor struct {
	store Reader

	rollover     int
	tickInterval time.Duration
	sessionTTL   time.Duration
	clock        clock.Clock
	logger       *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewDistributor creates a new Distributor with a discard logger
func NewDistributor(store Reader, options ...func(*Distributor)) (*Distributor, error) {
	d := Distributor{
		store:        store,
		rollover:     window.DefaultRollover,
		tickInterval: DefaultTickInterval,
		sessionTTL:   DefaultSessionTTL,
		clock:        clock.WallClock,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		sessions:     make(map[string]*Session),
	}

	for _, option := range options {
		option(&d)
	}

	if d.store == nil {
		return nil, fmt.Errorf("stream: store is required")
	}
	if d.rollover <= 0 {
		return nil, fmt.Errorf("stream: invalid rollover: %d", d.rollover)
	}
	if d.tickInterval <= 0 {
		return nil, fmt.Errorf("stream: invalid tick interval: %s", d.tickInterval)
	}
	if d.sessionTTL < d.tickInterval {
		return nil, fmt.Errorf("stream: session TTL %s is shorter than the tick interval %s", d.sessionTTL, d.tickInterval)
	}

	return &d, nil
}

// Rollover returns the size of session windows
func (d *Distributor) Rollover() int {
	return d.rollover
}

// TickInterval returns how often Run refreshes a session
func (d *Distributor) TickInterval() time.Duration {
	return d.tickInterval
}

// Latest returns the most recent stored sample.
func (d *Distributor) Latest(ctx context.Context) (*sample.Sample, error) {
	s, err := d.store.Latest(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return s, nil
}

// Open registers a new, unseeded session.
func (d *Distributor) Open() *Session {
	w, _ := window.New(d.rollover) // rollover validated in NewDistributor

	sess := &Session{
		ID:      uuid.NewString(),
		Created: d.clock.Now(),
		state:   StateUnseeded,
		window:  w,
	}
	sess.touch(sess.Created)

	d.mu.Lock()
	d.sessions[sess.ID] = sess
	d.mu.Unlock()

	metrics.ActiveSessions.Inc()
	d.logger.Debug("session opened", slog.String("session", sess.ID))
	return sess
}

// Session looks up an open session and marks it as seen.
func (d *Distributor) Session(id string) (*Session, error) {
	d.mu.RLock()
	sess, ok := d.sessions[id]
	d.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	sess.touch(d.clock.Now())
	return sess, nil
}

// Close ends a session and discards its window.
func (d *Distributor) Close(id string) error {
	d.mu.Lock()
	sess, ok := d.sessions[id]
	delete(d.sessions, id)
	d.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}

	sess.close()
	metrics.ActiveSessions.Dec()
	d.logger.Debug("session closed", slog.String("session", id))
	return nil
}

// Sessions returns the number of open sessions
func (d *Distributor) Sessions() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}

// Window returns the session's window, oldest first, seeding it from the store on
// first use.
func (d *Distributor) Window(ctx context.Context, id string) ([]sample.Sample, error) {
	sess, err := d.Session(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err = d.ensureSeeded(ctx, sess); err != nil {
		return nil, err
	}
	return sess.window.Snapshot(), nil
}

// Tick refreshes the session window: the store's latest sample is appended only
// if it is strictly newer than the newest sample already in the window, so
// repeated ticks without a new write leave the window unchanged.
func (d *Distributor) Tick(ctx context.Context, id string) (bool, error) {
	sess, err := d.Session(id)
	if err != nil {
		return false, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	return d.tick(ctx, sess)
}

// tick must be called with sess.mu held
func (d *Distributor) tick(ctx context.Context, sess *Session) (bool, error) {
	if err := d.ensureSeeded(ctx, sess); err != nil {
		return false, err
	}

	latest, err := d.store.Latest(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, mapStoreError(err)
	}

	if newest, ok := sess.window.Newest(); ok && !latest.After(newest) {
		return false, nil
	}

	sess.window.Push(*latest)
	metrics.SamplesPushed.Inc()
	return true, nil
}

// ensureSeeded must be called with sess.mu held
func (d *Distributor) ensureSeeded(ctx context.Context, sess *Session) error {
	switch sess.state {
	case StateClosed:
		return fmt.Errorf("%w: %s", ErrSessionClosed, sess.ID)
	case StateActive:
		return nil
	}

	count, err := d.store.Count(ctx)
	if err != nil {
		return mapStoreError(err)
	}

	recent, err := d.store.Recent(ctx, int(min(int64(d.rollover), count)))
	if err != nil {
		return mapStoreError(err)
	}

	sess.window.Seed(recent)
	sess.state = StateActive

	d.logger.Debug("session seeded", slog.String("session", sess.ID), slog.Int("samples", len(recent)))
	return nil
}

// Run ticks the session every tick interval and sends each newly pushed sample to
// updates. It returns when ctx is cancelled or the session is closed. Store
// failures are logged and the next tick tries again.
func (d *Distributor) Run(ctx context.Context, id string, updates chan<- sample.Sample) error {
	sess, err := d.Session(id)
	if err != nil {
		return err
	}

	timer := d.clock.NewTimer(d.tickInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.Chan():
		}

		sess.touch(d.clock.Now())
		sess.mu.Lock()
		pushed, err := d.tick(ctx, sess)
		newest, _ := sess.window.Newest()
		sess.mu.Unlock()

		switch {
		case errors.Is(err, ErrSessionClosed):
			return err
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Warn("session tick failed", slog.String("session", id), slog.String("error", err.Error()))
		case pushed:
			select {
			case updates <- newest:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		timer.Reset(d.tickInterval)
	}
}

// Reap closes every session not seen within the session TTL and returns how
// many were closed.
func (d *Distributor) Reap() int {
	cutoff := d.clock.Now().Add(-d.sessionTTL)

	d.mu.Lock()
	var idle []*Session
	for id, sess := range d.sessions {
		if !sess.LastSeen().After(cutoff) {
			idle = append(idle, sess)
			delete(d.sessions, id)
		}
	}
	d.mu.Unlock()

	for _, sess := range idle {
		sess.close()
		metrics.ActiveSessions.Dec()
		d.logger.Debug("idle session closed", slog.String("session", sess.ID), slog.Time("lastSeen", sess.LastSeen()))
	}
	if len(idle) > 0 {
		d.logger.Info("closed idle sessions", slog.Int("sessions", len(idle)), slog.Duration("ttl", d.sessionTTL))
	}
	return len(idle)
}

// ReapIdle runs Reap every half session TTL until ctx is cancelled.
func (d *Distributor) ReapIdle(ctx context.Context) error {
	interval := d.sessionTTL / 2

	timer := d.clock.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.Chan():
		}

		d.Reap()
		timer.Reset(interval)
	}
}

func mapStoreError(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNoData
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
