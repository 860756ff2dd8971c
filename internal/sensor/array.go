package sensor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/juju/clock"
)

// DefaultSettleReads is the number of back-to-back light and UV reads taken per
// sample. Only the last pair is kept, the earlier ones give the sensors time to
// settle after their internal integration cycle.
const DefaultSettleReads = 10

// WithSettleReads sets the number of light and UV reads per sample
func WithSettleReads(n int) func(*Array) {
	return func(a *Array) {
		a.settleReads = n
	}
}

// WithLogger sets the logger for the array
func WithLogger(logger *slog.Logger) func(*Array) {
	return func(a *Array) {
		a.logger = logger.With(slog.String("component", "sensor-array"))
	}
}

// WithClock sets the clock used to timestamp readings
func WithClock(clk clock.Clock) func(*Array) {
	return func(a *Array) {
		a.clock = clk
	}
}

// Array is the set of sensors sampled together. It is created once at start-up
// and passed to whoever needs to read it.
type Array struct {
	climate ClimateSensor
	air     AirQualitySensor
	light   LightSensor
	uv      UVSensor

	settleReads int
	clock       clock.Clock
	logger      *slog.Logger
}

// NewArray creates a new Array with a discard logger
func NewArray(climate ClimateSensor, air AirQualitySensor, light LightSensor, uv UVSensor, options ...func(*Array)) (*Array, error) {
	a := Array{
		climate:     climate,
		air:         air,
		light:       light,
		uv:          uv,
		settleReads: DefaultSettleReads,
		clock:       clock.WallClock,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&a)
	}

	if a.climate == nil || a.air == nil || a.light == nil || a.uv == nil {
		return nil, fmt.Errorf("sensor array: all four devices are required")
	}
	if a.settleReads < 1 {
		return nil, fmt.Errorf("sensor array: settle reads must be at least 1: %d given", a.settleReads)
	}

	return &a, nil
}

// Read takes one composite reading. Any device failure aborts the whole reading,
// a partial reading is never returned.
func (a *Array) Read(ctx context.Context) (RawReading, error) {
	var r RawReading
	var err error

	if r.ECO2PPM, r.TVOCPPB, err = a.air.ReadAirQuality(ctx); err != nil {
		return RawReading{}, &ReadError{Device: DeviceAirQuality, Err: err}
	}

	for i := 0; i < a.settleReads; i++ {
		if err = ctx.Err(); err != nil {
			return RawReading{}, &ReadError{Device: DeviceLight, Err: err}
		}
		if r.Lux, err = a.light.ReadLux(ctx); err != nil {
			return RawReading{}, &ReadError{Device: DeviceLight, Err: err}
		}
		if r.UVRaw, err = a.uv.ReadUV(ctx); err != nil {
			return RawReading{}, &ReadError{Device: DeviceUV, Err: err}
		}
	}

	if r.Celsius, r.HumidityPct, r.PressureHPa, err = a.climate.ReadClimate(ctx); err != nil {
		return RawReading{}, &ReadError{Device: DeviceClimate, Err: err}
	}

	if err = checkPlausible(&r); err != nil {
		return RawReading{}, err
	}

	r.Timestamp = a.clock.Now().UTC()

	a.logger.Debug("sensors read",
		slog.Float64("celsius", r.Celsius),
		slog.Int64("eco2", r.ECO2PPM),
		slog.Float64("lux", r.Lux),
		slog.Int("uvRaw", int(r.UVRaw)))

	return r, nil
}

func checkPlausible(r *RawReading) error {
	switch {
	case math.IsNaN(r.Celsius) || math.IsInf(r.Celsius, 0):
		return &ReadError{Device: DeviceClimate, Err: fmt.Errorf("implausible temperature: %f", r.Celsius)}
	case r.HumidityPct < 0 || r.HumidityPct > 100 || math.IsNaN(r.HumidityPct):
		return &ReadError{Device: DeviceClimate, Err: fmt.Errorf("implausible humidity: %f", r.HumidityPct)}
	case r.PressureHPa <= 0 || math.IsNaN(r.PressureHPa):
		return &ReadError{Device: DeviceClimate, Err: fmt.Errorf("implausible pressure: %f", r.PressureHPa)}
	case r.ECO2PPM < 0:
		return &ReadError{Device: DeviceAirQuality, Err: fmt.Errorf("implausible eCO2: %d", r.ECO2PPM)}
	case r.TVOCPPB < 0:
		return &ReadError{Device: DeviceAirQuality, Err: fmt.Errorf("implausible TVOC: %d", r.TVOCPPB)}
	case r.Lux < 0 || math.IsNaN(r.Lux):
		return &ReadError{Device: DeviceLight, Err: fmt.Errorf("implausible illuminance: %f", r.Lux)}
	}
	return nil
}
