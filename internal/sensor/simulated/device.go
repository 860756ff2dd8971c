package simulated

import (
	"context"
	"errors"
	"math"
	"sync"
)

// ErrInjected is returned by reads selected by Config.FailEvery
var ErrInjected = errors.New("injected sensor failure")

// Config controls the synthetic signal. Zero values fall back to indoor defaults.
type Config struct {
	Celsius     float64 `yaml:"celsius"`
	HumidityPct float64 `yaml:"humidity"`
	PressureHPa float64 `yaml:"pressure"`
	ECO2PPM     int64   `yaml:"eco2"`
	TVOCPPB     int64   `yaml:"tvoc"`
	Lux         float64 `yaml:"lux"`
	UVRaw       uint16  `yaml:"uvRaw"`
	Period      int     `yaml:"period"`    // Number of reads per full oscillation
	FailEvery   int     `yaml:"failEvery"` // Every n-th read fails, 0 disables
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Celsius == 0 {
		out.Celsius = 21.5
	}
	if out.HumidityPct == 0 {
		out.HumidityPct = 40
	}
	if out.PressureHPa == 0 {
		out.PressureHPa = 1013.25
	}
	if out.ECO2PPM == 0 {
		out.ECO2PPM = 450
	}
	if out.TVOCPPB == 0 {
		out.TVOCPPB = 20
	}
	if out.Lux == 0 {
		out.Lux = 300
	}
	if out.UVRaw == 0 {
		out.UVRaw = 200
	}
	if out.Period <= 0 {
		out.Period = 600
	}
	return out
}

// Device produces a slow, deterministic oscillation around the configured values.
// It implements every sensor interface, so one Device can stand in for the whole
// array or for a single channel.
type Device struct {
	config Config

	mu    sync.Mutex
	reads int
}

func New(config *Config) *Device {
	if config == nil {
		config = &Config{}
	}
	return &Device{config: config.withDefaults()}
}

// Reads returns the number of reads served so far, failed ones included
func (d *Device) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

// next advances the read counter and returns the current phase in [-1, 1]
func (d *Device) next(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	d.mu.Lock()
	d.reads++
	n := d.reads
	d.mu.Unlock()

	if d.config.FailEvery > 0 && n%d.config.FailEvery == 0 {
		return 0, ErrInjected
	}
	return math.Sin(2 * math.Pi * float64(n) / float64(d.config.Period)), nil
}

func (d *Device) ReadClimate(ctx context.Context) (celsius, humidityPct, pressureHPa float64, err error) {
	phase, err := d.next(ctx)
	if err != nil {
		return
	}
	celsius = d.config.Celsius + 2*phase
	humidityPct = math.Min(100, math.Max(0, d.config.HumidityPct-5*phase))
	pressureHPa = d.config.PressureHPa + phase
	return
}

func (d *Device) ReadAirQuality(ctx context.Context) (eco2PPM, tvocPPB int64, err error) {
	phase, err := d.next(ctx)
	if err != nil {
		return
	}
	eco2PPM = max(0, d.config.ECO2PPM+int64(50*phase))
	tvocPPB = max(0, d.config.TVOCPPB+int64(10*phase))
	return
}

func (d *Device) ReadLux(ctx context.Context) (float64, error) {
	phase, err := d.next(ctx)
	if err != nil {
		return 0, err
	}
	return math.Max(0, d.config.Lux*(1+0.5*phase)), nil
}

func (d *Device) ReadUV(ctx context.Context) (uint16, error) {
	phase, err := d.next(ctx)
	if err != nil {
		return 0, err
	}
	return uint16(min(math.MaxUint16, math.Max(0, float64(d.config.UVRaw)*(1+0.5*phase)))), nil
}
