package sample

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSample is returned by Validate when a sample has a missing or
// implausible field.
var ErrInvalidSample = errors.New("invalid sample")

// Sample is one complete, timestamped set of readings across all monitored channels.
// Samples are immutable once stored.
type Sample struct {
	Timestamp      time.Time `json:"timestamp"`       // When the sample was taken (UTC)
	TemperatureF   float64   `json:"temperature_f"`   // Air temperature in °F
	HumidityPct    float64   `json:"humidity_pct"`    // Relative humidity in %
	PressureHPa    float64   `json:"pressure_hpa"`    // Barometric pressure in hPa
	ECO2PPM        int64     `json:"eco2_ppm"`        // Equivalent CO2 in ppm
	TVOCPPB        int64     `json:"tvoc_ppb"`        // Total volatile organic compounds in ppb
	IlluminanceLux float64   `json:"illuminance_lux"` // Ambient light in lux
	UVIndex        int       `json:"uv_index"`        // UV risk level, see UVIndex
}

// Validate reports whether every field of the sample is populated with a plausible value.
func (s Sample) Validate() error {
	switch {
	case s.Timestamp.IsZero():
		return fmt.Errorf("%w: missing timestamp", ErrInvalidSample)
	case s.ECO2PPM < 0:
		return fmt.Errorf("%w: negative eCO2: %d", ErrInvalidSample, s.ECO2PPM)
	case s.TVOCPPB < 0:
		return fmt.Errorf("%w: negative TVOC: %d", ErrInvalidSample, s.TVOCPPB)
	case s.IlluminanceLux < 0:
		return fmt.Errorf("%w: negative illuminance: %f", ErrInvalidSample, s.IlluminanceLux)
	case s.UVIndex < UVLow || s.UVIndex > UVExtreme:
		return fmt.Errorf("%w: UV index out of range: %d", ErrInvalidSample, s.UVIndex)
	}
	return nil
}

// After reports whether s was taken strictly after o.
func (s Sample) After(o Sample) bool {
	return s.Timestamp.After(o.Timestamp)
}

func (s Sample) String() string {
	return fmt.Sprintf("%s: %.1f°F, %.1f%%, %.1fhPa, eCO2 %dppm, TVOC %dppb, %.1flux, UV %d",
		s.Timestamp.Format(time.DateTime),
		s.TemperatureF,
		s.HumidityPct,
		s.PressureHPa,
		s.ECO2PPM,
		s.TVOCPPB,
		s.IlluminanceLux,
		s.UVIndex)
}
