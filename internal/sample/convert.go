package sample

import (
	"fmt"
	"math"
)

const (
	// TemperatureExact converts the Celsius reading as is.
	TemperatureExact TemperatureMode = "exact"

	// TemperatureTruncate drops the fractional part of the Celsius reading before
	// converting it, so the result moves in 1.8°F steps.
	TemperatureTruncate TemperatureMode = "truncate"
)

// TemperatureMode selects how a Celsius reading is converted to Fahrenheit.
type TemperatureMode string

func (m TemperatureMode) String() string {
	return string(m)
}

func (m TemperatureMode) Validate() error {
	switch m {
	case TemperatureExact, TemperatureTruncate:
		return nil
	default:
		return fmt.Errorf("sample.TemperatureMode: unknown mode '%s'", string(m))
	}
}

// CelsiusToFahrenheit converts c using f = c*1.8 + 32. An empty mode is treated as
// TemperatureExact.
func CelsiusToFahrenheit(c float64, mode TemperatureMode) float64 {
	if mode == TemperatureTruncate {
		c = math.Trunc(c)
	}
	return c*1.8 + 32
}

// UV risk levels
const (
	UVLow = iota
	UVModerate
	UVHigh
	UVVeryHigh
	UVExtreme
)

const (
	IntegrationHalf IntegrationTime = "half"
	Integration1T   IntegrationTime = "1t"
	Integration2T   IntegrationTime = "2t"
	Integration4T   IntegrationTime = "4t"
)

// IntegrationTime is the UV sensor integration time setting. Longer integration
// produces proportionally larger raw counts for the same irradiance.
type IntegrationTime string

func (it IntegrationTime) String() string {
	return string(it)
}

func (it IntegrationTime) Validate() error {
	if _, ok := integrationScale[it]; !ok {
		return fmt.Errorf("sample.IntegrationTime: unknown integration time '%s'", string(it))
	}
	return nil
}

// Upper raw-count bounds of the low, moderate, high and very high risk levels at
// the 1T integration time with a 270kΩ RSET.
var uvThresholds1T = [...]float64{560, 1120, 1494, 2054}

var integrationScale = map[IntegrationTime]float64{
	IntegrationHalf: 0.5,
	Integration1T:   1,
	Integration2T:   2,
	Integration4T:   4,
}

// UVIndex maps a raw UV sensor count to a risk level between UVLow and UVExtreme.
// An unknown or empty integration time is treated as Integration1T.
func UVIndex(raw uint16, it IntegrationTime) int {
	scale, ok := integrationScale[it]
	if !ok {
		scale = 1
	}

	v := float64(raw)
	for level, threshold := range uvThresholds1T {
		if v <= threshold*scale {
			return level
		}
	}
	return UVExtreme
}
