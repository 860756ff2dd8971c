package sensor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DeviceClimate    = "climate"
	DeviceAirQuality = "air-quality"
	DeviceLight      = "light"
	DeviceUV         = "uv"
)

// ErrSensorRead matches every error returned by a failed sensor read. It is a
// transient condition: the caller abandons the read and tries again later.
var ErrSensorRead = errors.New("sensor read failed")

// ReadError describes a failed read of a single device.
type ReadError struct {
	Device string
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("reading %s sensor: %s", e.Device, e.Err.Error())
}

func (e *ReadError) Unwrap() []error {
	return []error{ErrSensorRead, e.Err}
}

// RawReading carries raw, pre-conversion values for all channels of the array.
type RawReading struct {
	Timestamp   time.Time // When the reading completed
	Celsius     float64   // Air temperature in °C
	HumidityPct float64   // Relative humidity in %
	PressureHPa float64   // Barometric pressure in hPa
	ECO2PPM     int64     // Equivalent CO2 in ppm
	TVOCPPB     int64     // Total volatile organic compounds in ppb
	Lux         float64   // Ambient light in lux
	UVRaw       uint16    // Raw UV sensor count
}

// Reader produces one composite reading on demand. Implementations may block for
// an arbitrary time and must honour ctx cancellation.
type Reader interface {
	Read(ctx context.Context) (RawReading, error)
}

// ClimateSensor reads temperature, humidity and pressure (e.g. BME280)
type ClimateSensor interface {
	ReadClimate(ctx context.Context) (celsius, humidityPct, pressureHPa float64, err error)
}

// AirQualitySensor reads equivalent CO2 and TVOC (e.g. SGP30)
type AirQualitySensor interface {
	ReadAirQuality(ctx context.Context) (eco2PPM, tvocPPB int64, err error)
}

// LightSensor reads ambient light (e.g. VEML7700)
type LightSensor interface {
	ReadLux(ctx context.Context) (float64, error)
}

// UVSensor reads the raw UV count (e.g. VEML6070)
type UVSensor interface {
	ReadUV(ctx context.Context) (uint16, error)
}
