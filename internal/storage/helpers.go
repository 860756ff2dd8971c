package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/roman-kulish/environmental-monitor/internal/sample"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if rErr := rb.Rollback(); rErr != nil && !errors.Is(rErr, sql.ErrTxDone) && *err == nil {
		*err = rErr
	}
}

func toSampleData(s *sample.Sample) *sampleData {
	return &sampleData{
		Timestamp:      s.Timestamp.UTC().UnixNano(),
		TemperatureF:   s.TemperatureF,
		HumidityPct:    s.HumidityPct,
		PressureHPa:    s.PressureHPa,
		ECO2PPM:        s.ECO2PPM,
		TVOCPPB:        s.TVOCPPB,
		IlluminanceLux: s.IlluminanceLux,
		UVIndex:        int64(s.UVIndex),
	}
}

func (d *sampleData) toSample() sample.Sample {
	return sample.Sample{
		Timestamp:      time.Unix(0, d.Timestamp).UTC(),
		TemperatureF:   d.TemperatureF,
		HumidityPct:    d.HumidityPct,
		PressureHPa:    d.PressureHPa,
		ECO2PPM:        d.ECO2PPM,
		TVOCPPB:        d.TVOCPPB,
		IlluminanceLux: d.IlluminanceLux,
		UVIndex:        int(d.UVIndex),
	}
}

// scanner is implemented by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanSample(row scanner) (*sampleData, error) {
	var d sampleData
	err := row.Scan(
		&d.Timestamp,
		&d.TemperatureF,
		&d.HumidityPct,
		&d.PressureHPa,
		&d.ECO2PPM,
		&d.TVOCPPB,
		&d.IlluminanceLux,
		&d.UVIndex,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
