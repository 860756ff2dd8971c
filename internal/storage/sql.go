package storage

import (
	_ "embed"
)

const (
	insertSampleSQL = `
INSERT INTO telemetry (timestamp,
                       temperature_f,
                       humidity_pct,
                       pressure_hpa,
                       eco2_ppm,
                       tvoc_ppb,
                       illuminance_lux,
                       uv_index)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	selectRecentSQL = `
SELECT 
    timestamp,
    temperature_f,
    humidity_pct,
    pressure_hpa,
    eco2_ppm,
    tvoc_ppb,
    illuminance_lux,
    uv_index
FROM telemetry
ORDER BY timestamp DESC, id DESC
LIMIT ?`

	countSamplesSQL = `SELECT COUNT(*) FROM telemetry`
)

//go:embed schema.sql
var initSchemaSQL string
