package storage

// sampleData is a telemetry table row
type sampleData struct {
	ID             int64
	Timestamp      int64 // UTC Unix nanoseconds
	TemperatureF   float64
	HumidityPct    float64
	PressureHPa    float64
	ECO2PPM        int64
	TVOCPPB        int64
	IlluminanceLux float64
	UVIndex        int64
}
