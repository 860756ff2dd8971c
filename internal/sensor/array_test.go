package sensor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/require"
)

type fakeDevices struct {
	luxReads int
	uvReads  int

	climateErr error
	uvErr      error
	eco2       int64
}

func (f *fakeDevices) ReadClimate(context.Context) (float64, float64, float64, error) {
	if f.climateErr != nil {
		return 0, 0, 0, f.climateErr
	}
	return 21.5, 40, 1013.25, nil
}

func (f *fakeDevices) ReadAirQuality(context.Context) (int64, int64, error) {
	return f.eco2, 15, nil
}

// ReadLux returns the ordinal of the read, so the test can tell which one was kept
func (f *fakeDevices) ReadLux(context.Context) (float64, error) {
	f.luxReads++
	return float64(f.luxReads), nil
}

func (f *fakeDevices) ReadUV(context.Context) (uint16, error) {
	f.uvReads++
	if f.uvErr != nil {
		return 0, f.uvErr
	}
	return uint16(f.uvReads * 10), nil
}

func newTestArray(t *testing.T, f *fakeDevices, options ...func(*Array)) *Array {
	t.Helper()

	a, err := NewArray(f, f, f, f, options...)
	require.NoError(t, err)
	return a
}

func TestArray_ReadKeepsLastSettleRead(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := &fakeDevices{eco2: 420}
	a := newTestArray(t, f, WithClock(testclock.NewClock(now)))

	r, err := a.Read(context.Background())
	require.NoError(t, err)

	require.Equal(t, DefaultSettleReads, f.luxReads)
	require.Equal(t, DefaultSettleReads, f.uvReads)
	require.Equal(t, float64(DefaultSettleReads), r.Lux)
	require.Equal(t, uint16(DefaultSettleReads*10), r.UVRaw)

	require.Equal(t, 21.5, r.Celsius)
	require.Equal(t, 40.0, r.HumidityPct)
	require.Equal(t, 1013.25, r.PressureHPa)
	require.Equal(t, int64(420), r.ECO2PPM)
	require.Equal(t, int64(15), r.TVOCPPB)
	require.Equal(t, now, r.Timestamp)
}

func TestArray_CustomSettleReads(t *testing.T) {
	f := &fakeDevices{}
	a := newTestArray(t, f, WithSettleReads(3))

	r, err := a.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, f.luxReads)
	require.Equal(t, 3.0, r.Lux)
}

func TestArray_DeviceErrorAbortsRead(t *testing.T) {
	boom := errors.New("i2c nack")

	testCases := []struct {
		name   string
		f      *fakeDevices
		device string
	}{
		{"uv", &fakeDevices{uvErr: boom}, DeviceUV},
		{"climate", &fakeDevices{climateErr: boom}, DeviceClimate},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a := newTestArray(t, tc.f)

			r, err := a.Read(context.Background())
			require.ErrorIs(t, err, ErrSensorRead)
			require.ErrorIs(t, err, boom)
			require.Equal(t, RawReading{}, r)

			var readErr *ReadError
			require.ErrorAs(t, err, &readErr)
			require.Equal(t, tc.device, readErr.Device)
		})
	}
}

func TestArray_ImplausibleValue(t *testing.T) {
	a := newTestArray(t, &fakeDevices{eco2: -1})

	_, err := a.Read(context.Background())
	require.ErrorIs(t, err, ErrSensorRead)
}

func TestArray_CancelledContext(t *testing.T) {
	f := &fakeDevices{}
	a := newTestArray(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Read(ctx)
	require.ErrorIs(t, err, ErrSensorRead)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, f.luxReads)
}

func TestNewArray_Validation(t *testing.T) {
	f := &fakeDevices{}

	_, err := NewArray(nil, f, f, f)
	require.Error(t, err)

	_, err = NewArray(f, f, f, f, WithSettleReads(0))
	require.Error(t, err)
}
