package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/environmental-monitor/internal/sample"
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()

	s, err := NewSqliteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newSample(i int) *sample.Sample {
	return &sample.Sample{
		Timestamp:      baseTime.Add(time.Duration(i) * 2 * time.Second),
		TemperatureF:   70 + float64(i),
		HumidityPct:    40,
		PressureHPa:    1013.25,
		ECO2PPM:        400 + int64(i),
		TVOCPPB:        10,
		IlluminanceLux: 120.5,
		UVIndex:        sample.UVModerate,
	}
}

func TestSqliteStore_AppendLatestRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := &sample.Sample{
		Timestamp:      time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC),
		TemperatureF:   72.5,
		HumidityPct:    40.1,
		PressureHPa:    1013.2,
		ECO2PPM:        450,
		TVOCPPB:        12,
		IlluminanceLux: 120.0,
		UVIndex:        1,
	}
	require.NoError(t, s.Append(ctx, want))

	got, err := s.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, *want, *got)
}

func TestSqliteStore_Empty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Latest(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	recent, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, recent)
}

func TestSqliteStore_Recent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Append(ctx, newSample(i)))
	}

	testCases := []struct {
		name  string
		n     int
		wantI []int
	}{
		{"fewer than stored", 3, []int{3, 4, 5}},
		{"exactly stored", 5, []int{1, 2, 3, 4, 5}},
		{"more than stored", 300, []int{1, 2, 3, 4, 5}},
		{"zero", 0, []int{}},
		{"negative", -1, []int{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.Recent(ctx, tc.n)
			require.NoError(t, err)
			require.Len(t, got, len(tc.wantI))
			for j, i := range tc.wantI {
				require.Equal(t, *newSample(i), got[j])
			}
		})
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(5), n)

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, *newSample(5), *latest)
}

func TestSqliteStore_IdenticalTimestampsAreStable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		smp := newSample(0)
		smp.ECO2PPM = int64(500 + i)
		require.NoError(t, s.Append(ctx, smp))
	}

	first, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	second, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, first, second)

	// insertion order breaks the tie
	require.Equal(t, int64(500), first[0].ECO2PPM)
	require.Equal(t, int64(502), first[2].ECO2PPM)

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(502), latest.ECO2PPM)
}

func TestSqliteStore_AppendRejectsInvalidSample(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.ErrorIs(t, s.Append(ctx, nil), ErrStoreWrite)

	bad := newSample(1)
	bad.Timestamp = time.Time{}
	err := s.Append(ctx, bad)
	require.ErrorIs(t, err, ErrStoreWrite)
	require.ErrorIs(t, err, sample.ErrInvalidSample)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSqliteStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	s, err := NewSqliteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, newSample(1)))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s, err = NewSqliteStore(path)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestSqliteStore_ClosedStoreFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Close())

	require.ErrorIs(t, s.Append(ctx, newSample(1)), ErrStoreWrite)
}
