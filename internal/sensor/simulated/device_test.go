package simulated

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestDevice_Defaults(t *testing.T) {
	d := New(nil)
	ctx := context.Background()

	c, h, p, err := d.ReadClimate(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c < 19.5 || c > 23.5 {
		t.Errorf("temperature out of expected range: %f", c)
	}
	if h < 0 || h > 100 {
		t.Errorf("humidity out of range: %f", h)
	}
	if p <= 0 {
		t.Errorf("pressure must be positive: %f", p)
	}

	eco2, tvoc, err := d.ReadAirQuality(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eco2 < 0 || tvoc < 0 {
		t.Errorf("negative air quality: %d/%d", eco2, tvoc)
	}

	if d.Reads() != 2 {
		t.Errorf("expected 2 reads, got %d", d.Reads())
	}
}

func TestDevice_Deterministic(t *testing.T) {
	a := New(&Config{Period: 10})
	b := New(&Config{Period: 10})

	for i := 0; i < 20; i++ {
		la, _ := a.ReadLux(context.Background())
		lb, _ := b.ReadLux(context.Background())
		if la != lb {
			t.Fatalf("read %d: %f != %f", i, la, lb)
		}
	}
}

func TestDevice_FailEvery(t *testing.T) {
	d := New(&Config{FailEvery: 3})

	for i := 1; i <= 9; i++ {
		_, err := d.ReadUV(context.Background())
		if i%3 == 0 {
			if !errors.Is(err, ErrInjected) {
				t.Errorf("read %d: expected injected failure, got %v", i, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("read %d: unexpected error: %v", i, err)
		}
	}
}

func TestDevice_CancelledContext(t *testing.T) {
	d := New(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.ReadLux(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if d.Reads() != 0 {
		t.Errorf("cancelled read must not count, got %d", d.Reads())
	}
}

func TestDevice_UVSaturates(t *testing.T) {
	d := New(&Config{UVRaw: 60000, Period: 4}) // First read is at the crest

	uv, err := d.ReadUV(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uv != math.MaxUint16 {
		t.Errorf("expected saturated reading %d, got %d", math.MaxUint16, uv)
	}
}
