package command

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/environmental-monitor/internal/sensor/driver"
)

func newShellDevice(t *testing.T, script string, initArgs ...string) *Device {
	t.Helper()

	d, err := New("test", &Config{
		Command:  "sh",
		Args:     []string{"-c", script, "sh"},
		InitArgs: initArgs,
	})
	if err != nil {
		t.Fatalf("Failed to create device: %v", err)
	}
	return d
}

func TestDevice_ReadClimate(t *testing.T) {
	d := newShellDevice(t, `echo "temperature=21.43 humidity=40.2"; echo "pressure=1013.25"`)

	c, h, p, err := d.ReadClimate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != 21.43 || h != 40.2 || p != 1013.25 {
		t.Errorf("got %v/%v/%v, want 21.43/40.2/1013.25", c, h, p)
	}
}

func TestDevice_ReadAirQualityAndLight(t *testing.T) {
	d := newShellDevice(t, `echo "ECO2=412 tvoc=7 lux=120.5 uv_raw=300"`)

	eco2, tvoc, err := d.ReadAirQuality(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eco2 != 412 || tvoc != 7 {
		t.Errorf("got %d/%d, want 412/7", eco2, tvoc)
	}

	lux, err := d.ReadLux(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lux != 120.5 {
		t.Errorf("got lux %v, want 120.5", lux)
	}

	uv, err := d.ReadUV(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uv != 300 {
		t.Errorf("got uv %d, want 300", uv)
	}
}

func TestDevice_Errors(t *testing.T) {
	testCases := []struct {
		name   string
		script string
	}{
		{"missing key", `echo "lux=1"`},
		{"malformed token", `echo "uv_raw=1 garbage"`},
		{"out of range", `echo "uv_raw=70000"`},
		{"not a number", `echo "uv_raw=abc"`},
		{"non-zero exit", `echo "uv_raw=1"; exit 3`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := newShellDevice(t, tc.script)
			if _, err := d.ReadUV(context.Background()); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestDevice_MissingValueIsTyped(t *testing.T) {
	d := newShellDevice(t, `echo "lux=1"`)

	_, err := d.ReadUV(context.Background())
	if !errors.Is(err, ErrMissingValue) {
		t.Errorf("expected ErrMissingValue, got %v", err)
	}
}

func TestDevice_Timeout(t *testing.T) {
	d := newShellDevice(t, `sleep 5; echo "lux=1"`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := d.ReadLux(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("read was not interrupted by the deadline")
	}
}

func TestDevice_InitArgsOnFirstReadOnly(t *testing.T) {
	log := filepath.Join(t.TempDir(), "calls")
	script := `echo "$@" >> ` + log + `; echo "lux=1"`

	d := newShellDevice(t, script, "--init")
	for i := 0; i < 3; i++ {
		if _, err := d.ReadLux(context.Background()); err != nil {
			t.Fatalf("read %d: unexpected error: %v", i, err)
		}
	}

	data, err := os.ReadFile(log)
	if err != nil {
		t.Fatalf("reading call log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(lines))
	}
	if lines[0] != "--init" {
		t.Errorf("first call args: got %q, want \"--init\"", lines[0])
	}
	for i, line := range lines[1:] {
		if line != "" {
			t.Errorf("call %d args: got %q, want none", i+2, line)
		}
	}
}

func TestNew_ConfigErrors(t *testing.T) {
	var cfgErr *driver.ConfigError

	if _, err := New("test", &Config{}); !errors.As(err, &cfgErr) {
		t.Errorf("empty command: expected ConfigError, got %v", err)
	}
	if _, err := New("test", &Config{Command: "definitely-not-a-real-binary-name"}); !errors.As(err, &cfgErr) {
		t.Errorf("unknown command: expected ConfigError, got %v", err)
	}
}
