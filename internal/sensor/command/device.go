package command

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/environmental-monitor/internal/sensor/driver"
)

// Keys recognised in the helper output
const (
	KeyTemperature = "temperature"
	KeyHumidity    = "humidity"
	KeyPressure    = "pressure"
	KeyECO2        = "eco2"
	KeyTVOC        = "tvoc"
	KeyLux         = "lux"
	KeyUVRaw       = "uv_raw"
)

// waitDelay bounds how long a killed helper may keep its output pipes open
const waitDelay = 500 * time.Millisecond

// ErrMissingValue is returned when the helper output lacks a required key
var ErrMissingValue = errors.New("missing value")

// Config describes the helper command used to read a device. The command is run
// once per read and must print whitespace separated key=value pairs to stdout,
// e.g. "temperature=21.43 humidity=40.2 pressure=1013.25".
type Config struct {
	Command  string   `yaml:"command"`
	Args     []string `yaml:"args"`
	InitArgs []string `yaml:"initArgs"` // Extra arguments passed on the first read only (device initialisation)
}

func (c *Config) Validate() error {
	if c.Command == "" {
		return errors.New("command.Config: command is required")
	}
	return nil
}

// WithLogger sets the logger for the device
func WithLogger(logger *slog.Logger) func(d *Device) {
	return func(d *Device) {
		d.logger = logger.With(slog.String("device", d.name))
	}
}

// Device reads a sensor by running an external helper program. A single Device
// implements all sensor interfaces; which keys are expected depends on the method
// called.
type Device struct {
	name     string
	binPath  string
	args     []string
	initArgs []string

	initialized atomic.Bool
	logger      *slog.Logger
}

// New creates a new Device instance with a discard logger
func New(name string, config *Config, options ...func(d *Device)) (*Device, error) {
	if err := config.Validate(); err != nil {
		return nil, driver.NewConfigError(name, err.Error())
	}

	binPath, err := driver.FindRuntime(name, config.Command)
	if err != nil {
		return nil, err
	}

	d := Device{
		name:     name,
		binPath:  binPath,
		args:     config.Args,
		initArgs: config.InitArgs,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&d)
	}

	return &d, nil
}

func (d *Device) ReadClimate(ctx context.Context) (celsius, humidityPct, pressureHPa float64, err error) {
	values, err := d.query(ctx)
	if err != nil {
		return
	}
	if celsius, err = floatValue(values, KeyTemperature); err != nil {
		return
	}
	if humidityPct, err = floatValue(values, KeyHumidity); err != nil {
		return
	}
	pressureHPa, err = floatValue(values, KeyPressure)
	return
}

func (d *Device) ReadAirQuality(ctx context.Context) (eco2PPM, tvocPPB int64, err error) {
	values, err := d.query(ctx)
	if err != nil {
		return
	}
	if eco2PPM, err = intValue(values, KeyECO2); err != nil {
		return
	}
	tvocPPB, err = intValue(values, KeyTVOC)
	return
}

func (d *Device) ReadLux(ctx context.Context) (float64, error) {
	values, err := d.query(ctx)
	if err != nil {
		return 0, err
	}
	return floatValue(values, KeyLux)
}

func (d *Device) ReadUV(ctx context.Context) (uint16, error) {
	values, err := d.query(ctx)
	if err != nil {
		return 0, err
	}
	v, err := intValue(values, KeyUVRaw)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > 0xFFFF {
		return 0, fmt.Errorf("%s out of range: %d", KeyUVRaw, v)
	}
	return uint16(v), nil
}

// query runs the helper and collects its key=value output
func (d *Device) query(ctx context.Context) (map[string]string, error) {
	args := d.args
	first := !d.initialized.Load()
	if first && len(d.initArgs) > 0 {
		args = append(append([]string{}, d.args...), d.initArgs...)
	}

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, d.binPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay // children of the helper may hold the pipes open

	err := cmd.Run()
	d.handleStderr(&stderr)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, driver.NewRuntimeError(d.name, "command exited with error", err)
	}

	values, err := parseOutput(&stdout)
	if err != nil {
		return nil, driver.NewRuntimeError(d.name, "parsing output", err)
	}

	if first {
		d.initialized.Store(true)
	}
	return values, nil
}

// handleStderr logs whatever the helper wrote to stderr
func (d *Device) handleStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		d.logger.Warn(fmt.Sprintf("%s >> %s", d.name, line))
	}
}

// parseOutput collects every key=value token, reporting all malformed ones
func parseOutput(r io.Reader) (map[string]string, error) {
	values := make(map[string]string)

	var errs []error
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		for _, field := range strings.Fields(scanner.Text()) {
			key, value, ok := strings.Cut(field, "=")
			if !ok || key == "" {
				errs = append(errs, fmt.Errorf("malformed token '%s'", field))
				continue
			}
			values[strings.ToLower(key)] = value
		}
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, fmt.Errorf("reading output: %w", err))
	}

	return values, errors.Join(errs...)
}

func floatValue(values map[string]string, key string) (float64, error) {
	raw, ok := values[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingValue, key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return v, nil
}

func intValue(values map[string]string, key string) (int64, error) {
	raw, ok := values[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingValue, key)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return v, nil
}
