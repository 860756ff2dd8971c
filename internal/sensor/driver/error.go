package driver

import "fmt"

// ConfigError is a custom error type for device configuration errors
type ConfigError struct {
	device string
	msg    string
}

func NewConfigError(device, msg string) *ConfigError {
	return &ConfigError{device: device, msg: msg}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.device, e.msg)
}

// RuntimeError is a custom error type for errors raised while talking to a device
type RuntimeError struct {
	device string
	msg    string
	err    error
}

func NewRuntimeError(device, msg string, err error) *RuntimeError {
	return &RuntimeError{device: device, msg: msg, err: err}
}

func (e *RuntimeError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %s", e.device, e.msg, e.err.Error())
	}
	return fmt.Sprintf("%s: %s", e.device, e.msg)
}

func (e *RuntimeError) Unwrap() error {
	return e.err
}
