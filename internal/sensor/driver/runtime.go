package driver

import (
	"errors"
	"fmt"
	"os/exec"
)

// FindRuntime resolves the helper program used to talk to a sensor
func FindRuntime(device, runtime string) (string, error) {
	if runtime == "" {
		return "", NewConfigError(device, "no command configured")
	}

	binPath, err := exec.LookPath(runtime)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", NewConfigError(device, fmt.Sprintf("command '%s' not found", runtime))
		}
		return "", NewRuntimeError(device, "looking up command", err)
	}

	return binPath, nil
}
