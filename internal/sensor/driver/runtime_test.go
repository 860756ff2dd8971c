package driver

import (
	"errors"
	"testing"
)

func TestFindRuntime(t *testing.T) {
	testCases := []struct {
		name      string
		runtime   string
		expectErr bool
	}{
		{"empty", "", true},
		{"not found", "definitely-not-a-real-binary-name", true},
		{"shell", "sh", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path, err := FindRuntime("climate", tc.runtime)
			if tc.expectErr {
				var cfgErr *ConfigError
				if !errors.As(err, &cfgErr) {
					t.Errorf("expected ConfigError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if path == "" {
				t.Error("expected a resolved path")
			}
		})
	}
}

func TestRuntimeError_Unwrap(t *testing.T) {
	cause := errors.New("permission denied")
	err := NewRuntimeError("uv", "running command", cause)

	if !errors.Is(err, cause) {
		t.Error("expected RuntimeError to unwrap to its cause")
	}
	if err.Error() != "uv: running command: permission denied" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
