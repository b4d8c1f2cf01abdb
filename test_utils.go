//go:build darwin && arm64

package el2

import (
	"os"
	"testing"
)

// isCI returns true if running in GitHub Actions
func isCI() bool {
	return os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true"
}

// requireHypervisor skips t unless a guest can actually be hosted here.
func requireHypervisor(t *testing.T) {
	t.Helper()
	if isCI() {
		t.Skip("Skipping hypervisor tests in CI environment")
	}
	supported, err := Supported()
	if err != nil {
		t.Fatalf("Supported() returned error: %v", err)
	}
	if !supported {
		t.Skip("Hypervisor not supported on this system")
	}
}
