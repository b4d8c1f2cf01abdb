//go:build darwin && arm64

package el2

import (
	"testing"
)

func TestSupported(t *testing.T) {
	t.Run("consistent across calls", func(t *testing.T) {
		first, err := Supported()
		if err != nil {
			t.Fatalf("Supported() returned error: %v", err)
		}
		for i := 0; i < 3; i++ {
			got, err := Supported()
			if err != nil {
				t.Fatalf("Supported() call %d returned error: %v", i, err)
			}
			if got != first {
				t.Errorf("Supported() call %d = %v, want %v", i, got, first)
			}
		}
	})

	t.Run("host page size is a translation granule", func(t *testing.T) {
		switch got := HostPageSize(); got {
		case 4 << 10, 16 << 10, 64 << 10:
		default:
			t.Errorf("HostPageSize() = %#x", got)
		}
	})
}
