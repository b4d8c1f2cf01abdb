//go:build darwin && arm64

package el2

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Supported reports whether Hypervisor.framework can host guests on this
// machine. A missing kern.hv_support sysctl means no hypervisor, not an error.
func Supported() (bool, error) {
	supported, err := unix.SysctlUint32("kern.hv_support")
	if errors.Is(err, unix.ENOENT) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return supported != 0, nil
}

// HostPageSize is the granule VM.Map requires for host buffers and guest
// physical addresses.
func HostPageSize() uint64 {
	return uint64(unix.Getpagesize())
}
