//go:build unix

package el2

import "golang.org/x/sys/unix"

func allocFrame() ([]byte, error) {
	return unix.Mmap(-1, 0, FrameSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func freeFrame(f []byte) error {
	return unix.Munmap(f)
}
