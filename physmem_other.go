//go:build !unix

package el2

func allocFrame() ([]byte, error) { return make([]byte, FrameSize), nil }

func freeFrame([]byte) error { return nil }
