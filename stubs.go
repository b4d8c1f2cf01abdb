//go:build !darwin || !arm64

package el2

// VM is unavailable on this platform.
type VM struct{}

// VCPU is unavailable on this platform.
type VCPU struct{}

// Supported returns false on non-Darwin platforms.
func Supported() (bool, error) {
	return false, ErrNotSupported
}

// NewVM returns an error on non-Darwin platforms.
func NewVM() (*VM, error) {
	return nil, ErrNotSupported
}

func (vm *VM) Close() error                                       { return ErrNotSupported }
func (vm *VM) Map(host []byte, guestPhys uint64, p MemPerm) error { return ErrNotSupported }
func (vm *VM) Unmap(guestPhys, size uint64) error                 { return ErrNotSupported }
func (vm *VM) NewVCPU() (*VCPU, error)                            { return nil, ErrNotSupported }

func (c *VCPU) Close() error                 { return ErrNotSupported }
func (c *VCPU) GetReg(r Reg) (uint64, error) { return 0, ErrNotSupported }
func (c *VCPU) SetReg(r Reg, v uint64) error { return ErrNotSupported }
func (c *VCPU) GetPC() (uint64, error)       { return 0, ErrNotSupported }
func (c *VCPU) SetPC(v uint64) error         { return ErrNotSupported }
func (c *VCPU) Run() (ExitInfo, error)       { return ExitInfo{}, ErrNotSupported }
