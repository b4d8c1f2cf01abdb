//go:build darwin && arm64

package el2

/*
#cgo darwin LDFLAGS: -framework Hypervisor
#include <Hypervisor/Hypervisor.h>
#include <os/object.h>

static hv_return_t go_hv_vm_create(void) {
#if __has_include(<Hypervisor/hv_vm_config.h>)
	hv_vm_config_t config = hv_vm_config_create();
	if (!config) {
		return HV_ERROR;
	}
	uint32_t ipa = 0;
	hv_return_t ret = hv_vm_config_get_default_ipa_size(&ipa);
	if (ret == HV_SUCCESS) {
		ret = hv_vm_config_set_ipa_size(config, ipa);
	}
	if (ret == HV_SUCCESS) {
		ret = hv_vm_create(config);
	}
	os_release(config);
	return ret;
#else
	return hv_vm_create(NULL);
#endif
}

static hv_return_t go_hv_vm_map(void *addr, uint64_t gpa, uint64_t size, int perms) {
	hv_memory_flags_t flags = 0;
	if (perms & 1) flags |= HV_MEMORY_READ;
	if (perms & 2) flags |= HV_MEMORY_WRITE;
	if (perms & 4) flags |= HV_MEMORY_EXEC;
	return hv_vm_map(addr, gpa, (size_t)size, flags);
}
*/
import "C"

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"
)

func hvErr(code C.hv_return_t) error {
	if code == C.HV_SUCCESS {
		return nil
	}
	return &Error{Code: uint32(code)}
}

// VM is the process's single Hypervisor.framework VM.
type VM struct {
	mu     sync.Mutex
	closed bool
}

// VCPU is a Hypervisor.framework vCPU. It implements Context and GuestCPU;
// like every vCPU it must only be used from the thread that created it.
type VCPU struct {
	mu     sync.Mutex
	id     C.hv_vcpu_t
	exit   *C.hv_vcpu_exit_t
	closed bool
}

var (
	vmMu     sync.Mutex
	vmActive bool
)

// NewVM creates the VM for this process. Only one may exist at a time.
func NewVM() (*VM, error) {
	vmMu.Lock()
	defer vmMu.Unlock()
	if vmActive {
		return nil, ErrVMAlreadyActive
	}
	if err := hvErr(C.go_hv_vm_create()); err != nil {
		return nil, err
	}
	vmActive = true
	vm := &VM{}
	runtime.SetFinalizer(vm, (*VM).Close)
	return vm, nil
}

// Close destroys the VM. Idempotent.
func (vm *VM) Close() error {
	if vm == nil {
		return nil
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.closed {
		return nil
	}
	vmMu.Lock()
	defer vmMu.Unlock()
	if err := hvErr(C.hv_vm_destroy()); err != nil {
		return fmt.Errorf("failed to destroy VM: %w", err)
	}
	vm.closed = true
	vmActive = false
	runtime.SetFinalizer(vm, nil)
	return nil
}

// Map maps a page-aligned host buffer at guestPhys.
func (vm *VM) Map(host []byte, guestPhys uint64, perms MemPerm) error {
	if vm == nil || vm.closed {
		return ErrVMClosed
	}
	page := HostPageSize()
	switch {
	case len(host) == 0:
		return fmt.Errorf("hv: map requires non-empty host buffer")
	case perms == 0 || perms&^(MemRead|MemWrite|MemExec) != 0:
		return fmt.Errorf("hv: invalid permission bits 0x%x", perms)
	case guestPhys%page != 0 || uint64(len(host))%page != 0:
		return fmt.Errorf("hv: guestPhys 0x%x and length %d must be multiples of page size %d", guestPhys, len(host), page)
	}
	ptr := unsafe.Pointer(&host[0])
	if uint64(uintptr(ptr))%page != 0 {
		return fmt.Errorf("hv: host base not page-aligned: %p", ptr)
	}
	if err := hvErr(C.go_hv_vm_map(ptr, C.uint64_t(guestPhys), C.uint64_t(len(host)), C.int(perms))); err != nil {
		return fmt.Errorf("failed to map %d bytes at 0x%x: %w", len(host), guestPhys, err)
	}
	return nil
}

// Unmap removes a region from the guest physical address space.
func (vm *VM) Unmap(guestPhys, size uint64) error {
	if vm == nil || vm.closed {
		return ErrVMClosed
	}
	if err := hvErr(C.hv_vm_unmap(C.hv_ipa_t(guestPhys), C.size_t(size))); err != nil {
		return fmt.Errorf("failed to unmap region 0x%x+%d: %w", guestPhys, size, err)
	}
	return nil
}

// NewVCPU creates a vCPU on the calling thread, which stays locked to it
// until Close.
func (vm *VM) NewVCPU() (*VCPU, error) {
	if vm == nil || vm.closed {
		return nil, ErrVMClosed
	}
	runtime.LockOSThread()
	c := &VCPU{}
	if err := hvErr(C.hv_vcpu_create(&c.id, &c.exit, nil)); err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}
	return c, nil
}

// Close destroys this vCPU.
func (c *VCPU) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if err := hvErr(C.hv_vcpu_destroy(c.id)); err != nil {
		return fmt.Errorf("failed to destroy vCPU: %w", err)
	}
	c.closed = true
	runtime.UnlockOSThread()
	return nil
}

var hvRegs = [...]C.hv_reg_t{
	RegX0: C.HV_REG_X0, RegX1: C.HV_REG_X1, RegX2: C.HV_REG_X2, RegX3: C.HV_REG_X3,
	RegX4: C.HV_REG_X4, RegX5: C.HV_REG_X5, RegX6: C.HV_REG_X6, RegX7: C.HV_REG_X7,
	RegX8: C.HV_REG_X8, RegX9: C.HV_REG_X9, RegX10: C.HV_REG_X10, RegX11: C.HV_REG_X11,
	RegX12: C.HV_REG_X12, RegX13: C.HV_REG_X13, RegX14: C.HV_REG_X14, RegX15: C.HV_REG_X15,
	RegX16: C.HV_REG_X16, RegX17: C.HV_REG_X17, RegX18: C.HV_REG_X18, RegX19: C.HV_REG_X19,
	RegX20: C.HV_REG_X20, RegX21: C.HV_REG_X21, RegX22: C.HV_REG_X22, RegX23: C.HV_REG_X23,
	RegX24: C.HV_REG_X24, RegX25: C.HV_REG_X25, RegX26: C.HV_REG_X26, RegX27: C.HV_REG_X27,
	RegX28: C.HV_REG_X28, RegFP: C.HV_REG_FP, RegLR: C.HV_REG_LR,
	RegPC: C.HV_REG_PC, RegCPSR: C.HV_REG_CPSR,
}

func (c *VCPU) GetReg(r Reg) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrVCPUClosed
	}
	var val C.uint64_t
	var ret C.hv_return_t
	switch {
	case r == RegSP:
		ret = C.hv_vcpu_get_sys_reg(c.id, C.HV_SYS_REG_SP_EL0, &val)
	case r >= RegX0 && r <= RegCPSR:
		ret = C.hv_vcpu_get_reg(c.id, hvRegs[r], &val)
	default:
		return 0, fmt.Errorf("hv: invalid register %d (must be %d-%d)", r, RegX0, RegCPSR)
	}
	if err := hvErr(ret); err != nil {
		return 0, fmt.Errorf("failed to get register %s: %w", r, err)
	}
	return uint64(val), nil
}

func (c *VCPU) SetReg(r Reg, v uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrVCPUClosed
	}
	var ret C.hv_return_t
	switch {
	case r == RegSP:
		ret = C.hv_vcpu_set_sys_reg(c.id, C.HV_SYS_REG_SP_EL0, C.uint64_t(v))
	case r >= RegX0 && r <= RegCPSR:
		ret = C.hv_vcpu_set_reg(c.id, hvRegs[r], C.uint64_t(v))
	default:
		return fmt.Errorf("hv: invalid register %d (must be %d-%d)", r, RegX0, RegCPSR)
	}
	if err := hvErr(ret); err != nil {
		return fmt.Errorf("failed to set register %s: %w", r, err)
	}
	return nil
}

func (c *VCPU) GetPC() (uint64, error) { return c.GetReg(RegPC) }
func (c *VCPU) SetPC(v uint64) error   { return c.SetReg(RegPC, v) }

// Run executes the vCPU until it exits.
func (c *VCPU) Run() (ExitInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var info ExitInfo
	if c.closed {
		return info, ErrVCPUClosed
	}
	if err := hvErr(C.hv_vcpu_run(c.id)); err != nil {
		return info, fmt.Errorf("failed to run vCPU: %w", err)
	}
	switch c.exit.reason {
	case C.HV_EXIT_REASON_EXCEPTION:
		info.Reason = ExitException
		info.ESR = uint64(c.exit.exception.syndrome)
		info.FAR = uint64(c.exit.exception.virtual_address)
	case C.HV_EXIT_REASON_VTIMER_ACTIVATED:
		info.Reason = ExitTimer
	case C.HV_EXIT_REASON_CANCELED:
		info.Reason = ExitCanceled
	default:
		info.Reason = ExitUnknown
	}
	return info, nil
}
