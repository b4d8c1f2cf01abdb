//go:build darwin && arm64 && hypervisor

package el2

import (
	"encoding/binary"
	"testing"

	"golang.org/x/sys/unix"
)

func TestRunGuestHosted(t *testing.T) {
	requireHypervisor(t)

	vm, err := NewVM()
	if err != nil {
		t.Skipf("Cannot create VM (likely missing entitlements): %v", err)
	}
	defer vm.Close()

	vcpu, err := vm.NewVCPU()
	if err != nil {
		t.Fatalf("Failed to create vCPU: %v", err)
	}
	defer vcpu.Close()

	pageSize := unix.Getpagesize()
	buf, err := unix.Mmap(-1, 0, pageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		t.Fatalf("Failed to mmap: %v", err)
	}
	defer unix.Munmap(buf)

	// mov x0,#0x42 ; hvc #0x10 ; hvc #0x31 (read into x1) ; brk #0
	binary.LittleEndian.PutUint32(buf[0:], 0xD2800840)
	binary.LittleEndian.PutUint32(buf[4:], 0xD4000202)
	binary.LittleEndian.PutUint32(buf[8:], 0xD4000622)
	binary.LittleEndian.PutUint32(buf[12:], 0xD4200000)

	const guestPhys = 0x4000
	if err := vm.Map(buf, guestPhys, MemRead|MemWrite|MemExec); err != nil {
		t.Fatalf("Failed to map guest memory: %v", err)
	}
	defer vm.Unmap(guestPhys, uint64(pageSize))

	if err := vcpu.SetPC(guestPhys); err != nil {
		t.Fatalf("Failed to set PC: %v", err)
	}

	d := NewDispatcher(NewEmulator(WithEmulatorLogger(quietLogger())), WithDispatcherLogger(quietLogger()))
	sysregs := NewVSysRegFile()
	sess, err := RunGuest(vcpu, d, sysregs, 8, quietLogger())
	if err != nil {
		t.Fatalf("RunGuest() error = %v", err)
	}
	if len(sess.Outcomes) != 2 {
		t.Fatalf("outcomes = %+v, want 2", sess.Outcomes)
	}
	if got := sysregs.Get(SysRegID{CRm: 8}); got != 0x42 {
		t.Errorf("virtual register = %#x, want 0x42", got)
	}
	if x1, _ := vcpu.GetReg(RegX1); x1 != 0x42 {
		t.Errorf("x1 = %#x, want 0x42", x1)
	}
	if pc, _ := vcpu.GetPC(); pc != guestPhys+12 {
		t.Errorf("PC = %#x, want brk at %#x", pc, guestPhys+12)
	}
}

func TestVMSingleton(t *testing.T) {
	requireHypervisor(t)

	vm, err := NewVM()
	if err != nil {
		t.Skipf("Cannot create VM (likely missing entitlements): %v", err)
	}
	defer vm.Close()

	if _, err := NewVM(); err != ErrVMAlreadyActive {
		t.Errorf("second NewVM() error = %v, want %v", err, ErrVMAlreadyActive)
	}
	if err := vm.Map(make([]byte, 1), 0x1001, MemRead); err == nil {
		t.Error("Map() with unaligned guest address succeeded")
	}
}
