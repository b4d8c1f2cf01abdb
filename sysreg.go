package el2

import (
	"fmt"
	"strings"
)

// SysReg names a host (EL2-owned) system register reachable through a
// SysRegPort.
type SysReg int

const (
	HCR_EL2 SysReg = iota
	MAIR_EL2
	TCR_EL2
	SCTLR_EL2
	TTBR0_EL2
	ESR_EL2
	ELR_EL2
	VBAR_EL2
	ID_AA64MMFR0_EL1
	CurrentEL
	numSysRegs
)

var sysRegNames = [numSysRegs]string{
	HCR_EL2:          "HCR_EL2",
	MAIR_EL2:         "MAIR_EL2",
	TCR_EL2:          "TCR_EL2",
	SCTLR_EL2:        "SCTLR_EL2",
	TTBR0_EL2:        "TTBR0_EL2",
	ESR_EL2:          "ESR_EL2",
	ELR_EL2:          "ELR_EL2",
	VBAR_EL2:         "VBAR_EL2",
	ID_AA64MMFR0_EL1: "ID_AA64MMFR0_EL1",
	CurrentEL:        "CurrentEL",
}

func (r SysReg) String() string {
	if r < 0 || r >= numSysRegs {
		return fmt.Sprintf("SysReg(%d)", int(r))
	}
	return sysRegNames[r]
}

// ParseSysReg resolves a register name (case-insensitive).
func ParseSysReg(name string) (SysReg, error) {
	for i, n := range sysRegNames {
		if strings.EqualFold(n, name) {
			return SysReg(i), nil
		}
	}
	return 0, fmt.Errorf("el2: unknown system register %q", name)
}

// SysRegPort is the only way the core touches system registers. Production
// backs it with MRS/MSR (see NativePort); tests and the CLI simulator use
// MemPort.
type SysRegPort interface {
	Read(r SysReg) uint64
	Write(r SysReg, v uint64)
}

// TLBInvalidator is implemented by ports that can discard cached
// translations after a live descriptor is changed.
type TLBInvalidator interface {
	InvalidateTLB()
}

// CurrentExceptionLevel decodes the CurrentEL register (EL in bits 3:2).
func CurrentExceptionLevel(port SysRegPort) uint64 {
	return (port.Read(CurrentEL) >> 2) & 0x3
}
