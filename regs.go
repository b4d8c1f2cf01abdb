package el2

import "fmt"

// Reg represents an ARM64 general/special register of an interrupted
// context.
type Reg int

const (
	RegX0 Reg = iota
	RegX1
	RegX2
	RegX3
	RegX4
	RegX5
	RegX6
	RegX7
	RegX8
	RegX9
	RegX10
	RegX11
	RegX12
	RegX13
	RegX14
	RegX15
	RegX16
	RegX17
	RegX18
	RegX19
	RegX20
	RegX21
	RegX22
	RegX23
	RegX24
	RegX25
	RegX26
	RegX27
	RegX28
	RegFP // X29
	RegLR // X30
	RegSP // Stack pointer (SP_EL0)
	RegPC
	RegCPSR
)

func (r Reg) String() string {
	switch {
	case r >= RegX0 && r <= RegX28:
		return fmt.Sprintf("x%d", int(r))
	case r == RegFP:
		return "fp"
	case r == RegLR:
		return "lr"
	case r == RegSP:
		return "sp"
	case r == RegPC:
		return "pc"
	case r == RegCPSR:
		return "cpsr"
	}
	return fmt.Sprintf("Reg(%d)", int(r))
}

// GPR returns the register selected by a 5-bit Rt/Rn field. Index 31 has no
// Reg (it is XZR or SP depending on the instruction); ok is false for it.
func GPR(index uint8) (r Reg, ok bool) {
	if index >= 31 {
		return 0, false
	}
	return Reg(index), true
}

// Context is the saved state of an interrupted guest. *Frame and the
// Hypervisor.framework *VCPU both implement it.
type Context interface {
	GetReg(r Reg) (uint64, error)
	SetReg(r Reg, v uint64) error
}

// Frame is a register frame saved by a vector stub.
type Frame struct {
	X    [31]uint64
	SP   uint64
	PC   uint64
	CPSR uint64
}

func (f *Frame) GetReg(r Reg) (uint64, error) {
	switch {
	case r >= RegX0 && r <= RegLR:
		return f.X[r], nil
	case r == RegSP:
		return f.SP, nil
	case r == RegPC:
		return f.PC, nil
	case r == RegCPSR:
		return f.CPSR, nil
	}
	return 0, fmt.Errorf("el2: invalid register %d (must be %d-%d)", r, RegX0, RegCPSR)
}

func (f *Frame) SetReg(r Reg, v uint64) error {
	switch {
	case r >= RegX0 && r <= RegLR:
		f.X[r] = v
	case r == RegSP:
		f.SP = v
	case r == RegPC:
		f.PC = v
	case r == RegCPSR:
		f.CPSR = v
	default:
		return fmt.Errorf("el2: invalid register %d (must be %d-%d)", r, RegX0, RegCPSR)
	}
	return nil
}
