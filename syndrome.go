package el2

import "fmt"

// Syndrome is an ESR_ELx value delivered on a synchronous trap.
type Syndrome uint64

const (
	ecShift = 26
	ecMask  = 0x3F
	ilBit   = 1 << 25
	issMask = 0x1FFFFFF
)

// Class returns the exception class (bits 31:26).
func (s Syndrome) Class() ExceptionClass { return ExceptionClass((s >> ecShift) & ecMask) }

// ISS returns the instruction-specific syndrome (bits 24:0).
func (s Syndrome) ISS() uint32 { return uint32(s & issMask) }

// IL reports a 32-bit trapped instruction.
func (s Syndrome) IL() bool { return s&ilBit != 0 }

func (s Syndrome) String() string {
	return fmt.Sprintf("esr=%#x ec=%#x(%s) il=%t iss=%#x", uint64(s), uint8(s.Class()), s.Class(), s.IL(), s.ISS())
}

// NewSyndrome assembles a syndrome from its fields.
func NewSyndrome(ec ExceptionClass, il bool, iss uint32) Syndrome {
	s := Syndrome(ec&ecMask)<<ecShift | Syndrome(iss&issMask)
	if il {
		s |= ilBit
	}
	return s
}

// ExceptionClass is the 6-bit ESR_ELx.EC field.
type ExceptionClass uint8

const (
	ECUnknown           ExceptionClass = 0x00
	ECWFxTrap           ExceptionClass = 0x01
	ECMCRMRC            ExceptionClass = 0x03
	ECMCRRMRRC          ExceptionClass = 0x04
	ECIllegalExec       ExceptionClass = 0x0E
	ECSVC32             ExceptionClass = 0x11
	ECSVC64             ExceptionClass = 0x15
	ECHVC64             ExceptionClass = 0x16
	ECSMC64             ExceptionClass = 0x17
	ECSysReg            ExceptionClass = 0x18
	ECInstrAbortLowerEL ExceptionClass = 0x20
	ECInstrAbortCurEL   ExceptionClass = 0x21
	ECPCAlign           ExceptionClass = 0x22
	ECDataAbortLowerEL  ExceptionClass = 0x24
	ECDataAbortCurEL    ExceptionClass = 0x25
	ECSPAlign           ExceptionClass = 0x26
	ECFPASIMD           ExceptionClass = 0x28
	ECSError            ExceptionClass = 0x2F
	ECBreakpointLowerEL ExceptionClass = 0x30
	ECBreakpointCurEL   ExceptionClass = 0x31
	ECSoftStepLowerEL   ExceptionClass = 0x32
	ECSoftStepCurEL     ExceptionClass = 0x33
	ECWatchpointLowerEL ExceptionClass = 0x34
	ECWatchpointCurEL   ExceptionClass = 0x35
	ECBKPT32            ExceptionClass = 0x38
	ECVectorCatch       ExceptionClass = 0x3A
	ECBRK64             ExceptionClass = 0x3C
)

var ecNames = map[ExceptionClass]string{
	ECUnknown:           "unknown",
	ECWFxTrap:           "wfi/wfe",
	ECMCRMRC:            "mcr/mrc",
	ECMCRRMRRC:          "mcrr/mrrc",
	ECIllegalExec:       "illegal execution state",
	ECSVC32:             "svc (aarch32)",
	ECSVC64:             "svc",
	ECHVC64:             "hvc",
	ECSMC64:             "smc",
	ECSysReg:            "msr/mrs/sys",
	ECInstrAbortLowerEL: "instruction abort (lower el)",
	ECInstrAbortCurEL:   "instruction abort (current el)",
	ECPCAlign:           "pc alignment",
	ECDataAbortLowerEL:  "data abort (lower el)",
	ECDataAbortCurEL:    "data abort (current el)",
	ECSPAlign:           "sp alignment",
	ECFPASIMD:           "fp/asimd",
	ECSError:            "serror",
	ECBreakpointLowerEL: "breakpoint (lower el)",
	ECBreakpointCurEL:   "breakpoint (current el)",
	ECSoftStepLowerEL:   "software step (lower el)",
	ECSoftStepCurEL:     "software step (current el)",
	ECWatchpointLowerEL: "watchpoint (lower el)",
	ECWatchpointCurEL:   "watchpoint (current el)",
	ECBKPT32:            "bkpt (aarch32)",
	ECVectorCatch:       "vector catch",
	ECBRK64:             "brk",
}

func (ec ExceptionClass) String() string {
	if n, ok := ecNames[ec]; ok {
		return n
	}
	return fmt.Sprintf("ec %#x", uint8(ec))
}

// System-register access ISS layout (EC 0x18, also used for the HVC
// register-access calls).
const (
	issDirRead  = 1 << 0
	issCRmShift = 1
	issRtShift  = 5
	issCRnShift = 10
	issOp1Shift = 14
	issOp2Shift = 17
	issOp0Shift = 20

	// ISSRtMask covers the Rt field; emulation entries ignore it when
	// matching so any general-purpose register may participate.
	ISSRtMask = 0x1F << issRtShift
)

// SysRegAccess is a decoded system-register access ISS.
type SysRegAccess struct {
	Reg  SysRegID
	Rt   uint8
	Read bool
}

// DecodeSysRegISS splits a system-register access ISS into its fields.
func DecodeSysRegISS(iss uint32) SysRegAccess {
	return SysRegAccess{
		Reg: SysRegID{
			Op0: uint8(iss>>issOp0Shift) & 0x3,
			Op1: uint8(iss>>issOp1Shift) & 0x7,
			CRn: uint8(iss>>issCRnShift) & 0xF,
			CRm: uint8(iss>>issCRmShift) & 0xF,
			Op2: uint8(iss>>issOp2Shift) & 0x7,
		},
		Rt:   uint8(iss>>issRtShift) & 0x1F,
		Read: iss&issDirRead != 0,
	}
}

// ISS encodes the access back into the system-register ISS layout.
func (a SysRegAccess) ISS() uint32 {
	iss := uint32(a.Reg.Op0&0x3)<<issOp0Shift |
		uint32(a.Reg.Op2&0x7)<<issOp2Shift |
		uint32(a.Reg.Op1&0x7)<<issOp1Shift |
		uint32(a.Reg.CRn&0xF)<<issCRnShift |
		uint32(a.Rt&0x1F)<<issRtShift |
		uint32(a.Reg.CRm&0xF)<<issCRmShift
	if a.Read {
		iss |= issDirRead
	}
	return iss
}

func (a SysRegAccess) String() string {
	if a.Read {
		return fmt.Sprintf("mrs x%d, %s", a.Rt, a.Reg)
	}
	return fmt.Sprintf("msr %s, x%d", a.Reg, a.Rt)
}
