package el2

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
)

// MSR/MRS (register) encodings: 1101 0101 00 L 1 o0 op1 CRn CRm op2 Rt.
const (
	sysMoveMask  = 0xFFD00000
	sysMoveMatch = 0xD5100000
	sysMoveRead  = 1 << 21
)

// Exception-generating encodings arm64asm does not decode.
const (
	excGenMask = 0xFFE0001F
	hvcMatch   = 0xD4000002
	smcMatch   = 0xD4000003
)

func exceptionGenerating(word uint32) (string, bool) {
	imm := (word >> 5) & 0xFFFF
	switch word & excGenMask {
	case hvcMatch:
		return fmt.Sprintf("hvc #%#x", imm), true
	case smcMatch:
		return fmt.Sprintf("smc #%#x", imm), true
	}
	return "", false
}

func decodeWord(word uint32) (arm64asm.Inst, error) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], word)
	inst, err := arm64asm.Decode(b[:])
	if err != nil {
		return arm64asm.Inst{}, fmt.Errorf("failed to decode %#08x: %w", word, err)
	}
	return inst, nil
}

// Disassemble renders one A64 instruction in GNU syntax.
func Disassemble(word uint32) (string, error) {
	if text, ok := exceptionGenerating(word); ok {
		return text, nil
	}
	inst, err := decodeWord(word)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(arm64asm.GNUSyntax(inst)), nil
}

// SyndromeForInstruction returns the syndrome an instruction produces when
// it traps to EL2: EC 0x16/0x17 with the immediate for HVC and SMC, EC 0x18
// for an MSR or MRS (register).
func SyndromeForInstruction(word uint32) (Syndrome, error) {
	switch word & excGenMask {
	case hvcMatch:
		return NewSyndrome(ECHVC64, true, (word>>5)&0xFFFF), nil
	case smcMatch:
		return NewSyndrome(ECSMC64, true, (word>>5)&0xFFFF), nil
	}
	inst, err := decodeWord(word)
	if err != nil {
		return 0, err
	}
	if (inst.Op != arm64asm.MSR && inst.Op != arm64asm.MRS) || word&sysMoveMask != sysMoveMatch {
		return 0, fmt.Errorf("%#08x (%s) is not a system register move", word, arm64asm.GNUSyntax(inst))
	}
	acc := SysRegAccess{
		Reg: SysRegID{
			Op0: uint8(word>>19) & 0x3,
			Op1: uint8(word>>16) & 0x7,
			CRn: uint8(word>>12) & 0xF,
			CRm: uint8(word>>8) & 0xF,
			Op2: uint8(word>>5) & 0x7,
		},
		Rt:   uint8(word) & 0x1F,
		Read: word&sysMoveRead != 0,
	}
	return NewSyndrome(ECSysReg, true, acc.ISS()), nil
}
