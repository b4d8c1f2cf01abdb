package el2

import "testing"

func TestDisassemble(t *testing.T) {
	tests := []struct {
		word uint32
		want string
	}{
		{0xd503201f, "nop"},
		{0xd4000002, "hvc #0x0"},
		{0xd4000202, "hvc #0x10"},
		{0xd4000622, "hvc #0x31"},
		{0xd4000003, "smc #0x0"},
		{0xd4200000, "brk #0x0"},
	}
	for _, tt := range tests {
		got, err := Disassemble(tt.word)
		if err != nil {
			t.Errorf("Disassemble(%#08x) error = %v", tt.word, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Disassemble(%#08x) = %q, want %q", tt.word, got, tt.want)
		}
	}
}

func TestSyndromeForInstruction(t *testing.T) {
	tests := []struct {
		name string
		word uint32
		want SysRegAccess
	}{
		{"msr sctlr_el1, x0", 0xd5181000, SysRegAccess{Reg: SCTLR_EL1}},
		{"mrs x1, ttbr0_el1", 0xd5382001, SysRegAccess{Reg: TTBR0_EL1, Rt: 1, Read: true}},
		{"msr mair_el1, x3", 0xd518a203, SysRegAccess{Reg: MAIR_EL1, Rt: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := SyndromeForInstruction(tt.word)
			if err != nil {
				t.Fatalf("SyndromeForInstruction() error = %v", err)
			}
			if s.Class() != ECSysReg || !s.IL() {
				t.Errorf("syndrome %s, want EC 0x18 with IL", s)
			}
			if got := DecodeSysRegISS(s.ISS()); got != tt.want {
				t.Errorf("decoded %s, want %s", got, tt.want)
			}
		})
	}

	if s, _ := SyndromeForInstruction(0xd5181000); s.ISS() != 0x300400 {
		t.Errorf("msr sctlr_el1 ISS = %#x, want 0x300400", s.ISS())
	}
	if _, err := SyndromeForInstruction(0xd503201f); err == nil {
		t.Error("SyndromeForInstruction(nop) should fail")
	}

	exc := []struct {
		word uint32
		want Syndrome
	}{
		{0xd4000202, NewSyndrome(ECHVC64, true, ISSHVCSysRegWrite)},
		{0xd4000622, NewSyndrome(ECHVC64, true, ISSHVCSysRegRead|1<<5)},
		{0xd4000003, NewSyndrome(ECSMC64, true, 0)},
	}
	for _, tt := range exc {
		got, err := SyndromeForInstruction(tt.word)
		if err != nil || got != tt.want {
			t.Errorf("SyndromeForInstruction(%#08x) = %s, %v; want %s", tt.word, got, err, tt.want)
		}
	}
}

func TestSyndromeForInstructionEmulates(t *testing.T) {
	e := NewEmulator(WithEmulatorLogger(quietLogger()), WithTrappedSysRegs(TVMRegisters...))
	g, f := newTestGuest(0x1000)
	f.X[3] = 0xff

	s, err := SyndromeForInstruction(0xd518a203) // msr mair_el1, x3
	if err != nil {
		t.Fatal(err)
	}
	if res, err := e.Emulate(g, s); err != nil || res != Emulated {
		t.Fatalf("Emulate() = %s, %v", res, err)
	}
	if got := g.SysRegs.Get(MAIR_EL1); got != 0xff {
		t.Errorf("MAIR_EL1 = %#x", got)
	}
}
