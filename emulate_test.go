package el2

import (
	"testing"
)

func newTestGuest(pc uint64) (*Guest, *Frame) {
	f := &Frame{PC: pc, CPSR: spsrModeEL1h}
	return NewGuest(f), f
}

var hvcReg = SysRegID{CRm: 8}

func TestEmulateHVCWrite(t *testing.T) {
	e := NewEmulator(WithEmulatorLogger(quietLogger()))
	g, f := newTestGuest(0x1000)
	f.X[0] = 0xdeadbeef

	res, err := e.Emulate(g, NewSyndrome(ECHVC64, true, ISSHVCSysRegWrite))
	if err != nil {
		t.Fatalf("Emulate() error = %v", err)
	}
	if res != Emulated {
		t.Fatalf("Emulate() = %s, want emulated", res)
	}
	if got := g.SysRegs.Get(hvcReg); got != 0xdeadbeef {
		t.Errorf("virtual register = %#x, want 0xdeadbeef", got)
	}
	if f.PC != 0x1004 {
		t.Errorf("PC = %#x, want 0x1004", f.PC)
	}
}

func TestEmulateHVCRead(t *testing.T) {
	e := NewEmulator(WithEmulatorLogger(quietLogger()))
	g, f := newTestGuest(0x2000)
	g.SysRegs.Set(hvcReg, 0x42)

	res, err := e.Emulate(g, NewSyndrome(ECHVC64, true, ISSHVCSysRegRead|5<<5))
	if err != nil || res != Emulated {
		t.Fatalf("Emulate() = %s, %v", res, err)
	}
	if f.X[5] != 0x42 {
		t.Errorf("x5 = %#x, want 0x42", f.X[5])
	}
	if f.PC != 0x2004 {
		t.Errorf("PC = %#x, want 0x2004", f.PC)
	}
}

// The HVC immediate carries Rt in bits 9:5, so 0x30 is a write from x1 and
// 0x3F1 a read into xzr; only the other ISS bits select the entry.
func TestEmulateHVCRtField(t *testing.T) {
	e := NewEmulator(WithEmulatorLogger(quietLogger()))

	g, f := newTestGuest(0x1000)
	f.X[1] = 0xabc
	if res, err := e.Emulate(g, NewSyndrome(ECHVC64, true, 0x30)); err != nil || res != Emulated {
		t.Fatalf("Emulate(0x30) = %s, %v", res, err)
	}
	if got := g.SysRegs.Get(hvcReg); got != 0xabc {
		t.Errorf("virtual register = %#x, want x1 (0xabc)", got)
	}

	g, f = newTestGuest(0x1000)
	g.SysRegs.Set(hvcReg, 9)
	if res, err := e.Emulate(g, NewSyndrome(ECHVC64, true, 0x3F1)); err != nil || res != Emulated {
		t.Fatalf("Emulate(0x3f1) = %s, %v", res, err)
	}
	if f.PC != 0x1004 {
		t.Errorf("PC = %#x, want 0x1004", f.PC)
	}

	for _, iss := range []uint32{0x12, 0x30 | 0x20000} {
		g, _ := newTestGuest(0)
		if res, _ := e.Emulate(g, NewSyndrome(ECHVC64, true, iss)); res != Unknown {
			t.Errorf("Emulate(%#x) = %s, want unknown", iss, res)
		}
	}
}

func TestEmulateZeroRegister(t *testing.T) {
	e := NewEmulator(WithEmulatorLogger(quietLogger()))
	g, f := newTestGuest(0)
	g.SysRegs.Set(hvcReg, 7)
	for i := range f.X {
		f.X[i] = 0xff
	}

	if _, err := e.Emulate(g, NewSyndrome(ECHVC64, true, ISSHVCSysRegRead|31<<5)); err != nil {
		t.Fatal(err)
	}
	for i, v := range f.X {
		if v != 0xff {
			t.Errorf("x%d = %#x, read into xzr must not modify registers", i, v)
		}
	}

	if _, err := e.Emulate(g, NewSyndrome(ECHVC64, true, ISSHVCSysRegWrite|31<<5)); err != nil {
		t.Fatal(err)
	}
	if got := g.SysRegs.Get(hvcReg); got != 0 {
		t.Errorf("write from xzr stored %#x, want 0", got)
	}
	if f.PC != 8 {
		t.Errorf("PC = %#x, want 8", f.PC)
	}
}

func TestEmulateUnknown(t *testing.T) {
	ResetMetrics()
	e := NewEmulator(WithEmulatorLogger(quietLogger()))
	for _, iss := range []uint32{0, 0x1, 0x12, 0x300400, 0x1FFFFFF} {
		g, f := newTestGuest(0x3000)
		before := *f
		res, err := e.Emulate(g, NewSyndrome(ECHVC64, true, iss))
		if err != nil {
			t.Errorf("Emulate(%#x) error = %v", iss, err)
		}
		if res != Unknown {
			t.Errorf("Emulate(%#x) = %s, want unknown", iss, res)
		}
		if *f != before || len(g.SysRegs.Names()) != 0 {
			t.Errorf("Emulate(%#x) modified guest state", iss)
		}
	}
	if got := GetMetrics().UnknownInstructions; got != 5 {
		t.Errorf("UnknownInstructions = %d, want 5", got)
	}
}

func TestTrappedSysRegs(t *testing.T) {
	e := NewEmulator(WithEmulatorLogger(quietLogger()), WithTrappedSysRegs(TVMRegisters...))
	if got, want := len(e.Entries()), 2+2*len(TVMRegisters); got != want {
		t.Fatalf("len(Entries()) = %d, want %d", got, want)
	}

	g, f := newTestGuest(0x4000)
	f.X[2] = 0x30d00800
	s := NewSyndrome(ECSysReg, true, SysRegAccess{Reg: SCTLR_EL1, Rt: 2}.ISS())
	if res, err := e.Emulate(g, s); err != nil || res != Emulated {
		t.Fatalf("Emulate(msr sctlr_el1, x2) = %s, %v", res, err)
	}
	if got := g.SysRegs.Get(SCTLR_EL1); got != 0x30d00800 {
		t.Errorf("SCTLR_EL1 = %#x", got)
	}

	ent, ok := e.Lookup(SysRegAccess{Reg: TTBR1_EL1, Rt: 9, Read: true}.ISS())
	if !ok || ent.Name != "mrs TTBR1_EL1" {
		t.Errorf("Lookup(mrs ttbr1_el1) = %q, %t", ent.Name, ok)
	}
	if _, ok := e.Lookup(SysRegAccess{Reg: VBAR_EL1}.ISS()); ok {
		t.Error("VBAR_EL1 is not trapped and must not match")
	}
}

func TestRegisterCustomEntry(t *testing.T) {
	e := NewEmulator(WithEmulatorLogger(quietLogger()))
	called := 0
	e.Register(Entry{Name: "custom", Mask: 0xFFFF, Match: 0x1234, Handler: func(g *Guest, s Syndrome) error {
		called++
		return nil
	}})
	g, _ := newTestGuest(0)
	if res, err := e.Emulate(g, NewSyndrome(ECHVC64, true, 0x5_1234)); err != nil || res != Emulated {
		t.Fatalf("Emulate() = %s, %v", res, err)
	}
	if called != 1 {
		t.Errorf("handler called %d times", called)
	}
}
