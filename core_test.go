package el2

import (
	"errors"
	"testing"
)

func TestCoreBoot(t *testing.T) {
	ResetMetrics()
	table, _ := NewTable(DefaultTableBase)
	port := NewMemPort(map[SysReg]uint64{ID_AA64MMFR0_EL1: 0x5})
	core, err := NewCore(DefaultConfig(), port, table, quietLogger())
	if err != nil {
		t.Fatalf("NewCore() error = %v", err)
	}
	if err := core.Boot(); err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	if hcr := port.Read(HCR_EL2); hcr&HCRTrapBits != HCRTrapBits {
		t.Errorf("HCR_EL2 = %#x, traps not configured", hcr)
	}
	if !core.MMU.Enabled() || core.MMU.TableBase() != DefaultTableBase {
		t.Error("mmu not enabled with the configured table")
	}
	if w := port.Writes(); len(w) == 0 || w[0].Reg != HCR_EL2 {
		t.Errorf("first write = %v, want HCR_EL2", w)
	}
}

func TestCoreBootUnsupported(t *testing.T) {
	ResetMetrics()
	port := NewMemPort(map[SysReg]uint64{ID_AA64MMFR0_EL1: 0xF << 24})
	core, err := NewCore(nil, port, &Table{}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := core.Boot(); !errors.Is(err, ErrUnsupportedHardware) {
		t.Fatalf("Boot() error = %v, want ErrUnsupportedHardware", err)
	}
	if port.Read(HCR_EL2)&HCRTrapBits != HCRTrapBits {
		t.Error("traps must be configured even when translation setup fails")
	}
	if core.MMU.Enabled() {
		t.Error("mmu enabled on unsupported hardware")
	}
	if GetMetrics().BootFailures != 1 {
		t.Error("boot failure not counted")
	}
}

func TestCoreOnSync(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RouteSysRegTraps = true
	port := NewMemPort(nil)
	core, err := NewCore(cfg, port, &Table{}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}

	g, f := newTestGuest(0x1000)
	f.X[7] = 0xabc
	port.Write(ESR_EL2, uint64(NewSyndrome(ECSysReg, true, SysRegAccess{Reg: TCR_EL1, Rt: 7}.ISS())))
	out, err := core.OnSync(g)
	if err != nil {
		t.Fatal(err)
	}
	if out.Action != ActionEmulated || g.SysRegs.Get(TCR_EL1) != 0xabc || f.PC != 0x1004 {
		t.Errorf("OnSync() = %+v, TCR_EL1 = %#x, PC = %#x", out, g.SysRegs.Get(TCR_EL1), f.PC)
	}

	port.Write(ESR_EL2, uint64(NewSyndrome(ECHVC64, true, ISSHVCSysRegRead|2<<5)))
	g.SysRegs.Set(hvcReg, 99)
	if out, err := core.OnSync(g); err != nil || out.Action != ActionEmulated || f.X[2] != 99 {
		t.Errorf("OnSync(hvc read) = %+v, %v, x2 = %d", out, err, f.X[2])
	}
}

func TestNewCoreInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UnknownTrap = "explode"
	if _, err := NewCore(cfg, NewMemPort(nil), &Table{}, quietLogger()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewCore() error = %v, want ErrInvalidConfig", err)
	}
}
