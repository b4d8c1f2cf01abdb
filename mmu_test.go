package el2

import (
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestMMU(t *testing.T, initial map[SysReg]uint64) (*MMU, *MemPort) {
	t.Helper()
	table, err := NewTable(DefaultTableBase)
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	port := NewMemPort(initial)
	return NewMMU(port, table, WithMMULogger(quietLogger())), port
}

func TestMAIRValue(t *testing.T) {
	if MAIRValue != 0x4004400FF {
		t.Errorf("MAIRValue = %#x, want 0x4004400ff", MAIRValue)
	}
	for idx, want := range map[int]uint64{MTNormal: 0xFF, MTNormalNoCaching: 0x44, MTDeviceNGnRnE: 0x00, MTDeviceNGnRE: 0x04} {
		if got := MAIRValue >> (8 * idx) & 0xFF; got != want {
			t.Errorf("MAIR attr%d = %#x, want %#x", idx, got, want)
		}
	}
	if BlockAttr != 0x741 {
		t.Errorf("BlockAttr = %#x, want 0x741", uint64(BlockAttr))
	}
}

func TestNewTableAlignment(t *testing.T) {
	tests := []struct {
		base    uint64
		wantErr bool
	}{
		{0, false},
		{0x80000, false},
		{0x200, false},
		{0x100, true},
		{0x80008, true},
	}
	for _, tt := range tests {
		_, err := NewTable(tt.base)
		if (err != nil) != tt.wantErr {
			t.Errorf("NewTable(%#x) error = %v, wantErr %v", tt.base, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrMisalignedTable) {
			t.Errorf("NewTable(%#x) error = %v, want ErrMisalignedTable", tt.base, err)
		}
	}
}

func TestInitialize(t *testing.T) {
	ResetMetrics()
	m, port := newTestMMU(t, map[SysReg]uint64{
		ID_AA64MMFR0_EL1: 0x5,                  // 48-bit PA, 64K granule supported
		TCR_EL2:          tcrHA | 0x2<<14 | 25, // stale TG0/T0SZ with HA set
		SCTLR_EL2:        sctlrEE,
		HCR_EL2:          HCRE2H | HCRTVM,
	})

	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if m.State() != Enabled || !m.Enabled() {
		t.Fatalf("state = %s, Enabled() = %t", m.State(), m.Enabled())
	}

	for i, d := range m.Table().Entries {
		if want := Descriptor(uint64(i)*BlockSize) | BlockAttr; d != want {
			t.Errorf("entry %d = %#x, want %#x", i, uint64(d), uint64(want))
		}
	}

	if got := m.TableBase(); got != DefaultTableBase {
		t.Errorf("TableBase() = %#x, want %#x", got, DefaultTableBase)
	}
	if got := port.Read(MAIR_EL2); got != MAIRValue {
		t.Errorf("MAIR_EL2 = %#x, want %#x", got, MAIRValue)
	}
	tcr := port.Read(TCR_EL2)
	if tcr&tcrT0SZMask != 16 {
		t.Errorf("TCR_EL2.T0SZ = %d, want 16", tcr&tcrT0SZMask)
	}
	if tcr&tcrTG0Mask != tcrTG064K {
		t.Errorf("TCR_EL2.TG0 = %#x, want 64K", tcr&tcrTG0Mask>>14)
	}
	if ps := tcr & tcrPSMask >> tcrPSShift; ps != 5 {
		t.Errorf("TCR_EL2.PS = %d, want 5", ps)
	}
	if tcr&tcrHA != 0 {
		t.Error("TCR_EL2.HA still set")
	}
	if sctlr := port.Read(SCTLR_EL2); sctlr&sctlrEE != 0 || sctlr&sctlrM == 0 {
		t.Errorf("SCTLR_EL2 = %#x, want EE clear and M set", sctlr)
	}
	if hcr := port.Read(HCR_EL2); hcr&HCRE2H != 0 || hcr&HCRTVM == 0 {
		t.Errorf("HCR_EL2 = %#x, want E2H clear and TVM preserved", hcr)
	}

	var order []SysReg
	for _, w := range port.Writes() {
		order = append(order, w.Reg)
	}
	want := []SysReg{MAIR_EL2, TTBR0_EL2, TCR_EL2, HCR_EL2, SCTLR_EL2}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("write order mismatch (-want +got):\n%s", diff)
	}

	if got := GetMetrics(); got.TableBuilds != 1 || got.MMUEnables != 1 {
		t.Errorf("metrics = %+v", got)
	}
}

func TestUnsupportedGranule(t *testing.T) {
	const staleTCR = 0x1234
	m, port := newTestMMU(t, map[SysReg]uint64{
		ID_AA64MMFR0_EL1: 0xF<<24 | 0x5,
		TCR_EL2:          staleTCR,
	})

	err := m.Initialize()
	if !errors.Is(err, ErrUnsupportedHardware) {
		t.Fatalf("Initialize() error = %v, want ErrUnsupportedHardware", err)
	}
	if m.State() != TableBuilt {
		t.Errorf("state = %s, want %s", m.State(), TableBuilt)
	}
	if got := port.Read(TCR_EL2); got != staleTCR {
		t.Errorf("TCR_EL2 = %#x, want untouched %#x", got, staleTCR)
	}
	if m.Enabled() {
		t.Error("SCTLR_EL2.M set on unsupported hardware")
	}
	if err := m.Enable(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Enable() after failure error = %v, want ErrInvalidState", err)
	}
}

func TestOutOfOrder(t *testing.T) {
	tests := []struct {
		name string
		prep int
		call func(m *MMU) error
	}{
		{"build before attributes", 0, func(m *MMU) error { _, err := m.BuildTable(); return err }},
		{"control before table", 1, (*MMU).ConfigureTranslationControl},
		{"enable before control", 2, (*MMU).Enable},
		{"attributes twice", 1, (*MMU).SetMemoryAttributes},
		{"enable twice", 4, (*MMU).Enable},
	}
	steps := []func(m *MMU) error{
		(*MMU).SetMemoryAttributes,
		func(m *MMU) error { _, err := m.BuildTable(); return err },
		(*MMU).ConfigureTranslationControl,
		(*MMU).Enable,
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, port := newTestMMU(t, nil)
			for _, step := range steps[:tt.prep] {
				if err := step(m); err != nil {
					t.Fatalf("prep step error = %v", err)
				}
			}
			state, writes := m.State(), len(port.Writes())
			if err := tt.call(m); !errors.Is(err, ErrInvalidState) {
				t.Errorf("error = %v, want ErrInvalidState", err)
			}
			if m.State() != state || len(port.Writes()) != writes {
				t.Error("out-of-order call changed state or registers")
			}
		})
	}
}

func TestSetEntry(t *testing.T) {
	m, port := newTestMMU(t, nil)
	if _, err := m.SetEntry(1, 0); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SetEntry() before build error = %v, want ErrInvalidState", err)
	}
	if err := m.Initialize(); err != nil {
		t.Fatal(err)
	}

	prev, err := m.Remap(1, 0)
	if err != nil {
		t.Fatalf("Remap() error = %v", err)
	}
	if want := Descriptor(BlockSize) | BlockAttr; prev != want {
		t.Errorf("previous entry = %#x, want %#x", uint64(prev), uint64(want))
	}
	if got, _ := m.Entry(1); got != m.Table().Entries[0] {
		t.Errorf("entry 1 = %#x, want alias of entry 0", uint64(got))
	}
	if port.Invalidations() != 1 {
		t.Errorf("invalidations = %d, want 1", port.Invalidations())
	}

	for _, i := range []int{-1, TableEntries} {
		if _, err := m.SetEntry(i, 0); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("SetEntry(%d) error = %v, want ErrIndexOutOfRange", i, err)
		}
	}
	if _, err := m.Remap(0, TableEntries); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Remap() error = %v, want ErrIndexOutOfRange", err)
	}
}

func TestDescriptor(t *testing.T) {
	d := BlockDescriptor(3*BlockSize + 0x1234)
	if !d.IsBlock() || !d.AccessFlag() || d.ReadOnly() {
		t.Errorf("%s: unexpected flags", d)
	}
	if d.OutputAddress() != 3*BlockSize {
		t.Errorf("OutputAddress() = %#x", d.OutputAddress())
	}
	if d.AttrIndex() != MTNormal || d.Shareability() != 3 {
		t.Errorf("attr=%d sh=%d", d.AttrIndex(), d.Shareability())
	}
	if Index(3*BlockSize+0x1234) != 3 || Index(0xFFFF_FFFF_FFFF) != 63 {
		t.Error("Index() mismatch")
	}
}
