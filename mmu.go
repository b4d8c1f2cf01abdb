package el2

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// MAIR_EL2 attribute indices and encodings.
const (
	MTNormal          = 0
	MTNormalNoCaching = 2
	MTDeviceNGnRnE    = 3
	MTDeviceNGnRE     = 4

	AttrNormal          = 0xFF // normal, inner/outer write-back cacheable
	AttrNormalNoCaching = 0x44 // normal, inner/outer non-cacheable
	AttrDeviceNGnRnE    = 0x00
	AttrDeviceNGnRE     = 0x04

	MAIRValue uint64 = AttrNormal<<(8*MTNormal) |
		AttrNormalNoCaching<<(8*MTNormalNoCaching) |
		AttrDeviceNGnRnE<<(8*MTDeviceNGnRnE) |
		AttrDeviceNGnRE<<(8*MTDeviceNGnRE)
)

// Descriptor is one translation-table entry.
type Descriptor uint64

// Descriptor bits.
const (
	DescValid     Descriptor = 1 << 0 // with DescTable clear: block
	DescTable     Descriptor = 1 << 1
	DescAttrShift            = 2
	DescAttrMask  Descriptor = 0x7 << DescAttrShift
	DescAPRW      Descriptor = 1 << 6 // AP[1]
	DescAPRO      Descriptor = 1 << 7 // AP[2]
	DescSHShift              = 8
	DescSHMask    Descriptor = 0x3 << DescSHShift
	DescSHInner   Descriptor = 0x3 << DescSHShift
	DescAF        Descriptor = 1 << 10

	// BlockAttr is OR'd into every identity-mapped block.
	BlockAttr = DescValid | MTNormal<<DescAttrShift | DescAPRW | DescSHInner | DescAF
)

// Table geometry: 64 blocks of 4TiB cover a 48-bit address space.
const (
	TableEntries        = 64
	TableAlign          = 512
	BlockShift          = 42
	BlockSize    uint64 = 1 << BlockShift
	VABits              = 48

	blockAddrMask uint64 = (TableEntries - 1) << BlockShift
)

// BlockDescriptor returns a block entry for the block containing pa with
// the standard attributes.
func BlockDescriptor(pa uint64) Descriptor {
	return Descriptor(pa&blockAddrMask) | BlockAttr
}

func (d Descriptor) Valid() bool        { return d&DescValid != 0 }
func (d Descriptor) IsBlock() bool      { return d.Valid() && d&DescTable == 0 }
func (d Descriptor) AttrIndex() uint8   { return uint8((d & DescAttrMask) >> DescAttrShift) }
func (d Descriptor) ReadOnly() bool     { return d&DescAPRO != 0 }
func (d Descriptor) Shareability() uint { return uint((d & DescSHMask) >> DescSHShift) }
func (d Descriptor) AccessFlag() bool   { return d&DescAF != 0 }

// OutputAddress is the physical base of the block.
func (d Descriptor) OutputAddress() uint64 { return uint64(d) & blockAddrMask }

func (d Descriptor) String() string {
	if !d.Valid() {
		return fmt.Sprintf("%#016x invalid", uint64(d))
	}
	return fmt.Sprintf("%#016x pa=%#x attr=%d sh=%d af=%t ro=%t", uint64(d), d.OutputAddress(), d.AttrIndex(), d.Shareability(), d.AccessFlag(), d.ReadOnly())
}

// Table is the hypervisor's own single-level translation table.
type Table struct {
	Entries [TableEntries]Descriptor
	base    uint64
}

// NewTable returns an empty table that will be installed at physical
// address base.
func NewTable(base uint64) (*Table, error) {
	if base%TableAlign != 0 {
		return nil, fmt.Errorf("table base %#x: %w", base, ErrMisalignedTable)
	}
	return &Table{base: base}, nil
}

// Base is the physical address installed in TTBR0_EL2.
func (t *Table) Base() uint64 { return t.base }

// Index returns the entry covering va.
func Index(va uint64) int { return int((va >> BlockShift) & (TableEntries - 1)) }

// TCR_EL2, SCTLR_EL2 and ID_AA64MMFR0_EL1 fields.
const (
	tcrT0SZMask  = 0x3F
	tcrT0SZ48    = 64 - VABits
	tcrTG0Mask   = 0x3 << 14
	tcrTG064K    = 0x1 << 14
	tcrPSShift   = 16
	tcrPSMask    = 0x7 << tcrPSShift
	tcrHA        = 1 << 21
	sctlrM       = 1 << 0
	sctlrEE      = 1 << 25
	mmfr0PARange = 0xF
	mmfr0TGran64 = 0xF << 24
)

// MMUState tracks translation setup.
type MMUState int

const (
	Uninitialized MMUState = iota
	AttributesSet
	TableBuilt
	ControlConfigured
	Enabled
)

func (s MMUState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case AttributesSet:
		return "attributes-set"
	case TableBuilt:
		return "table-built"
	case ControlConfigured:
		return "control-configured"
	case Enabled:
		return "enabled"
	}
	return fmt.Sprintf("MMUState(%d)", int(s))
}

// MMU owns a Table and the registers that put it in use. Each step must run
// in order; enabling is one-way. Not safe for concurrent use.
type MMU struct {
	port  SysRegPort
	table *Table
	state MMUState
	log   logrus.FieldLogger
}

// MMUOption configures an MMU.
type MMUOption func(*MMU)

// WithMMULogger sets the diagnostic sink used to report the table base.
func WithMMULogger(l logrus.FieldLogger) MMUOption {
	return func(m *MMU) { m.log = l }
}

// NewMMU returns a manager for table using port.
func NewMMU(port SysRegPort, table *Table, opts ...MMUOption) *MMU {
	m := &MMU{port: port, table: table, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MMU) State() MMUState { return m.state }
func (m *MMU) Table() *Table   { return m.table }

func (m *MMU) expect(want MMUState, op string) error {
	if m.state != want {
		return fmt.Errorf("%s in state %s (want %s): %w", op, m.state, want, ErrInvalidState)
	}
	return nil
}

// SetMemoryAttributes programs MAIR_EL2.
func (m *MMU) SetMemoryAttributes() error {
	if err := m.expect(Uninitialized, "set memory attributes"); err != nil {
		return err
	}
	m.port.Write(MAIR_EL2, MAIRValue)
	m.state = AttributesSet
	return nil
}

// BuildTable identity-maps every block and installs the table in
// TTBR0_EL2, returning the installed base.
func (m *MMU) BuildTable() (uint64, error) {
	if err := m.expect(AttributesSet, "build table"); err != nil {
		return 0, err
	}
	var pa uint64
	for i := range m.table.Entries {
		m.table.Entries[i] = Descriptor(pa) | BlockAttr
		pa += BlockSize
	}
	m.port.Write(TTBR0_EL2, m.table.base)
	m.log.WithField("ttbr0_el2", fmt.Sprintf("%#x", m.table.base)).Infof("ttbr0_el2 set to: %#x", m.table.base)
	record(&tableBuilds)
	m.state = TableBuilt
	return m.table.base, nil
}

// TableBase re-reads TTBR0_EL2.
func (m *MMU) TableBase() uint64 {
	return m.port.Read(TTBR0_EL2)
}

// ConfigureTranslationControl checks for 64KiB granule support and
// programs TCR_EL2. On unsupported hardware TCR_EL2 is left untouched.
func (m *MMU) ConfigureTranslationControl() error {
	if err := m.expect(TableBuilt, "configure translation control"); err != nil {
		return err
	}
	mmfr0 := m.port.Read(ID_AA64MMFR0_EL1)
	if mmfr0&mmfr0TGran64 != 0 {
		m.log.WithField("id_aa64mmfr0_el1", fmt.Sprintf("%#x", mmfr0)).Error("64KiB translation granule not supported")
		return fmt.Errorf("id_aa64mmfr0_el1 %#x: %w", mmfr0, ErrUnsupportedHardware)
	}

	tcr := m.port.Read(TCR_EL2)
	tcr = tcr&^tcrTG0Mask | tcrTG064K
	tcr = tcr&^tcrPSMask | (mmfr0&mmfr0PARange)<<tcrPSShift&tcrPSMask
	tcr = tcr&^tcrT0SZMask | tcrT0SZ48
	tcr &^= tcrHA
	m.port.Write(TCR_EL2, tcr)
	m.state = ControlConfigured
	return nil
}

// Enable turns on translation at EL2: HCR_EL2.E2H cleared, little-endian,
// SCTLR_EL2.M set.
func (m *MMU) Enable() error {
	if err := m.expect(ControlConfigured, "enable"); err != nil {
		return err
	}
	m.port.Write(HCR_EL2, m.port.Read(HCR_EL2)&^HCRE2H)
	sctlr := m.port.Read(SCTLR_EL2)
	sctlr = sctlr&^sctlrEE | sctlrM
	m.port.Write(SCTLR_EL2, sctlr)
	m.state = Enabled
	record(&mmuEnables)
	m.log.Debug("mmu enabled")
	return nil
}

// Initialize runs every step in order and returns the first error.
func (m *MMU) Initialize() error {
	if err := m.SetMemoryAttributes(); err != nil {
		return err
	}
	if _, err := m.BuildTable(); err != nil {
		return err
	}
	if err := m.ConfigureTranslationControl(); err != nil {
		return err
	}
	return m.Enable()
}

// Enabled reports whether SCTLR_EL2.M is set.
func (m *MMU) Enabled() bool {
	return m.port.Read(SCTLR_EL2)&sctlrM != 0
}

// Entry returns descriptor i.
func (m *MMU) Entry(i int) (Descriptor, error) {
	if i < 0 || i >= TableEntries {
		return 0, fmt.Errorf("entry %d: %w", i, ErrIndexOutOfRange)
	}
	return m.table.Entries[i], nil
}

// SetEntry overrides descriptor i and returns the previous value so the
// caller can restore it. This breaks the identity map and exists for
// diagnostics only.
func (m *MMU) SetEntry(i int, d Descriptor) (Descriptor, error) {
	if m.state < TableBuilt {
		return 0, fmt.Errorf("set entry in state %s: %w", m.state, ErrInvalidState)
	}
	prev, err := m.Entry(i)
	if err != nil {
		return 0, err
	}
	m.table.Entries[i] = d
	if inv, ok := m.port.(TLBInvalidator); ok {
		inv.InvalidateTLB()
	}
	record(&entryOverrides)
	m.log.WithFields(logrus.Fields{"index": i, "old": prev.String(), "new": d.String()}).Debug("table entry overridden")
	return prev, nil
}

// Remap points entry i at physical block physBlock.
func (m *MMU) Remap(i, physBlock int) (Descriptor, error) {
	if physBlock < 0 || physBlock >= TableEntries {
		return 0, fmt.Errorf("physical block %d: %w", physBlock, ErrIndexOutOfRange)
	}
	return m.SetEntry(i, BlockDescriptor(uint64(physBlock)*BlockSize))
}
