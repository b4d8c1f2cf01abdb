package el2

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// SysRegID identifies a system register by its MSR/MRS encoding.
type SysRegID struct {
	Op0 uint8
	Op1 uint8
	CRn uint8
	CRm uint8
	Op2 uint8
}

// EL1 registers the core virtualizes. The first block is the set HCR_EL2.TVM
// traps writes to; the second is the exception state a fault injection
// touches.
var (
	SCTLR_EL1      = SysRegID{3, 0, 1, 0, 0}
	TTBR0_EL1      = SysRegID{3, 0, 2, 0, 0}
	TTBR1_EL1      = SysRegID{3, 0, 2, 0, 1}
	TCR_EL1        = SysRegID{3, 0, 2, 0, 2}
	AFSR0_EL1      = SysRegID{3, 0, 5, 1, 0}
	AFSR1_EL1      = SysRegID{3, 0, 5, 1, 1}
	ESR_EL1        = SysRegID{3, 0, 5, 2, 0}
	FAR_EL1        = SysRegID{3, 0, 6, 0, 0}
	MAIR_EL1       = SysRegID{3, 0, 10, 2, 0}
	AMAIR_EL1      = SysRegID{3, 0, 10, 3, 0}
	CONTEXTIDR_EL1 = SysRegID{3, 0, 13, 0, 1}

	SPSR_EL1 = SysRegID{3, 0, 4, 0, 0}
	ELR_EL1  = SysRegID{3, 0, 4, 0, 1}
	VBAR_EL1 = SysRegID{3, 0, 12, 0, 0}
)

// TVMRegisters lists the registers whose EL1 writes trap when HCR_EL2.TVM is
// set.
var TVMRegisters = []SysRegID{
	SCTLR_EL1, TTBR0_EL1, TTBR1_EL1, TCR_EL1, ESR_EL1, FAR_EL1,
	AFSR0_EL1, AFSR1_EL1, MAIR_EL1, AMAIR_EL1, CONTEXTIDR_EL1,
}

var sysRegIDNames = map[SysRegID]string{
	SCTLR_EL1:      "SCTLR_EL1",
	TTBR0_EL1:      "TTBR0_EL1",
	TTBR1_EL1:      "TTBR1_EL1",
	TCR_EL1:        "TCR_EL1",
	AFSR0_EL1:      "AFSR0_EL1",
	AFSR1_EL1:      "AFSR1_EL1",
	ESR_EL1:        "ESR_EL1",
	FAR_EL1:        "FAR_EL1",
	MAIR_EL1:       "MAIR_EL1",
	AMAIR_EL1:      "AMAIR_EL1",
	CONTEXTIDR_EL1: "CONTEXTIDR_EL1",
	SPSR_EL1:       "SPSR_EL1",
	ELR_EL1:        "ELR_EL1",
	VBAR_EL1:       "VBAR_EL1",
}

// String returns the architectural name, or the generic S<op0>_<op1>_C<n>_C<m>_<op2>
// form for registers without one.
func (id SysRegID) String() string {
	if n, ok := sysRegIDNames[id]; ok {
		return n
	}
	return fmt.Sprintf("S%d_%d_C%d_C%d_%d", id.Op0, id.Op1, id.CRn, id.CRm, id.Op2)
}

// ParseSysRegID resolves a name from the table above or a generic
// S<op0>_<op1>_C<n>_C<m>_<op2> spelling.
func ParseSysRegID(name string) (SysRegID, error) {
	for id, n := range sysRegIDNames {
		if strings.EqualFold(n, name) {
			return id, nil
		}
	}
	var id SysRegID
	if _, err := fmt.Sscanf(strings.ToUpper(name), "S%d_%d_C%d_C%d_%d", &id.Op0, &id.Op1, &id.CRn, &id.CRm, &id.Op2); err != nil {
		return SysRegID{}, fmt.Errorf("el2: unknown system register %q", name)
	}
	if id.Op0 > 3 || id.Op1 > 7 || id.CRn > 15 || id.CRm > 15 || id.Op2 > 7 {
		return SysRegID{}, fmt.Errorf("el2: system register %q out of range", name)
	}
	return id, nil
}

// VSysRegFile is one guest context's virtual system-register file.
// Registers never written read as zero.
type VSysRegFile struct {
	mu   sync.RWMutex
	regs map[SysRegID]uint64
}

// NewVSysRegFile returns an empty register file.
func NewVSysRegFile() *VSysRegFile {
	return &VSysRegFile{regs: make(map[SysRegID]uint64)}
}

func (f *VSysRegFile) Get(id SysRegID) uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.regs[id]
}

func (f *VSysRegFile) Set(id SysRegID, v uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[id] = v
}

// Snapshot returns the written registers keyed by name, sorted for stable
// output.
func (f *VSysRegFile) Snapshot() map[string]uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]uint64, len(f.regs))
	for id, v := range f.regs {
		out[id.String()] = v
	}
	return out
}

// Names lists the written registers in sorted order.
func (f *VSysRegFile) Names() []string {
	snap := f.Snapshot()
	names := make([]string, 0, len(snap))
	for n := range snap {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
