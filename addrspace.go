package el2

import "fmt"

// AddressSpace performs EL2 stage-1 translation through an MMU's table
// against simulated physical memory. With SCTLR_EL2.M clear, addresses pass
// through untranslated.
type AddressSpace struct {
	mmu *MMU
	mem *PhysMem
}

// NewAddressSpace returns the address space seen through m.
func NewAddressSpace(m *MMU, mem *PhysMem) *AddressSpace {
	return &AddressSpace{mmu: m, mem: mem}
}

// Translate returns the physical address for va.
func (as *AddressSpace) Translate(va uint64, write bool) (uint64, error) {
	if !as.mmu.Enabled() {
		return va, nil
	}
	if va>>VABits != 0 {
		return 0, fmt.Errorf("va %#x outside %d-bit range: %w", va, VABits, ErrTranslationFault)
	}
	d := as.mmu.Table().Entries[Index(va)]
	switch {
	case !d.IsBlock():
		return 0, fmt.Errorf("va %#x (entry %d): %w", va, Index(va), ErrTranslationFault)
	case !d.AccessFlag():
		return 0, fmt.Errorf("va %#x (entry %d): %w", va, Index(va), ErrAccessFlagFault)
	case write && d.ReadOnly():
		return 0, fmt.Errorf("va %#x (entry %d): %w", va, Index(va), ErrPermissionFault)
	}
	return d.OutputAddress() | va&(BlockSize-1), nil
}

// Read fills b from virtual address va. Accesses may not span blocks.
func (as *AddressSpace) Read(va uint64, b []byte) error {
	pa, err := as.translateRange(va, len(b), false)
	if err != nil {
		return err
	}
	return as.mem.ReadAt(b, pa)
}

// Write stores b at virtual address va. Accesses may not span blocks.
func (as *AddressSpace) Write(va uint64, b []byte) error {
	pa, err := as.translateRange(va, len(b), true)
	if err != nil {
		return err
	}
	return as.mem.WriteAt(b, pa)
}

func (as *AddressSpace) translateRange(va uint64, n int, write bool) (uint64, error) {
	if n > 0 && Index(va) != Index(va+uint64(n)-1) {
		return 0, fmt.Errorf("access %#x+%d crosses a block boundary", va, n)
	}
	return as.Translate(va, write)
}
