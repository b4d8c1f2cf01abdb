//go:build arm64 && el2

package el2

// NativePort issues MRS/MSR against the executing core. It is only
// meaningful when the binary itself runs at EL2.
type NativePort struct{}

func readHCR() uint64
func writeHCR(v uint64)
func readMAIR() uint64
func writeMAIR(v uint64)
func readTCR() uint64
func writeTCR(v uint64)
func readSCTLR() uint64
func writeSCTLR(v uint64)
func readTTBR0() uint64
func writeTTBR0(v uint64)
func readESR() uint64
func writeESR(v uint64)
func readELR() uint64
func writeELR(v uint64)
func readVBAR() uint64
func writeVBAR(v uint64)
func readMMFR0() uint64
func readCurrentEL() uint64
func tlbiAllE2()

func (NativePort) Read(r SysReg) uint64 {
	switch r {
	case HCR_EL2:
		return readHCR()
	case MAIR_EL2:
		return readMAIR()
	case TCR_EL2:
		return readTCR()
	case SCTLR_EL2:
		return readSCTLR()
	case TTBR0_EL2:
		return readTTBR0()
	case ESR_EL2:
		return readESR()
	case ELR_EL2:
		return readELR()
	case VBAR_EL2:
		return readVBAR()
	case ID_AA64MMFR0_EL1:
		return readMMFR0()
	case CurrentEL:
		return readCurrentEL()
	}
	panic("el2: read of unsupported register " + r.String())
}

// Write ignores read-only registers (ID_AA64MMFR0_EL1, CurrentEL).
func (NativePort) Write(r SysReg, v uint64) {
	switch r {
	case HCR_EL2:
		writeHCR(v)
	case MAIR_EL2:
		writeMAIR(v)
	case TCR_EL2:
		writeTCR(v)
	case SCTLR_EL2:
		writeSCTLR(v)
	case TTBR0_EL2:
		writeTTBR0(v)
	case ESR_EL2:
		writeESR(v)
	case ELR_EL2:
		writeELR(v)
	case VBAR_EL2:
		writeVBAR(v)
	}
}

func (NativePort) InvalidateTLB() { tlbiAllE2() }
