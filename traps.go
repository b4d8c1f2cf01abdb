package el2

// HCR_EL2 bits.
const (
	HCRTSC = 1 << 19 // trap SMC
	HCRTVM = 1 << 26 // trap EL1 writes to virtual memory controls
	HCRTGE = 1 << 27 // route EL0 exceptions to EL2
	HCRE2H = 1 << 34 // EL2 host (VHE)

	// HCRTrapBits is what ConfigureTraps ORs into HCR_EL2.
	HCRTrapBits = HCRTGE | HCRTVM | HCRTSC
)

// ConfigureTraps sets the HCR_EL2 trap bits with a read-modify-write,
// preserving whatever earlier boot code programmed. It must run before any
// lower-EL code does; calling it again leaves the register unchanged.
func ConfigureTraps(port SysRegPort) {
	hcr := port.Read(HCR_EL2)
	port.Write(HCR_EL2, hcr|HCRTrapBits)
	record(&trapConfigs)
}
