package el2

import "sync/atomic"

// Counters for trap handling and translation setup.
var (
	trapsDispatched     uint64
	trapsEmulated       uint64
	trapsUnhandled      uint64
	unknownInstructions uint64
	faultsInjected      uint64
	vsysregReads        uint64
	vsysregWrites       uint64

	trapConfigs    uint64
	tableBuilds    uint64
	entryOverrides uint64
	mmuEnables     uint64
	bootFailures   uint64
)

// Metrics is a snapshot of the core's counters.
type Metrics struct {
	TrapsDispatched     uint64 `json:"traps_dispatched"`
	TrapsEmulated       uint64 `json:"traps_emulated"`
	TrapsUnhandled      uint64 `json:"traps_unhandled"`
	UnknownInstructions uint64 `json:"unknown_instructions"`
	FaultsInjected      uint64 `json:"faults_injected"`
	VSysRegReads        uint64 `json:"vsysreg_reads"`
	VSysRegWrites       uint64 `json:"vsysreg_writes"`
	TrapConfigs         uint64 `json:"trap_configs"`
	TableBuilds         uint64 `json:"table_builds"`
	EntryOverrides      uint64 `json:"entry_overrides"`
	MMUEnables          uint64 `json:"mmu_enables"`
	BootFailures        uint64 `json:"boot_failures"`
}

// GetMetrics returns current metrics
func GetMetrics() Metrics {
	return Metrics{
		TrapsDispatched:     atomic.LoadUint64(&trapsDispatched),
		TrapsEmulated:       atomic.LoadUint64(&trapsEmulated),
		TrapsUnhandled:      atomic.LoadUint64(&trapsUnhandled),
		UnknownInstructions: atomic.LoadUint64(&unknownInstructions),
		FaultsInjected:      atomic.LoadUint64(&faultsInjected),
		VSysRegReads:        atomic.LoadUint64(&vsysregReads),
		VSysRegWrites:       atomic.LoadUint64(&vsysregWrites),
		TrapConfigs:         atomic.LoadUint64(&trapConfigs),
		TableBuilds:         atomic.LoadUint64(&tableBuilds),
		EntryOverrides:      atomic.LoadUint64(&entryOverrides),
		MMUEnables:          atomic.LoadUint64(&mmuEnables),
		BootFailures:        atomic.LoadUint64(&bootFailures),
	}
}

// ResetMetrics clears all counters
func ResetMetrics() {
	for _, c := range []*uint64{
		&trapsDispatched, &trapsEmulated, &trapsUnhandled, &unknownInstructions,
		&faultsInjected, &vsysregReads, &vsysregWrites, &trapConfigs,
		&tableBuilds, &entryOverrides, &mmuEnables, &bootFailures,
	} {
		atomic.StoreUint64(c, 0)
	}
}

func record(c *uint64) { atomic.AddUint64(c, 1) }
