// Package el2 is a minimal ARM64 EL2 (hypervisor-level) runtime.
//
// It covers the pieces a bare-metal hypervisor needs before it can host a
// guest: arming HCR_EL2 traps, decoding exception syndromes, emulating the
// trapped system-register accesses a guest makes, injecting synchronous
// faults back into EL1, and bringing up the EL2 stage-1 MMU with a flat
// 64-entry, 4TiB-block translation table.
//
// All hardware access goes through a SysRegPort. MemPort is an in-memory
// register file used by tests and the hv CLI; NativePort (build tag el2,
// arm64 only) reads and writes the real registers and is only usable when
// running at EL2.
//
// # Trap handling
//
//	port := el2.NewMemPort(nil)
//	core, err := el2.NewCore(el2.DefaultConfig(), port, &el2.Table{}, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := core.Boot(); err != nil {
//		log.Fatal(err)
//	}
//	guest := el2.NewGuest(&el2.Frame{})
//	out, err := core.OnSync(guest)
//
// # Simulated translation
//
// PhysMem and AddressSpace walk the table built by MMU the same way the
// hardware would, so aliasing scenarios can be checked without an EL2
// machine:
//
//	mem := el2.NewPhysMem()
//	defer mem.Close()
//	err := el2.ValidateAliasing(core.MMU, el2.NewAddressSpace(core.MMU, mem), 0x1_0000)
//
// # Hosted guests
//
// On Apple Silicon the same dispatcher can drive a real guest through
// Hypervisor.framework: NewVM, NewVCPU and RunGuest. The process needs the
// com.apple.security.hypervisor entitlement.
package el2
