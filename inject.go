package el2

// PSTATE/SPSR fields used when entering the guest's EL1 vectors.
const (
	spsrModeMask = 0xF
	spsrModeEL1t = 0x4
	spsrModeEL1h = 0x5
	spsrAArch32  = 1 << 4
	spsrDAIF     = 0xF << 6

	vectorCurrentSP0   = 0x000
	vectorCurrentSPx   = 0x200
	vectorLowerAArch64 = 0x400
	vectorLowerAArch32 = 0x600
)

// InjectUndefined delivers a synthetic undefined-instruction exception to
// the guest's EL1: the exception state (ESR_EL1, ELR_EL1, SPSR_EL1) is
// written to the guest's virtual registers and the context resumes at the
// matching VBAR_EL1 synchronous vector with DAIF masked.
func InjectUndefined(g *Guest, s Syndrome) error {
	pc, err := g.Ctx.GetReg(RegPC)
	if err != nil {
		return err
	}
	cpsr, err := g.Ctx.GetReg(RegCPSR)
	if err != nil {
		return err
	}

	var offset uint64
	switch {
	case cpsr&spsrAArch32 != 0:
		offset = vectorLowerAArch32
	case cpsr&spsrModeMask == spsrModeEL1t:
		offset = vectorCurrentSP0
	case cpsr&spsrModeMask == spsrModeEL1h:
		offset = vectorCurrentSPx
	default:
		offset = vectorLowerAArch64
	}

	g.SysRegs.Set(ESR_EL1, uint64(NewSyndrome(ECUnknown, s.IL(), 0)))
	g.SysRegs.Set(ELR_EL1, pc)
	g.SysRegs.Set(SPSR_EL1, cpsr)
	if err := g.Ctx.SetReg(RegCPSR, spsrDAIF|spsrModeEL1h); err != nil {
		return err
	}
	if err := g.Ctx.SetReg(RegPC, g.SysRegs.Get(VBAR_EL1)+offset); err != nil {
		return err
	}
	record(&faultsInjected)
	return nil
}
