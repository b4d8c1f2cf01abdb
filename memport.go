package el2

import "sync"

// PortWrite records one Write issued through a MemPort.
type PortWrite struct {
	Reg   SysReg
	Value uint64
}

// MemPort is an in-memory register file implementing SysRegPort and
// TLBInvalidator. Every write is journaled so callers can assert on the
// exact sequence the core produced.
type MemPort struct {
	mu            sync.Mutex
	regs          [numSysRegs]uint64
	writes        []PortWrite
	invalidations int
}

// NewMemPort returns a port whose registers hold the given initial values.
// CurrentEL defaults to EL2.
func NewMemPort(initial map[SysReg]uint64) *MemPort {
	p := &MemPort{}
	p.regs[CurrentEL] = 2 << 2
	for r, v := range initial {
		p.regs[r] = v
	}
	return p
}

func (p *MemPort) Read(r SysReg) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.regs[r]
}

func (p *MemPort) Write(r SysReg, v uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regs[r] = v
	p.writes = append(p.writes, PortWrite{Reg: r, Value: v})
}

func (p *MemPort) InvalidateTLB() {
	p.mu.Lock()
	p.invalidations++
	p.mu.Unlock()
}

// Writes returns a copy of the write journal.
func (p *MemPort) Writes() []PortWrite {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PortWrite(nil), p.writes...)
}

// Invalidations returns how many TLB invalidations were requested.
func (p *MemPort) Invalidations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.invalidations
}

// Snapshot returns every register value by name.
func (p *MemPort) Snapshot() map[string]uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]uint64, len(p.regs))
	for i, v := range p.regs {
		out[SysReg(i).String()] = v
	}
	return out
}
